// Package cities is the in-process authority over the tracked city list.
// Every mutation is validated here, applied to the cached list, and written
// through to shared state.
package cities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weathersync/internal/weather"
)

// DefaultMaxCities bounds the collection size, primary included.
const DefaultMaxCities = 10

var (
	ErrAtCapacity    = errors.New("city collection is full")
	ErrDuplicate     = errors.New("city is too close to an existing city")
	ErrPrimaryLocked = errors.New("the primary city cannot be removed or moved")
	ErrNotFound      = errors.New("city not found")
	ErrInvalidMove   = errors.New("invalid move")
	ErrInvalidCity   = errors.New("invalid city")
)

// SharedState is the persistence the manager writes through.
type SharedState interface {
	Cities(ctx context.Context) []weather.City
	SaveCities(ctx context.Context, cities []weather.City)
	WriteCities(ctx context.Context, cities []weather.City) bool
	ForceReload(ctx context.Context)
}

// Options tunes a Manager. Zero values pick defaults.
type Options struct {
	MaxCities         int
	DuplicateDistance float64 // meters
	Logger            *slog.Logger
	Now               func() time.Time
}

// Manager holds the authoritative in-memory city list. All operations are
// serialized by one mutex, which also orders every write this process makes
// to shared state.
type Manager struct {
	shared SharedState
	max    int
	minGap float64
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	cities []weather.City
}

// New loads the current list from shared state and normalizes it.
func New(ctx context.Context, shared SharedState, opts Options) *Manager {
	if opts.MaxCities <= 0 {
		opts.MaxCities = DefaultMaxCities
	}
	if opts.DuplicateDistance <= 0 {
		opts.DuplicateDistance = weather.DefaultDuplicateDistance
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		shared: shared,
		max:    opts.MaxCities,
		minGap: opts.DuplicateDistance,
		logger: opts.Logger.With(slog.String("component", "cities")),
		now:    opts.Now,
	}
	m.Reload(ctx)
	return m
}

// Reload replaces the cache with what shared state currently holds.
func (m *Manager) Reload(ctx context.Context) {
	loaded := m.shared.Cities(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cities = normalize(loaded)
}

// Cities returns a copy of the list in display order.
func (m *Manager) Cities() []weather.City {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.cities)
}

// Saved returns the non-primary cities in display order.
func (m *Manager) Saved() []weather.City {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := make([]weather.City, 0, len(m.cities))
	for _, c := range m.cities {
		if !c.IsPrimary {
			saved = append(saved, c.Clone())
		}
	}
	return saved
}

// Primary returns the primary city, if any.
func (m *Manager) Primary() (weather.City, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cities) > 0 && m.cities[0].IsPrimary {
		return m.cities[0].Clone(), true
	}
	return weather.City{}, false
}

// City returns the city with id.
func (m *Manager) City(id string) (weather.City, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexOf(id); i >= 0 {
		return m.cities[i].Clone(), true
	}
	return weather.City{}, false
}

// AddCity appends c and reports whether it was accepted.
func (m *Manager) AddCity(ctx context.Context, c weather.City) bool {
	return m.Add(ctx, c) == nil
}

// Add appends c as a saved city. It fails when the collection is full or c
// lies within the duplicate distance of a tracked city. One slot stays
// reserved for the primary city until it exists.
func (m *Manager) Add(ctx context.Context, c weather.City) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID == "" || !c.Coordinate().Valid() {
		return m.reject(ctx, "add", c.ID, ErrInvalidCity)
	}
	if m.indexOf(c.ID) >= 0 {
		return m.reject(ctx, "add", c.ID, fmt.Errorf("%w: id %s already tracked", ErrDuplicate, c.ID))
	}

	limit := m.max
	if !m.hasPrimary() {
		limit--
	}
	if len(m.cities) >= limit {
		return m.reject(ctx, "add", c.ID, ErrAtCapacity)
	}
	for _, existing := range m.cities {
		if weather.DistanceMeters(existing.Coordinate(), c.Coordinate()) < m.minGap {
			return m.reject(ctx, "add", c.ID, fmt.Errorf("%w: %s", ErrDuplicate, existing.Name))
		}
	}

	c = c.Clone()
	c.IsPrimary = false
	c.SortOrder = len(m.cities)
	m.cities = append(m.cities, c)
	m.persist(ctx)

	m.logger.InfoContext(ctx, "Added city", slog.String("id", c.ID), slog.String("name", c.Name))
	return nil
}

// UpdateCity replaces the city with the same id and reports whether the
// update was accepted.
func (m *Manager) UpdateCity(ctx context.Context, c weather.City) bool {
	return m.Update(ctx, c) == nil
}

// Update replaces the city with the same id, keeping its position and
// primary flag. The new coordinate must be valid and must not land within
// the duplicate distance of another tracked city.
func (m *Manager) Update(ctx context.Context, c weather.City) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(c.ID)
	if i < 0 {
		return m.reject(ctx, "update", c.ID, ErrNotFound)
	}
	if !c.Coordinate().Valid() {
		return m.reject(ctx, "update", c.ID, ErrInvalidCity)
	}
	for j, other := range m.cities {
		if j != i && weather.DistanceMeters(other.Coordinate(), c.Coordinate()) < m.minGap {
			return m.reject(ctx, "update", c.ID, fmt.Errorf("%w: %s", ErrDuplicate, other.Name))
		}
	}

	c = c.Clone()
	c.IsPrimary = m.cities[i].IsPrimary
	c.SortOrder = m.cities[i].SortOrder
	m.cities[i] = c
	m.persist(ctx)
	return nil
}

// UpdateWeather records a fresh temperature for id.
func (m *Manager) UpdateWeather(ctx context.Context, id string, temperatureF float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		m.logger.WarnContext(ctx, "Ignoring weather for unknown city", slog.String("id", id))
		return
	}
	m.cities[i].TemperatureF = weather.Float(temperatureF)
	m.cities[i].LastUpdated = weather.Time(m.now().UTC())
	m.persist(ctx)
}

// MarkStale keeps the city's temperature but backdates LastUpdated to at.
func (m *Manager) MarkStale(ctx context.Context, id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return
	}
	m.cities[i].LastUpdated = weather.Time(at.UTC())
	m.persist(ctx)
}

// RemoveCity removes id and reports whether it did.
func (m *Manager) RemoveCity(ctx context.Context, id string) bool {
	return m.Remove(ctx, id) == nil
}

// Remove deletes a saved city and re-densifies the order of the rest.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return m.reject(ctx, "remove", id, ErrNotFound)
	}
	if m.cities[i].IsPrimary {
		return m.reject(ctx, "remove", id, ErrPrimaryLocked)
	}

	m.cities = append(m.cities[:i], m.cities[i+1:]...)
	reindex(m.cities)
	m.persist(ctx)
	return nil
}

// MoveCity reorders and reports whether the move was accepted.
func (m *Manager) MoveCity(ctx context.Context, source []int, destination int) bool {
	return m.Move(ctx, source, destination) == nil
}

// Move takes the cities at the source offsets and inserts them, in their
// current relative order, before the city currently at destination
// (len means the end). While a primary city exists it must stay at index 0,
// so moving it or moving anything to index 0 is rejected.
func (m *Manager) Move(ctx context.Context, source []int, destination int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.cities)
	if len(source) == 0 || destination < 0 || destination > n {
		return m.reject(ctx, "move", "", ErrInvalidMove)
	}

	picked := make(map[int]bool, len(source))
	for _, i := range source {
		if i < 0 || i >= n || picked[i] {
			return m.reject(ctx, "move", "", ErrInvalidMove)
		}
		picked[i] = true
	}

	if m.hasPrimary() && (picked[0] || destination == 0) {
		return m.reject(ctx, "move", m.cities[0].ID, ErrPrimaryLocked)
	}

	result := applyMove(m.cities, picked, destination)
	if hasAnyPrimary(result) && !result[0].IsPrimary {
		return m.reject(ctx, "move", "", ErrPrimaryLocked)
	}

	m.cities = result
	reindex(m.cities)
	m.persist(ctx)
	return nil
}

// UpdateCurrentLocation makes c the primary city. An existing primary keeps
// its id and position and takes c's mutable fields; otherwise c is inserted
// at index 0 and every other city shifts down. Identity may have changed, so
// the display surface is repainted immediately.
func (m *Manager) UpdateCurrentLocation(ctx context.Context, c weather.City) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c = c.Clone()
	c.IsPrimary = true
	c.SortOrder = 0

	if m.hasPrimary() {
		c.ID = m.cities[0].ID
		m.cities[0] = c
	} else {
		if c.ID == "" {
			m.logger.WarnContext(ctx, "Ignoring current location without id")
			return
		}
		if i := m.indexOf(c.ID); i >= 0 {
			m.cities = append(m.cities[:i], m.cities[i+1:]...)
		}
		m.cities = append([]weather.City{c}, m.cities...)
		reindex(m.cities)
	}

	if m.shared.WriteCities(ctx, cloneAll(m.cities)) {
		m.shared.ForceReload(ctx)
	}
	m.logger.InfoContext(ctx, "Updated current location",
		slog.String("id", c.ID), slog.String("name", c.Name))
}

// ClearSavedCities removes every non-primary city.
func (m *Manager) ClearSavedCities(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.cities[:0]
	for _, c := range m.cities {
		if c.IsPrimary {
			kept = append(kept, c)
		}
	}
	m.cities = kept
	reindex(m.cities)
	m.persist(ctx)
}

func (m *Manager) persist(ctx context.Context) {
	m.shared.SaveCities(ctx, cloneAll(m.cities))
}

func (m *Manager) reject(ctx context.Context, op, id string, err error) error {
	m.logger.WarnContext(ctx, "Rejected city operation",
		slog.String("op", op), slog.String("id", id), slog.Any("error", err))
	return err
}

func (m *Manager) indexOf(id string) int {
	for i, c := range m.cities {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) hasPrimary() bool {
	return len(m.cities) > 0 && m.cities[0].IsPrimary
}

func applyMove(cities []weather.City, picked map[int]bool, destination int) []weather.City {
	moved := make([]weather.City, 0, len(picked))
	rest := make([]weather.City, 0, len(cities))
	insertAt := destination
	for i, c := range cities {
		if picked[i] {
			moved = append(moved, c)
			if i < destination {
				insertAt--
			}
			continue
		}
		rest = append(rest, c)
	}

	out := make([]weather.City, 0, len(cities))
	out = append(out, rest[:insertAt]...)
	out = append(out, moved...)
	out = append(out, rest[insertAt:]...)
	return out
}

// normalize orders a loaded list, keeps at most one primary at index 0 and
// makes SortOrder dense.
func normalize(cities []weather.City) []weather.City {
	out := cloneAll(cities)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	for i := 1; i < len(out); i++ {
		out[i].IsPrimary = false
	}
	reindex(out)
	return out
}

func reindex(cities []weather.City) {
	for i := range cities {
		cities[i].SortOrder = i
	}
}

func hasAnyPrimary(cities []weather.City) bool {
	for _, c := range cities {
		if c.IsPrimary {
			return true
		}
	}
	return false
}

func cloneAll(cities []weather.City) []weather.City {
	out := make([]weather.City, len(cities))
	for i, c := range cities {
		out[i] = c.Clone()
	}
	return out
}
