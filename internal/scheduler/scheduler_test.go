package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weathersync/internal/cities"
	"github.com/i474232898/weathersync/internal/inflight"
	"github.com/i474232898/weathersync/internal/refresh"
	"github.com/i474232898/weathersync/internal/sharedstate"
	"github.com/i474232898/weathersync/internal/store"
	"github.com/i474232898/weathersync/internal/weather"
)

var (
	chandler = weather.Coordinate{Latitude: 33.3062, Longitude: -111.8413}
	gilbert  = weather.Coordinate{Latitude: 33.3528, Longitude: -111.7890}
)

// events records the order of interesting calls across fakes.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func (e *events) count(s string) int {
	n := 0
	for _, v := range e.all() {
		if v == s {
			n++
		}
	}
	return n
}

type fakeHost struct {
	events    *events
	mu        sync.Mutex
	handlers  map[string]func(Task)
	delays    []time.Duration
	cancelled int
}

func (h *fakeHost) Register(jobID string, handler func(Task)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handlers == nil {
		h.handlers = map[string]func(Task){}
	}
	h.handlers[jobID] = handler
	return nil
}

func (h *fakeHost) ScheduleNext(jobID string, delay time.Duration) error {
	h.events.add("schedule")
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delays = append(h.delays, delay)
	return nil
}

func (h *fakeHost) CancelAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled++
}

type fakeTask struct {
	events  *events
	expired chan struct{}
	mu      sync.Mutex
	results []bool
}

func newFakeTask(ev *events) *fakeTask {
	return &fakeTask{events: ev, expired: make(chan struct{})}
}

func (t *fakeTask) ID() string               { return "task" }
func (t *fakeTask) Expired() <-chan struct{} { return t.expired }

func (t *fakeTask) Complete(success bool) {
	t.events.add("complete")
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results = append(t.results, success)
}

func (t *fakeTask) Results() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.results...)
}

type fixMode int

const (
	fixOK fixMode = iota
	fixTimeout
	fixDenied
)

func (m fixMode) String() string {
	return [...]string{"fix ok", "fix timeout", "fix denied"}[m]
}

type fakeSource struct {
	mode fixMode
}

func (s fakeSource) Authorization() weather.Authorization {
	if s.mode == fixDenied {
		return weather.AuthorizationWhenInUse
	}
	return weather.AuthorizationAlways
}

func (s fakeSource) CurrentCoordinate(ctx context.Context) (weather.Coordinate, error) {
	if s.mode == fixTimeout {
		<-ctx.Done()
		return weather.Coordinate{}, ctx.Err()
	}
	return gilbert, nil
}

type fakeFetcher struct {
	events  *events
	succeed bool
	// block holds every fetch until its context ends.
	block bool
}

func (f fakeFetcher) FetchTemperatureF(ctx context.Context, _ weather.Coordinate) (float64, error) {
	f.events.add("fetch")
	if f.block {
		<-ctx.Done()
	}
	if !f.succeed {
		return 0, errors.New("provider unavailable")
	}
	return 90, nil
}

type geocoderFunc func(context.Context, weather.Coordinate) (weather.PlaceInfo, error)

func (f geocoderFunc) ReverseGeocode(ctx context.Context, at weather.Coordinate) (weather.PlaceInfo, error) {
	return f(ctx, at)
}

type fixture struct {
	sched  *Scheduler
	host   *fakeHost
	shared *sharedstate.Store
	cities *cities.Manager
	events *events
}

func newFixture(t *testing.T, source weather.LocationSource, fetcher fakeFetcher, seedLocation bool) *fixture {
	t.Helper()
	ev := &events{}
	fetcher.events = ev

	shared := sharedstate.New(store.NewMemoryStore(), nil, sharedstate.Options{})
	if seedLocation {
		shared.SaveLocation(context.Background(), weather.SharedLocation{
			Latitude: chandler.Latitude, Longitude: chandler.Longitude, Timestamp: time.Now().Add(-time.Hour),
		})
	}
	mgr := cities.New(context.Background(), shared, cities.Options{})
	geo := geocoderFunc(func(_ context.Context, at weather.Coordinate) (weather.PlaceInfo, error) {
		if at == gilbert {
			return weather.PlaceInfo{Name: "Gilbert", CountryCode: "US", TimeZoneID: "America/Phoenix"}, nil
		}
		return weather.PlaceInfo{Name: "Chandler", CountryCode: "US", TimeZoneID: "America/Phoenix"}, nil
	})
	svc := refresh.New(mgr, shared, geo, fetcher, inflight.New(nil, 0), refresh.Options{})

	host := &fakeHost{events: ev}
	sched := New(host, svc, source, shared, Options{
		Interval:        time.Minute,
		LocationTimeout: 10 * time.Millisecond,
	})
	return &fixture{sched: sched, host: host, shared: shared, cities: mgr, events: ev}
}

func TestRunAlwaysCompletesOnce(t *testing.T) {
	for _, mode := range []fixMode{fixOK, fixTimeout, fixDenied} {
		for _, weatherOK := range []bool{true, false} {
			for _, expire := range []bool{false, true} {
				name := fmt.Sprintf("%s/weather ok=%t/expired=%t", mode, weatherOK, expire)
				t.Run(name, func(t *testing.T) {
					f := newFixture(t, fakeSource{mode: mode}, fakeFetcher{succeed: weatherOK, block: expire}, true)
					task := newFakeTask(f.events)
					if expire {
						f.cities.UpdateCurrentLocation(context.Background(), weather.City{
							ID: "primary", Name: "Chandler", Latitude: chandler.Latitude, Longitude: chandler.Longitude,
							TemperatureF: weather.Float(80), LastUpdated: weather.Time(time.Now()),
						})
						time.AfterFunc(20*time.Millisecond, func() { close(task.expired) })
					}

					finished := make(chan struct{})
					go func() {
						f.sched.Run(task)
						close(finished)
					}()
					select {
					case <-finished:
					case <-time.After(2 * time.Second):
						t.Fatal("Run did not return")
					}

					assert.Equal(t, []bool{!expire}, task.Results())
					assert.Equal(t, 1, f.events.count("schedule"))
					assert.Equal(t, "schedule", f.events.all()[0])
					assert.Equal(t, []time.Duration{time.Minute}, f.host.delays)

					if expire {
						// The abandoned refresh must not backdate the primary.
						isStale := func() bool {
							p, ok := f.cities.Primary()
							return !ok || weather.IsStale(p, time.Now(), weather.DefaultStaleThreshold)
						}
						require.Never(t, isStale, 200*time.Millisecond, 10*time.Millisecond)

						shared, ok := f.shared.PrimaryCity(context.Background())
						require.True(t, ok)
						assert.Equal(t, "Chandler", shared.Name)
						assert.Equal(t, 80.0, *shared.TemperatureF)
						assert.False(t, weather.IsStale(shared, time.Now(), weather.DefaultStaleThreshold))
						return
					}
					primary, ok := f.shared.PrimaryCity(context.Background())
					require.True(t, ok)
					if mode == fixOK {
						assert.Equal(t, "Gilbert", primary.Name)
					} else {
						assert.Equal(t, "Chandler", primary.Name)
					}
					stale := weather.IsStale(primary, time.Now(), weather.DefaultStaleThreshold)
					assert.Equal(t, !weatherOK, stale)
				})
			}
		}
	}
}

func TestRunWithoutAnyLocationFails(t *testing.T) {
	f := newFixture(t, fakeSource{mode: fixDenied}, fakeFetcher{succeed: true}, false)
	task := newFakeTask(f.events)

	f.sched.Run(task)

	assert.Equal(t, []bool{false}, task.Results())
	assert.Equal(t, []string{"schedule", "complete"}, f.events.all())
	_, ok := f.shared.PrimaryCity(context.Background())
	assert.False(t, ok)
}

func TestRunWithNilSourceUsesStoredLocation(t *testing.T) {
	f := newFixture(t, nil, fakeFetcher{succeed: true}, true)
	task := newFakeTask(f.events)

	f.sched.Run(task)

	assert.Equal(t, []bool{true}, task.Results())
	primary, ok := f.shared.PrimaryCity(context.Background())
	require.True(t, ok)
	assert.Equal(t, "Chandler", primary.Name)
}

func TestRunFixTimeoutFallsBack(t *testing.T) {
	f := newFixture(t, fakeSource{mode: fixTimeout}, fakeFetcher{succeed: true}, true)

	start := time.Now()
	at, _, err := f.sched.acquireLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chandler, at)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStartRegistersAndSchedules(t *testing.T) {
	f := newFixture(t, nil, fakeFetcher{succeed: true}, true)

	require.NoError(t, f.sched.Start())
	assert.Contains(t, f.host.handlers, DefaultJobID)
	assert.Equal(t, []time.Duration{time.Minute}, f.host.delays)

	f.sched.Stop()
	assert.Equal(t, 1, f.host.cancelled)
}
