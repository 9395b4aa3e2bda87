// Package inflight collapses concurrent temperature fetches for the same
// city into a single underlying call. It is not a cache: once a fetch
// completes its entry is gone and the next request starts a new one.
package inflight

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weathersync/internal/metrics"
)

// DefaultTimeout bounds one underlying fetch.
const DefaultTimeout = 30 * time.Second

// Loader fetches a temperature. It reports absence with ok == false rather
// than an error; every waiter sees the same absence.
type Loader func(ctx context.Context) (temperatureF float64, ok bool)

var errAbsent = errors.New("inflight: loader returned no value")

// flight owns the context a fetch runs under. It is cancelled once no
// caller is waiting on it any more.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Coordinator is the per-city in-flight registry.
type Coordinator struct {
	group   singleflight.Group
	metrics *metrics.Metrics
	timeout time.Duration

	mu      sync.Mutex
	flights map[string]*flight
	joined  map[string]int
}

// New creates a Coordinator. m may be nil; a zero timeout uses DefaultTimeout.
func New(m *metrics.Metrics, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		metrics: m,
		timeout: timeout,
		flights: make(map[string]*flight),
		joined:  make(map[string]int),
	}
}

// Fetch runs load for cityID unless a fetch for that id is already in
// flight, in which case it waits for that fetch's result instead.
//
// The loader does not inherit any single caller's cancellation. A caller
// whose ctx ends stops waiting and gets no value; the fetch is cancelled
// only when every caller has stopped waiting, or after the timeout.
func (c *Coordinator) Fetch(ctx context.Context, cityID string, load Loader) (float64, bool) {
	f := c.enter(ctx, cityID)
	defer c.leave(cityID, f)

	ch := c.group.DoChan(cityID, func() (interface{}, error) {
		defer c.finish(cityID, f)
		v, ok := load(f.ctx)
		if !ok {
			return nil, errAbsent
		}
		return v, nil
	})
	c.join(cityID, 1)
	defer c.join(cityID, -1)

	select {
	case <-ctx.Done():
		return 0, false
	case res := <-ch:
		c.metrics.Fetch(res.Shared)
		if res.Err != nil {
			return 0, false
		}
		v, ok := res.Val.(float64)
		return v, ok
	}
}

func (c *Coordinator) enter(ctx context.Context, cityID string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.flights[cityID]
	if !ok {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[cityID] = f
	}
	f.waiters++
	return f
}

func (c *Coordinator) leave(cityID string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[cityID] == f {
		delete(c.flights, cityID)
	}
}

// finish retires f once its loader returns so the next call starts fresh.
func (c *Coordinator) finish(cityID string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights[cityID] == f {
		delete(c.flights, cityID)
	}
}

// waiting returns how many callers have joined the fetch for cityID.
func (c *Coordinator) waiting(cityID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined[cityID]
}

func (c *Coordinator) join(cityID string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined[cityID] += delta
	if c.joined[cityID] <= 0 {
		delete(c.joined, cityID)
	}
}
