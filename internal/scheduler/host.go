package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

var (
	ErrUnknownJob = errors.New("scheduler: job is not registered")
	ErrInvalidJob = errors.New("scheduler: job id and handler are required")
)

// Task is one host-driven execution of a registered job.
type Task interface {
	ID() string
	// Expired is closed when the host withdraws the execution budget.
	Expired() <-chan struct{}
	// Complete reports the result. Only the first call counts.
	Complete(success bool)
}

// Host runs registered jobs at times they ask for.
type Host interface {
	Register(jobID string, handler func(Task)) error
	// ScheduleNext replaces any pending run of jobID with one no earlier
	// than delay from now.
	ScheduleNext(jobID string, delay time.Duration) error
	CancelAll()
}

// GocronHost is a Host on a gocron scheduler. Each run gets a wall-clock
// budget after which its task expires.
type GocronHost struct {
	scheduler *gocron.Scheduler
	budget    time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	handlers map[string]func(Task)
}

// NewGocronHost creates a stopped host.
func NewGocronHost(budget time.Duration, logger *slog.Logger) *GocronHost {
	if budget <= 0 {
		budget = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GocronHost{
		scheduler: gocron.NewScheduler(time.UTC),
		budget:    budget,
		logger:    logger.With(slog.String("component", "host")),
		handlers:  make(map[string]func(Task)),
	}
}

// Start begins executing scheduled runs in the background.
func (h *GocronHost) Start() {
	h.scheduler.StartAsync()
}

// Stop cancels pending runs and stops the scheduler.
func (h *GocronHost) Stop() {
	h.CancelAll()
	h.scheduler.Stop()
}

func (h *GocronHost) Register(jobID string, handler func(Task)) error {
	if jobID == "" || handler == nil {
		return ErrInvalidJob
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[jobID] = handler
	return nil
}

func (h *GocronHost) ScheduleNext(jobID string, delay time.Duration) error {
	h.mu.Lock()
	handler, ok := h.handlers[jobID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	if delay <= 0 {
		delay = time.Second
	}

	// Nothing pending is fine.
	_ = h.scheduler.RemoveByTag(jobID)

	_, err := h.scheduler.
		Every(delay).
		StartAt(time.Now().Add(delay)).
		LimitRunsTo(1).
		Tag(jobID).
		Do(func() { h.run(jobID, handler) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", jobID, err)
	}
	return nil
}

func (h *GocronHost) CancelAll() {
	h.scheduler.Clear()
}

// runNow executes jobID synchronously with a fresh budget and returns the
// reported result.
func (h *GocronHost) runNow(jobID string) (bool, error) {
	h.mu.Lock()
	handler, ok := h.handlers[jobID]
	h.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	t := h.run(jobID, handler)
	return t.result(), nil
}

func (h *GocronHost) run(jobID string, handler func(Task)) *hostTask {
	t := newHostTask(jobID, h.budget)
	defer t.stop()

	handler(t)
	if !t.completed() {
		h.logger.Error("Job returned without reporting completion", slog.String("job", jobID))
		t.Complete(false)
	}

	h.logger.Info("Job finished", slog.String("job", jobID), slog.Bool("success", t.result()))
	return t
}

type hostTask struct {
	id      string
	expired chan struct{}
	timer   *time.Timer

	once    sync.Once
	mu      sync.Mutex
	done    bool
	success bool
}

func newHostTask(id string, budget time.Duration) *hostTask {
	t := &hostTask{id: id, expired: make(chan struct{})}
	t.timer = time.AfterFunc(budget, func() { close(t.expired) })
	return t
}

func (t *hostTask) ID() string               { return t.id }
func (t *hostTask) Expired() <-chan struct{} { return t.expired }

func (t *hostTask) Complete(success bool) {
	t.once.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.done = true
		t.success = success
	})
}

func (t *hostTask) completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *hostTask) result() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.success
}

func (t *hostTask) stop() {
	t.timer.Stop()
}
