// Package tasks runs fire-and-forget side effects (cache purges, follow-up
// notifications) off the request path, retrying failures with backoff.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
)

// Func is the unit of work. Wrap an error with backoff.Permanent to stop
// retrying it.
type Func func(ctx context.Context) error

type task struct {
	name string
	fn   Func
}

// Config tunes the runner.
type Config struct {
	Workers      int
	QueueSize    int
	MaxTries     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Submitter is what request handlers depend on.
type Submitter interface {
	Submit(name string, fn Func) bool
}

// Runner is a fixed worker pool fed by a bounded queue.
type Runner struct {
	cfg     Config
	queue   chan task
	logger  logging.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewRunner(cfg Config, logger logging.Logger, m *metrics.Metrics) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = 5 * time.Second
	}
	return &Runner{
		cfg:     cfg,
		queue:   make(chan task, cfg.QueueSize),
		logger:  logger.With("module", "tasks"),
		metrics: m,
	}
}

// Start launches the workers. They exit once Stop has drained the queue.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for t := range r.queue {
				r.run(ctx, t)
			}
		}()
	}
}

// Submit queues fn without blocking. It returns false when the queue is full
// or the runner is stopped; the task is then dropped and logged.
func (r *Runner) Submit(name string, fn Func) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		r.metrics.TaskRun(name, "rejected")
		return false
	}
	select {
	case r.queue <- task{name: name, fn: fn}:
		return true
	default:
		r.metrics.TaskRun(name, "dropped")
		r.logger.Warn(context.Background(), "task queue full, task dropped", "task", name)
		return false
	}
}

// Stop refuses new tasks and waits for queued ones to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, t task) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialDelay
	b.MaxInterval = r.cfg.MaxDelay

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, t.fn(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxTries),
	)
	if err != nil {
		r.metrics.TaskRun(t.name, "failed")
		r.logger.Error(ctx, "task failed", "task", t.name, "attempts", attempts, "error", err)
		return
	}
	r.metrics.TaskRun(t.name, "ok")
	if attempts > 1 {
		r.logger.Info(ctx, "task succeeded after retry", "task", t.name, "attempts", attempts)
	}
}
