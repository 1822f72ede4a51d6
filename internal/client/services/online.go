package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/logging"
)

// Pinger probes server reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher polls the server and tracks online status. It starts offline so
// the first successful probe counts as coming online.
type Watcher struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger

	online   atomic.Bool
	onOnline func(ctx context.Context)
	onChange func(online bool)
}

func NewWatcher(pinger Pinger, interval time.Duration, logger logging.Logger) *Watcher {
	return &Watcher{
		pinger:   pinger,
		interval: interval,
		timeout:  3 * time.Second,
		logger:   logger.With("module", "online-watcher"),
	}
}

// OnOnline registers fn for offline to online transitions. It runs on the
// watcher goroutine.
func (w *Watcher) OnOnline(fn func(ctx context.Context)) {
	w.onOnline = fn
}

// OnChange registers fn for every status change.
func (w *Watcher) OnChange(fn func(online bool)) {
	w.onChange = fn
}

func (w *Watcher) Online() bool {
	return w.online.Load()
}

// Check probes once and applies the result.
func (w *Watcher) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(pingCtx)
	cancel()

	now := err == nil
	was := w.online.Swap(now)
	if was == now {
		return now
	}

	if now {
		w.logger.Info(ctx, "Switched to online mode")
	} else {
		w.logger.Warn(ctx, "Switched to offline mode", "error", err)
	}
	if w.onChange != nil {
		w.onChange(now)
	}
	if now && w.onOnline != nil {
		w.onOnline(ctx)
	}
	return now
}

// Run checks immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}
