package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/client/client"
	"github.com/dmitrijs2005/teamsync/internal/logging"
)

const defaultHeartbeat = 10 * time.Second

// LockAPI is the lease part of the server API.
type LockAPI interface {
	AcquireLock(ctx context.Context, scope, resourceID string) (client.AcquireResult, error)
	Heartbeat(ctx context.Context, scope, resourceID string) (client.Lease, error)
	ReleaseLock(ctx context.Context, scope, resourceID string) error
}

type leaseKey struct {
	scope string
	id    string
}

// LeaseKeeper acquires edit leases and keeps them alive with heartbeats
// every third of their TTL until they are released.
type LeaseKeeper struct {
	api    LockAPI
	logger logging.Logger

	mu   sync.Mutex
	held map[leaseKey]context.CancelFunc
	wg   sync.WaitGroup
}

func NewLeaseKeeper(api LockAPI, logger logging.Logger) *LeaseKeeper {
	return &LeaseKeeper{
		api:    api,
		logger: logger.With("module", "lease-keeper"),
		held:   make(map[leaseKey]context.CancelFunc),
	}
}

// Acquire asks for the lease. A denial is returned as a result, not an error.
func (k *LeaseKeeper) Acquire(ctx context.Context, scope, id string) (client.AcquireResult, error) {
	res, err := k.api.AcquireLock(ctx, scope, id)
	if err != nil || !res.Granted {
		return res, err
	}

	interval := defaultHeartbeat
	if res.Lease != nil && res.Lease.TTL() > 0 {
		interval = res.Lease.TTL() / 3
	}

	key := leaseKey{scope: scope, id: id}
	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	k.mu.Lock()
	if prev, ok := k.held[key]; ok {
		prev()
	}
	k.held[key] = cancel
	k.mu.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.heartbeat(hbCtx, key, interval)
	}()
	return res, nil
}

func (k *LeaseKeeper) heartbeat(ctx context.Context, key leaseKey, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := k.api.Heartbeat(ctx, key.scope, key.id)
			if err == nil || ctx.Err() != nil {
				continue
			}
			var appErr *client.ApplicationError
			if errors.As(err, &appErr) {
				k.logger.Warn(ctx, "lease lost", "resource", key.id, "error", err)
				k.forget(key)
				return
			}
			k.logger.Debug(ctx, "heartbeat failed", "resource", key.id, "error", err)
		}
	}
}

func (k *LeaseKeeper) forget(key leaseKey) {
	k.mu.Lock()
	if cancel, ok := k.held[key]; ok {
		cancel()
		delete(k.held, key)
	}
	k.mu.Unlock()
}

// Release stops heartbeats and releases the lease on the server.
func (k *LeaseKeeper) Release(ctx context.Context, scope, id string) error {
	k.forget(leaseKey{scope: scope, id: id})
	return k.api.ReleaseLock(ctx, scope, id)
}

// Holds reports whether the keeper currently holds the lease.
func (k *LeaseKeeper) Holds(scope, id string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.held[leaseKey{scope: scope, id: id}]
	return ok
}

// Held lists held resource ids of scope.
func (k *LeaseKeeper) Held(scope string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []string
	for key := range k.held {
		if key.scope == scope {
			out = append(out, key.id)
		}
	}
	sort.Strings(out)
	return out
}

// Close releases every held lease and waits for heartbeats to stop.
func (k *LeaseKeeper) Close(ctx context.Context) {
	k.mu.Lock()
	keys := make([]leaseKey, 0, len(k.held))
	for key := range k.held {
		keys = append(keys, key)
	}
	k.mu.Unlock()

	for _, key := range keys {
		if err := k.Release(ctx, key.scope, key.id); err != nil {
			k.logger.Warn(ctx, "release on close failed", "resource", key.id, "error", err)
		}
	}
	k.wg.Wait()
}
