package locks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/clock"
	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
)

// AcquireResult is returned by Acquire. A denial is a normal result, not an
// error: HeldBy names the user to show as "being edited by".
type AcquireResult struct {
	Granted bool    `json:"granted"`
	Lease   *Lease  `json:"lease,omitempty"`
	HeldBy  *Holder `json:"heldBy,omitempty"`
}

// LockEvent is the bus payload of lock and unlock events. Holder is nil on
// unlock.
type LockEvent struct {
	ResourceID string  `json:"resourceId"`
	Holder     *Holder `json:"holder"`
	Reason     string  `json:"reason,omitempty"`
}

// Release reasons carried on unlock events.
const (
	ReasonReleased     = "released"
	ReasonExpired      = "expired"
	ReasonDisconnected = "disconnected"
)

// Coordinator is the single owner of the lease table.
type Coordinator struct {
	store   Store
	bus     events.Publisher
	clock   clock.Clock
	ttl     time.Duration
	logger  logging.Logger
	metrics *metrics.Metrics
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

func NewCoordinator(store Store, bus events.Publisher, ttl time.Duration, logger logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		bus:    bus,
		clock:  clock.Real{},
		ttl:    ttl,
		logger: logger.With("module", "locks"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL is the lease lifetime granted by Acquire and Heartbeat.
func (c *Coordinator) TTL() time.Duration { return c.ttl }

// Acquire grants the record to who, renews an existing lease of the same
// user, or reports the current holder.
func (c *Coordinator) Acquire(ctx context.Context, scope, resourceID string, who Holder) (AcquireResult, error) {
	if scope == "" || resourceID == "" || who.ID == "" {
		return AcquireResult{}, fmt.Errorf("%w: scope, resource and user are required", common.ErrValidation)
	}

	lease, outcome, err := c.store.Acquire(ctx, Lease{
		Scope:      scope,
		ResourceID: resourceID,
		OwnerID:    who.ID,
		OwnerName:  who.Name,
		AcquiredAt: c.now(),
	}, c.ttl)
	if err != nil {
		return AcquireResult{}, err
	}
	c.metrics.LeaseDecision(outcome.String())

	switch outcome {
	case Denied:
		holder := lease.Holder()
		c.logger.Debug(ctx, "lease denied", "scope", scope, "resource", resourceID, "user", who.ID, "holder", holder.ID)
		return AcquireResult{HeldBy: &holder}, nil
	case Granted:
		c.logger.Info(ctx, "lease granted", "scope", scope, "resource", resourceID, "user", who.ID)
		holder := lease.Holder()
		c.broadcast(ctx, scope, true, LockEvent{ResourceID: resourceID, Holder: &holder})
	}
	return AcquireResult{Granted: true, Lease: &lease}, nil
}

// Heartbeat extends the caller's lease by the TTL. It fails with
// common.ErrNotFound when the caller no longer holds the lease.
func (c *Coordinator) Heartbeat(ctx context.Context, scope, resourceID, userID string) (Lease, error) {
	lease, ok, err := c.store.Refresh(ctx, scope, resourceID, userID, c.now(), c.ttl)
	if err != nil {
		return Lease{}, err
	}
	if !ok {
		return Lease{}, fmt.Errorf("lease %s/%s: %w", scope, resourceID, common.ErrNotFound)
	}
	return lease, nil
}

// Release drops the caller's lease. Releasing a lease the caller does not
// hold is a silent no-op.
func (c *Coordinator) Release(ctx context.Context, scope, resourceID, userID string) error {
	released, err := c.store.Release(ctx, scope, resourceID, userID)
	if err != nil {
		return err
	}
	if !released {
		c.metrics.LeaseDecision("release_noop")
		return nil
	}
	c.metrics.LeaseDecision("released")
	c.logger.Info(ctx, "lease released", "scope", scope, "resource", resourceID, "user", userID)
	c.broadcast(ctx, scope, false, LockEvent{ResourceID: resourceID, Reason: ReasonReleased})
	return nil
}

// ReleaseAllFor drops every lease held by userID, e.g. when their last bus
// connection closes. It returns how many leases were released.
func (c *Coordinator) ReleaseAllFor(ctx context.Context, userID string) int {
	leases, err := c.store.ListByOwner(ctx, userID, c.now())
	if err != nil {
		c.logger.Error(ctx, "listing leases for disconnect failed", "user", userID, "error", err)
		return 0
	}
	n := 0
	for _, l := range leases {
		released, err := c.store.Release(ctx, l.Scope, l.ResourceID, userID)
		if err != nil {
			c.logger.Error(ctx, "releasing lease on disconnect failed", "scope", l.Scope, "resource", l.ResourceID, "error", err)
			continue
		}
		if released {
			n++
			c.broadcast(ctx, l.Scope, false, LockEvent{ResourceID: l.ResourceID, Reason: ReasonDisconnected})
		}
	}
	if n > 0 {
		c.logger.Info(ctx, "leases released on disconnect", "user", userID, "count", n)
	}
	return n
}

// Holder returns the live lease on a record, if any.
func (c *Coordinator) Holder(ctx context.Context, scope, resourceID string) (*Lease, error) {
	l, ok, err := c.store.Get(ctx, scope, resourceID, c.now())
	if err != nil || !ok {
		return nil, err
	}
	return &l, nil
}

// List returns the live leases of scope.
func (c *Coordinator) List(ctx context.Context, scope string) ([]Lease, error) {
	return c.store.List(ctx, scope, c.now())
}

// CheckWritable fails with a *HeldError when another user holds the record.
// Writes without any lease are allowed.
func (c *Coordinator) CheckWritable(ctx context.Context, scope, resourceID, userID string) error {
	l, err := c.Holder(ctx, scope, resourceID)
	if err != nil {
		return err
	}
	if l != nil && l.OwnerID != userID {
		return &HeldError{Holder: l.Holder()}
	}
	return nil
}

// Sweep reaps expired leases once and broadcasts their release.
func (c *Coordinator) Sweep(ctx context.Context) int {
	expired, err := c.store.Reap(ctx, c.now(), 100)
	if err != nil {
		c.logger.Error(ctx, "lease sweep failed", "error", err)
		return 0
	}
	for _, l := range expired {
		c.metrics.LeaseDecision("expired")
		c.logger.Info(ctx, "lease expired", "scope", l.Scope, "resource", l.ResourceID, "user", l.OwnerID)
		c.broadcast(ctx, l.Scope, false, LockEvent{ResourceID: l.ResourceID, Reason: ReasonExpired})
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

func (c *Coordinator) now() time.Time {
	return c.clock.Now().Truncate(time.Millisecond)
}

func (c *Coordinator) broadcast(ctx context.Context, scope string, locked bool, payload LockEvent) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(ctx, scope, EventName(scope, locked), payload)
}

// EventName maps a scope to its lock or unlock event name: sales rows use
// row-*, board cards use card-*.
func EventName(scope string, locked bool) string {
	if strings.HasPrefix(scope, common.ScopeBoardPrefix) {
		if locked {
			return events.CardLocked
		}
		return events.CardUnlocked
	}
	if locked {
		return events.RowLocked
	}
	return events.RowUnlocked
}
