// Package events is the real-time fan-out hub. Subscribers register for a
// scope ("sales", "board:{id}") and receive every event published on it.
package events

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/teamsync/internal/clock"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
)

// Event is one bus message.
type Event struct {
	ID      string          `json:"id"`
	Scope   string          `json:"scope"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Publisher is the narrow interface services depend on.
type Publisher interface {
	Publish(ctx context.Context, scope, name string, payload any) Event
}

// Subscription receives the events of one scope. Events arrive in publish
// order; a subscriber whose buffer is full misses events instead of
// blocking the publisher.
type Subscription struct {
	ID     string
	Scope  string
	UserID string

	ch   chan Event
	bus  *Bus
	once sync.Once
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.remove(s) })
}

// Bus is the in-process hub.
type Bus struct {
	mu     sync.RWMutex
	scopes map[string]map[*Subscription]struct{}
	users  map[string]int

	hooksMu      sync.Mutex
	onDisconnect []func(ctx context.Context, userID string)

	buffer  int
	clock   clock.Clock
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewBus creates a hub whose subscriptions buffer up to buffer events.
func NewBus(buffer int, logger logging.Logger, m *metrics.Metrics) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		scopes:  make(map[string]map[*Subscription]struct{}),
		users:   make(map[string]int),
		buffer:  buffer,
		clock:   clock.Real{},
		logger:  logger.With("module", "events"),
		metrics: m,
	}
}

// OnLastDisconnect registers fn to run when a user's last subscription
// closes. Lease release on disconnect hangs off this hook.
func (b *Bus) OnLastDisconnect(fn func(ctx context.Context, userID string)) {
	b.hooksMu.Lock()
	b.onDisconnect = append(b.onDisconnect, fn)
	b.hooksMu.Unlock()
}

// Subscribe registers userID on scope.
func (b *Bus) Subscribe(scope, userID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Scope:  scope,
		UserID: userID,
		ch:     make(chan Event, b.buffer),
		bus:    b,
	}

	b.mu.Lock()
	set, ok := b.scopes[scope]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.scopes[scope] = set
	}
	set[sub] = struct{}{}
	b.users[userID]++
	b.mu.Unlock()

	b.metrics.BusSubscribers(1)
	return sub
}

// Publish fans an event out to every subscriber of scope without blocking.
func (b *Bus) Publish(ctx context.Context, scope, name string, payload any) Event {
	ev := Event{
		ID:    uuid.NewString(),
		Scope: scope,
		Name:  name,
		At:    b.clock.Now(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			b.logger.Error(ctx, "event payload not serializable", "event", name, "error", err)
		} else {
			ev.Payload = raw
		}
	}

	b.mu.RLock()
	for sub := range b.scopes[scope] {
		select {
		case sub.ch <- ev:
		default:
			b.metrics.BusDropped()
			b.logger.Warn(ctx, "slow subscriber, event dropped", "scope", scope, "event", name, "user", sub.UserID)
		}
	}
	b.mu.RUnlock()

	b.metrics.BusEvent(name)
	return ev
}

// Subscribers returns the number of subscriptions on scope.
func (b *Bus) Subscribers(scope string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.scopes[scope])
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	if set, ok := b.scopes[sub.Scope]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.scopes, sub.Scope)
		}
	}
	close(sub.ch)
	b.users[sub.UserID]--
	last := b.users[sub.UserID] <= 0
	if last {
		delete(b.users, sub.UserID)
	}
	b.mu.Unlock()

	b.metrics.BusSubscribers(-1)
	if !last {
		return
	}

	b.hooksMu.Lock()
	hooks := slices.Clone(b.onDisconnect)
	b.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(context.Background(), sub.UserID)
	}
}
