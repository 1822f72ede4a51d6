package locks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists leases. Acquire must be a single atomic check-then-set:
// two concurrent calls for the same record can never both be granted.
// Every method takes the caller's notion of "now" so expiry follows the
// coordinator's clock.
type Store interface {
	// Acquire grants want when the record is free or its lease has lapsed,
	// renews it when want.OwnerID already holds it, and otherwise returns the
	// current lease with Denied.
	Acquire(ctx context.Context, want Lease, ttl time.Duration) (Lease, Outcome, error)
	// Refresh extends the caller's lease. ok is false if the caller does not
	// hold it.
	Refresh(ctx context.Context, scope, resourceID, ownerID string, now time.Time, ttl time.Duration) (Lease, bool, error)
	// Release drops the lease only if ownerID holds it.
	Release(ctx context.Context, scope, resourceID, ownerID string) (bool, error)
	Get(ctx context.Context, scope, resourceID string, now time.Time) (Lease, bool, error)
	List(ctx context.Context, scope string, now time.Time) ([]Lease, error)
	ListByOwner(ctx context.Context, ownerID string, now time.Time) ([]Lease, error)
	// Reap removes up to limit leases that expired at or before now and
	// returns them.
	Reap(ctx context.Context, now time.Time, limit int) ([]Lease, error)
}

type memKey struct {
	scope    string
	resource string
}

// MemoryStore keeps leases in process memory. It suits single-instance
// deployments and tests.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[memKey]Lease
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{leases: make(map[memKey]Lease)}
}

func (s *MemoryStore) Acquire(_ context.Context, want Lease, ttl time.Duration) (Lease, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{want.Scope, want.ResourceID}
	now := want.AcquiredAt
	cur, ok := s.leases[k]
	if ok && cur.ExpiresAt.After(now) {
		if cur.OwnerID != want.OwnerID {
			return cur, Denied, nil
		}
		cur.OwnerName = want.OwnerName
		cur.ExpiresAt = now.Add(ttl)
		s.leases[k] = cur
		return cur, Renewed, nil
	}

	want.ExpiresAt = now.Add(ttl)
	s.leases[k] = want
	return want, Granted, nil
}

func (s *MemoryStore) Refresh(_ context.Context, scope, resourceID, ownerID string, now time.Time, ttl time.Duration) (Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{scope, resourceID}
	cur, ok := s.leases[k]
	if !ok || cur.OwnerID != ownerID {
		return Lease{}, false, nil
	}
	cur.ExpiresAt = now.Add(ttl)
	s.leases[k] = cur
	return cur, true, nil
}

func (s *MemoryStore) Release(_ context.Context, scope, resourceID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{scope, resourceID}
	cur, ok := s.leases[k]
	if !ok || cur.OwnerID != ownerID {
		return false, nil
	}
	delete(s.leases, k)
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, scope, resourceID string, now time.Time) (Lease, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[memKey{scope, resourceID}]
	if !ok || !cur.ExpiresAt.After(now) {
		return Lease{}, false, nil
	}
	return cur, true, nil
}

func (s *MemoryStore) List(_ context.Context, scope string, now time.Time) ([]Lease, error) {
	return s.filter(now, func(l Lease) bool { return l.Scope == scope }), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string, now time.Time) ([]Lease, error) {
	return s.filter(now, func(l Lease) bool { return l.OwnerID == ownerID }), nil
}

func (s *MemoryStore) Reap(_ context.Context, now time.Time, limit int) ([]Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Lease
	for k, l := range s.leases {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !l.ExpiresAt.After(now) {
			out = append(out, l)
			delete(s.leases, k)
		}
	}
	sortLeases(out)
	return out, nil
}

func (s *MemoryStore) filter(now time.Time, keep func(Lease) bool) []Lease {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Lease
	for _, l := range s.leases {
		if l.ExpiresAt.After(now) && keep(l) {
			out = append(out, l)
		}
	}
	sortLeases(out)
	return out
}

func sortLeases(ls []Lease) {
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].Scope != ls[j].Scope {
			return ls[i].Scope < ls[j].Scope
		}
		return ls[i].ResourceID < ls[j].ResourceID
	})
}
