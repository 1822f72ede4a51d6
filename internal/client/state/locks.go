package state

import "sync"

// Holder is the user shown as editing a row.
type Holder struct {
	ID   string
	Name string
}

// Locks tracks which rows are leased and by whom.
type Locks struct {
	mu      sync.RWMutex
	holders map[string]Holder
}

func NewLocks() *Locks {
	return &Locks{holders: make(map[string]Holder)}
}

func (l *Locks) Set(resourceID string, h Holder) {
	l.mu.Lock()
	l.holders[resourceID] = h
	l.mu.Unlock()
}

func (l *Locks) Clear(resourceID string) {
	l.mu.Lock()
	delete(l.holders, resourceID)
	l.mu.Unlock()
}

// Replace resets the table to holders.
func (l *Locks) Replace(holders map[string]Holder) {
	next := make(map[string]Holder, len(holders))
	for k, v := range holders {
		next[k] = v
	}
	l.mu.Lock()
	l.holders = next
	l.mu.Unlock()
}

func (l *Locks) Get(resourceID string) (Holder, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.holders[resourceID]
	return h, ok
}
