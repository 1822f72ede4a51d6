package state

import (
	"slices"
	"sort"
	"sync"

	"github.com/dmitrijs2005/teamsync/internal/models"
)

// Rows is the locally displayed row set, ordered by Date.
type Rows struct {
	mu   sync.RWMutex
	desc bool
	rows []models.Row
}

// NewRows returns an empty collection; desc selects newest-first order.
func NewRows(desc bool) *Rows {
	return &Rows{desc: desc}
}

// Desc reports the current sort direction.
func (c *Rows) Desc() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.desc
}

// Replace swaps the whole set, sorting it once. Rows sharing a date keep
// their relative order.
func (c *Rows) Replace(rows []models.Row) {
	out := make([]models.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return c.before(out[i], out[j]) })
	c.rows = out
}

// SetDesc switches the direction and re-sorts stably, so rows with equal
// dates keep their relative order.
func (c *Rows) SetDesc(desc bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desc == desc {
		return
	}
	c.desc = desc
	sort.SliceStable(c.rows, func(i, j int) bool { return c.before(c.rows[i], c.rows[j]) })
}

// Upsert places row at its sorted position, replacing any row with the
// same id. It walks the slice once and never re-sorts: a new row goes in
// front of the first row it does not sort after, so among equal dates the
// newest insert comes first.
func (c *Rows) Upsert(row models.Row) {
	row = row.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(row.ID)
	i := 0
	for ; i < len(c.rows); i++ {
		if c.atOrBefore(row, c.rows[i]) {
			break
		}
	}
	c.rows = slices.Insert(c.rows, i, row)
}

// Remove drops the row and reports whether it was present.
func (c *Rows) Remove(id string) (models.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(id)
}

func (c *Rows) remove(id string) (models.Row, bool) {
	for i, r := range c.rows {
		if r.ID == id {
			c.rows = slices.Delete(c.rows, i, i+1)
			return r, true
		}
	}
	return models.Row{}, false
}

// Get returns a deep copy of the row.
func (c *Rows) Get(id string) (models.Row, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rows {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return models.Row{}, false
}

// All returns deep copies in display order.
func (c *Rows) All() []models.Row {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Row, len(c.rows))
	for i, r := range c.rows {
		out[i] = r.Clone()
	}
	return out
}

func (c *Rows) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

func (c *Rows) before(a, b models.Row) bool {
	if c.desc {
		return a.Date.After(b.Date)
	}
	return a.Date.Before(b.Date)
}

// atOrBefore: descending inserts at the first index whose date <= a's,
// ascending at the first index whose date >= a's.
func (c *Rows) atOrBefore(a, b models.Row) bool {
	if c.desc {
		return !b.Date.After(a.Date)
	}
	return !b.Date.Before(a.Date)
}

// Locate returns a deep copy of the row and its display index.
func (c *Rows) Locate(id string) (models.Row, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, r := range c.rows {
		if r.ID == id {
			return r.Clone(), i, true
		}
	}
	return models.Row{}, -1, false
}

// Restore puts row back at index at, replacing any row with the same id.
// It undoes a local change exactly, including the position among rows
// that share a date.
func (c *Rows) Restore(row models.Row, at int) {
	row = row.Clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(row.ID)
	at = max(0, min(at, len(c.rows)))
	c.rows = slices.Insert(c.rows, at, row)
}
