// Package invalidation maps a mutated entity to the cache key patterns that
// must be purged and purges them concurrently against the cache store.
package invalidation

import (
	"regexp"
	"strings"
)

// Refs identifies what a mutation touched. Every field is optional; only the
// identifiers present contribute patterns.
type Refs struct {
	// Boards hierarchy: board > list > card > subtask.
	BoardID       string
	ListID        string
	CardID        string
	SubtaskID     string
	SubtaskNanoID string

	// Sales workspace.
	SalesRowID    string
	SalesRows     bool // bulk row changes (bulk update/delete, import)
	SalesColumnID string

	AnnouncementID string
	DepartmentID   string
	UserID         string

	// Finance aggregates. FinancePeriod narrows the purge to one period.
	Finance       bool
	FinancePeriod string
}

const maxIDLength = 64

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// sanitizeID trims raw and checks that it is safe to embed in a glob
// pattern. The second result is false for empty or invalid input; the third
// is true only when raw was present but rejected.
func sanitizeID(raw string) (string, bool, bool) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", false, false
	}
	if len(id) > maxIDLength || !idPattern.MatchString(id) {
		return "", false, true
	}
	return id, true, false
}
