// Package models defines client-side records kept in the local database.
package models

import "time"

// Draft kinds.
const (
	DraftUpdate = "update"
	DraftDelete = "delete"
)

// Draft is a mutation captured while the server was unreachable. There is
// at most one draft per resource; a newer one supersedes the older.
type Draft struct {
	ID         string
	Scope      string
	ResourceID string
	Kind       string
	Payload    []byte
	CapturedAt time.Time
}
