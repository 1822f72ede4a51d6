// Package locks implements the lease registry that keeps two users from
// editing the same record at once.
//
// A lease is a single-owner claim on (scope, resourceID) with an expiry. The
// holder keeps it alive with heartbeats; leases that lapse are reaped by the
// coordinator's sweeper and announced as released on the event bus.
package locks

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
)

// Lease is the claim held on one record.
type Lease struct {
	Scope      string    `json:"scope"`
	ResourceID string    `json:"resourceId"`
	OwnerID    string    `json:"ownerId"`
	OwnerName  string    `json:"ownerName"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Holder returns the owning user of l.
func (l Lease) Holder() Holder {
	return Holder{ID: l.OwnerID, Name: l.OwnerName}
}

// Holder identifies the user behind a lease.
type Holder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Outcome is the result of an acquire attempt against a Store.
type Outcome int

const (
	Denied Outcome = iota
	Granted
	Renewed
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "granted"
	case Renewed:
		return "renewed"
	default:
		return "denied"
	}
}

// HeldError reports a write against a record leased by someone else. It
// matches common.ErrLockHeld.
type HeldError struct {
	Holder Holder
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("record is being edited by %s", e.Holder.Name)
}

func (e *HeldError) Unwrap() error { return common.ErrLockHeld }
