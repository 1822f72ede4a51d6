package client

import (
	"context"
	"io"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
)

// Holder identifies the user owning a lease.
type Holder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lease is a granted edit lease as reported by the server.
type Lease struct {
	Scope      string    `json:"scope"`
	ResourceID string    `json:"resourceId"`
	OwnerID    string    `json:"ownerId"`
	OwnerName  string    `json:"ownerName"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// TTL is the lifetime the server granted.
func (l Lease) TTL() time.Duration {
	return l.ExpiresAt.Sub(l.AcquiredAt)
}

// AcquireResult is either a grant (Lease set) or a denial (HeldBy set).
type AcquireResult struct {
	Granted bool    `json:"granted"`
	Lease   *Lease  `json:"lease,omitempty"`
	HeldBy  *Holder `json:"heldBy,omitempty"`
}

// LockEvent is the payload of lock and unlock bus events.
type LockEvent struct {
	ResourceID string  `json:"resourceId"`
	Holder     *Holder `json:"holder"`
	Reason     string  `json:"reason,omitempty"`
}

// Identity is the caller as the server sees it.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// API is the server surface the CLI services depend on.
type API interface {
	SetToken(token string)
	Me(ctx context.Context) (Identity, error)

	ListRows(ctx context.Context, desc bool) ([]models.Row, error)
	GetRow(ctx context.Context, id string) (models.Row, error)
	CreateRow(ctx context.Context, row models.Row) (models.Row, error)
	UpdateRow(ctx context.Context, id string, patch models.RowPatch) (models.Row, error)
	DeleteRow(ctx context.Context, id string) error
	BulkUpdate(ctx context.Context, req models.BulkRowUpdate) (int, error)
	BulkDelete(ctx context.Context, req models.BulkRowDelete) (int, error)

	ListColumns(ctx context.Context) ([]models.Column, error)

	StartImport(ctx context.Context) (models.ImportUpload, error)
	UploadImport(ctx context.Context, up models.ImportUpload, body io.Reader) error
	CompleteImport(ctx context.Context, importID string) (models.ImportResult, error)

	AcquireLock(ctx context.Context, scope, resourceID string) (AcquireResult, error)
	Heartbeat(ctx context.Context, scope, resourceID string) (Lease, error)
	ReleaseLock(ctx context.Context, scope, resourceID string) error
	ListLocks(ctx context.Context, scope string) ([]Lease, error)

	Subscribe(ctx context.Context, scopes []string, handle func(events.Event)) error
}
