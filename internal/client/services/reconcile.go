package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/dmitrijs2005/teamsync/internal/client/client"
	"github.com/dmitrijs2005/teamsync/internal/client/models"
	"github.com/dmitrijs2005/teamsync/internal/client/state"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	shared "github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
)

// PendingDrafts exposes queued local changes so incoming server rows do
// not hide them.
type PendingDrafts interface {
	Mutation(ctx context.Context, resourceID string) (models.Mutation, bool)
}

// Reconciler folds bus events into local state.
type Reconciler struct {
	rows    *state.Rows
	locks   *state.Locks
	drafts  PendingDrafts
	refresh func(ctx context.Context) error
	columns func(ctx context.Context) error
	logger  logging.Logger
}

// NewReconciler wires a reconciler. refresh reloads all rows and columns
// reloads column metadata; either may be nil.
func NewReconciler(rows *state.Rows, locks *state.Locks, drafts PendingDrafts, refresh, columns func(ctx context.Context) error, logger logging.Logger) *Reconciler {
	return &Reconciler{
		rows:    rows,
		locks:   locks,
		drafts:  drafts,
		refresh: refresh,
		columns: columns,
		logger:  logger.With("module", "reconciler"),
	}
}

// Handle applies one event.
func (r *Reconciler) Handle(ctx context.Context, ev events.Event) {
	switch ev.Name {
	case events.RowCreated, events.RowUpdated:
		var row shared.Row
		if r.decode(ctx, ev, &row) {
			r.upsert(ctx, row)
		}

	case events.RowDeleted:
		var d shared.Deleted
		if r.decode(ctx, ev, &d) {
			r.rows.Remove(d.ID)
			r.locks.Clear(d.ID)
		}

	case events.RowLocked, events.RowUnlocked:
		var le client.LockEvent
		if !r.decode(ctx, ev, &le) {
			return
		}
		if le.Holder == nil {
			r.locks.Clear(le.ResourceID)
			return
		}
		r.locks.Set(le.ResourceID, state.Holder{ID: le.Holder.ID, Name: le.Holder.Name})

	case events.RowsBulkUpdated:
		var bc shared.BulkChange
		if !r.decode(ctx, ev, &bc) {
			return
		}
		if bc.Patch == nil {
			r.reload(ctx, r.refresh, ev.Name)
			return
		}
		for _, id := range bc.IDs {
			if row, ok := r.rows.Get(id); ok {
				r.upsert(ctx, bc.Patch.Apply(row))
			}
		}

	case events.RowsBulkDeleted:
		var bc shared.BulkChange
		if !r.decode(ctx, ev, &bc) {
			return
		}
		for _, id := range bc.IDs {
			r.rows.Remove(id)
			r.locks.Clear(id)
		}

	case events.RowsImported:
		r.reload(ctx, r.refresh, ev.Name)

	case events.ColumnCreated, events.ColumnUpdated, events.ColumnDeleted:
		r.reload(ctx, r.columns, ev.Name)

	default:
		r.logger.Debug(ctx, "event ignored", "name", ev.Name, "scope", ev.Scope)
	}
}

// upsert stores a server row, re-applying a queued local edit on top so
// the user keeps seeing their pending change.
func (r *Reconciler) upsert(ctx context.Context, row shared.Row) {
	if r.drafts != nil {
		if m, ok := r.drafts.Mutation(ctx, row.ID); ok {
			switch m.Kind {
			case models.DraftDelete:
				return
			case models.DraftUpdate:
				row = m.Patch.Apply(row)
			}
		}
	}
	r.rows.Upsert(row)
}

func (r *Reconciler) decode(ctx context.Context, ev events.Event, dst any) bool {
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		r.logger.Warn(ctx, "bad event payload", "name", ev.Name, "error", err)
		return false
	}
	return true
}

func (r *Reconciler) reload(ctx context.Context, fn func(context.Context) error, reason string) {
	if fn == nil {
		return
	}
	if err := fn(ctx); err != nil {
		r.logger.Warn(ctx, "reload failed", "reason", reason, "error", err)
	}
}

// Subscriber opens an event stream.
type Subscriber interface {
	Subscribe(ctx context.Context, scopes []string, handle func(events.Event)) error
}

// StreamEvents keeps a subscription to scopes open until ctx is done,
// reconnecting with exponential backoff. A stream that stayed up for a
// while resets the backoff.
func (r *Reconciler) StreamEvents(ctx context.Context, sub Subscriber, scopes []string) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second

	for {
		started := time.Now()
		err := sub.Subscribe(ctx, scopes, func(ev events.Event) { r.Handle(ctx, ev) })
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			b.Reset()
		}
		wait := b.NextBackOff()
		r.logger.Debug(ctx, "event stream closed", "error", err, "retry_in", wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
