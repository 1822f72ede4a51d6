// Package optimistic applies row edits locally first and reconciles them
// with the server afterwards.
package optimistic

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/client/client"
	"github.com/dmitrijs2005/teamsync/internal/client/models"
	"github.com/dmitrijs2005/teamsync/internal/client/state"
	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	shared "github.com/dmitrijs2005/teamsync/internal/models"
)

// Writer performs the remote write.
type Writer interface {
	UpdateRow(ctx context.Context, id string, patch shared.RowPatch) (shared.Row, error)
	DeleteRow(ctx context.Context, id string) error
}

// Drafts receives writes that could not reach the server. Online writes go
// through WriteThrough so a queued draft for the same row is sent along and
// cleared instead of being replayed later.
type Drafts interface {
	Enqueue(ctx context.Context, scope, resourceID string, m models.Mutation) error
	WriteThrough(ctx context.Context, resourceID string, m models.Mutation, write func(ctx context.Context, m models.Mutation) error) error
}

// Result of Apply. Queued means the change is held as a draft; Row is the
// locally visible state.
type Result struct {
	Row     shared.Row
	Deleted bool
	Queued  bool
}

type Engine struct {
	rows   *state.Rows
	writer Writer
	drafts Drafts
	online func() bool
	logger logging.Logger
}

// NewEngine wires an engine. online reports the last known connectivity;
// when it returns false the remote write is skipped and the change is
// queued straight away. A nil online means always try.
func NewEngine(rows *state.Rows, writer Writer, drafts Drafts, online func() bool, logger logging.Logger) *Engine {
	if online == nil {
		online = func() bool { return true }
	}
	return &Engine{rows: rows, writer: writer, drafts: drafts, online: online, logger: logger.With("module", "optimistic")}
}

func (e *Engine) Update(ctx context.Context, id string, patch shared.RowPatch) (Result, error) {
	return e.Apply(ctx, id, models.UpdateMutation(patch))
}

func (e *Engine) Delete(ctx context.Context, id string) (Result, error) {
	return e.Apply(ctx, id, models.DeleteMutation())
}

// Apply snapshots the row, applies m locally, then writes it remotely.
// On success the server's row replaces the local one. When the server is
// unreachable the local change stays and a draft is queued; the caller
// sees no error. Any other failure restores the snapshot and is returned.
func (e *Engine) Apply(ctx context.Context, id string, m models.Mutation) (Result, error) {
	snapshot, at, ok := e.rows.Locate(id)
	if !ok {
		return Result{}, fmt.Errorf("row %s: %w", id, common.ErrNotFound)
	}

	var local Result
	switch m.Kind {
	case models.DraftUpdate:
		if m.Patch == nil || m.Patch.Empty() {
			return Result{}, fmt.Errorf("%w: empty patch", common.ErrValidation)
		}
		local.Row = m.Patch.Apply(snapshot)
		e.rows.Upsert(local.Row)
	case models.DraftDelete:
		local = Result{Row: snapshot, Deleted: true}
		e.rows.Remove(id)
	default:
		return Result{}, fmt.Errorf("%w: unknown mutation %q", common.ErrValidation, m.Kind)
	}

	if !e.online() {
		return e.queue(ctx, id, m, local, snapshot, at)
	}

	var row shared.Row
	err := e.drafts.WriteThrough(ctx, id, m, func(ctx context.Context, send models.Mutation) error {
		if send.Kind == models.DraftDelete {
			return e.writer.DeleteRow(ctx, id)
		}
		r, err := e.writer.UpdateRow(ctx, id, *send.Patch)
		if err != nil {
			return err
		}
		row = r
		return nil
	})
	if err == nil {
		if m.Kind == models.DraftDelete {
			return local, nil
		}
		e.rows.Upsert(row)
		return Result{Row: row}, nil
	}

	if client.IsConnectivity(err) {
		e.logger.Warn(ctx, "write deferred, server unreachable", "resource", id, "error", err)
		return e.queue(ctx, id, m, local, snapshot, at)
	}

	e.rows.Restore(snapshot, at)
	return Result{}, err
}

func (e *Engine) queue(ctx context.Context, id string, m models.Mutation, local Result, snapshot shared.Row, at int) (Result, error) {
	if err := e.drafts.Enqueue(ctx, common.ScopeSales, id, m); err != nil {
		e.rows.Restore(snapshot, at)
		return Result{}, fmt.Errorf("queue draft: %w", err)
	}
	local.Queued = true
	return local, nil
}
