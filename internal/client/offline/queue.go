// Package offline keeps mutations made while the server is unreachable and
// replays them once it is back.
package offline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/teamsync/internal/client/client"
	"github.com/dmitrijs2005/teamsync/internal/client/models"
	"github.com/dmitrijs2005/teamsync/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/teamsync/internal/clock"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	shared "github.com/dmitrijs2005/teamsync/internal/models"
)

// Sender replays drafts against the server.
type Sender interface {
	UpdateRow(ctx context.Context, id string, patch shared.RowPatch) (shared.Row, error)
	DeleteRow(ctx context.Context, id string) error
}

// Report summarises one flush.
type Report struct {
	Sent    int
	Dropped int
	Kept    int
}

// Queue is the durable draft queue. Enqueue and Flush are serialised.
type Queue struct {
	repo    drafts.Repository
	sender  Sender
	refresh func(ctx context.Context) error
	clock   clock.Clock
	logger  logging.Logger

	mu sync.Mutex
}

// NewQueue builds a queue over repo. refresh reloads the full record set
// after a flush and may be nil.
func NewQueue(repo drafts.Repository, sender Sender, refresh func(ctx context.Context) error, c clock.Clock, logger logging.Logger) *Queue {
	if c == nil {
		c = clock.Real{}
	}
	return &Queue{
		repo:    repo,
		sender:  sender,
		refresh: refresh,
		clock:   c,
		logger:  logger.With("module", "offline-queue"),
	}
}

// Enqueue stores m for resourceID, superseding any queued draft for it.
func (q *Queue) Enqueue(ctx context.Context, scope, resourceID string, m models.Mutation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, err := q.repo.GetByResource(ctx, resourceID)
	if err != nil {
		return err
	}
	if prev != nil {
		if old, err := models.DecodeMutation(*prev); err == nil {
			m = m.Supersede(old)
		}
	}

	payload, err := m.Payload()
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	d := models.Draft{
		ID:         uuid.NewString(),
		Scope:      scope,
		ResourceID: resourceID,
		Kind:       m.Kind,
		Payload:    payload,
		CapturedAt: q.clock.Now(),
	}
	if err := q.repo.Save(ctx, d); err != nil {
		return err
	}
	q.logger.Info(ctx, "draft queued", "resource", resourceID, "kind", m.Kind)
	return nil
}

// WriteThrough sends m for resourceID while holding the queue, so it never
// interleaves with a Flush. A draft already queued for the resource is
// folded in first and removed once write succeeds; a later flush cannot
// replay an older value over this write. The draft is left untouched when
// write fails.
func (q *Queue) WriteThrough(ctx context.Context, resourceID string, m models.Mutation, write func(ctx context.Context, m models.Mutation) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev, err := q.repo.GetByResource(ctx, resourceID)
	if err != nil {
		return err
	}
	if prev != nil {
		if old, err := models.DecodeMutation(*prev); err == nil {
			m = m.Supersede(old)
		}
	}

	if err := write(ctx, m); err != nil {
		return err
	}
	if prev == nil {
		return nil
	}
	if err := q.repo.DeleteByResource(ctx, resourceID); err != nil {
		q.logger.Error(ctx, "draft not removed after write", "resource", resourceID, "error", err)
		return nil
	}
	q.logger.Info(ctx, "draft sent with online write", "resource", resourceID, "kind", m.Kind)
	return nil
}

// Pending lists queued drafts in replay order.
func (q *Queue) Pending(ctx context.Context) ([]models.Draft, error) {
	return q.repo.List(ctx)
}

// Has reports whether resourceID has a queued draft.
func (q *Queue) Has(ctx context.Context, resourceID string) bool {
	d, err := q.repo.GetByResource(ctx, resourceID)
	return err == nil && d != nil
}

// Mutation returns the queued mutation for resourceID, if any.
func (q *Queue) Mutation(ctx context.Context, resourceID string) (models.Mutation, bool) {
	d, err := q.repo.GetByResource(ctx, resourceID)
	if err != nil || d == nil {
		return models.Mutation{}, false
	}
	m, err := models.DecodeMutation(*d)
	if err != nil {
		return models.Mutation{}, false
	}
	return m, true
}

// Flush replays drafts one at a time in capture order. A draft the server
// rejects is logged and dropped; the server state wins. When the server
// becomes unreachable mid-flush the remaining drafts stay queued and the
// pass ends. After a complete pass the full record set is refreshed.
func (q *Queue) Flush(ctx context.Context) (Report, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var rep Report
	pending, err := q.repo.List(ctx)
	if err != nil {
		return rep, err
	}
	if len(pending) == 0 {
		return rep, nil
	}

	for i, d := range pending {
		err := q.send(ctx, d)
		switch {
		case err == nil:
			rep.Sent++
		case client.IsConnectivity(err):
			rep.Kept = len(pending) - i
			q.logger.Warn(ctx, "server unreachable, drafts kept", "kept", rep.Kept, "error", err)
			return rep, nil
		case ctx.Err() != nil:
			rep.Kept = len(pending) - i
			return rep, ctx.Err()
		default:
			rep.Dropped++
			q.logger.Error(ctx, "draft rejected", "resource", d.ResourceID, "kind", d.Kind, "error", err)
		}
		if err := q.repo.Delete(ctx, d.ID); err != nil {
			return rep, err
		}
	}

	q.logger.Info(ctx, "drafts flushed", "sent", rep.Sent, "dropped", rep.Dropped)
	if q.refresh != nil {
		if err := q.refresh(ctx); err != nil {
			return rep, fmt.Errorf("refresh after flush: %w", err)
		}
	}
	return rep, nil
}

func (q *Queue) send(ctx context.Context, d models.Draft) error {
	m, err := models.DecodeMutation(d)
	if err != nil {
		return err
	}
	switch m.Kind {
	case models.DraftDelete:
		return q.sender.DeleteRow(ctx, d.ResourceID)
	default:
		_, err := q.sender.UpdateRow(ctx, d.ResourceID, *m.Patch)
		return err
	}
}
