// Package services holds the server's write and read paths for the sales
// workspace and the boards. Every mutation persists through the
// repositories, announces itself on the event bus and hands cache
// invalidation to the background task runner.
package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/cache"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
	"github.com/dmitrijs2005/teamsync/internal/server/invalidation"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/server/tasks"
)

// WriteGuard rejects writes to records leased by another user.
type WriteGuard interface {
	CheckWritable(ctx context.Context, scope, resourceID, userID string) error
}

// Purger is the cache invalidation entry point. Purge returns an error when
// keys may have been left behind and the purge is worth retrying.
type Purger interface {
	Purge(ctx context.Context, refs invalidation.Refs) (int, error)
}

// Deps are the collaborators shared by the services.
type Deps struct {
	DB       *sql.DB
	Repos    repomanager.RepositoryManager
	Cache    cache.Cache
	CacheTTL time.Duration
	Guard    WriteGuard
	Bus      events.Publisher
	Purger   Purger
	Tasks    tasks.Submitter
	Logger   logging.Logger
}

type base struct {
	Deps
}

// invalidate purges in the background. Refs whose purge was incomplete are
// retried by the runner; the rest are not purged again. When the runner
// refuses the task the purge still happens once, detached from the request.
func (b *base) invalidate(ctx context.Context, refs ...invalidation.Refs) {
	if b.Purger == nil {
		return
	}
	pending := refs
	fn := func(ctx context.Context) error {
		var failed []invalidation.Refs
		var firstErr error
		for _, r := range pending {
			if _, err := b.Purger.Purge(ctx, r); err != nil {
				failed = append(failed, r)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		pending = failed
		return firstErr
	}
	if b.Tasks != nil && b.Tasks.Submit("invalidate", fn) {
		return
	}
	b.Logger.Warn(ctx, "task queue refused invalidation, purging detached")
	go func() { _ = fn(context.WithoutCancel(ctx)) }()
}

func (b *base) publish(ctx context.Context, scope, name string, payload any) {
	if b.Bus == nil {
		return
	}
	b.Bus.Publish(ctx, scope, name, payload)
}

func (b *base) checkWritable(ctx context.Context, scope, id, userID string) error {
	if b.Guard == nil {
		return nil
	}
	return b.Guard.CheckWritable(ctx, scope, id, userID)
}
