package invalidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/cache"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
)

// ErrIncomplete reports a purge that left matching keys behind.
var ErrIncomplete = errors.New("cache purge incomplete")

// ParentResolver fills in missing ancestors so patterns can name a concrete
// board and list instead of a wildcard segment.
type ParentResolver interface {
	CardParents(ctx context.Context, cardID string) (boardID, listID string, err error)
	SubtaskCard(ctx context.Context, subtaskNanoID string) (cardID string, err error)
}

// Invalidator purges cache entries derived from mutated entities.
type Invalidator struct {
	cache       cache.Cache
	resolver    ParentResolver
	logger      logging.Logger
	metrics     *metrics.Metrics
	concurrency int
}

// Option configures an Invalidator.
type Option func(*Invalidator)

// WithResolver enables ancestor lookup.
func WithResolver(r ParentResolver) Option {
	return func(i *Invalidator) { i.resolver = r }
}

// WithConcurrency bounds how many patterns are purged at once.
func WithConcurrency(n int) Option {
	return func(i *Invalidator) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithMetrics records purged key counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Invalidator) { i.metrics = m }
}

func New(c cache.Cache, logger logging.Logger, opts ...Option) *Invalidator {
	i := &Invalidator{
		cache:       c,
		logger:      logger.With("module", "invalidation"),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Patterns resolves missing ancestors (best effort) and builds the pattern
// set for refs.
func (i *Invalidator) Patterns(ctx context.Context, refs Refs) []string {
	refs = i.resolve(ctx, refs)
	patterns, rejected := BuildPatterns(refs)
	for _, r := range rejected {
		i.logger.Warn(ctx, "invalid identifier skipped", "field", r.Field, "value", r.Value)
	}
	return patterns
}

// Invalidate purges every pattern derived from refs concurrently and returns
// the number of keys removed. Cache failures are logged and never returned.
func (i *Invalidator) Invalidate(ctx context.Context, refs Refs) int {
	n, _ := i.Purge(ctx, refs)
	return n
}

// Purge is Invalidate for callers that retry. It returns ErrIncomplete when
// any pattern failed to scan or delete. A cache that is not ready is
// skipped without error.
func (i *Invalidator) Purge(ctx context.Context, refs Refs) (int, error) {
	patterns := i.Patterns(ctx, refs)
	if len(patterns) == 0 {
		return 0, nil
	}
	if !i.cache.IsReady() {
		i.logger.Debug(ctx, "cache not ready, invalidation skipped", "patterns", len(patterns))
		return 0, nil
	}

	var total, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(i.concurrency)
	for _, pattern := range patterns {
		g.Go(func() error {
			n, ok := i.cache.ScanDelete(ctx, pattern)
			if !ok {
				failed.Add(1)
				i.logger.Warn(ctx, "pattern purge incomplete", "pattern", pattern, "deleted", n)
			}
			total.Add(int64(n))
			i.metrics.Invalidated(family(pattern), n)
			return nil
		})
	}
	_ = g.Wait()

	deleted := int(total.Load())
	i.logger.Debug(ctx, "cache invalidated", "patterns", len(patterns), "deleted", deleted)
	if f := failed.Load(); f > 0 {
		return deleted, fmt.Errorf("%w: %d of %d patterns", ErrIncomplete, f, len(patterns))
	}
	return deleted, nil
}

func (i *Invalidator) resolve(ctx context.Context, refs Refs) Refs {
	if i.resolver == nil {
		return refs
	}
	if refs.CardID == "" && refs.SubtaskNanoID != "" {
		if cardID, err := i.resolver.SubtaskCard(ctx, refs.SubtaskNanoID); err == nil {
			refs.CardID = cardID
		} else {
			i.logger.Debug(ctx, "subtask parent lookup failed", "subtaskNanoId", refs.SubtaskNanoID, "error", err)
		}
	}
	if refs.CardID != "" && (refs.BoardID == "" || refs.ListID == "") {
		boardID, listID, err := i.resolver.CardParents(ctx, refs.CardID)
		if err != nil {
			i.logger.Debug(ctx, "card parent lookup failed", "cardId", refs.CardID, "error", err)
			return refs
		}
		if refs.BoardID == "" {
			refs.BoardID = boardID
		}
		if refs.ListID == "" {
			refs.ListID = listID
		}
	}
	return refs
}

func family(pattern string) string {
	head, _, _ := strings.Cut(pattern, ":")
	return strings.TrimSuffix(head, "*")
}
