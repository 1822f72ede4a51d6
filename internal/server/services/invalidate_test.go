package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/cache"
	"github.com/dmitrijs2005/teamsync/internal/server/invalidation"
	"github.com/dmitrijs2005/teamsync/internal/server/tasks"
)

func fastRunner(t *testing.T) *tasks.Runner {
	t.Helper()
	r := tasks.NewRunner(tasks.Config{
		Workers:      2,
		QueueSize:    8,
		MaxTries:     3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	}, logging.Nop(), nil)
	r.Start(context.Background())
	t.Cleanup(r.Stop)
	return r
}

func TestInvalidate_RetriesOnlyIncompleteRefs(t *testing.T) {
	h := newHarness(t)
	h.deps.Tasks = fastRunner(t)
	stale := invalidation.Refs{SalesRowID: "r1"}
	fresh := invalidation.Refs{SalesColumnID: "stage"}
	h.purger.failures = map[invalidation.Refs]int{stale: 1}

	b := &base{Deps: h.deps}
	b.invalidate(context.Background(), stale, fresh)

	h.deps.Tasks.(*tasks.Runner).Stop()
	assert.Equal(t, []invalidation.Refs{stale, fresh, stale}, h.purger.all())
}

func TestInvalidate_GivesUpAfterRunnerRetries(t *testing.T) {
	h := newHarness(t)
	h.deps.Tasks = fastRunner(t)
	ref := invalidation.Refs{SalesRowID: "r1"}
	h.purger.failures = map[invalidation.Refs]int{ref: 10}

	b := &base{Deps: h.deps}
	b.invalidate(context.Background(), ref)

	h.deps.Tasks.(*tasks.Runner).Stop()
	assert.Len(t, h.purger.all(), 3)
}

func TestSales_MutationCompletesWithCacheDown(t *testing.T) {
	tests := []struct {
		name  string
		store func(t *testing.T) *cache.Store
	}{
		{
			name: "never reachable",
			store: func(t *testing.T) *cache.Store {
				s := cache.NewStore(cache.Config{
					Addr:             "127.0.0.1:1",
					DialTimeout:      50 * time.Millisecond,
					ReconnectBase:    time.Millisecond,
					ReconnectRetries: 1,
				}, logging.Nop(), nil)
				s.Start(context.Background())
				return s
			},
		},
		{
			name: "lost after start",
			store: func(t *testing.T) *cache.Store {
				mr := miniredis.RunT(t)
				s := cache.NewStore(cache.Config{
					Addr:             mr.Addr(),
					DialTimeout:      50 * time.Millisecond,
					ReconnectBase:    time.Millisecond,
					ReconnectRetries: 1,
				}, logging.Nop(), nil)
				s.Start(context.Background())
				require.True(t, s.IsReady())
				mr.Close()
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			store := tt.store(t)
			t.Cleanup(func() { _ = store.Close() })

			runner := fastRunner(t)
			h.deps.Cache = store
			h.deps.Purger = invalidation.New(store, logging.Nop())
			h.deps.Tasks = runner
			s := NewSalesService(h.deps, nil)
			ctx := context.Background()

			row, err := s.CreateRow(ctx, alice, models.Row{Fields: map[string]any{"client": "Acme"}})
			require.NoError(t, err)

			rows, err := s.ListRows(ctx, true)
			require.NoError(t, err)
			require.Len(t, rows, 1)

			updated, err := s.UpdateRow(ctx, alice, row.ID, models.RowPatch{Fields: map[string]any{"stage": "won"}})
			require.NoError(t, err)
			assert.Equal(t, "won", updated.Fields["stage"])

			rows, err = s.ListRows(ctx, true)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "won", rows[0].Fields["stage"], "reads fall through to the repository")

			got, err := s.GetRow(ctx, row.ID)
			require.NoError(t, err)
			assert.Equal(t, "won", got.Fields["stage"])

			runner.Stop()
		})
	}
}
