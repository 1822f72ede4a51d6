package drafts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamsync/internal/client/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE drafts (
  id           TEXT PRIMARY KEY,
  scope        TEXT    NOT NULL,
  resource_id  TEXT    NOT NULL UNIQUE,
  kind         TEXT    NOT NULL,
  payload      BLOB,
  captured_at  INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func draft(id, resource string, at time.Time, payload string) models.Draft {
	return models.Draft{ID: id, Scope: "sales", ResourceID: resource, Kind: models.DraftUpdate, Payload: []byte(payload), CapturedAt: at}
}

func TestSave_ThenGetByResource(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, draft("d1", "r1", t0, `{"a":1}`)))

	got, err := r.GetByResource(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, draft("d1", "r1", t0, `{"a":1}`), *got)
}

func TestGetByResource_Missing(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	got, err := r.GetByResource(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSave_SupersedesSameResource(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, draft("d1", "r1", t0, `{"stage":"lead"}`)))
	require.NoError(t, r.Save(ctx, draft("d2", "r1", t0.Add(time.Minute), `{"stage":"won"}`)))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "d2", list[0].ID)
	assert.JSONEq(t, `{"stage":"won"}`, string(list[0].Payload))
}

func TestList_CaptureOrder(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, draft("late", "r2", t0.Add(2*time.Second), `{}`)))
	require.NoError(t, r.Save(ctx, draft("early", "r1", t0, `{}`)))
	require.NoError(t, r.Save(ctx, draft("mid", "r3", t0.Add(time.Second), `{}`)))

	list, err := r.List(ctx)
	require.NoError(t, err)
	ids := make([]string, len(list))
	for i, d := range list {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"early", "mid", "late"}, ids)
}

func TestDelete_ByIDKeepsSupersedingDraft(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, draft("d1", "r1", t0, `{}`)))
	require.NoError(t, r.Save(ctx, draft("d2", "r1", t0.Add(time.Second), `{}`)))

	require.NoError(t, r.Delete(ctx, "d1"))

	got, err := r.GetByResource(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "d2", got.ID)

	require.NoError(t, r.Delete(ctx, "d2"))
	got, err = r.GetByResource(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, draft("d1", "r1", t0, `{}`)))
	require.NoError(t, r.Clear(ctx))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteByResource(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, draft("d1", "r1", t0, `{}`)))
	require.NoError(t, r.Save(ctx, draft("d2", "r2", t0.Add(time.Second), `{}`)))

	require.NoError(t, r.DeleteByResource(ctx, "r1"))
	require.NoError(t, r.DeleteByResource(ctx, "absent"))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r2", list[0].ResourceID)
}
