package services

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamsync/internal/client/client"
	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
)

// fakeAPI is an in-memory server. Setting down makes every call fail with
// a connectivity error.
type fakeAPI struct {
	mu      sync.Mutex
	down    bool
	token   string
	rows    map[string]models.Row
	cols    []models.Column
	updates []string
	deletes []string
	leases  map[string]client.Holder
	beats   int
	beatErr error
}

func newFakeAPI(rows ...models.Row) *fakeAPI {
	f := &fakeAPI{rows: map[string]models.Row{}, leases: map[string]client.Holder{}}
	for _, r := range rows {
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeAPI) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeAPI) check(op string) error {
	if f.down {
		return &client.ConnectivityError{Op: op, Err: io.ErrUnexpectedEOF}
	}
	return nil
}

func (f *fakeAPI) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check("ping")
}

func (f *fakeAPI) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeAPI) Me(context.Context) (client.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("me"); err != nil {
		return client.Identity{}, err
	}
	if f.token != "good" {
		return client.Identity{}, &client.ApplicationError{Status: 401, Code: "unauthorized"}
	}
	return client.Identity{UserID: "u-1", DisplayName: "Ana"}, nil
}

func (f *fakeAPI) ListRows(context.Context, bool) ([]models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("list"); err != nil {
		return nil, err
	}
	out := make([]models.Row, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (f *fakeAPI) GetRow(_ context.Context, id string) (models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id], f.check("get")
}

func (f *fakeAPI) CreateRow(_ context.Context, row models.Row) (models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("create"); err != nil {
		return models.Row{}, err
	}
	row.ID = "new-" + row.Date.Format("0102")
	row.Version = 1
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeAPI) UpdateRow(_ context.Context, id string, patch models.RowPatch) (models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("update"); err != nil {
		return models.Row{}, err
	}
	f.updates = append(f.updates, id)
	r, ok := f.rows[id]
	if !ok {
		return models.Row{}, &client.ApplicationError{Status: 404, Code: "not_found"}
	}
	r = patch.Apply(r)
	r.Version++
	f.rows[id] = r
	return r, nil
}

func (f *fakeAPI) DeleteRow(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("delete"); err != nil {
		return err
	}
	f.deletes = append(f.deletes, id)
	delete(f.rows, id)
	return nil
}

func (f *fakeAPI) BulkUpdate(context.Context, models.BulkRowUpdate) (int, error) { return 0, nil }
func (f *fakeAPI) BulkDelete(context.Context, models.BulkRowDelete) (int, error) { return 0, nil }

func (f *fakeAPI) ListColumns(context.Context) ([]models.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cols, f.check("columns")
}

func (f *fakeAPI) StartImport(context.Context) (models.ImportUpload, error) {
	return models.ImportUpload{ImportID: "imp"}, nil
}

func (f *fakeAPI) UploadImport(context.Context, models.ImportUpload, io.Reader) error { return nil }

func (f *fakeAPI) CompleteImport(_ context.Context, id string) (models.ImportResult, error) {
	return models.ImportResult{ImportID: id, Created: 2}, nil
}

func (f *fakeAPI) AcquireLock(_ context.Context, _, id string) (client.AcquireResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("acquire"); err != nil {
		return client.AcquireResult{}, err
	}
	if h, ok := f.leases[id]; ok && h.ID != "u-1" {
		return client.AcquireResult{HeldBy: &h}, nil
	}
	f.leases[id] = client.Holder{ID: "u-1", Name: "Ana"}
	return client.AcquireResult{Granted: true, Lease: &client.Lease{ResourceID: id}}, nil
}

func (f *fakeAPI) Heartbeat(_ context.Context, _, id string) (client.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return client.Lease{ResourceID: id}, f.beatErr
}

func (f *fakeAPI) ReleaseLock(_ context.Context, _, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.leases, id)
	return f.check("release")
}

func (f *fakeAPI) ListLocks(context.Context, string) ([]client.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []client.Lease
	for id, h := range f.leases {
		out = append(out, client.Lease{ResourceID: id, OwnerID: h.ID, OwnerName: h.Name})
	}
	return out, f.check("locks")
}

func (f *fakeAPI) Subscribe(ctx context.Context, _ []string, _ func(events.Event)) error {
	<-ctx.Done()
	return nil
}

func (f *fakeAPI) updateCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updates...)
}

func openRepos(t *testing.T, path string) *client.Repositories {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "client.db")
	}
	db, err := client.OpenDatabase(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return client.NewRepositories(db)
}
