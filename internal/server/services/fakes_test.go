package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
	"github.com/dmitrijs2005/teamsync/internal/server/invalidation"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/boards"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/columns"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/rows"
	"github.com/dmitrijs2005/teamsync/internal/server/tasks"
)

// --- repositories ---

type fakeRepos struct {
	rows    *fakeRows
	columns *fakeColumns
	boards  *fakeBoards
}

func newFakeRepos() *fakeRepos {
	return &fakeRepos{
		rows:    &fakeRows{data: map[string]models.Row{}},
		columns: &fakeColumns{data: map[string]models.Column{}},
		boards:  &fakeBoards{cards: map[string]models.Card{}, subtasks: map[string]models.Subtask{}},
	}
}

func (f *fakeRepos) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepos) Rows(dbx.DBTX) rows.Repository                { return f.rows }
func (f *fakeRepos) Columns(dbx.DBTX) columns.Repository          { return f.columns }
func (f *fakeRepos) Boards(dbx.DBTX) boards.Repository            { return f.boards }

type fakeRows struct {
	mu        sync.Mutex
	data      map[string]models.Row
	listCalls int
	createErr error
}

func (f *fakeRows) List(ctx context.Context, q rows.Query) ([]models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]models.Row, 0, len(f.data))
	for _, r := range f.data {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Desc {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (f *fakeRows) Get(ctx context.Context, id string) (*models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.data[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRows) Create(ctx context.Context, row *models.Row) (*models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	r := row.Clone()
	r.Version = 1
	f.data[r.ID] = r
	return &r, nil
}

func (f *fakeRows) Update(ctx context.Context, id string, patch models.RowPatch, by string) (*models.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.data[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	r = patch.Apply(r)
	r.Version++
	r.UpdatedBy = by
	f.data[id] = r
	return &r, nil
}

func (f *fakeRows) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.data, id)
	return nil
}

func (f *fakeRows) BulkUpdate(ctx context.Context, ids []string, patch models.RowPatch, by string) (int, error) {
	n := 0
	for _, id := range ids {
		if _, err := f.Update(ctx, id, patch, by); err == nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeRows) BulkDelete(ctx context.Context, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		if err := f.Delete(ctx, id); err == nil {
			n++
		}
	}
	return n, nil
}

type fakeColumns struct {
	data map[string]models.Column
}

func (f *fakeColumns) List(ctx context.Context) ([]models.Column, error) {
	out := make([]models.Column, 0, len(f.data))
	for _, c := range f.data {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeColumns) Get(ctx context.Context, id string) (*models.Column, error) {
	c, ok := f.data[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &c, nil
}

func (f *fakeColumns) Create(ctx context.Context, c *models.Column) (*models.Column, error) {
	if _, ok := f.data[c.ID]; ok {
		return nil, fmt.Errorf("%w: column exists", common.ErrConflict)
	}
	f.data[c.ID] = *c
	out := *c
	return &out, nil
}

func (f *fakeColumns) Update(ctx context.Context, id string, p models.ColumnPatch) (*models.Column, error) {
	c, ok := f.data[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Options != nil {
		c.Options = p.Options
	}
	if p.Position != nil {
		c.Position = *p.Position
	}
	f.data[id] = c
	return &c, nil
}

func (f *fakeColumns) Delete(ctx context.Context, id string) error {
	if _, ok := f.data[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.data, id)
	return nil
}

type fakeBoards struct {
	cards    map[string]models.Card
	subtasks map[string]models.Subtask
}

func (f *fakeBoards) ListCards(ctx context.Context, boardID string) ([]models.Card, error) {
	out := []models.Card{}
	for _, c := range f.cards {
		if c.BoardID == boardID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (f *fakeBoards) GetCard(ctx context.Context, id string) (*models.Card, error) {
	c, ok := f.cards[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &c, nil
}

func (f *fakeBoards) CreateCard(ctx context.Context, c *models.Card) (*models.Card, error) {
	out := *c
	out.Version = 1
	f.cards[c.ID] = out
	return &out, nil
}

func (f *fakeBoards) UpdateCard(ctx context.Context, id string, p models.CardPatch, by string) (*models.Card, error) {
	c, ok := f.cards[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if p.ListID != nil {
		c.ListID = *p.ListID
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	c.Version++
	c.UpdatedBy = by
	f.cards[id] = c
	return &c, nil
}

func (f *fakeBoards) DeleteCard(ctx context.Context, id string) error {
	if _, ok := f.cards[id]; !ok {
		return common.ErrNotFound
	}
	delete(f.cards, id)
	return nil
}

func (f *fakeBoards) CreateSubtask(ctx context.Context, s *models.Subtask) (*models.Subtask, error) {
	f.subtasks[s.NanoID] = *s
	out := *s
	return &out, nil
}

func (f *fakeBoards) UpdateSubtask(ctx context.Context, nanoID string, p models.SubtaskPatch) (*models.Subtask, error) {
	s, ok := f.subtasks[nanoID]
	if !ok {
		return nil, common.ErrNotFound
	}
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Done != nil {
		s.Done = *p.Done
	}
	f.subtasks[nanoID] = s
	return &s, nil
}

func (f *fakeBoards) CardParents(ctx context.Context, cardID string) (string, string, error) {
	c, ok := f.cards[cardID]
	if !ok {
		return "", "", common.ErrNotFound
	}
	return c.BoardID, c.ListID, nil
}

func (f *fakeBoards) SubtaskCard(ctx context.Context, nanoID string) (string, error) {
	s, ok := f.subtasks[nanoID]
	if !ok {
		return "", common.ErrNotFound
	}
	return s.CardID, nil
}

// --- collaborators ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, v []byte, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = v
	return true
}

func (c *memCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return true
}

func (c *memCache) ScanDelete(context.Context, string) (int, bool) { return 0, true }
func (c *memCache) IsReady() bool                                  { return true }

type published struct {
	Scope   string
	Name    string
	Payload any
}

type recordingBus struct {
	mu  sync.Mutex
	got []published
}

func (b *recordingBus) Publish(_ context.Context, scope, name string, payload any) events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, published{Scope: scope, Name: name, Payload: payload})
	return events.Event{Scope: scope, Name: name}
}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.got))
	for i, p := range b.got {
		out[i] = p.Name
	}
	return out
}

type recordingPurger struct {
	mu   sync.Mutex
	refs []invalidation.Refs

	// failures makes the next calls for a ref report an incomplete purge.
	failures map[invalidation.Refs]int
}

func (p *recordingPurger) Purge(_ context.Context, r invalidation.Refs) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = append(p.refs, r)
	if p.failures[r] > 0 {
		p.failures[r]--
		return 0, invalidation.ErrIncomplete
	}
	return 1, nil
}

func (p *recordingPurger) all() []invalidation.Refs {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]invalidation.Refs(nil), p.refs...)
}

// inlineTasks runs submitted work immediately.
type inlineTasks struct{ refuse bool }

func (t inlineTasks) Submit(_ string, fn tasks.Func) bool {
	if t.refuse {
		return false
	}
	_ = fn(context.Background())
	return true
}

type fakeImporter struct {
	rows []models.Row
	err  error
}

func (f *fakeImporter) PresignUpload(context.Context) (models.ImportUpload, error) {
	return models.ImportUpload{ImportID: "imp-1", URL: "https://s3.local/put"}, nil
}

func (f *fakeImporter) Fetch(context.Context, string) ([]models.Row, error) {
	return f.rows, f.err
}
