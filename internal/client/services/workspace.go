package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/client/client"
	cmodels "github.com/dmitrijs2005/teamsync/internal/client/models"
	"github.com/dmitrijs2005/teamsync/internal/client/offline"
	"github.com/dmitrijs2005/teamsync/internal/client/optimistic"
	"github.com/dmitrijs2005/teamsync/internal/client/state"
	"github.com/dmitrijs2005/teamsync/internal/clock"
	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

// ErrNeedsConnection is returned by operations that cannot be queued.
var ErrNeedsConnection = errors.New("this operation needs a server connection")

// Workspace is the client-side sales sheet: local rows, lock indicators,
// drafts and preferences, kept in step with the server.
type Workspace struct {
	api     client.API
	rows    *state.Rows
	locks   *state.Locks
	prefs   *Preferences
	queue   *offline.Queue
	engine  *optimistic.Engine
	keeper  *LeaseKeeper
	recon   *Reconciler
	watcher *Watcher
	logger  logging.Logger

	mu      sync.RWMutex
	me      client.Identity
	columns []models.Column
	stream  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorkspace wires the client services around api and the local
// repositories. pinger drives the online watcher.
func NewWorkspace(api client.API, repos *client.Repositories, pinger Pinger, checkInterval time.Duration, logger logging.Logger) *Workspace {
	w := &Workspace{
		api:    api,
		rows:   state.NewRows(true),
		locks:  state.NewLocks(),
		prefs:  NewPreferences(repos.Preferences),
		logger: logger.With("module", "workspace"),
	}
	w.watcher = NewWatcher(pinger, checkInterval, logger)
	w.queue = offline.NewQueue(repos.Drafts, api, w.Refresh, clock.Real{}, logger)
	w.engine = optimistic.NewEngine(w.rows, api, w.queue, w.watcher.Online, logger)
	w.keeper = NewLeaseKeeper(api, logger)
	w.recon = NewReconciler(w.rows, w.locks, w.queue, w.Refresh, w.RefreshColumns, logger)

	w.watcher.OnOnline(func(ctx context.Context) {
		w.reattach(ctx)
		if _, err := w.Sync(ctx); err != nil {
			w.logger.Warn(ctx, "sync after reconnect failed", "error", err)
		}
	})
	return w
}

// Start runs the online watcher until ctx is done.
func (w *Workspace) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.watcher.Run(ctx)
	}()
}

// Online reports the last probed server status.
func (w *Workspace) Online() bool { return w.watcher.Online() }

// CheckOnline probes the server now.
func (w *Workspace) CheckOnline(ctx context.Context) bool { return w.watcher.Check(ctx) }

// OnStatusChange forwards online/offline transitions to fn.
func (w *Workspace) OnStatusChange(fn func(online bool)) { w.watcher.OnChange(fn) }

// Me is the logged-in user; zero when logged out.
func (w *Workspace) Me() client.Identity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.me
}

// Login verifies token with the server, stores it and starts the event
// stream.
func (w *Workspace) Login(ctx context.Context, token string) (client.Identity, error) {
	w.api.SetToken(token)
	id, err := w.api.Me(ctx)
	if err != nil {
		w.api.SetToken("")
		return client.Identity{}, err
	}
	if err := w.prefs.SetToken(ctx, token); err != nil {
		return client.Identity{}, err
	}
	w.setIdentity(ctx, id)
	return id, nil
}

// Resume restores the stored session and preferences. It reports whether
// a session was found; an unreachable server keeps the stored token.
func (w *Workspace) Resume(ctx context.Context) (bool, error) {
	desc, err := w.prefs.SortDesc(ctx)
	if err != nil {
		return false, err
	}
	w.rows.SetDesc(desc)

	token, err := w.prefs.Token(ctx)
	if err != nil || token == "" {
		return false, err
	}
	w.api.SetToken(token)

	id, err := w.api.Me(ctx)
	switch {
	case err == nil:
		w.setIdentity(ctx, id)
		return true, nil
	case client.IsConnectivity(err):
		return true, nil
	case errors.Is(err, client.ErrUnauthorized):
		w.api.SetToken("")
		return false, w.prefs.ClearToken(ctx)
	default:
		return false, err
	}
}

// reattach completes a session resumed while offline.
func (w *Workspace) reattach(ctx context.Context) {
	if w.Me().UserID != "" {
		return
	}
	token, err := w.prefs.Token(ctx)
	if err != nil || token == "" {
		return
	}
	id, err := w.api.Me(ctx)
	if err != nil {
		w.logger.Debug(ctx, "session not restored", "error", err)
		return
	}
	w.setIdentity(ctx, id)
}

func (w *Workspace) setIdentity(ctx context.Context, id client.Identity) {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	w.mu.Lock()
	w.me = id
	if w.stream != nil {
		w.stream()
	}
	w.stream = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.recon.StreamEvents(streamCtx, w.api, []string{common.ScopeSales})
	}()
}

// Logout releases held leases, stops the event stream and forgets the
// token. Queued drafts are kept.
func (w *Workspace) Logout(ctx context.Context) error {
	w.keeper.Close(ctx)

	w.mu.Lock()
	w.me = client.Identity{}
	if w.stream != nil {
		w.stream()
		w.stream = nil
	}
	w.mu.Unlock()

	w.api.SetToken("")
	return w.prefs.ClearToken(ctx)
}

// Refresh reloads every row and the current lease holders.
func (w *Workspace) Refresh(ctx context.Context) error {
	rows, err := w.api.ListRows(ctx, w.rows.Desc())
	if err != nil {
		return err
	}
	w.rows.Replace(rows)

	for _, r := range rows {
		if m, ok := w.queue.Mutation(ctx, r.ID); ok && m.Kind == cmodels.DraftUpdate {
			w.rows.Upsert(m.Patch.Apply(r))
		}
	}

	leases, err := w.api.ListLocks(ctx, common.ScopeSales)
	if err != nil {
		return err
	}
	holders := make(map[string]state.Holder, len(leases))
	for _, l := range leases {
		holders[l.ResourceID] = state.Holder{ID: l.OwnerID, Name: l.OwnerName}
	}
	w.locks.Replace(holders)
	return nil
}

// RefreshColumns reloads column metadata and the dropdown cache.
func (w *Workspace) RefreshColumns(ctx context.Context) error {
	cols, err := w.api.ListColumns(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.columns = cols
	w.mu.Unlock()
	return w.prefs.CacheDropdownOptions(ctx, cols)
}

func (w *Workspace) Columns() []models.Column {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]models.Column(nil), w.columns...)
}

// DropdownOptions reads the cached options, available offline.
func (w *Workspace) DropdownOptions(ctx context.Context) (map[string][]string, error) {
	return w.prefs.DropdownOptions(ctx)
}

// Rows returns the rows passing the stored filters, in display order.
func (w *Workspace) Rows(ctx context.Context) ([]models.Row, error) {
	filters, err := w.prefs.Filters(ctx)
	if err != nil {
		return nil, err
	}
	all := w.rows.All()
	if len(filters) == 0 {
		return all, nil
	}
	out := all[:0]
	for _, r := range all {
		if matches(r, filters) {
			out = append(out, r)
		}
	}
	return out, nil
}

func matches(r models.Row, filters map[string]string) bool {
	for k, want := range filters {
		if fmt.Sprint(r.Fields[k]) != want {
			return false
		}
	}
	return true
}

func (w *Workspace) Row(id string) (models.Row, bool) { return w.rows.Get(id) }

// LockHolder returns who is editing the row, if anyone.
func (w *Workspace) LockHolder(id string) (state.Holder, bool) { return w.locks.Get(id) }

// HasDraft reports whether the row has a queued offline change.
func (w *Workspace) HasDraft(ctx context.Context, id string) bool { return w.queue.Has(ctx, id) }

// Create adds a row on the server. Creation is not queued offline.
func (w *Workspace) Create(ctx context.Context, row models.Row) (models.Row, error) {
	out, err := w.api.CreateRow(ctx, row)
	if err != nil {
		if client.IsConnectivity(err) {
			return models.Row{}, fmt.Errorf("%w: %v", ErrNeedsConnection, err)
		}
		return models.Row{}, err
	}
	w.rows.Upsert(out)
	return out, nil
}

// Edit applies patch optimistically.
func (w *Workspace) Edit(ctx context.Context, id string, patch models.RowPatch) (optimistic.Result, error) {
	return w.engine.Update(ctx, id, patch)
}

// Delete removes the row optimistically and drops a lease held on it.
func (w *Workspace) Delete(ctx context.Context, id string) (optimistic.Result, error) {
	res, err := w.engine.Delete(ctx, id)
	if err == nil && w.keeper.Holds(common.ScopeSales, id) {
		if err := w.keeper.Release(ctx, common.ScopeSales, id); err != nil {
			w.logger.Debug(ctx, "release after delete failed", "resource", id, "error", err)
		}
	}
	return res, err
}

// Lock takes the edit lease on a row. A denial is reported in the result.
func (w *Workspace) Lock(ctx context.Context, id string) (client.AcquireResult, error) {
	res, err := w.keeper.Acquire(ctx, common.ScopeSales, id)
	if err != nil {
		return res, err
	}
	if res.Granted {
		me := w.Me()
		w.locks.Set(id, state.Holder{ID: me.UserID, Name: me.DisplayName})
	} else if res.HeldBy != nil {
		w.locks.Set(id, state.Holder{ID: res.HeldBy.ID, Name: res.HeldBy.Name})
	}
	return res, nil
}

func (w *Workspace) Unlock(ctx context.Context, id string) error {
	if err := w.keeper.Release(ctx, common.ScopeSales, id); err != nil {
		return err
	}
	w.locks.Clear(id)
	return nil
}

// HeldLocks lists the rows this client holds leases on.
func (w *Workspace) HeldLocks() []string { return w.keeper.Held(common.ScopeSales) }

func (w *Workspace) Drafts(ctx context.Context) ([]cmodels.Draft, error) {
	return w.queue.Pending(ctx)
}

// Sync replays queued drafts.
func (w *Workspace) Sync(ctx context.Context) (offline.Report, error) {
	return w.queue.Flush(ctx)
}

// SetSort stores the direction and re-orders local rows.
func (w *Workspace) SetSort(ctx context.Context, desc bool) error {
	if err := w.prefs.SetSortDesc(ctx, desc); err != nil {
		return err
	}
	w.rows.SetDesc(desc)
	return nil
}

// SetFilter adds a field filter; an empty value removes it.
func (w *Workspace) SetFilter(ctx context.Context, key, value string) error {
	f, err := w.prefs.Filters(ctx)
	if err != nil {
		return err
	}
	if value == "" {
		delete(f, key)
	} else {
		f[key] = value
	}
	return w.prefs.SetFilters(ctx, f)
}

func (w *Workspace) ClearFilters(ctx context.Context) error {
	return w.prefs.SetFilters(ctx, nil)
}

// Filters returns the stored filters as sorted "key=value" strings.
func (w *Workspace) Filters(ctx context.Context) ([]string, error) {
	f, err := w.prefs.Filters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(f))
	for k, v := range f {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out, nil
}

// Import uploads a CSV and turns it into rows.
func (w *Workspace) Import(ctx context.Context, csv io.Reader) (models.ImportResult, error) {
	up, err := w.api.StartImport(ctx)
	if err != nil {
		return models.ImportResult{}, err
	}
	if err := w.api.UploadImport(ctx, up, csv); err != nil {
		return models.ImportResult{}, err
	}
	return w.api.CompleteImport(ctx, up.ImportID)
}

// Close releases leases with ctx and waits for background goroutines. The
// watcher exits once the context given to Start is done.
func (w *Workspace) Close(ctx context.Context) {
	w.keeper.Close(ctx)
	w.mu.Lock()
	if w.stream != nil {
		w.stream()
		w.stream = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
}
