package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/teamsync/internal/client/client"
	cmodels "github.com/dmitrijs2005/teamsync/internal/client/models"
	"github.com/dmitrijs2005/teamsync/internal/client/offline"
	"github.com/dmitrijs2005/teamsync/internal/client/optimistic"
	"github.com/dmitrijs2005/teamsync/internal/client/state"
	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// workspace is the part of services.Workspace the commands drive.
type workspace interface {
	Start(ctx context.Context)
	Resume(ctx context.Context) (bool, error)
	OnStatusChange(fn func(online bool))
	Me() client.Identity
	Login(ctx context.Context, token string) (client.Identity, error)
	Logout(ctx context.Context) error
	Refresh(ctx context.Context) error
	RefreshColumns(ctx context.Context) error
	Columns() []models.Column
	Rows(ctx context.Context) ([]models.Row, error)
	Row(id string) (models.Row, bool)
	LockHolder(id string) (state.Holder, bool)
	HasDraft(ctx context.Context, id string) bool
	Create(ctx context.Context, row models.Row) (models.Row, error)
	Edit(ctx context.Context, id string, patch models.RowPatch) (optimistic.Result, error)
	Delete(ctx context.Context, id string) (optimistic.Result, error)
	Lock(ctx context.Context, id string) (client.AcquireResult, error)
	Unlock(ctx context.Context, id string) error
	Drafts(ctx context.Context) ([]cmodels.Draft, error)
	Sync(ctx context.Context) (offline.Report, error)
	SetSort(ctx context.Context, desc bool) error
	SetFilter(ctx context.Context, key, value string) error
	ClearFilters(ctx context.Context) error
	Filters(ctx context.Context) ([]string, error)
	Import(ctx context.Context, csv io.Reader) (models.ImportResult, error)
	Close(ctx context.Context)
}

type App struct {
	ws     workspace
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	mode     Mode
	loggedIn bool
}

// NewApp builds the REPL around ws reading from stdin.
func NewApp(ws workspace, logger logging.Logger) *App {
	return &App{
		ws:     ws,
		logger: logger.With("module", "cli"),
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		mode:   ModeOffline,
	}
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != mode {
		a.mode = mode
		fmt.Fprintf(a.out, "Switched to %s mode\n", mode)
	}
}

func (a *App) setLoggedIn(v bool) {
	a.mu.Lock()
	a.loggedIn = v
	a.mu.Unlock()
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn
}

func (a *App) getStatus() string {
	a.mu.Lock()
	mode := a.mode
	a.mu.Unlock()

	s := ""
	if name := a.ws.Me().DisplayName; name != "" {
		s = name + " "
	}
	s += string(mode)
	return fmt.Sprintf("(%s)", s)
}

// Run restores a stored session, starts the connectivity watcher and
// blocks in the REPL until the user exits. Held locks are released on the
// way out.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to TeamSync CLI (type 'help' for commands)")

	a.ws.OnStatusChange(func(online bool) {
		if online {
			a.setMode(ModeOnline)
		} else {
			a.setMode(ModeOffline)
		}
	})

	resumed, err := a.ws.Resume(ctx)
	if err != nil {
		a.logger.Warn(ctx, "session not restored", "error", err)
	}
	a.setLoggedIn(resumed)
	if resumed {
		if err := a.ws.Refresh(ctx); err != nil {
			a.logger.Debug(ctx, "initial refresh failed", "error", err)
		}
	}

	a.ws.Start(ctx)
	defer a.ws.Close(context.WithoutCancel(ctx))

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(lineReader{a.reader}))
}

// lineReader hands out at most one line per Read, so a Scanner on top of
// it leaves the rest of the input for prompts inside commands.
type lineReader struct{ r *bufio.Reader }

func (l lineReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := l.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		p[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return n, nil
}
