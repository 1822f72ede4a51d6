package client

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/dmitrijs2005/teamsync/internal/client/migrations"
	"github.com/dmitrijs2005/teamsync/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/teamsync/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/teamsync/internal/filex"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Drafts      drafts.Repository
	Preferences preferences.Repository
}

func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Drafts:      drafts.NewSQLiteRepository(db),
		Preferences: preferences.NewSQLiteRepository(db),
	}
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// OpenDatabase opens the SQLite file at path and applies migrations.
func OpenDatabase(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		abs, err := filex.EnsureParentDir(path)
		if err != nil {
			return nil, err
		}
		path = abs
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
