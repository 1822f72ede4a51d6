package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/boards"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/columns"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/rows"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Rows(db dbx.DBTX) rows.Repository
	Columns(db dbx.DBTX) columns.Repository
	Boards(db dbx.DBTX) boards.Repository
}
