// Package rows persists sales-pipeline rows in PostgreSQL.
package rows

import (
	"context"

	"github.com/dmitrijs2005/teamsync/internal/models"
)

// Query selects and orders rows by date.
type Query struct {
	Desc  bool
	Limit int
}

type Repository interface {
	List(ctx context.Context, q Query) ([]models.Row, error)
	Get(ctx context.Context, id string) (*models.Row, error)
	Create(ctx context.Context, row *models.Row) (*models.Row, error)
	Update(ctx context.Context, id string, patch models.RowPatch, updatedBy string) (*models.Row, error)
	Delete(ctx context.Context, id string) error
	BulkUpdate(ctx context.Context, ids []string, patch models.RowPatch, updatedBy string) (int, error)
	BulkDelete(ctx context.Context, ids []string) (int, error)
}
