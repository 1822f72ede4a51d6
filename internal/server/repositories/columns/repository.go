// Package columns persists the sales sheet's column definitions.
package columns

import (
	"context"

	"github.com/dmitrijs2005/teamsync/internal/models"
)

type Repository interface {
	List(ctx context.Context) ([]models.Column, error)
	Get(ctx context.Context, id string) (*models.Column, error)
	Create(ctx context.Context, c *models.Column) (*models.Column, error)
	Update(ctx context.Context, id string, patch models.ColumnPatch) (*models.Column, error)
	Delete(ctx context.Context, id string) error
}
