package drafts

import (
	"context"

	"github.com/dmitrijs2005/teamsync/internal/client/models"
)

type Repository interface {
	Save(ctx context.Context, d models.Draft) error
	GetByResource(ctx context.Context, resourceID string) (*models.Draft, error)
	List(ctx context.Context) ([]models.Draft, error)
	Delete(ctx context.Context, id string) error
	DeleteByResource(ctx context.Context, resourceID string) error
	Clear(ctx context.Context) error
}
