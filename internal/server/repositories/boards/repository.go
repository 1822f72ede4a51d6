// Package boards persists board cards and their subtasks in PostgreSQL.
package boards

import (
	"context"

	"github.com/dmitrijs2005/teamsync/internal/models"
)

type Repository interface {
	ListCards(ctx context.Context, boardID string) ([]models.Card, error)
	GetCard(ctx context.Context, id string) (*models.Card, error)
	CreateCard(ctx context.Context, c *models.Card) (*models.Card, error)
	UpdateCard(ctx context.Context, id string, patch models.CardPatch, updatedBy string) (*models.Card, error)
	DeleteCard(ctx context.Context, id string) error

	CreateSubtask(ctx context.Context, s *models.Subtask) (*models.Subtask, error)
	UpdateSubtask(ctx context.Context, nanoID string, patch models.SubtaskPatch) (*models.Subtask, error)

	// Ancestor lookups used to narrow cache invalidation.
	CardParents(ctx context.Context, cardID string) (boardID, listID string, err error)
	SubtaskCard(ctx context.Context, nanoID string) (string, error)
}
