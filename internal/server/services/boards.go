package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/auth"
	"github.com/dmitrijs2005/teamsync/internal/server/cache"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
	"github.com/dmitrijs2005/teamsync/internal/server/invalidation"
)

// BoardService serves board cards and their subtasks.
type BoardService struct {
	base
}

func NewBoardService(d Deps) *BoardService {
	d.Logger = d.Logger.With("module", "boards")
	return &BoardService{base: base{d}}
}

func (s *BoardService) ListCards(ctx context.Context, boardID string) ([]models.Card, error) {
	return cache.Remember(ctx, s.Cache, boardListsKey(boardID), s.CacheTTL, func(ctx context.Context) ([]models.Card, error) {
		return s.Repos.Boards(s.DB).ListCards(ctx, boardID)
	})
}

func (s *BoardService) GetCard(ctx context.Context, boardID, cardID string) (*models.Card, error) {
	c, err := cache.Remember(ctx, s.Cache, cardKey(boardID, cardID), s.CacheTTL, func(ctx context.Context) (*models.Card, error) {
		return s.Repos.Boards(s.DB).GetCard(ctx, cardID)
	})
	if err != nil {
		return nil, err
	}
	if c.BoardID != boardID {
		return nil, common.ErrNotFound
	}
	return c, nil
}

func (s *BoardService) CreateCard(ctx context.Context, who auth.Identity, in models.Card) (*models.Card, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.BoardID == "" || in.ListID == "" || in.Title == "" {
		return nil, fmt.Errorf("%w: board, list and title are required", common.ErrValidation)
	}
	in.ID = uuid.NewString()
	in.UpdatedBy = who.UserID

	card, err := s.Repos.Boards(s.DB).CreateCard(ctx, &in)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, common.BoardScope(card.BoardID), events.CardCreated, card)
	s.invalidate(ctx, invalidation.Refs{BoardID: card.BoardID, ListID: card.ListID, CardID: card.ID})
	return card, nil
}

// UpdateCard applies patch. Moving a card purges both the source and the
// target list.
func (s *BoardService) UpdateCard(ctx context.Context, who auth.Identity, cardID string, patch models.CardPatch) (*models.Card, error) {
	repo := s.Repos.Boards(s.DB)
	before, err := repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	scope := common.BoardScope(before.BoardID)
	if err := s.checkWritable(ctx, scope, cardID, who.UserID); err != nil {
		return nil, err
	}

	card, err := repo.UpdateCard(ctx, cardID, patch, who.UserID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, scope, events.CardUpdated, card)

	refs := []invalidation.Refs{{BoardID: card.BoardID, ListID: before.ListID, CardID: cardID}}
	if card.ListID != before.ListID {
		refs = append(refs, invalidation.Refs{BoardID: card.BoardID, ListID: card.ListID, CardID: cardID})
	}
	s.invalidate(ctx, refs...)
	return card, nil
}

func (s *BoardService) DeleteCard(ctx context.Context, who auth.Identity, cardID string) error {
	repo := s.Repos.Boards(s.DB)
	card, err := repo.GetCard(ctx, cardID)
	if err != nil {
		return err
	}
	scope := common.BoardScope(card.BoardID)
	if err := s.checkWritable(ctx, scope, cardID, who.UserID); err != nil {
		return err
	}

	if err := repo.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	s.publish(ctx, scope, events.CardDeleted, models.Deleted{ID: cardID})
	s.invalidate(ctx, invalidation.Refs{BoardID: card.BoardID, ListID: card.ListID, CardID: cardID})
	return nil
}

func (s *BoardService) CreateSubtask(ctx context.Context, who auth.Identity, cardID, title string) (*models.Subtask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	repo := s.Repos.Boards(s.DB)
	card, err := repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	scope := common.BoardScope(card.BoardID)
	if err := s.checkWritable(ctx, scope, cardID, who.UserID); err != nil {
		return nil, err
	}

	st, err := repo.CreateSubtask(ctx, &models.Subtask{
		ID:     uuid.NewString(),
		NanoID: newNanoID(),
		CardID: cardID,
		Title:  title,
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, scope, events.SubtaskCreated, st)
	s.invalidate(ctx, invalidation.Refs{BoardID: card.BoardID, ListID: card.ListID, CardID: cardID})
	return st, nil
}

// UpdateSubtask edits a subtask addressed by its nano id. Writes are
// guarded by the lease on the parent card.
func (s *BoardService) UpdateSubtask(ctx context.Context, who auth.Identity, nanoID string, patch models.SubtaskPatch) (*models.Subtask, error) {
	repo := s.Repos.Boards(s.DB)
	cardID, err := repo.SubtaskCard(ctx, nanoID)
	if err != nil {
		return nil, err
	}
	card, err := repo.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	scope := common.BoardScope(card.BoardID)
	if err := s.checkWritable(ctx, scope, cardID, who.UserID); err != nil {
		return nil, err
	}

	st, err := repo.UpdateSubtask(ctx, nanoID, patch)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, scope, events.SubtaskUpdated, st)
	s.invalidate(ctx, invalidation.Refs{
		BoardID:       card.BoardID,
		ListID:        card.ListID,
		CardID:        cardID,
		SubtaskID:     st.ID,
		SubtaskNanoID: nanoID,
	})
	return st, nil
}

func newNanoID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
