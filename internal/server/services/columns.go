package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/cache"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
	"github.com/dmitrijs2005/teamsync/internal/server/invalidation"
)

var columnKinds = []string{models.ColumnText, models.ColumnNumber, models.ColumnDate, models.ColumnDropdown}

func (s *SalesService) ListColumns(ctx context.Context) ([]models.Column, error) {
	return cache.Remember(ctx, s.Cache, salesColumnsKey, s.CacheTTL, func(ctx context.Context) ([]models.Column, error) {
		return s.Repos.Columns(s.DB).List(ctx)
	})
}

func (s *SalesService) CreateColumn(ctx context.Context, in models.Column) (*models.Column, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: column id and name are required", common.ErrValidation)
	}
	if in.Kind == "" {
		in.Kind = models.ColumnText
	}
	if !slices.Contains(columnKinds, in.Kind) {
		return nil, fmt.Errorf("%w: unknown column kind %q", common.ErrValidation, in.Kind)
	}

	col, err := s.Repos.Columns(s.DB).Create(ctx, &in)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, common.ScopeSales, events.ColumnCreated, col)
	s.invalidate(ctx, invalidation.Refs{SalesColumnID: col.ID})
	return col, nil
}

func (s *SalesService) UpdateColumn(ctx context.Context, id string, patch models.ColumnPatch) (*models.Column, error) {
	col, err := s.Repos.Columns(s.DB).Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, common.ScopeSales, events.ColumnUpdated, col)
	s.invalidate(ctx, invalidation.Refs{SalesColumnID: id})
	return col, nil
}

func (s *SalesService) DeleteColumn(ctx context.Context, id string) error {
	if err := s.Repos.Columns(s.DB).Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, common.ScopeSales, events.ColumnDeleted, models.Deleted{ID: id})
	s.invalidate(ctx, invalidation.Refs{SalesColumnID: id})
	return nil
}
