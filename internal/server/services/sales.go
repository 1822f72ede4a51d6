package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/models"
	"github.com/dmitrijs2005/teamsync/internal/server/auth"
	"github.com/dmitrijs2005/teamsync/internal/server/cache"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
	"github.com/dmitrijs2005/teamsync/internal/server/invalidation"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/rows"
)

const maxBulkIDs = 500

// Importer turns an uploaded object into rows.
type Importer interface {
	PresignUpload(ctx context.Context) (models.ImportUpload, error)
	Fetch(ctx context.Context, importID string) ([]models.Row, error)
}

// SalesService serves the shared sales workspace.
type SalesService struct {
	base
	importer Importer
	now      func() time.Time
}

func NewSalesService(d Deps, imp Importer) *SalesService {
	d.Logger = d.Logger.With("module", "sales")
	return &SalesService{base: base{d}, importer: imp, now: time.Now}
}

func (s *SalesService) ListRows(ctx context.Context, desc bool) ([]models.Row, error) {
	return cache.Remember(ctx, s.Cache, salesRowsKey(desc), s.CacheTTL, func(ctx context.Context) ([]models.Row, error) {
		return s.Repos.Rows(s.DB).List(ctx, rows.Query{Desc: desc})
	})
}

func (s *SalesService) GetRow(ctx context.Context, id string) (*models.Row, error) {
	return cache.Remember(ctx, s.Cache, salesRowKey(id), s.CacheTTL, func(ctx context.Context) (*models.Row, error) {
		return s.Repos.Rows(s.DB).Get(ctx, id)
	})
}

func (s *SalesService) CreateRow(ctx context.Context, who auth.Identity, in models.Row) (*models.Row, error) {
	in.ID = uuid.NewString()
	in.UpdatedBy = who.UserID
	if in.Fields == nil {
		in.Fields = map[string]any{}
	}
	if in.Date.IsZero() {
		in.Date = s.now().UTC()
	}

	row, err := s.Repos.Rows(s.DB).Create(ctx, &in)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, common.ScopeSales, events.RowCreated, row)
	s.invalidate(ctx, invalidation.Refs{SalesRowID: row.ID})
	return row, nil
}

func (s *SalesService) UpdateRow(ctx context.Context, who auth.Identity, id string, patch models.RowPatch) (*models.Row, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: empty patch", common.ErrValidation)
	}
	if err := s.checkWritable(ctx, common.ScopeSales, id, who.UserID); err != nil {
		return nil, err
	}

	row, err := s.Repos.Rows(s.DB).Update(ctx, id, patch, who.UserID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, common.ScopeSales, events.RowUpdated, row)
	s.invalidate(ctx, invalidation.Refs{SalesRowID: id})
	return row, nil
}

func (s *SalesService) DeleteRow(ctx context.Context, who auth.Identity, id string) error {
	if err := s.checkWritable(ctx, common.ScopeSales, id, who.UserID); err != nil {
		return err
	}
	if err := s.Repos.Rows(s.DB).Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, common.ScopeSales, events.RowDeleted, models.Deleted{ID: id})
	s.invalidate(ctx, invalidation.Refs{SalesRowID: id})
	return nil
}

func (s *SalesService) BulkUpdate(ctx context.Context, who auth.Identity, req models.BulkRowUpdate) (int, error) {
	if req.Patch.Empty() {
		return 0, fmt.Errorf("%w: empty patch", common.ErrValidation)
	}
	if err := s.checkBulk(ctx, who, req.IDs); err != nil {
		return 0, err
	}

	n, err := s.Repos.Rows(s.DB).BulkUpdate(ctx, req.IDs, req.Patch, who.UserID)
	if err != nil {
		return 0, err
	}
	patch := req.Patch
	s.publish(ctx, common.ScopeSales, events.RowsBulkUpdated, models.BulkChange{IDs: req.IDs, Count: n, Patch: &patch})
	s.invalidate(ctx, invalidation.Refs{SalesRows: true})
	return n, nil
}

func (s *SalesService) BulkDelete(ctx context.Context, who auth.Identity, req models.BulkRowDelete) (int, error) {
	if err := s.checkBulk(ctx, who, req.IDs); err != nil {
		return 0, err
	}

	n, err := s.Repos.Rows(s.DB).BulkDelete(ctx, req.IDs)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, common.ScopeSales, events.RowsBulkDeleted, models.BulkChange{IDs: req.IDs, Count: n})
	s.invalidate(ctx, invalidation.Refs{SalesRows: true})
	return n, nil
}

// checkBulk validates the id list and fails on the first row leased by
// someone else, so a bulk write never lands half-way.
func (s *SalesService) checkBulk(ctx context.Context, who auth.Identity, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no ids", common.ErrValidation)
	}
	if len(ids) > maxBulkIDs {
		return fmt.Errorf("%w: at most %d ids per request", common.ErrValidation, maxBulkIDs)
	}
	for _, id := range ids {
		if err := s.checkWritable(ctx, common.ScopeSales, id, who.UserID); err != nil {
			return err
		}
	}
	return nil
}

// StartImport hands out an upload URL for a CSV import.
func (s *SalesService) StartImport(ctx context.Context) (models.ImportUpload, error) {
	if s.importer == nil {
		return models.ImportUpload{}, fmt.Errorf("%w: imports are not configured", common.ErrValidation)
	}
	return s.importer.PresignUpload(ctx)
}

// CompleteImport creates the rows of an uploaded CSV in one transaction.
func (s *SalesService) CompleteImport(ctx context.Context, who auth.Identity, importID string) (*models.ImportResult, error) {
	if s.importer == nil {
		return nil, fmt.Errorf("%w: imports are not configured", common.ErrValidation)
	}
	parsed, err := s.importer.Fetch(ctx, importID)
	if err != nil {
		return nil, err
	}

	res := &models.ImportResult{ImportID: importID, RowIDs: make([]string, 0, len(parsed))}
	err = dbx.WithTx(ctx, s.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.Repos.Rows(tx)
		for i := range parsed {
			parsed[i].ID = uuid.NewString()
			parsed[i].UpdatedBy = who.UserID
			row, err := repo.Create(ctx, &parsed[i])
			if err != nil {
				return err
			}
			res.RowIDs = append(res.RowIDs, row.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Created = len(res.RowIDs)

	s.Logger.Info(ctx, "rows imported", "import", importID, "rows", res.Created, "user", who.UserID)
	s.publish(ctx, common.ScopeSales, events.RowsImported, res)
	s.invalidate(ctx, invalidation.Refs{SalesRows: true})
	return res, nil
}
