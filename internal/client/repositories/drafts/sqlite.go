package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/client/models"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save stores d, superseding any draft queued for the same resource.
func (r *SQLiteRepository) Save(ctx context.Context, d models.Draft) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (id, scope, resource_id, kind, payload, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(resource_id) DO UPDATE SET
			id = excluded.id,
			scope = excluded.scope,
			kind = excluded.kind,
			payload = excluded.payload,
			captured_at = excluded.captured_at
	`, d.ID, d.Scope, d.ResourceID, d.Kind, d.Payload, d.CapturedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save draft for %s: %w", d.ResourceID, err)
	}
	return nil
}

// GetByResource returns (nil, nil) when the resource has no draft.
func (r *SQLiteRepository) GetByResource(ctx context.Context, resourceID string) (*models.Draft, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, scope, resource_id, kind, payload, captured_at
		FROM drafts WHERE resource_id = ?`, resourceID)

	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft for %s: %w", resourceID, err)
	}
	return &d, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Draft, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scope, resource_id, kind, payload, captured_at
		FROM drafts ORDER BY captured_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var out []models.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate draft rows: %w", err)
	}
	return out, nil
}

// Delete removes a draft by its own id. A draft that was superseded in the
// meantime carries a new id and survives.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByResource(ctx context.Context, resourceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE resource_id = ?`, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete draft for %s: %w", resourceID, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM drafts`)
	if err != nil {
		return fmt.Errorf("failed to clear drafts: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(s scanner) (models.Draft, error) {
	var (
		d        models.Draft
		captured int64
	)
	if err := s.Scan(&d.ID, &d.Scope, &d.ResourceID, &d.Kind, &d.Payload, &captured); err != nil {
		return models.Draft{}, err
	}
	d.CapturedAt = time.Unix(0, captured).UTC()
	return d, nil
}
