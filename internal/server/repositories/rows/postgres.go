package rows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

const rowColumns = `id, fields, row_date, version, updated_by, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*models.Row, error) {
	var (
		r      models.Row
		fields []byte
	)
	if err := s.Scan(&r.ID, &fields, &r.Date, &r.Version, &r.UpdatedBy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &r.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of row %s: %w", r.ID, err)
		}
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	return &r, nil
}

func (r *PostgresRepository) List(ctx context.Context, q Query) ([]models.Row, error) {
	order := "ASC"
	if q.Desc {
		order = "DESC"
	}
	query := `SELECT ` + rowColumns + ` FROM sales_rows ORDER BY row_date ` + order + `, id`
	args := []any{}
	if q.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.Row{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Row, error) {
	row, err := scanRow(r.db.QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM sales_rows WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return row, nil
}

func (r *PostgresRepository) Create(ctx context.Context, row *models.Row) (*models.Row, error) {
	fields, err := json.Marshal(nonNil(row.Fields))
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	created, err := scanRow(r.db.QueryRowContext(ctx,
		`INSERT INTO sales_rows (id, fields, row_date, updated_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+rowColumns,
		row.ID, fields, row.Date, row.UpdatedBy))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch models.RowPatch, updatedBy string) (*models.Row, error) {
	fields, date, err := patchArgs(patch)
	if err != nil {
		return nil, err
	}

	row, err := scanRow(r.db.QueryRowContext(ctx,
		`UPDATE sales_rows
		    SET fields = jsonb_strip_nulls(fields || $2::jsonb),
		        row_date = COALESCE($3, row_date),
		        version = version + 1,
		        updated_by = $4,
		        updated_at = now()
		  WHERE id = $1
		 RETURNING `+rowColumns,
		id, fields, date, updatedBy))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return row, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sales_rows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	ok, err := dbx.RowsAffected(res)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !ok {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) BulkUpdate(ctx context.Context, ids []string, patch models.RowPatch, updatedBy string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	fields, date, err := patchArgs(patch)
	if err != nil {
		return 0, err
	}

	args := []any{fields, date, updatedBy}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sales_rows
		    SET fields = jsonb_strip_nulls(fields || $1::jsonb),
		        row_date = COALESCE($2, row_date),
		        version = version + 1,
		        updated_by = $3,
		        updated_at = now()
		  WHERE id IN (`+dbx.Placeholders(len(ids), 4)+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

func (r *PostgresRepository) BulkDelete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sales_rows WHERE id IN (`+dbx.Placeholders(len(ids), 1)+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

func patchArgs(patch models.RowPatch) ([]byte, any, error) {
	fields, err := json.Marshal(nonNil(patch.Fields))
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	var date any
	if patch.Date != nil {
		date = *patch.Date
	}
	return fields, date, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
