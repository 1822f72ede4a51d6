package columns

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

const columnFields = `id, name, kind, options, position`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanColumn(s scanner) (*models.Column, error) {
	var (
		c       models.Column
		options []byte
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Kind, &options, &c.Position); err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &c.Options); err != nil {
			return nil, fmt.Errorf("decode options of column %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Column, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columnFields+` FROM sales_columns ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := []models.Column{}
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Column, error) {
	c, err := scanColumn(r.db.QueryRowContext(ctx, `SELECT `+columnFields+` FROM sales_columns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Column) (*models.Column, error) {
	options, err := encodeOptions(c.Options)
	if err != nil {
		return nil, err
	}
	created, err := scanColumn(r.db.QueryRowContext(ctx,
		`INSERT INTO sales_columns (id, name, kind, options, position)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+columnFields,
		c.ID, c.Name, c.Kind, options, c.Position))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, patch models.ColumnPatch) (*models.Column, error) {
	var options any
	if patch.Options != nil {
		raw, err := encodeOptions(patch.Options)
		if err != nil {
			return nil, err
		}
		options = raw
	}
	var name, position any
	if patch.Name != nil {
		name = *patch.Name
	}
	if patch.Position != nil {
		position = *patch.Position
	}

	c, err := scanColumn(r.db.QueryRowContext(ctx,
		`UPDATE sales_columns
		    SET name = COALESCE($2, name),
		        options = COALESCE($3::jsonb, options),
		        position = COALESCE($4, position)
		  WHERE id = $1
		 RETURNING `+columnFields,
		id, name, options, position))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sales_columns WHERE id = $1`, id)
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

func encodeOptions(options []string) ([]byte, error) {
	if options == nil {
		options = []string{}
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	return raw, nil
}
