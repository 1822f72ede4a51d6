package boards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/dbx"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

const (
	cardFields    = `id, board_id, list_id, title, description, due_date, position, version, updated_by, updated_at`
	subtaskFields = `id, nano_id, card_id, title, done`
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (*models.Card, error) {
	var (
		c   models.Card
		due sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.BoardID, &c.ListID, &c.Title, &c.Description, &due,
		&c.Position, &c.Version, &c.UpdatedBy, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if due.Valid {
		t := due.Time
		c.DueDate = &t
	}
	return &c, nil
}

func scanSubtask(s scanner) (*models.Subtask, error) {
	var st models.Subtask
	if err := s.Scan(&st.ID, &st.NanoID, &st.CardID, &st.Title, &st.Done); err != nil {
		return nil, err
	}
	return &st, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) ListCards(ctx context.Context, boardID string) ([]models.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardFields+` FROM cards WHERE board_id = $1 ORDER BY list_id, position, id`, boardID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	index := map[string]int{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		index[c.ID] = len(cards)
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(cards) == 0 {
		return cards, nil
	}

	subRows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.nano_id, s.card_id, s.title, s.done
		   FROM subtasks s JOIN cards c ON c.id = s.card_id
		  WHERE c.board_id = $1
		  ORDER BY s.card_id, s.nano_id`, boardID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		st, err := scanSubtask(subRows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if i, ok := index[st.CardID]; ok {
			cards[i].Subtasks = append(cards[i].Subtasks, *st)
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return cards, nil
}

func (r *PostgresRepository) GetCard(ctx context.Context, id string) (*models.Card, error) {
	c, err := scanCard(r.db.QueryRowContext(ctx, `SELECT `+cardFields+` FROM cards WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return c, nil
}

func (r *PostgresRepository) CreateCard(ctx context.Context, c *models.Card) (*models.Card, error) {
	var due any
	if c.DueDate != nil {
		due = *c.DueDate
	}
	created, err := scanCard(r.db.QueryRowContext(ctx,
		`INSERT INTO cards (id, board_id, list_id, title, description, due_date, position, updated_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+cardFields,
		c.ID, c.BoardID, c.ListID, c.Title, c.Description, due, c.Position, c.UpdatedBy))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) UpdateCard(ctx context.Context, id string, patch models.CardPatch, updatedBy string) (*models.Card, error) {
	c, err := scanCard(r.db.QueryRowContext(ctx,
		`UPDATE cards
		    SET list_id = COALESCE($2, list_id),
		        title = COALESCE($3, title),
		        description = COALESCE($4, description),
		        due_date = COALESCE($5, due_date),
		        position = COALESCE($6, position),
		        version = version + 1,
		        updated_by = $7,
		        updated_at = now()
		  WHERE id = $1
		 RETURNING `+cardFields,
		id, deref(patch.ListID), deref(patch.Title), deref(patch.Description),
		deref(patch.DueDate), deref(patch.Position), updatedBy))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return c, nil
}

func (r *PostgresRepository) DeleteCard(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
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

func (r *PostgresRepository) CreateSubtask(ctx context.Context, s *models.Subtask) (*models.Subtask, error) {
	created, err := scanSubtask(r.db.QueryRowContext(ctx,
		`INSERT INTO subtasks (id, nano_id, card_id, title, done)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+subtaskFields,
		s.ID, s.NanoID, s.CardID, s.Title, s.Done))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) UpdateSubtask(ctx context.Context, nanoID string, patch models.SubtaskPatch) (*models.Subtask, error) {
	st, err := scanSubtask(r.db.QueryRowContext(ctx,
		`UPDATE subtasks
		    SET title = COALESCE($2, title),
		        done = COALESCE($3, done)
		  WHERE nano_id = $1
		 RETURNING `+subtaskFields,
		nanoID, deref(patch.Title), deref(patch.Done)))
	if err != nil {
		return nil, notFoundOr(err)
	}
	return st, nil
}

func (r *PostgresRepository) CardParents(ctx context.Context, cardID string) (string, string, error) {
	var boardID, listID string
	err := r.db.QueryRowContext(ctx, `SELECT board_id, list_id FROM cards WHERE id = $1`, cardID).
		Scan(&boardID, &listID)
	if err != nil {
		return "", "", notFoundOr(err)
	}
	return boardID, listID, nil
}

func (r *PostgresRepository) SubtaskCard(ctx context.Context, nanoID string) (string, error) {
	var cardID string
	err := r.db.QueryRowContext(ctx, `SELECT card_id FROM subtasks WHERE nano_id = $1`, nanoID).Scan(&cardID)
	if err != nil {
		return "", notFoundOr(err)
	}
	return cardID, nil
}

// deref turns an optional patch field into a query argument: NULL when
// absent so COALESCE keeps the stored value.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
