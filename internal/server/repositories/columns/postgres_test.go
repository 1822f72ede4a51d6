package columns

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

var cols = []string{"id", "name", "kind", "options", "position"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestList(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM sales_columns ORDER BY position, id$`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("stage", "Stage", models.ColumnDropdown, []byte(`["lead","won"]`), 0).
			AddRow("amount", "Amount", models.ColumnNumber, []byte(`[]`), 1))

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"lead", "won"}, got[0].Options)
	assert.Empty(t, got[1].Options)
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT INTO sales_columns`).
		WithArgs("stage", "Stage", models.ColumnDropdown, []byte(`["lead"]`), 2).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("stage", "Stage", models.ColumnDropdown, []byte(`["lead"]`), 2))

	got, err := repo.Create(context.Background(), &models.Column{
		ID: "stage", Name: "Stage", Kind: models.ColumnDropdown, Options: []string{"lead"}, Position: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Position)
}

func TestUpdate_OnlyGivenFields(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	name := "Pipeline stage"

	mock.ExpectQuery(`(?s)^UPDATE sales_columns\s+SET name = COALESCE\(\$2, name\)`).
		WithArgs("stage", name, nil, nil).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("stage", name, models.ColumnDropdown, []byte(`["lead"]`), 0))

	got, err := repo.Update(context.Background(), "stage", models.ColumnPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)^UPDATE sales_columns`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Update(context.Background(), "nope", models.ColumnPatch{Options: []string{"a"}})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetAndDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`WHERE id = \$1$`).WithArgs("x").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`^DELETE FROM sales_columns WHERE id = \$1$`).WithArgs("x").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Get(context.Background(), "x")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(context.Background(), "x"), common.ErrNotFound)
}
