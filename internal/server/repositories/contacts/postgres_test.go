package contacts

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "workspace_id", "kind", "name", "email", "phone", "last_mutation_id", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)FROM\s+contacts\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("c-1", "ws-1", "technician", "Dana", "dana@example.com", "", "m-1", at))

	got, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ContactTechnician, got.Contact.Kind)
	assert.Equal(t, domain.SyncSynced, got.Contact.SyncStatus)
	assert.Equal(t, "m-1", got.LastMutationID)

	mock.ExpectQuery(`FROM\s+contacts`).WithArgs("nope").WillReturnRows(sqlmock.NewRows(columns))
	_, err = repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpsert(t *testing.T) {
	q := `(?s)^INSERT\s+INTO\s+contacts.*ON\s+CONFLICT\s+\(id\)\s+DO\s+UPDATE.*WHERE\s+contacts\.last_mutation_id\s*<>\s*EXCLUDED\.last_mutation_id`
	c := &models.StoredContact{
		Contact:        domain.Contact{ID: "c-1", WorkspaceID: "ws-1", Kind: domain.ContactClient, Name: "ACME"},
		LastMutationID: "m-2",
	}

	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(q).
		WithArgs("c-1", "ws-1", "client", "ACME", "", "", "m-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	applied, err := repo.Upsert(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, applied)

	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))
	applied, err = repo.Upsert(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByWorkspace(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)WHERE\s+workspace_id\s*=\s*\$1\s+AND\s+\(\$2\s*=\s*''\s+OR\s+kind\s*=\s*\$2\)`).
		WithArgs("ws-1", "").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("c-1", "ws-1", "client", "ACME", "", "", "m-1", at).
			AddRow("c-2", "ws-1", "technician", "Dana", "", "", "m-2", at))

	got, err := repo.ListByWorkspace(context.Background(), "ws-1", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Dana", got[1].Contact.Name)
}
