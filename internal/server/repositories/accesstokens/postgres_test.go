package accesstokens

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestInsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`^INSERT\s+INTO\s+access_tokens`).
		WithArgs("t1", "j1", "ws-1", "dev-1", now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &models.AccessToken{
		JTI: "t1", JobID: "j1", WorkspaceID: "ws-1", IssuedBy: "dev-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	cols := []string{"jti", "job_id", "workspace_id", "issued_by", "expires_at", "revoked_at", "created_at"}

	mock.ExpectQuery(`FROM\s+access_tokens\s+WHERE\s+jti\s*=\s*\$1`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("t1", "j1", "ws-1", "dev-1", now.Add(time.Hour), now, now))
	tok, err := repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, tok.RevokedAt)
	assert.False(t, tok.Active(now))

	mock.ExpectQuery(`FROM\s+access_tokens`).WithArgs("t2").WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.Get(context.Background(), "t2")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRevokeForJob(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE\s+access_tokens\s+SET\s+revoked_at\s*=\s*\$2\s+WHERE\s+job_id\s*=\s*\$1\s+AND\s+revoked_at\s+IS\s+NULL`).
		WithArgs("j1", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeForJob(context.Background(), "j1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
