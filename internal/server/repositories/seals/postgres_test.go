package seals

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestInsert(t *testing.T) {
	q := `(?s)^INSERT\s+INTO\s+seals.*ON\s+CONFLICT\s+\(job_id\)\s+DO\s+NOTHING`
	s := &evidence.Seal{
		JobID:     "j1", WorkspaceID: "ws-1", EvidenceHash: "ab", Signature: "c2ln",
		Algorithm: evidence.AlgRSASHA256, SealedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		SealedBy:  "fieldseal-authority", Snapshot: []byte(`{}`),
	}

	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(q).
		WithArgs("j1", "ws-1", "ab", "c2ln", "RSA-SHA256", s.SealedAt, "fieldseal-authority", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Insert(context.Background(), s))

	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Insert(context.Background(), s), common.ErrAlreadySealed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	cols := []string{"job_id", "workspace_id", "evidence_hash", "signature", "algorithm", "sealed_at", "sealed_by", "snapshot"}
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM\s+seals\s+WHERE\s+job_id\s*=\s*\$1`).
		WithArgs("j1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("j1", "ws-1", "ab", "c2ln", "RSA-SHA256", at, "authority", []byte(`{"id":"j1"}`)))
	got, err := repo.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, at, got.SealedAt)
	assert.JSONEq(t, `{"id":"j1"}`, string(got.Snapshot))

	mock.ExpectQuery(`FROM\s+seals`).WithArgs("j2").WillReturnRows(sqlmock.NewRows(cols))
	_, err = repo.Get(context.Background(), "j2")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
