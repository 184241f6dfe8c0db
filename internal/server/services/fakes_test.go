package services

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/accesstokens"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/photos"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/seals"
	"github.com/stretchr/testify/require"
)

// -------- test fakes --------

type fakeJobs struct {
	jobs.Repository
	rows map[string]models.StoredJob
}

func (f *fakeJobs) Get(_ context.Context, id string) (*models.StoredJob, error) {
	r, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &r, nil
}

func (f *fakeJobs) GetForUpdate(ctx context.Context, id string) (*models.StoredJob, error) {
	return f.Get(ctx, id)
}

func (f *fakeJobs) Insert(_ context.Context, j *models.StoredJob) error {
	f.rows[j.Job.ID] = *j
	return nil
}

func (f *fakeJobs) Update(_ context.Context, j *models.StoredJob, prevVersion int64) error {
	cur, ok := f.rows[j.Job.ID]
	if !ok || cur.Version != prevVersion || cur.Job.SealedAt != nil {
		return common.ErrVersionConflict
	}
	f.rows[j.Job.ID] = *j
	return nil
}

func (f *fakeJobs) MarkSealed(_ context.Context, id, hash string, at time.Time) (int64, error) {
	cur, ok := f.rows[id]
	if !ok || cur.Job.SealedAt != nil {
		return 0, common.ErrAlreadySealed
	}
	domain.ApplySeal(&cur.Job, hash, at)
	cur.Version++
	f.rows[id] = cur
	return cur.Version, nil
}

func (f *fakeJobs) ListByWorkspace(_ context.Context, ws string, includeArchived bool) ([]*models.StoredJob, error) {
	var out []*models.StoredJob
	for _, id := range sortedKeys(f.rows) {
		r := f.rows[id]
		if r.Job.WorkspaceID == ws && (includeArchived || r.Job.ArchivedAt == nil) {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (f *fakeJobs) ListArchivable(_ context.Context, before time.Time) ([]string, error) {
	var ids []string
	for _, id := range sortedKeys(f.rows) {
		r := f.rows[id]
		if r.Job.SealedAt != nil && r.Job.ArchivedAt == nil && r.Job.SealedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeJobs) MarkArchived(_ context.Context, id string, at time.Time) (bool, error) {
	r, ok := f.rows[id]
	if !ok || r.Job.SealedAt == nil || r.Job.ArchivedAt != nil {
		return false, nil
	}
	r.Job.ArchivedAt = &at
	r.Job.Status = domain.StatusArchived
	f.rows[id] = r
	return true, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type fakeContacts struct {
	contacts.Repository
	rows map[string]models.StoredContact
}

func (f *fakeContacts) Get(_ context.Context, id string) (*models.StoredContact, error) {
	r, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &r, nil
}

func (f *fakeContacts) Upsert(_ context.Context, c *models.StoredContact) (bool, error) {
	if cur, ok := f.rows[c.Contact.ID]; ok && cur.LastMutationID == c.LastMutationID {
		return false, nil
	}
	f.rows[c.Contact.ID] = *c
	return true, nil
}

type fakePhotos struct {
	photos.Repository
	rows map[string]models.PhotoObject
}

func (f *fakePhotos) Upsert(_ context.Context, p *models.PhotoObject) error {
	next := *p
	if cur, ok := f.rows[p.ID]; ok && cur.ContentHash == p.ContentHash {
		next.Uploaded = cur.Uploaded
	}
	f.rows[p.ID] = next
	return nil
}

func (f *fakePhotos) Get(_ context.Context, id string) (*models.PhotoObject, error) {
	r, ok := f.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &r, nil
}

func (f *fakePhotos) MarkUploaded(_ context.Context, id string) error {
	r, ok := f.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.Uploaded = true
	f.rows[id] = r
	return nil
}

func (f *fakePhotos) ListByJob(_ context.Context, jobID string) ([]*models.PhotoObject, error) {
	var out []*models.PhotoObject
	for _, id := range sortedKeys(f.rows) {
		if r := f.rows[id]; r.JobID == jobID {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (f *fakePhotos) CountUploaded(_ context.Context, jobIDs []string) (map[string]int, error) {
	want := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		want[id] = true
	}
	out := map[string]int{}
	for _, r := range f.rows {
		if r.Uploaded && want[r.JobID] {
			out[r.JobID]++
		}
	}
	return out, nil
}

type fakeSeals struct {
	seals.Repository
	rows map[string]evidence.Seal
}

func (f *fakeSeals) Insert(_ context.Context, s *evidence.Seal) error {
	if _, ok := f.rows[s.JobID]; ok {
		return common.ErrAlreadySealed
	}
	f.rows[s.JobID] = *s
	return nil
}

func (f *fakeSeals) Get(_ context.Context, jobID string) (*evidence.Seal, error) {
	s, ok := f.rows[jobID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

type fakeTokens struct {
	accesstokens.Repository
	rows map[string]models.AccessToken
}

func (f *fakeTokens) Insert(_ context.Context, t *models.AccessToken) error {
	f.rows[t.JTI] = *t
	return nil
}

func (f *fakeTokens) Get(_ context.Context, jti string) (*models.AccessToken, error) {
	t, ok := f.rows[jti]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (f *fakeTokens) RevokeForJob(_ context.Context, jobID string, at time.Time) (int64, error) {
	var n int64
	for k, t := range f.rows {
		if t.JobID == jobID && t.RevokedAt == nil {
			t.RevokedAt = &at
			f.rows[k] = t
			n++
		}
	}
	return n, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	jobs     *fakeJobs
	contacts *fakeContacts
	photos   *fakePhotos
	seals    *fakeSeals
	tokens   *fakeTokens
}

func (m *fakeRepoManager) Jobs(dbx.DBTX) jobs.Repository                 { return m.jobs }
func (m *fakeRepoManager) Contacts(dbx.DBTX) contacts.Repository         { return m.contacts }
func (m *fakeRepoManager) Photos(dbx.DBTX) photos.Repository             { return m.photos }
func (m *fakeRepoManager) Seals(dbx.DBTX) seals.Repository               { return m.seals }
func (m *fakeRepoManager) AccessTokens(dbx.DBTX) accesstokens.Repository { return m.tokens }

// -------- helpers --------

var (
	principal = auth.Principal{DeviceID: "dev-1", WorkspaceID: "ws-1"}
	fixedNow  = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
)

type testEnv struct {
	db   *sql.DB
	mock sqlmock.Sqlmock
	rm   *fakeRepoManager
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return &testEnv{
		db:   db,
		mock: mock,
		rm: &fakeRepoManager{
			jobs:     &fakeJobs{rows: map[string]models.StoredJob{}},
			contacts: &fakeContacts{rows: map[string]models.StoredContact{}},
			photos:   &fakePhotos{rows: map[string]models.PhotoObject{}},
			seals:    &fakeSeals{rows: map[string]evidence.Seal{}},
			tokens:   &fakeTokens{rows: map[string]models.AccessToken{}},
		},
	}
}

// expectTx registers one dbx.WithTx round.
func (e *testEnv) expectTx(commit bool) {
	e.mock.ExpectBegin()
	if commit {
		e.mock.ExpectCommit()
	} else {
		e.mock.ExpectRollback()
	}
}

func (e *testEnv) putJob(j domain.Job, version int64, mutation string) {
	e.rm.jobs.rows[j.ID] = models.StoredJob{Job: j, Version: version, LastMutationID: mutation}
}

func openJob(id string) domain.Job {
	return domain.Job{ID: id, WorkspaceID: "ws-1", Status: domain.StatusInProgress, Title: "Replace valve"}
}
