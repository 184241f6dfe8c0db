// Package services contains the server-side business logic behind the sync
// and HTTP APIs. Every operation is scoped to the caller's workspace; records
// of other workspaces are reported as not found.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/export"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"github.com/dmitrijs2005/fieldseal/internal/server/metrics"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/repomanager"
)

// UpsertResult mirrors the device-facing outcome of a job upsert.
type UpsertResult struct {
	Applied  bool
	Version  int64
	Conflict bool
	Remote   *domain.Job
}

type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	bucket      string
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, bucket string, mt *metrics.Metrics) *SyncService {
	return &SyncService{db: db, repomanager: m, bucket: bucket, metrics: mt, now: time.Now}
}

// RemoteURL is the location of an uploaded photo as reported to devices.
func RemoteURL(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

func validateJob(p auth.Principal, mutationID string, j *domain.Job) error {
	var reasons []string
	if j == nil {
		return common.NewValidationError("job is required")
	}
	if strings.TrimSpace(j.ID) == "" {
		reasons = append(reasons, "job id is required")
	}
	if mutationID == "" {
		reasons = append(reasons, "mutation id is required")
	}
	if j.WorkspaceID != p.WorkspaceID {
		reasons = append(reasons, fmt.Sprintf("job belongs to workspace %q", j.WorkspaceID))
	}
	if !j.Status.Valid() {
		reasons = append(reasons, "job status is invalid")
	} else if j.Status.Terminal() {
		reasons = append(reasons, fmt.Sprintf("status %s cannot be set by an update", j.Status))
	}
	if len(reasons) > 0 {
		return common.NewValidationError(reasons...)
	}
	return nil
}

// UpsertJob applies a device mutation. Redelivery of the last applied
// mutation is acknowledged without a write; a stale baseVersion yields a
// conflict carrying the stored job.
func (s *SyncService) UpsertJob(ctx context.Context, p auth.Principal, mutationID string, j *domain.Job,
	baseVersion int64, resolvesConflict bool) (*UpsertResult, error) {

	if err := validateJob(p, mutationID, j); err != nil {
		s.metrics.Upsert("job", metrics.ResultRejected)
		return nil, err
	}

	var res *UpsertResult
	duplicate := false
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Jobs(tx)

		cur, err := repo.GetForUpdate(ctx, j.ID)
		if errors.Is(err, common.ErrorNotFound) {
			stored := s.incoming(p, mutationID, j, 1)
			if err := repo.Insert(ctx, stored); err != nil {
				return err
			}
			res = &UpsertResult{Applied: true, Version: stored.Version}
			return nil
		}
		if err != nil {
			return err
		}
		if cur.Job.WorkspaceID != p.WorkspaceID {
			return common.ErrorNotFound
		}

		switch {
		case cur.LastMutationID == mutationID:
			res = &UpsertResult{Applied: true, Version: cur.Version}
			duplicate = true
			return nil
		case cur.Job.Sealed():
			return common.ErrSealedJobImmutable
		case baseVersion != cur.Version:
			remote, err := s.withPhotos(ctx, tx, cur)
			if err != nil {
				return err
			}
			res = &UpsertResult{Conflict: true, Version: cur.Version, Remote: remote}
			return nil
		case !resolvesConflict && j.Status != cur.Job.Status:
			if g := domain.CanTransition(cur.Job.Status, j.Status); !g.Allowed {
				return common.NewValidationError(g.Reason)
			}
		}

		stored := s.incoming(p, mutationID, j, cur.Version+1)
		if err := repo.Update(ctx, stored, cur.Version); err != nil {
			return err
		}
		res = &UpsertResult{Applied: true, Version: stored.Version}
		return nil
	})
	if err != nil {
		s.metrics.Upsert("job", metrics.ResultRejected)
		return nil, err
	}

	switch {
	case res.Conflict:
		s.metrics.Upsert("job", metrics.ResultConflict)
	case duplicate:
		s.metrics.Upsert("job", metrics.ResultDuplicate)
	default:
		s.metrics.Upsert("job", metrics.ResultApplied)
	}
	return res, nil
}

// incoming strips everything a device may not set: photos are registered
// through the upload flow and seal fields through RequestSeal.
func (s *SyncService) incoming(p auth.Principal, mutationID string, j *domain.Job, version int64) *models.StoredJob {
	job := *j
	job.Photos = nil
	job.SealedAt = nil
	job.EvidenceHash = ""
	job.ArchivedAt = nil
	job.SyncStatus = domain.SyncSynced
	job.BaseVersion = version
	job.LastUpdated = s.now().UTC()
	return &models.StoredJob{Job: job, Version: version, LastMutationID: mutationID, UpdatedBy: p.DeviceID}
}

func (s *SyncService) withPhotos(ctx context.Context, db dbx.DBTX, stored *models.StoredJob) (*domain.Job, error) {
	objs, err := s.repomanager.Photos(db).ListByJob(ctx, stored.Job.ID)
	if err != nil {
		return nil, err
	}
	v := stored.View()
	v.Photos = nil
	for _, o := range objs {
		if o.Uploaded {
			v.Photos = append(v.Photos, o.Photo(RemoteURL(s.bucket, o.StorageKey)))
		}
	}
	return v, nil
}

func (s *SyncService) GetJob(ctx context.Context, p auth.Principal, jobID string) (*domain.Job, error) {
	stored, err := s.repomanager.Jobs(s.db).Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if stored.Job.WorkspaceID != p.WorkspaceID {
		return nil, common.ErrorNotFound
	}
	return s.withPhotos(ctx, s.db, stored)
}

// UpsertContact is last-writer-wins keyed by contact id; the returned time is
// the stored update time.
func (s *SyncService) UpsertContact(ctx context.Context, p auth.Principal, mutationID string, c *domain.Contact) (time.Time, error) {
	if c == nil || c.ID == "" || mutationID == "" {
		return time.Time{}, common.NewValidationError("contact id and mutation id are required")
	}
	if _, err := domain.ParseContactKind(string(c.Kind)); err != nil {
		return time.Time{}, common.NewValidationError(err.Error())
	}
	if strings.TrimSpace(c.Name) == "" {
		return time.Time{}, common.NewValidationError("contact name is required")
	}
	if c.WorkspaceID != p.WorkspaceID {
		return time.Time{}, common.NewValidationError(fmt.Sprintf("contact belongs to workspace %q", c.WorkspaceID))
	}

	var updatedAt time.Time
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Contacts(tx)
		cur, err := repo.Get(ctx, c.ID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case cur.Contact.WorkspaceID != p.WorkspaceID:
			return common.ErrorNotFound
		case cur.LastMutationID == mutationID:
			updatedAt = cur.Contact.UpdatedAt
			return nil
		}

		stored := &models.StoredContact{Contact: *c, LastMutationID: mutationID}
		stored.Contact.UpdatedAt = s.now().UTC()
		if _, err := repo.Upsert(ctx, stored); err != nil {
			return err
		}
		updatedAt = stored.Contact.UpdatedAt
		return nil
	})
	if err != nil {
		s.metrics.Upsert("contact", metrics.ResultRejected)
		return time.Time{}, err
	}
	s.metrics.Upsert("contact", metrics.ResultApplied)
	return updatedAt, nil
}

func (s *SyncService) ListJobs(ctx context.Context, p auth.Principal, includeArchived bool) ([]*domain.Job, error) {
	stored, err := s.repomanager.Jobs(s.db).ListByWorkspace(ctx, p.WorkspaceID, includeArchived)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Job, 0, len(stored))
	for _, st := range stored {
		out = append(out, st.View())
	}
	return out, nil
}

// Export returns audit records for every job of the workspace, archived ones
// included, with the number of uploaded photos per job.
func (s *SyncService) Export(ctx context.Context, p auth.Principal) ([]export.Record, error) {
	jobs, err := s.ListJobs(ctx, p, true)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	counts, err := s.repomanager.Photos(s.db).CountUploaded(ctx, ids)
	if err != nil {
		return nil, err
	}
	records := export.FromJobs(jobs)
	for i := range records {
		records[i].Photos = counts[records[i].JobID]
	}
	return records, nil
}
