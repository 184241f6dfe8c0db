package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/client"
	"github.com/dmitrijs2005/fieldseal/internal/client/conflicts"
	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/client/syncqueue"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/rpc"
	"github.com/google/uuid"
)

type JobService interface {
	Create(ctx context.Context, j *domain.Job) (*domain.Job, error)
	Update(ctx context.Context, j *domain.Job) (*domain.Job, error)
	Advance(ctx context.Context, jobID string, to domain.JobStatus) error
	Sign(ctx context.Context, jobID string, sig domain.Signature) error
	Pull(ctx context.Context, jobID string) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, workspaceID string, includeArchived bool) ([]*domain.Job, error)
	SaveDraft(ctx context.Context, jobID string, data json.RawMessage) error
	Draft(ctx context.Context, jobID string) (*models.Draft, error)
	DiscardDraft(ctx context.Context, jobID string) error
}

type jobService struct {
	store     syncqueue.Store
	queue     *syncqueue.Manager
	conflicts *conflicts.Service
	remote    client.Client
	log       logging.Logger
	now       func() time.Time
}

// NewJobService builds the service and registers the CREATE_JOB and
// UPDATE_JOB handlers on q.
func NewJobService(s syncqueue.Store, q *syncqueue.Manager, c *conflicts.Service, remote client.Client, log logging.Logger, now func() time.Time) JobService {
	if now == nil {
		now = time.Now
	}
	svc := &jobService{store: s, queue: q, conflicts: c, remote: remote, log: log.With("module", "jobs"), now: now}
	q.Register(models.ActionCreateJob, svc.deliver)
	q.Register(models.ActionUpdateJob, svc.deliver)
	return svc
}

func validateJob(j *domain.Job) error {
	var reasons []string
	if strings.TrimSpace(j.WorkspaceID) == "" {
		reasons = append(reasons, "workspace is required")
	}
	if strings.TrimSpace(j.Title) == "" {
		reasons = append(reasons, "title is required")
	}
	if len(reasons) > 0 {
		return common.NewValidationError(reasons...)
	}
	return nil
}

func (s *jobService) Create(ctx context.Context, j *domain.Job) (*domain.Job, error) {
	if err := validateJob(j); err != nil {
		return nil, err
	}
	created := *j
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Status == domain.StatusUnknown {
		created.Status = domain.StatusDraft
	}
	if created.Status.Terminal() {
		return nil, common.NewValidationError(fmt.Sprintf("a new job cannot start as %s", created.Status))
	}
	created.Photos = nil
	created.Signature = nil
	created.SealedAt, created.EvidenceHash, created.ArchivedAt = nil, "", nil
	created.BaseVersion = 0
	created.SyncStatus = domain.SyncPending
	created.LastUpdated = s.now().UTC()

	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		if err := r.Jobs.Save(ctx, &created); err != nil {
			return err
		}
		_, err := s.queue.Enqueue(ctx, r, models.ActionCreateJob, created.ID, models.JobPayload{Job: &created})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "job created", "job", created.ID)
	return &created, nil
}

// mutate loads a job, applies fn and queues the result as UPDATE_JOB, all in
// one transaction. Sealed jobs and jobs with a queued seal are read-only.
func (s *jobService) mutate(ctx context.Context, jobID string, fn func(j *domain.Job) error) (*domain.Job, error) {
	var out *domain.Job
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		j, err := r.Jobs.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if err := j.EnsureMutable(); err != nil {
			return err
		}
		queued, err := r.Queue.HasType(ctx, models.ActionSealJob, jobID)
		if err != nil {
			return err
		}
		if queued {
			return fmt.Errorf("job %s is read-only: %w", jobID, common.ErrSealQueued)
		}
		if err := fn(j); err != nil {
			return err
		}
		j.LastUpdated = s.now().UTC()
		j.SyncStatus = domain.SyncPending
		if err := r.Jobs.Save(ctx, j); err != nil {
			return err
		}
		if _, err := s.queue.Enqueue(ctx, r, models.ActionUpdateJob, jobID, models.JobPayload{Job: j}); err != nil {
			return err
		}
		out = j
		return nil
	})
	return out, err
}

// Update applies the editable fields of j. Status changes must move forward.
func (s *jobService) Update(ctx context.Context, j *domain.Job) (*domain.Job, error) {
	return s.mutate(ctx, j.ID, func(cur *domain.Job) error {
		if j.Status != domain.StatusUnknown && j.Status != cur.Status {
			if g := domain.CanTransition(cur.Status, j.Status); !g.Allowed {
				return common.NewValidationError(g.Reason)
			}
			cur.Status = j.Status
		}
		cur.Title = j.Title
		cur.Client = j.Client
		cur.Technician = j.Technician
		cur.Address = j.Address
		cur.Notes = j.Notes
		cur.WorkSummary = j.WorkSummary
		cur.ScheduledAt = j.ScheduledAt
		if err := validateJob(cur); err != nil {
			return err
		}
		return nil
	})
}

func (s *jobService) Advance(ctx context.Context, jobID string, to domain.JobStatus) error {
	_, err := s.mutate(ctx, jobID, func(j *domain.Job) error {
		if g := domain.CanTransition(j.Status, to); !g.Allowed {
			return common.NewValidationError(g.Reason)
		}
		j.Status = to
		return nil
	})
	return err
}

// Sign attaches the customer signature. When the signature image is a local
// file its hash is recorded so the seal covers the image bytes.
func (s *jobService) Sign(ctx context.Context, jobID string, sig domain.Signature) error {
	if strings.TrimSpace(sig.SignerName) == "" {
		return common.NewValidationError(evidence.ReasonNoSignerName)
	}
	if sig.SignedAt.IsZero() {
		sig.SignedAt = s.now().UTC()
	}
	if sig.ImageRef != "" && sig.ImageHash == "" {
		b, err := os.ReadFile(sig.ImageRef)
		if err != nil {
			return fmt.Errorf("read signature image: %w", err)
		}
		sig.ImageHash = evidence.HashBytes(b)
	}
	_, err := s.mutate(ctx, jobID, func(j *domain.Job) error {
		j.Signature = &sig
		return nil
	})
	return err
}

// Pull fetches a job from the backend and stores it locally. A job with
// queued edits is left alone; Check reports whether it diverged.
func (s *jobService) Pull(ctx context.Context, jobID string) (*domain.Job, error) {
	remote, err := s.remote.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var out *domain.Job
	err = s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		n, err := r.Queue.CountByEntity(ctx, models.EntityJob, jobID)
		if err != nil {
			return err
		}
		remote.SyncStatus = domain.SyncSynced
		for i := range remote.Photos {
			remote.Photos[i].JobID = jobID
			remote.Photos[i].SyncStatus = domain.SyncSynced
		}
		local, err := r.Jobs.Get(ctx, jobID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			if err := r.Jobs.Restore(ctx, remote); err != nil {
				return err
			}
		case err != nil:
			return err
		case n > 0 || local.Sealed():
			out = local
			return nil
		default:
			if err := r.Jobs.Save(ctx, remote); err != nil {
				return err
			}
			for i := range remote.Photos {
				p := remote.Photos[i]
				if _, err := r.Photos.Get(ctx, p.ID); errors.Is(err, common.ErrorNotFound) {
					if err := r.Photos.Insert(ctx, &p); err != nil {
						return err
					}
				}
			}
		}
		out, err = r.Jobs.Get(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if n, _ := s.store.Repos().Queue.CountByEntity(ctx, models.EntityJob, jobID); n > 0 {
		if _, err := s.conflicts.Check(ctx, jobID); err != nil {
			s.log.Warn(ctx, "conflict check after pull", "job", jobID, "error", err)
		}
	}
	return out, nil
}

func (s *jobService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.Repos().Jobs.Get(ctx, jobID)
}

func (s *jobService) List(ctx context.Context, workspaceID string, includeArchived bool) ([]*domain.Job, error) {
	return s.store.Repos().Jobs.ListByWorkspace(ctx, workspaceID, includeArchived)
}

func (s *jobService) SaveDraft(ctx context.Context, jobID string, data json.RawMessage) error {
	if !json.Valid(data) {
		return common.NewValidationError("draft must be valid JSON")
	}
	r := s.store.Repos()
	j, err := r.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if err := j.EnsureMutable(); err != nil {
		return err
	}
	return r.Drafts.Save(ctx, &models.Draft{JobID: jobID, Data: data, UpdatedAt: s.now().UTC()})
}

func (s *jobService) Draft(ctx context.Context, jobID string) (*models.Draft, error) {
	return s.store.Repos().Drafts.Get(ctx, jobID)
}

func (s *jobService) DiscardDraft(ctx context.Context, jobID string) error {
	return s.store.Repos().Drafts.Delete(ctx, jobID)
}

// deliver upserts the queued job snapshot. The base version is read at send
// time so consecutive edits of one job chain onto each other.
func (s *jobService) deliver(ctx context.Context, a *models.QueueAction) (syncqueue.Result, error) {
	var p models.JobPayload
	if err := a.Decode(&p); err != nil {
		return syncqueue.Result{}, common.NewValidationError(err.Error())
	}
	if p.Job == nil {
		return syncqueue.Result{}, common.NewValidationError("job payload is empty")
	}
	local, err := s.store.Repos().Jobs.Get(ctx, a.EntityID)
	if err != nil {
		return syncqueue.Result{}, err
	}

	resp, err := s.remote.UpsertJob(ctx, &rpc.UpsertJobRequest{
		MutationID:       a.ID,
		Job:              p.Job,
		BaseVersion:      local.BaseVersion,
		ResolvesConflict: p.ResolvesConflict,
	})
	if err != nil {
		return syncqueue.Result{}, err
	}

	jobID := a.EntityID
	if resp.Conflict {
		return syncqueue.Result{
			Park: true,
			Commit: func(ctx context.Context, r *store.Repos) error {
				_, err := s.conflicts.Detect(ctx, r, jobID, resp.Remote, resp.Version)
				return err
			},
			Event: conflicts.DetectedEvent(jobID),
		}, nil
	}
	if !resp.Applied {
		return syncqueue.Result{}, common.NewValidationError("server neither applied nor rejected the job")
	}
	return syncqueue.Result{
		Commit: func(ctx context.Context, r *store.Repos) error {
			return r.Jobs.SetBaseVersion(ctx, jobID, resp.Version)
		},
	}, nil
}
