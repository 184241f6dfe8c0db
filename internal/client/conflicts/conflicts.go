// Package conflicts detects divergence between a device's unsynced job edits
// and the backend's version of the job, and applies the operator's choice.
// Nothing here resolves a conflict on its own.
package conflicts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/client"
	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/notify"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/client/syncqueue"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/google/uuid"
)

type Service struct {
	store  syncqueue.Store
	remote client.Client
	queue  *syncqueue.Manager
	log    logging.Logger
	now    func() time.Time
}

func NewService(s syncqueue.Store, remote client.Client, q *syncqueue.Manager, log logging.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, remote: remote, queue: q, log: log.With("module", "conflicts"), now: now}
}

// Detect stores a conflict for jobID inside the caller's transaction. At most
// one unresolved conflict exists per job; Detect reports whether it created
// one.
func (s *Service) Detect(ctx context.Context, r *store.Repos, jobID string, remote *domain.Job, remoteVersion int64) (bool, error) {
	local, err := r.Jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	inserted, err := r.Conflicts.Insert(ctx, &models.ConflictRecord{
		ID:            uuid.NewString(),
		JobID:         jobID,
		LocalVersion:  local.BaseVersion,
		RemoteVersion: remoteVersion,
		Local:         local,
		Remote:        remote,
		DetectedAt:    s.now().UTC(),
		Resolution:    models.Unresolved,
	})
	if err != nil {
		return false, err
	}
	if inserted {
		s.log.Warn(ctx, "conflict detected", "job", jobID, "local_version", local.BaseVersion, "remote_version", remoteVersion)
	}
	return inserted, nil
}

// DetectedEvent is the notification for a newly recorded conflict.
func DetectedEvent(jobID string) *notify.Event {
	return &notify.Event{Kind: notify.KindConflictDetected, EntityID: jobID}
}

// Check compares the local job with the backend on demand. A conflict exists
// when the job has queued edits and its base version is no longer the
// backend's current version. Check returns the unresolved conflict, or nil.
func (s *Service) Check(ctx context.Context, jobID string) (*models.ConflictRecord, error) {
	r := s.store.Repos()
	if c, err := r.Conflicts.UnresolvedForJob(ctx, jobID); err == nil {
		return c, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	local, err := r.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	dirty, err := r.Queue.CountByEntity(ctx, models.EntityJob, jobID)
	if err != nil {
		return nil, err
	}
	remote, err := s.remote.GetJob(ctx, jobID)
	if errors.Is(err, common.ErrorNotFound) {
		// Never reached the backend; nothing to diverge from.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if dirty == 0 || local.BaseVersion == remote.BaseVersion {
		return nil, nil
	}

	var inserted bool
	err = s.store.WithTx(ctx, func(ctx context.Context, tx *store.Repos) error {
		inserted, err = s.Detect(ctx, tx, jobID, remote, remote.BaseVersion)
		return err
	})
	if err != nil {
		return nil, err
	}
	if inserted {
		s.queue.Emit(ctx, *DetectedEvent(jobID))
	}
	return r.Conflicts.UnresolvedForJob(ctx, jobID)
}

func (s *Service) List(ctx context.Context) ([]*models.ConflictRecord, error) {
	return s.store.Repos().Conflicts.ListUnresolved(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.Repos().Conflicts.CountUnresolved(ctx)
}

// Resolve applies the operator's choice. Resolving an already resolved
// conflict does nothing.
//
//   - ResolveRemote drops the queued job edits and the draft and adopts the
//     backend's job and version.
//   - ResolveLocal rebases the local job onto the backend's version and
//     replaces the queued edits with one overwrite carrying the local state.
func (s *Service) Resolve(ctx context.Context, id string, res models.Resolution) error {
	if !res.Valid() {
		return common.NewValidationError(fmt.Sprintf("unknown resolution %q", res))
	}
	var (
		jobID    string
		resolved bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		c, err := r.Conflicts.Get(ctx, id)
		if err != nil {
			return err
		}
		if c.Resolution != models.Unresolved {
			return nil
		}
		jobID = c.JobID

		if err := dropJobEdits(ctx, r, c.JobID); err != nil {
			return err
		}
		switch res {
		case models.ResolveRemote:
			err = s.adoptRemote(ctx, r, c)
		case models.ResolveLocal:
			err = s.keepLocal(ctx, r, c)
		}
		if err != nil {
			return err
		}
		resolved, err = r.Conflicts.MarkResolved(ctx, c.ID, res, s.now().UTC())
		return err
	})
	if err != nil || !resolved {
		return err
	}
	s.log.Info(ctx, "conflict resolved", "conflict", id, "job", jobID, "resolution", res)
	s.queue.Emit(ctx, notify.Event{Kind: notify.KindConflictResolved, EntityID: jobID, Message: string(res)})
	return nil
}

// dropJobEdits removes queued mutations of the job itself. Photo uploads
// stay queued; they carry evidence either side keeps.
func dropJobEdits(ctx context.Context, r *store.Repos, jobID string) error {
	actions, err := r.Queue.ListByEntity(ctx, models.EntityJob, jobID)
	if err != nil {
		return err
	}
	for _, a := range actions {
		switch a.Type {
		case models.ActionCreateJob, models.ActionUpdateJob, models.ActionSealJob:
			if err := r.Queue.Delete(ctx, a.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) adoptRemote(ctx context.Context, r *store.Repos, c *models.ConflictRecord) error {
	remote := c.Remote
	if remote == nil {
		return fmt.Errorf("conflict %s has no remote copy", c.ID)
	}
	if err := r.Drafts.Delete(ctx, c.JobID); err != nil {
		return err
	}
	adopted := *remote
	adopted.ID = c.JobID
	adopted.Photos = nil
	adopted.BaseVersion = c.RemoteVersion
	adopted.SyncStatus = domain.SyncSynced
	return r.Jobs.Save(ctx, &adopted)
}

func (s *Service) keepLocal(ctx context.Context, r *store.Repos, c *models.ConflictRecord) error {
	local, err := r.Jobs.Get(ctx, c.JobID)
	if err != nil {
		return err
	}
	if err := r.Jobs.SetBaseVersion(ctx, c.JobID, c.RemoteVersion); err != nil {
		return err
	}
	local.BaseVersion = c.RemoteVersion
	_, err = s.queue.Enqueue(ctx, r, models.ActionUpdateJob, c.JobID, models.JobPayload{Job: local, ResolvesConflict: true})
	return err
}
