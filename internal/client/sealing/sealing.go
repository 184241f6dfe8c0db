// Package sealing turns a finished job into tamper-evident evidence on the
// device. The backend signs; the device builds the canonical bundle, checks
// eligibility, and stores the returned seal together with the snapshot it
// covers. A seal that cannot be requested because the device is offline is
// queued as SEAL_JOB and the job stays read-only until it is delivered.
package sealing

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
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
)

type Options struct {
	// Sealable lists the statuses a job may be sealed from.
	Sealable []domain.JobStatus

	// Verifier checks returned seals before they are stored. Nil skips the
	// signature check; the hash is always compared.
	Verifier evidence.SignatureVerifier

	CallTimeout time.Duration
}

type Service struct {
	store  syncqueue.Store
	queue  *syncqueue.Manager
	remote client.Client
	opts   Options
	log    logging.Logger
}

// NewService builds the service and registers the SEAL_JOB handler on q.
func NewService(s syncqueue.Store, q *syncqueue.Manager, remote client.Client, o Options, log logging.Logger) *Service {
	if len(o.Sealable) == 0 {
		o.Sealable = evidence.DefaultSealable
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 15 * time.Second
	}
	svc := &Service{store: s, queue: q, remote: remote, opts: o, log: log.With("module", "sealing")}
	q.Register(models.ActionSealJob, svc.deliver)
	return svc
}

// CanSeal reports whether the job may be sealed and, if not, every reason.
func (s *Service) CanSeal(ctx context.Context, jobID string) (evidence.Eligibility, error) {
	j, err := s.store.Repos().Jobs.Get(ctx, jobID)
	if err != nil {
		return evidence.Eligibility{}, err
	}
	return evidence.CanSeal(j, s.opts.Sealable), nil
}

// Seal requests a signature for the job's current evidence. When the backend
// is unreachable the request is queued and ErrSealQueued is returned; the
// seal is stored once the queue delivers it.
func (s *Service) Seal(ctx context.Context, jobID string) (*evidence.Seal, error) {
	r := s.store.Repos()
	j, err := r.Jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	queued, err := r.Queue.HasType(ctx, models.ActionSealJob, jobID)
	if err != nil {
		return nil, err
	}
	if queued {
		return nil, common.ErrSealQueued
	}
	if err := evidence.CanSeal(j, s.opts.Sealable).Err(); err != nil {
		return nil, err
	}
	snapshot, hash, err := evidence.Snapshot(j)
	if err != nil {
		return nil, err
	}

	// Earlier job actions must reach the backend first, so the seal is only
	// requested directly when the job's lane is empty.
	pending, err := r.Queue.CountByEntity(ctx, models.EntityJob, jobID)
	if err != nil {
		return nil, err
	}
	if pending == 0 {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CallTimeout)
		seal, err := s.remote.RequestSeal(callCtx, jobID, hash, snapshot)
		cancel()
		switch {
		case err == nil:
			if err := s.Finalize(ctx, seal, snapshot); err != nil {
				return nil, err
			}
			s.queue.Emit(ctx, sealedEvent(seal))
			return seal, nil
		case !common.IsRetryable(err):
			return nil, err
		}
		s.log.Warn(ctx, "seal request failed, queueing", "job", jobID, "error", err)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		_, err := s.queue.Enqueue(ctx, r, models.ActionSealJob, jobID, models.SealPayload{EvidenceHash: hash, Snapshot: snapshot})
		return err
	})
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("job %s: %w", jobID, common.ErrSealQueued)
}

// check compares a returned seal with the evidence the device asked to seal.
func (s *Service) check(seal *evidence.Seal, hash string, snapshot []byte) error {
	if seal == nil {
		return common.NewValidationError("backend returned no seal")
	}
	if seal.EvidenceHash != hash {
		return fmt.Errorf("seal for job %s: %w", seal.JobID, common.ErrHashMismatch)
	}
	if len(seal.Snapshot) == 0 {
		seal.Snapshot = snapshot
	}
	if s.opts.Verifier == nil {
		return nil
	}
	return evidence.Verify(seal, s.opts.Verifier).Err()
}

// Finalize stores the seal and marks the job sealed in one transaction.
// Storing the same seal twice is a no-op.
func (s *Service) Finalize(ctx context.Context, seal *evidence.Seal, snapshot []byte) error {
	if err := s.check(seal, evidence.HashBytes(snapshot), snapshot); err != nil {
		return err
	}
	if err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		return finalize(ctx, r, seal)
	}); err != nil {
		return err
	}
	s.log.Info(ctx, "job sealed", "job", seal.JobID, "evidence_hash", seal.EvidenceHash, "sealed_by", seal.SealedBy)
	return nil
}

func finalize(ctx context.Context, r *store.Repos, seal *evidence.Seal) error {
	existing, err := r.Seals.Get(ctx, seal.JobID)
	switch {
	case err == nil && existing.EvidenceHash == seal.EvidenceHash:
		return nil
	case err == nil:
		return common.ErrAlreadySealed
	case !errors.Is(err, common.ErrorNotFound):
		return err
	}
	if err := r.Seals.Insert(ctx, seal); err != nil {
		return err
	}
	if err := r.Jobs.MarkSealed(ctx, seal.JobID, seal.EvidenceHash, seal.SealedAt); err != nil {
		return err
	}
	return r.Drafts.Delete(ctx, seal.JobID)
}

func sealedEvent(seal *evidence.Seal) notify.Event {
	return notify.Event{Kind: notify.KindSealed, EntityID: seal.JobID, Message: seal.EvidenceHash}
}

func (s *Service) Get(ctx context.Context, jobID string) (*evidence.Seal, error) {
	return s.store.Repos().Seals.Get(ctx, jobID)
}

func (s *Service) deliver(ctx context.Context, a *models.QueueAction) (syncqueue.Result, error) {
	var p models.SealPayload
	if err := a.Decode(&p); err != nil {
		return syncqueue.Result{}, common.NewValidationError(err.Error())
	}
	seal, err := s.remote.RequestSeal(ctx, a.EntityID, p.EvidenceHash, p.Snapshot)
	if err != nil {
		return syncqueue.Result{}, err
	}
	if err := s.check(seal, p.EvidenceHash, p.Snapshot); err != nil {
		return syncqueue.Result{}, err
	}
	ev := sealedEvent(seal)
	return syncqueue.Result{
		Commit: func(ctx context.Context, r *store.Repos) error {
			return finalize(ctx, r, seal)
		},
		Event: &ev,
	}, nil
}
