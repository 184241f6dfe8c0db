package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/cryptox"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"github.com/dmitrijs2005/fieldseal/internal/server/metrics"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/repomanager"
)

// SnapshotStore retains sealed snapshots outside the database.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, workspaceID, jobID string, snapshot []byte) error
	GetSnapshot(ctx context.Context, workspaceID, jobID string) ([]byte, error)
}

type SealOptions struct {
	Authority string
	// Snapshots is optional; without it only the database copy is kept.
	Snapshots SnapshotStore
	Metrics   *metrics.Metrics
}

// SealService is the signing authority: it re-derives the evidence hash,
// re-checks eligibility on the decoded bundle and signs.
type SealService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	signer      cryptox.Signer
	verifier    evidence.SignatureVerifier
	opts        SealOptions
	log         logging.Logger
	now         func() time.Time
}

func NewSealService(db *sql.DB, m repomanager.RepositoryManager, signer cryptox.Signer,
	verifier evidence.SignatureVerifier, opts SealOptions, log logging.Logger) *SealService {
	return &SealService{
		db:          db,
		repomanager: m,
		signer:      signer,
		verifier:    verifier,
		opts:        opts,
		log:         log.With("module", "seal"),
		now:         time.Now,
	}
}

// RequestSeal seals jobID. Repeating a request with the same hash returns the
// existing seal; a different hash for a sealed job fails with
// common.ErrAlreadySealed.
func (s *SealService) RequestSeal(ctx context.Context, p auth.Principal, jobID, evidenceHash string, snapshot []byte) (*evidence.Seal, error) {
	if !evidence.ValidHash(evidenceHash) || evidence.HashBytes(snapshot) != evidenceHash {
		s.opts.Metrics.Seal(metrics.SealRejected)
		return nil, common.NewValidationError("evidence hash does not match snapshot")
	}
	bundle, err := evidence.DecodeBundle(snapshot)
	if err != nil {
		s.opts.Metrics.Seal(metrics.SealRejected)
		return nil, common.NewValidationError(err.Error())
	}
	if bundle.Job.ID != jobID || bundle.Job.WorkspaceID != p.WorkspaceID {
		s.opts.Metrics.Seal(metrics.SealRejected)
		return nil, common.NewValidationError("snapshot does not describe this job")
	}

	var seal *evidence.Seal
	existing := false
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		job, err := s.repomanager.Jobs(tx).GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Job.WorkspaceID != p.WorkspaceID {
			return common.ErrorNotFound
		}

		prev, err := s.repomanager.Seals(tx).Get(ctx, jobID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
		case err != nil:
			return err
		case prev.EvidenceHash == evidenceHash:
			seal, existing = prev, true
			return nil
		default:
			return common.ErrAlreadySealed
		}
		if job.Job.Sealed() {
			return common.ErrAlreadySealed
		}

		if err := s.checkBundle(ctx, tx, bundle); err != nil {
			return err
		}

		sig, err := s.signer.Sign(evidenceHash)
		if err != nil {
			return fmt.Errorf("sign evidence: %w", err)
		}
		seal = &evidence.Seal{
			JobID:        jobID,
			WorkspaceID:  p.WorkspaceID,
			EvidenceHash: evidenceHash,
			Signature:    sig,
			Algorithm:    s.signer.Algorithm(),
			SealedAt:     s.now().UTC(),
			SealedBy:     s.opts.Authority,
			Snapshot:     append([]byte(nil), snapshot...),
		}
		if err := s.repomanager.Seals(tx).Insert(ctx, seal); err != nil {
			return err
		}
		if _, err := s.repomanager.Jobs(tx).MarkSealed(ctx, jobID, evidenceHash, seal.SealedAt); err != nil {
			return err
		}
		revoked, err := s.repomanager.AccessTokens(tx).RevokeForJob(ctx, jobID, seal.SealedAt)
		if err != nil {
			return err
		}
		if revoked > 0 {
			s.log.Info(ctx, "share links revoked by seal", "job_id", jobID, "count", revoked)
		}
		return nil
	})
	if err != nil {
		s.opts.Metrics.Seal(metrics.SealRejected)
		return nil, err
	}
	if existing {
		s.opts.Metrics.Seal(metrics.SealExisting)
		return seal, nil
	}

	s.opts.Metrics.Seal(metrics.SealIssued)
	s.log.Info(ctx, "job sealed", "job_id", jobID, "hash", evidenceHash, "algorithm", seal.Algorithm)
	s.retain(ctx, seal)
	return seal, nil
}

// checkBundle re-runs the content rules and requires every bundled photo to
// be uploaded with the same content hash.
func (s *SealService) checkBundle(ctx context.Context, tx dbx.DBTX, b evidence.Bundle) error {
	if err := evidence.CheckBundle(b).Err(); err != nil {
		return err
	}
	objs, err := s.repomanager.Photos(tx).ListByJob(ctx, b.Job.ID)
	if err != nil {
		return err
	}
	uploaded := make(map[string]string, len(objs))
	for _, o := range objs {
		if o.Uploaded {
			uploaded[o.ID] = o.ContentHash
		}
	}
	var reasons []string
	for _, ph := range b.Photos {
		if h, ok := uploaded[ph.ID]; !ok || h != ph.ContentHash {
			reasons = append(reasons, fmt.Sprintf("photo %s is not uploaded", ph.ID))
		}
	}
	if len(reasons) > 0 {
		return common.NewValidationError(reasons...)
	}
	return nil
}

// retain copies the snapshot to object storage. The seal is already
// committed, so failures are only logged.
func (s *SealService) retain(ctx context.Context, seal *evidence.Seal) {
	if s.opts.Snapshots == nil {
		return
	}
	if err := s.opts.Snapshots.PutSnapshot(context.WithoutCancel(ctx), seal.WorkspaceID, seal.JobID, seal.Snapshot); err != nil {
		s.log.Warn(ctx, "snapshot retention failed", "job_id", seal.JobID, "error", err)
	}
}

// VerifySeal recomputes the hash of the stored snapshot and checks the
// signature. When a retained copy exists in object storage it must verify
// as well.
func (s *SealService) VerifySeal(ctx context.Context, p auth.Principal, jobID string) (evidence.VerifyResult, error) {
	seal, err := s.repomanager.Seals(s.db).Get(ctx, jobID)
	if err != nil {
		return evidence.VerifyResult{}, err
	}
	if seal.WorkspaceID != p.WorkspaceID {
		return evidence.VerifyResult{}, common.ErrorNotFound
	}
	res := s.verify(ctx, seal)
	s.opts.Metrics.Verification(string(res.Status))
	return res, nil
}

func (s *SealService) verify(ctx context.Context, seal *evidence.Seal) evidence.VerifyResult {
	res := evidence.Verify(seal, s.verifier)
	if !res.IsValid || s.opts.Snapshots == nil {
		return res
	}
	retained, err := s.opts.Snapshots.GetSnapshot(ctx, seal.WorkspaceID, seal.JobID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "retained snapshot unavailable", "job_id", seal.JobID, "error", err)
		}
		return res
	}
	copySeal := *seal
	copySeal.Snapshot = retained
	if copyRes := evidence.Verify(&copySeal, s.verifier); !copyRes.IsValid {
		copyRes.Detail = "retained snapshot differs from sealed record"
		return copyRes
	}
	return res
}

// VerifyPublic verifies a seal without a principal; used by share links.
func (s *SealService) VerifyPublic(ctx context.Context, jobID string) (evidence.VerifyResult, error) {
	seal, err := s.repomanager.Seals(s.db).Get(ctx, jobID)
	if err != nil {
		return evidence.VerifyResult{}, err
	}
	res := s.verify(ctx, seal)
	s.opts.Metrics.Verification(string(res.Status))
	return res, nil
}

// PublicKeyPEM returns the authority key for offline verification. Legacy
// HMAC authorities have no public key and yield common.ErrorNotFound.
func (s *SealService) PublicKeyPEM() (algorithm string, pem []byte, err error) {
	rs, ok := s.signer.(*cryptox.RSASigner)
	if !ok {
		return s.signer.Algorithm(), nil, common.ErrorNotFound
	}
	pem, err = cryptox.EncodePublicKeyPEM(rs.Public())
	return rs.Algorithm(), pem, err
}
