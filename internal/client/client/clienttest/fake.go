// Package clienttest provides an in-memory backend implementing
// client.Client with the server's versioning, idempotency and sealing rules.
package clienttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/client"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/cryptox"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/rpc"
	"github.com/google/uuid"
)

type record struct {
	job          *domain.Job
	version      int64
	lastMutation string
}

type Remote struct {
	mu sync.Mutex

	// Offline makes every call fail with a transient network error.
	Offline bool

	// Errors forces the next call of a method (by name) to fail.
	Errors map[string]error

	// UploadBase prefixes presigned upload URLs.
	UploadBase string

	Signer   cryptox.Signer
	Verifier evidence.SignatureVerifier
	Now      func() time.Time

	jobs     map[string]*record
	contacts map[string]*domain.Contact
	photos   map[string]*domain.Photo
	seals    map[string]*evidence.Seal
	tokens   map[string][]string
	calls    map[string]int
}

var _ client.Client = (*Remote)(nil)

func NewRemote(signer cryptox.Signer, verifier evidence.SignatureVerifier) *Remote {
	return &Remote{
		Signer:   signer,
		Verifier: verifier,
		Now:      time.Now,
		Errors:   make(map[string]error),
		jobs:     make(map[string]*record),
		contacts: make(map[string]*domain.Contact),
		photos:   make(map[string]*domain.Photo),
		seals:    make(map[string]*evidence.Seal),
		tokens:   make(map[string][]string),
		calls:    make(map[string]int),
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}

// enter records the call and returns the injected failure, if any. The
// caller must hold r.mu.
func (r *Remote) enter(method string) error {
	r.calls[method]++
	if r.Offline {
		return fmt.Errorf("%w: offline", common.ErrTransientNetwork)
	}
	if err, ok := r.Errors[method]; ok {
		delete(r.Errors, method)
		return err
	}
	return nil
}

// Calls returns how many times method was invoked.
func (r *Remote) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *Remote) SetOffline(v bool) {
	r.mu.Lock()
	r.Offline = v
	r.mu.Unlock()
}

// Job returns the stored job with BaseVersion set to its current version.
func (r *Remote) Job(id string) (*domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return r.view(rec), true
}

func (r *Remote) view(rec *record) *domain.Job {
	j := clone(rec.job)
	j.BaseVersion = rec.version
	j.SyncStatus = domain.SyncSynced
	return j
}

func (r *Remote) Seal(jobID string) (*evidence.Seal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.seals[jobID]
	return clone(s), ok
}

func (r *Remote) Close() error { return nil }

func (r *Remote) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enter("Ping")
}

func (r *Remote) UpsertJob(_ context.Context, req *rpc.UpsertJobRequest) (*rpc.UpsertJobResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpsertJob"); err != nil {
		return nil, err
	}
	in := req.Job
	rec, exists := r.jobs[in.ID]
	switch {
	case exists && rec.lastMutation == req.MutationID:
		return &rpc.UpsertJobResponse{Applied: true, Version: rec.version}, nil
	case exists && rec.job.Sealed():
		return nil, common.ErrSealedJobImmutable
	case exists && req.BaseVersion != rec.version:
		return &rpc.UpsertJobResponse{Conflict: true, Version: rec.version, Remote: r.view(rec)}, nil
	case exists && !req.ResolvesConflict && in.Status != rec.job.Status:
		if g := domain.CanTransition(rec.job.Status, in.Status); !g.Allowed {
			return nil, common.NewValidationError(g.Reason)
		}
	}
	if !exists {
		rec = &record{}
		r.jobs[in.ID] = rec
	}
	rec.version++
	rec.lastMutation = req.MutationID
	rec.job = clone(in)
	rec.job.Photos = nil
	rec.job.LastUpdated = r.Now().UTC()
	return &rpc.UpsertJobResponse{Applied: true, Version: rec.version}, nil
}

func (r *Remote) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("GetJob"); err != nil {
		return nil, err
	}
	rec, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, common.ErrorNotFound)
	}
	return r.view(rec), nil
}

func (r *Remote) UpsertContact(_ context.Context, _ string, c *domain.Contact) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("UpsertContact"); err != nil {
		return time.Time{}, err
	}
	r.contacts[c.ID] = clone(c)
	return r.Now().UTC(), nil
}

func (r *Remote) RequestPhotoUpload(_ context.Context, req *rpc.RequestPhotoUploadRequest) (*rpc.RequestPhotoUploadResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RequestPhotoUpload"); err != nil {
		return nil, err
	}
	key := "photos/" + req.JobID + "/" + req.PhotoID
	if p, ok := r.photos[req.PhotoID]; ok && p.ContentHash == req.ContentHash {
		return &rpc.RequestPhotoUploadResponse{StorageKey: key, AlreadyUploaded: true}, nil
	}
	return &rpc.RequestPhotoUploadResponse{StorageKey: key, UploadURL: r.UploadBase + "/" + key}, nil
}

func (r *Remote) ConfirmPhotoUpload(_ context.Context, storageKey string, p *domain.Photo) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("ConfirmPhotoUpload"); err != nil {
		return "", err
	}
	r.photos[p.ID] = clone(p)
	return "s3://evidence/" + storageKey, nil
}

func (r *Remote) RequestSeal(_ context.Context, jobID, evidenceHash string, snapshot []byte) (*evidence.Seal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RequestSeal"); err != nil {
		return nil, err
	}
	if !evidence.ValidHash(evidenceHash) || evidence.HashBytes(snapshot) != evidenceHash {
		return nil, common.NewValidationError("evidence hash does not match snapshot")
	}
	if s, ok := r.seals[jobID]; ok {
		if s.EvidenceHash == evidenceHash {
			return clone(s), nil
		}
		return nil, common.ErrAlreadySealed
	}
	b, err := evidence.DecodeBundle(snapshot)
	if err != nil {
		return nil, common.NewValidationError(err.Error())
	}
	if err := evidence.CheckBundle(b).Err(); err != nil {
		return nil, err
	}
	sig, err := r.Signer.Sign(evidenceHash)
	if err != nil {
		return nil, err
	}
	now := r.Now().UTC()
	s := &evidence.Seal{
		JobID:        jobID,
		WorkspaceID:  b.Job.WorkspaceID,
		EvidenceHash: evidenceHash,
		Signature:    sig,
		Algorithm:    r.Signer.Algorithm(),
		SealedAt:     now,
		SealedBy:     "fake-authority",
		Snapshot:     append([]byte(nil), snapshot...),
	}
	r.seals[jobID] = s
	if rec, ok := r.jobs[jobID]; ok {
		domain.ApplySeal(rec.job, evidenceHash, now)
		rec.version++
	}
	delete(r.tokens, jobID)
	return clone(s), nil
}

func (r *Remote) VerifySeal(_ context.Context, jobID string) (evidence.VerifyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("VerifySeal"); err != nil {
		return evidence.VerifyResult{}, err
	}
	s, ok := r.seals[jobID]
	if !ok {
		return evidence.VerifyResult{}, fmt.Errorf("%w: %w", common.ErrValidation, common.ErrorNotFound)
	}
	return evidence.Verify(s, r.Verifier), nil
}

func (r *Remote) IssueAccessToken(_ context.Context, jobID string, ttl time.Duration) (string, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("IssueAccessToken"); err != nil {
		return "", time.Time{}, err
	}
	if _, sealed := r.seals[jobID]; sealed {
		return "", time.Time{}, common.ErrSealedJobImmutable
	}
	tok := uuid.NewString()
	r.tokens[jobID] = append(r.tokens[jobID], tok)
	return tok, r.Now().Add(ttl).UTC(), nil
}

func (r *Remote) RevokeAccessTokens(_ context.Context, jobID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter("RevokeAccessTokens"); err != nil {
		return 0, err
	}
	n := int64(len(r.tokens[jobID]))
	delete(r.tokens, jobID)
	return n, nil
}
