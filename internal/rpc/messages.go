package rpc

import (
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
)

// StatusOK is the Ping status of a healthy server.
const StatusOK = "OK"

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

// UpsertJobRequest carries a full job snapshot. MutationID makes redelivery
// of the same queued action a no-op on the server.
type UpsertJobRequest struct {
	MutationID       string      `json:"mutationId"`
	Job              *domain.Job `json:"job"`
	BaseVersion      int64       `json:"baseVersion"`
	ResolvesConflict bool        `json:"resolvesConflict,omitempty"`
}

// UpsertJobResponse reports Conflict with the server copy in Remote when
// BaseVersion no longer matches.
type UpsertJobResponse struct {
	Applied  bool        `json:"applied"`
	Version  int64       `json:"version"`
	Conflict bool        `json:"conflict,omitempty"`
	Remote   *domain.Job `json:"remote,omitempty"`
}

type GetJobRequest struct {
	JobID string `json:"jobId"`
}

type GetJobResponse struct {
	Job *domain.Job `json:"job"`
}

type UpsertContactRequest struct {
	MutationID string          `json:"mutationId"`
	Contact    *domain.Contact `json:"contact"`
}

type UpsertContactResponse struct {
	Applied   bool      `json:"applied"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type RequestPhotoUploadRequest struct {
	JobID       string `json:"jobId"`
	PhotoID     string `json:"photoId"`
	ContentHash string `json:"contentHash"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// RequestPhotoUploadResponse leaves UploadURL empty when the server already
// holds an object with the same content hash.
type RequestPhotoUploadResponse struct {
	StorageKey      string `json:"storageKey"`
	UploadURL       string `json:"uploadUrl,omitempty"`
	AlreadyUploaded bool   `json:"alreadyUploaded,omitempty"`
}

type ConfirmPhotoUploadRequest struct {
	StorageKey string        `json:"storageKey"`
	Photo      *domain.Photo `json:"photo"`
}

type ConfirmPhotoUploadResponse struct {
	RemoteURL string `json:"remoteUrl"`
}

type RequestSealRequest struct {
	JobID        string `json:"jobId"`
	EvidenceHash string `json:"evidenceHash"`
	Snapshot     []byte `json:"snapshot"`
}

type RequestSealResponse struct {
	Seal *evidence.Seal `json:"seal"`
}

type VerifySealRequest struct {
	JobID string `json:"jobId"`
}

type VerifySealResponse struct {
	Result evidence.VerifyResult `json:"result"`
}

type IssueAccessTokenRequest struct {
	JobID      string `json:"jobId"`
	TTLSeconds int64  `json:"ttlSeconds,omitempty"`
}

type IssueAccessTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RevokeAccessTokensRequest struct {
	JobID string `json:"jobId"`
}

type RevokeAccessTokensResponse struct {
	Revoked int64 `json:"revoked"`
}
