package evidence

import "time"

// Supported signature algorithms.
const (
	AlgRSASHA256  = "RSA-SHA256"
	AlgHMACSHA256 = "HMAC-SHA256"
)

// Seal binds an evidence snapshot to a point in time. It is created once per
// job and never changed.
type Seal struct {
	JobID        string    `json:"jobId"`
	WorkspaceID  string    `json:"workspaceId"`
	EvidenceHash string    `json:"evidenceHash"`
	Signature    string    `json:"signature"`
	Algorithm    string    `json:"algorithm"`
	SealedAt     time.Time `json:"sealedAt"`
	SealedBy     string    `json:"sealedBy"`
	Snapshot     []byte    `json:"snapshot,omitempty"`
}
