package evidence

import (
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
)

type VerifyStatus string

const (
	StatusValid            VerifyStatus = "VALID"
	StatusHashMismatch     VerifyStatus = "HASH_MISMATCH"
	StatusInvalidSignature VerifyStatus = "INVALID_SIGNATURE"
)

// SignatureVerifier checks a detached signature over an evidence hash.
type SignatureVerifier interface {
	VerifySignature(algorithm, evidenceHash, signature string) error
}

type VerifyResult struct {
	Status       VerifyStatus `json:"status"`
	IsValid      bool         `json:"isValid"`
	EvidenceHash string       `json:"evidenceHash"`
	ComputedHash string       `json:"computedHash"`
	SealedAt     time.Time    `json:"sealedAt"`
	SealedBy     string       `json:"sealedBy"`
	Detail       string       `json:"detail,omitempty"`
}

// Err maps a failed result onto the error taxonomy.
func (r VerifyResult) Err() error {
	switch r.Status {
	case StatusValid:
		return nil
	case StatusHashMismatch:
		return common.ErrHashMismatch
	default:
		return common.ErrInvalidSignature
	}
}

// Verify recomputes the snapshot hash and, only when it matches the stored
// evidence hash, checks the signature.
func Verify(s *Seal, sv SignatureVerifier) VerifyResult {
	res := VerifyResult{
		EvidenceHash: s.EvidenceHash,
		ComputedHash: HashBytes(s.Snapshot),
		SealedAt:     s.SealedAt,
		SealedBy:     s.SealedBy,
	}
	if res.ComputedHash != s.EvidenceHash {
		res.Status = StatusHashMismatch
		return res
	}
	if err := sv.VerifySignature(s.Algorithm, s.EvidenceHash, s.Signature); err != nil {
		res.Status = StatusInvalidSignature
		res.Detail = err.Error()
		return res
	}
	res.Status = StatusValid
	res.IsValid = true
	return res
}
