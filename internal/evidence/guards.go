package evidence

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// Seal eligibility reasons.
const (
	ReasonAlreadySealed  = "job is already sealed"
	ReasonNoPhotos       = "at least one photo is required"
	ReasonNoSignature    = "job must have a signature"
	ReasonNoSignerName   = "signature must have a signer name"
	reasonStatusFormat   = "job status %s is not sealable"
	reasonUnsyncedPhotos = "all photos must be synced (%d pending)"
)

// DefaultSealable is the sealable status set used when none is configured.
var DefaultSealable = []domain.JobStatus{domain.StatusSubmitted}

// Eligibility is the outcome of CanSeal. Reasons accumulate; every failed
// rule is reported at once.
type Eligibility struct {
	Allowed bool
	Reasons []string
}

// Err returns a *common.ValidationError, or common.ErrAlreadySealed when the
// only problem is that the job is sealed.
func (e Eligibility) Err() error {
	if e.Allowed {
		return nil
	}
	if len(e.Reasons) == 1 && e.Reasons[0] == ReasonAlreadySealed {
		return common.ErrAlreadySealed
	}
	return common.NewValidationError(e.Reasons...)
}

// CanSeal evaluates whether j may be sealed.
// Rules:
//   - status is in the sealable set and the job is not already sealed
//   - at least one photo exists
//   - a signature exists with a non-empty signer name
//   - every photo is synced
func CanSeal(j *domain.Job, sealable []domain.JobStatus) Eligibility {
	if len(sealable) == 0 {
		sealable = DefaultSealable
	}
	var reasons []string

	switch {
	case j.Sealed():
		reasons = append(reasons, ReasonAlreadySealed)
	case !slices.Contains(sealable, j.Status):
		reasons = append(reasons, fmt.Sprintf(reasonStatusFormat, j.Status))
	}

	if len(j.Photos) == 0 {
		reasons = append(reasons, ReasonNoPhotos)
	}

	switch {
	case j.Signature == nil:
		reasons = append(reasons, ReasonNoSignature)
	case strings.TrimSpace(j.Signature.SignerName) == "":
		reasons = append(reasons, ReasonNoSignerName)
	}

	if n := j.PendingPhotos(); n > 0 {
		reasons = append(reasons, fmt.Sprintf(reasonUnsyncedPhotos, n))
	}

	return Eligibility{Allowed: len(reasons) == 0, Reasons: reasons}
}

// CheckBundle re-evaluates the content rules on a decoded snapshot. The
// backend uses it before signing, since it never sees device sync state.
func CheckBundle(b Bundle) Eligibility {
	var reasons []string
	if b.Version != BundleVersion {
		reasons = append(reasons, fmt.Sprintf("unsupported bundle version %d", b.Version))
	}
	if b.Job.ID == "" {
		reasons = append(reasons, "bundle has no job id")
	}
	if len(b.Photos) == 0 {
		reasons = append(reasons, ReasonNoPhotos)
	}
	if strings.TrimSpace(b.Signature.SignerName) == "" {
		if b.Signature.SignedAt == "" {
			reasons = append(reasons, ReasonNoSignature)
		} else {
			reasons = append(reasons, ReasonNoSignerName)
		}
	}
	return Eligibility{Allowed: len(reasons) == 0, Reasons: reasons}
}
