package domain

import (
	"fmt"
	"time"
)

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error converts the guard result to an error if not allowed.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// CanTransition evaluates an edit-driven status change.
// Rules:
//   - sealed and archived jobs never change through edits
//   - sealed is reached only by sealing, archived only by the archive scheduler
//   - status only advances forward
func CanTransition(from, to JobStatus) GuardResult {
	if !to.Valid() {
		return GuardResult{Reason: fmt.Sprintf("invalid target status %s", to)}
	}
	if from.Terminal() {
		return GuardResult{Reason: fmt.Sprintf("job is %s and cannot change status", from)}
	}
	if to == StatusSealed {
		return GuardResult{Reason: "sealed status is only reachable by sealing"}
	}
	if to == StatusArchived {
		return GuardResult{Reason: "archived status is only reachable by archiving"}
	}
	if from.Valid() && to < from {
		return GuardResult{Reason: fmt.Sprintf("status cannot move backward from %s to %s", from, to)}
	}
	return GuardResult{Allowed: true}
}

// ApplySeal moves the job into its sealed terminal state.
func ApplySeal(j *Job, evidenceHash string, sealedAt time.Time) {
	at := sealedAt.UTC()
	j.Status = StatusSealed
	j.SealedAt = &at
	j.EvidenceHash = evidenceHash
	j.LastUpdated = at
}

// ApplyArchive archives a sealed job. It returns false, leaving the job
// untouched, when the job is unsealed or already archived.
func ApplyArchive(j *Job, now time.Time) bool {
	if j.SealedAt == nil || j.ArchivedAt != nil {
		return false
	}
	at := now.UTC()
	j.ArchivedAt = &at
	j.Status = StatusArchived
	return true
}

// Archivable reports whether a sealed job has outlived the retention window.
func Archivable(j *Job, now time.Time, retention time.Duration) bool {
	return j.SealedAt != nil && j.ArchivedAt == nil && now.Sub(*j.SealedAt) > retention
}
