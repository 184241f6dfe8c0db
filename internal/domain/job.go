package domain

import (
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
)

type GPS struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Photo struct {
	ID          string     `json:"id"`
	JobID       string     `json:"jobId"`
	TakenAt     time.Time  `json:"takenAt"`
	GPS         *GPS       `json:"gps,omitempty"`
	Type        PhotoType  `json:"type"`
	LocalRef    string     `json:"localRef,omitempty"`
	RemoteURL   string     `json:"remoteUrl,omitempty"`
	ContentHash string     `json:"contentHash,omitempty"`
	SyncStatus  SyncStatus `json:"syncStatus"`
}

type Signature struct {
	SignerName string    `json:"signerName"`
	SignedAt   time.Time `json:"signedAt"`
	ImageRef   string    `json:"imageRef,omitempty"`
	ImageHash  string    `json:"imageHash,omitempty"`
}

// Job is a unit of field work together with the evidence captured for it.
// BaseVersion is the backend version the current local edit was forked from.
type Job struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspaceId"`
	Status       JobStatus  `json:"status"`
	Title        string     `json:"title"`
	Client       string     `json:"client"`
	Technician   string     `json:"technician"`
	Address      string     `json:"address,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	WorkSummary  string     `json:"workSummary,omitempty"`
	ScheduledAt  *time.Time `json:"scheduledAt,omitempty"`
	Photos       []Photo    `json:"photos,omitempty"`
	Signature    *Signature `json:"signature,omitempty"`
	SealedAt     *time.Time `json:"sealedAt,omitempty"`
	EvidenceHash string     `json:"evidenceHash,omitempty"`
	ArchivedAt   *time.Time `json:"archivedAt,omitempty"`
	SyncStatus   SyncStatus `json:"syncStatus"`
	BaseVersion  int64      `json:"baseVersion"`
	LastUpdated  time.Time  `json:"lastUpdated"`
}

func (j *Job) Sealed() bool {
	return j.SealedAt != nil || j.Status.Terminal()
}

func (j *Job) Archived() bool {
	return j.ArchivedAt != nil
}

// EnsureMutable rejects any field edit on a sealed or archived job.
func (j *Job) EnsureMutable() error {
	if j.Sealed() {
		return common.ErrSealedJobImmutable
	}
	return nil
}

// PendingPhotos counts photos not yet confirmed by the backend.
func (j *Job) PendingPhotos() int {
	n := 0
	for _, p := range j.Photos {
		if p.SyncStatus != SyncSynced {
			n++
		}
	}
	return n
}

// Contact is a client or technician record.
type Contact struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspaceId"`
	Kind        ContactKind `json:"kind"`
	Name        string      `json:"name"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	SyncStatus  SyncStatus  `json:"syncStatus"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}
