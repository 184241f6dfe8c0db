package models

import (
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

type Resolution string

const (
	Unresolved    Resolution = "unresolved"
	ResolveLocal  Resolution = "local"
	ResolveRemote Resolution = "remote"
)

func (r Resolution) Valid() bool {
	return r == ResolveLocal || r == ResolveRemote
}

// ConflictRecord captures both sides of a divergent job edit. LocalVersion is
// the base the device edited from; RemoteVersion is what the backend holds.
type ConflictRecord struct {
	ID            string      `json:"id"`
	JobID         string      `json:"jobId"`
	LocalVersion  int64       `json:"localVersion"`
	RemoteVersion int64       `json:"remoteVersion"`
	Local         *domain.Job `json:"local"`
	Remote        *domain.Job `json:"remote"`
	DetectedAt    time.Time   `json:"detectedAt"`
	Resolution    Resolution  `json:"resolution"`
	ResolvedAt    *time.Time  `json:"resolvedAt,omitempty"`
}
