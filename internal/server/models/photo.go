package models

import (
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// PhotoObject is the metadata of a photo blob held in object storage.
type PhotoObject struct {
	ID          string
	JobID       string
	Type        domain.PhotoType
	TakenAt     time.Time
	GPS         *domain.GPS
	ContentHash string
	StorageKey  string
	Uploaded    bool
}

// Photo converts the object to the device model. remoteURL is the location
// handed back to devices.
func (p *PhotoObject) Photo(remoteURL string) domain.Photo {
	return domain.Photo{
		ID:          p.ID,
		JobID:       p.JobID,
		TakenAt:     p.TakenAt,
		GPS:         p.GPS,
		Type:        p.Type,
		RemoteURL:   remoteURL,
		ContentHash: p.ContentHash,
		SyncStatus:  domain.SyncSynced,
	}
}
