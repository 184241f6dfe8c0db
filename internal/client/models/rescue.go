package models

import (
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
)

const RescueFormat = 1

// RescuePayload is everything a destructive schema upgrade must carry over.
type RescuePayload struct {
	Format        int               `json:"format"`
	SchemaVersion int64             `json:"schemaVersion"`
	DeviceID      string            `json:"deviceId"`
	CreatedAt     time.Time         `json:"createdAt"`
	Queue         []*QueueAction    `json:"queue"`
	Failed        []*FailedAction   `json:"failed"`
	Jobs          []*domain.Job     `json:"jobs"`
	Contacts      []*domain.Contact `json:"contacts"`
	Drafts        []*Draft          `json:"drafts"`
	Conflicts     []*ConflictRecord `json:"conflicts"`
	Seals         []*evidence.Seal  `json:"seals"`
}

func (p *RescuePayload) Empty() bool {
	return len(p.Queue) == 0 && len(p.Failed) == 0 && len(p.Jobs) == 0 &&
		len(p.Contacts) == 0 && len(p.Drafts) == 0 && len(p.Conflicts) == 0 && len(p.Seals) == 0
}
