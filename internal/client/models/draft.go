package models

import (
	"encoding/json"
	"time"
)

// Draft holds an in-progress form edit that has not been applied to its job.
type Draft struct {
	JobID     string          `json:"jobId"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
