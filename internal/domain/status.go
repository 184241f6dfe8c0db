// Package domain holds the job evidence model shared by the device and the
// backend: jobs, photos, signatures, contacts and their closed status enums.
// It performs no I/O.
package domain

import (
	"fmt"
)

// JobStatus is the lifecycle position of a job. The zero value is invalid.
type JobStatus uint8

const (
	StatusUnknown JobStatus = iota
	StatusDraft
	StatusPending
	StatusInProgress
	StatusSubmitted
	StatusSealed
	StatusArchived
)

var jobStatusNames = [...]string{
	StatusUnknown:    "unknown",
	StatusDraft:      "draft",
	StatusPending:    "pending",
	StatusInProgress: "in_progress",
	StatusSubmitted:  "submitted",
	StatusSealed:     "sealed",
	StatusArchived:   "archived",
}

func (s JobStatus) String() string {
	if int(s) < len(jobStatusNames) {
		return jobStatusNames[s]
	}
	return fmt.Sprintf("JobStatus(%d)", uint8(s))
}

// Valid reports whether s is one of the declared statuses.
func (s JobStatus) Valid() bool {
	return s > StatusUnknown && s <= StatusArchived
}

// Terminal reports whether the job is sealed or archived.
func (s JobStatus) Terminal() bool {
	return s == StatusSealed || s == StatusArchived
}

func ParseJobStatus(v string) (JobStatus, error) {
	for i, name := range jobStatusNames {
		if name == v && JobStatus(i).Valid() {
			return JobStatus(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown job status %q", v)
}

func (s JobStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid job status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *JobStatus) UnmarshalText(b []byte) error {
	v, err := ParseJobStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SyncStatus tracks a local record against the backend.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncSyncing, SyncSynced, SyncFailed:
		return true
	}
	return false
}

// PhotoType classifies when a photo was taken relative to the work.
type PhotoType string

const (
	PhotoBefore   PhotoType = "before"
	PhotoDuring   PhotoType = "during"
	PhotoAfter    PhotoType = "after"
	PhotoEvidence PhotoType = "evidence"
)

func ParsePhotoType(v string) (PhotoType, error) {
	switch t := PhotoType(v); t {
	case PhotoBefore, PhotoDuring, PhotoAfter, PhotoEvidence:
		return t, nil
	}
	return "", fmt.Errorf("unknown photo type %q", v)
}

// ContactKind separates clients from technicians in the contacts store.
type ContactKind string

const (
	ContactClient     ContactKind = "client"
	ContactTechnician ContactKind = "technician"
)

func ParseContactKind(v string) (ContactKind, error) {
	switch k := ContactKind(v); k {
	case ContactClient, ContactTechnician:
		return k, nil
	}
	return "", fmt.Errorf("unknown contact kind %q", v)
}
