// Package models defines server-side records persisted in the database.
package models

import "github.com/dmitrijs2005/fieldseal/internal/domain"

// StoredJob is the authoritative copy of a job. Version increases by one on
// every applied mutation; LastMutationID is the queue action that produced it.
type StoredJob struct {
	Job            domain.Job
	Version        int64
	LastMutationID string
	UpdatedBy      string
}

// View returns the job as a device sees it: BaseVersion is the current
// server version and the record counts as synced.
func (s *StoredJob) View() *domain.Job {
	j := s.Job
	j.BaseVersion = s.Version
	j.SyncStatus = domain.SyncSynced
	j.Photos = append([]domain.Photo(nil), s.Job.Photos...)
	return &j
}

type StoredContact struct {
	Contact        domain.Contact
	LastMutationID string
}
