package store

import (
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/contacts"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/failed"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/jobs"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/photos"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/queue"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/seals"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
)

// Repos is the set of device repositories bound to one DBTX. Inside WithTx
// every repository shares the transaction.
type Repos struct {
	Jobs      jobs.Repository
	Photos    photos.Repository
	Queue     queue.Repository
	Failed    failed.Repository
	Conflicts conflicts.Repository
	Seals     seals.Repository
	Drafts    drafts.Repository
	Contacts  contacts.Repository
	Metadata  metadata.Repository
}

func NewRepos(db dbx.DBTX) *Repos {
	return &Repos{
		Jobs:      jobs.NewSQLiteRepository(db),
		Photos:    photos.NewSQLiteRepository(db),
		Queue:     queue.NewSQLiteRepository(db),
		Failed:    failed.NewSQLiteRepository(db),
		Conflicts: conflicts.NewSQLiteRepository(db),
		Seals:     seals.NewSQLiteRepository(db),
		Drafts:    drafts.NewSQLiteRepository(db),
		Contacts:  contacts.NewSQLiteRepository(db),
		Metadata:  metadata.NewSQLiteRepository(db),
	}
}
