package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/accesstokens"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/photos"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/seals"
)

// RepositoryManager vends repositories bound to a connection or a
// transaction, so services can compose them inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Jobs(db dbx.DBTX) jobs.Repository
	Contacts(db dbx.DBTX) contacts.Repository
	Photos(db dbx.DBTX) photos.Repository
	Seals(db dbx.DBTX) seals.Repository
	AccessTokens(db dbx.DBTX) accesstokens.Repository
}
