package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/archive"
	"github.com/dmitrijs2005/fieldseal/internal/server/metrics"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/repomanager"
)

// archiveRepository feeds the archive scheduler from the jobs table and
// counts archived jobs.
type archiveRepository struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	metrics     *metrics.Metrics
}

func NewArchiveRepository(db *sql.DB, m repomanager.RepositoryManager, mt *metrics.Metrics) archive.Repository {
	return &archiveRepository{db: db, repomanager: m, metrics: mt}
}

func (r *archiveRepository) ListArchivable(ctx context.Context, sealedBefore time.Time) ([]string, error) {
	return r.repomanager.Jobs(r.db).ListArchivable(ctx, sealedBefore)
}

func (r *archiveRepository) MarkArchived(ctx context.Context, jobID string, at time.Time) (bool, error) {
	ok, err := r.repomanager.Jobs(r.db).MarkArchived(ctx, jobID, at)
	if ok {
		r.metrics.Archived(1)
	}
	return ok, err
}
