// Package seals stores the append-only seal records. The schema rejects
// updates and deletes.
package seals

import (
	"context"

	"github.com/dmitrijs2005/fieldseal/internal/evidence"
)

type Repository interface {
	// Insert returns common.ErrAlreadySealed when the job has a seal.
	Insert(ctx context.Context, s *evidence.Seal) error
	Get(ctx context.Context, jobID string) (*evidence.Seal, error)
}
