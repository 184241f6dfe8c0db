// Package archive hides sealed jobs once they outlive the retention window.
package archive

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/logging"
)

const DefaultRetention = 180 * 24 * time.Hour

// Repository is implemented by both the device store and the server store.
// MarkArchived must only touch a row that is sealed and not yet archived,
// reporting false otherwise.
type Repository interface {
	ListArchivable(ctx context.Context, sealedBefore time.Time) ([]string, error)
	MarkArchived(ctx context.Context, jobID string, at time.Time) (bool, error)
}

type Scheduler struct {
	repo      Repository
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       logging.Logger
}

type Option func(*Scheduler)

func WithRetention(d time.Duration) Option { return func(s *Scheduler) { s.retention = d } }
func WithInterval(d time.Duration) Option  { return func(s *Scheduler) { s.interval = d } }
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(repo Repository, log logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:      repo,
		retention: DefaultRetention,
		interval:  time.Hour,
		now:       time.Now,
		log:       log,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RunOnce archives every job sealed more than the retention window ago and
// returns how many rows it changed.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	ids, err := s.repo.ListArchivable(ctx, now.Add(-s.retention))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		ok, err := s.repo.MarkArchived(ctx, id, now)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.log.Info(ctx, "jobs archived", "count", n)
	}
	return n, nil
}

// Run calls RunOnce immediately and then on every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error(ctx, "archive pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
