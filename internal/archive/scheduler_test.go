package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Job
	listErr error
}

func (m *memRepo) ListArchivable(_ context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var ids []string
	for id, j := range m.jobs {
		if j.SealedAt != nil && j.ArchivedAt == nil && j.SealedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memRepo) MarkArchived(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	return domain.ApplyArchive(j, at), nil
}

func sealedAt(t time.Time) *domain.Job {
	return &domain.Job{Status: domain.StatusSealed, SealedAt: &t}
}

func TestRunOnce_ArchivesOnlyExpiredSeals(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	repo := &memRepo{jobs: map[string]*domain.Job{
		"old":      sealedAt(now.Add(-181 * 24 * time.Hour)),
		"fresh":    sealedAt(now.Add(-179 * 24 * time.Hour)),
		"unsealed": {Status: domain.StatusSubmitted},
	}}
	s := NewScheduler(repo, logging.Discard(), WithClock(func() time.Time { return now }))

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusArchived, repo.jobs["old"].Status)
	assert.True(t, repo.jobs["old"].ArchivedAt.Equal(now))
	assert.Nil(t, repo.jobs["fresh"].ArchivedAt)
	assert.Nil(t, repo.jobs["unsealed"].ArchivedAt)

	n, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnce_PropagatesListError(t *testing.T) {
	repo := &memRepo{listErr: errors.New("db down")}
	s := NewScheduler(repo, logging.Discard())
	_, err := s.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestRun_StopsOnCancel(t *testing.T) {
	now := time.Now()
	repo := &memRepo{jobs: map[string]*domain.Job{"a": sealedAt(now.Add(-200 * 24 * time.Hour))}}
	s := NewScheduler(repo, logging.Discard(), WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.jobs["a"].ArchivedAt != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
