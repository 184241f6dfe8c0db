package conflicts_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/client/clienttest"
	"github.com/dmitrijs2005/fieldseal/internal/client/conflicts"
	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/notify"
	"github.com/dmitrijs2005/fieldseal/internal/client/services"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/client/syncqueue"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(k notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

type device struct {
	store     *store.Store
	queue     *syncqueue.Manager
	conflicts *conflicts.Service
	jobs      services.JobService
	events    *recorder
}

func newDevice(t *testing.T, remote *clienttest.Remote) *device {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC) }
	s, err := store.Open(context.Background(), store.Options{Path: filepath.Join(t.TempDir(), "device.db"), Now: now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	rec := &recorder{}
	log := logging.Discard()
	q := syncqueue.NewManager(s, syncqueue.Options{MaxRetries: 3, Clock: now}, rec, log)
	cs := conflicts.NewService(s, remote, q, log, now)
	return &device{store: s, queue: q, conflicts: cs, jobs: services.NewJobService(s, q, cs, remote, log, now), events: rec}
}

func (d *device) process(t *testing.T) syncqueue.Report {
	t.Helper()
	rep, err := d.queue.Process(context.Background())
	require.NoError(t, err)
	return rep
}

func (d *device) retitle(t *testing.T, jobID, title string) {
	t.Helper()
	j, err := d.jobs.Get(context.Background(), jobID)
	require.NoError(t, err)
	j.Title = title
	_, err = d.jobs.Update(context.Background(), j)
	require.NoError(t, err)
}

// diverged sets up one job edited on two devices. Device a has synced its
// edit; device b's edit is still queued against the old version.
func diverged(t *testing.T) (remote *clienttest.Remote, a, b *device, jobID string) {
	t.Helper()
	ctx := context.Background()
	remote = clienttest.NewRemote(nil, nil)
	a, b = newDevice(t, remote), newDevice(t, remote)

	j, err := a.jobs.Create(ctx, &domain.Job{WorkspaceID: "ws-1", Title: "Original", Client: "ACME"})
	require.NoError(t, err)
	require.Equal(t, 1, a.process(t).Synced)
	_, err = b.jobs.Pull(ctx, j.ID)
	require.NoError(t, err)

	a.retitle(t, j.ID, "Edited on A")
	b.retitle(t, j.ID, "Edited on B")
	require.Equal(t, 1, a.process(t).Synced)
	return remote, a, b, j.ID
}

func TestConcurrentEdits_RecordOneConflict(t *testing.T) {
	ctx := context.Background()
	_, _, b, jobID := diverged(t)

	rep := b.process(t)
	assert.Equal(t, 1, rep.Parked)
	rep = b.process(t)
	assert.Equal(t, 0, rep.Attempted)
	assert.Equal(t, 1, rep.Blocked)

	list, err := b.conflicts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	c := list[0]
	assert.Equal(t, jobID, c.JobID)
	assert.EqualValues(t, 1, c.LocalVersion)
	assert.EqualValues(t, 2, c.RemoteVersion)
	assert.Equal(t, "Edited on B", c.Local.Title)
	assert.Equal(t, "Edited on A", c.Remote.Title)
	assert.Equal(t, 1, b.events.count(notify.KindConflictDetected))
}

func TestResolveRemote_AdoptsBackendCopy(t *testing.T) {
	ctx := context.Background()
	_, _, b, jobID := diverged(t)
	b.process(t)
	list, err := b.conflicts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, b.conflicts.Resolve(ctx, list[0].ID, models.ResolveRemote))

	j, err := b.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "Edited on A", j.Title)
	assert.EqualValues(t, 2, j.BaseVersion)
	assert.Equal(t, domain.SyncSynced, j.SyncStatus)

	n, err := b.conflicts.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	pending, err := b.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Equal(t, 1, b.events.count(notify.KindConflictResolved))
}

func TestResolveLocal_OverwritesBackend(t *testing.T) {
	ctx := context.Background()
	remote, _, b, jobID := diverged(t)
	b.process(t)
	list, err := b.conflicts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, b.conflicts.Resolve(ctx, list[0].ID, models.ResolveLocal))
	rep := b.process(t)
	assert.Equal(t, 1, rep.Synced)

	got, ok := remote.Job(jobID)
	require.True(t, ok)
	assert.Equal(t, "Edited on B", got.Title)
	assert.EqualValues(t, 3, got.BaseVersion)

	j, err := b.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, j.BaseVersion)
	assert.Equal(t, domain.SyncSynced, j.SyncStatus)
}

func TestResolve_TwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	_, _, b, jobID := diverged(t)
	b.process(t)
	list, err := b.conflicts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	require.NoError(t, b.conflicts.Resolve(ctx, id, models.ResolveRemote))
	require.NoError(t, b.conflicts.Resolve(ctx, id, models.ResolveLocal))

	j, err := b.jobs.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "Edited on A", j.Title)
	assert.Equal(t, 1, b.events.count(notify.KindConflictResolved))
}

func TestResolve_RejectsUnknownResolution(t *testing.T) {
	_, _, b, _ := diverged(t)
	err := b.conflicts.Resolve(context.Background(), "whatever", models.Resolution("merge"))
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestCheck_DetectsDivergenceBeforeDelivery(t *testing.T) {
	ctx := context.Background()
	_, _, b, jobID := diverged(t)

	c, err := b.conflicts.Check(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.EqualValues(t, 2, c.RemoteVersion)

	again, err := b.conflicts.Check(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, 1, b.events.count(notify.KindConflictDetected))

	rep := b.process(t)
	assert.Equal(t, 0, rep.Attempted)
}

func TestCheck_CleanJobHasNoConflict(t *testing.T) {
	ctx := context.Background()
	remote := clienttest.NewRemote(nil, nil)
	a := newDevice(t, remote)
	j, err := a.jobs.Create(ctx, &domain.Job{WorkspaceID: "ws-1", Title: "Solo"})
	require.NoError(t, err)

	c, err := a.conflicts.Check(ctx, j.ID)
	require.NoError(t, err)
	assert.Nil(t, c)

	a.process(t)
	c, err = a.conflicts.Check(ctx, j.ID)
	require.NoError(t, err)
	assert.Nil(t, c)
}
