package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/repotest"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func action(id string, typ models.ActionType, entity string) *models.QueueAction {
	return &models.QueueAction{
		ID:    id, Type: typ, EntityID: entity, Payload: []byte(`{}`),
		State: models.StatePending, CreatedAt: now, UpdatedAt: now,
	}
}

func TestInsertAssignsIncreasingSeq(t *testing.T) {
	r := NewSQLiteRepository(repotest.Open(t))
	ctx := context.Background()

	a := action("a", models.ActionCreateJob, "j1")
	b := action("b", models.ActionUpdateClient, "c1")
	c := action("c", models.ActionUpdateJob, "j1")
	for _, x := range []*models.QueueAction{a, b, c} {
		require.NoError(t, r.Insert(ctx, x))
	}
	assert.Less(t, a.Seq, b.Seq)
	assert.Less(t, b.Seq, c.Seq)

	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	jobs, err := r.ListByEntity(ctx, models.EntityJob, "j1")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	n, err := r.CountByEntity(ctx, models.EntityContact, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	has, err := r.HasType(ctx, models.ActionSealJob, "j1")
	require.NoError(t, err)
	assert.False(t, has)

	assert.Error(t, r.Insert(ctx, action("a", models.ActionCreateJob, "j9")), "ids are unique")
}

func TestUpdateAndRecover(t *testing.T) {
	r := NewSQLiteRepository(repotest.Open(t))
	ctx := context.Background()

	a := action("a", models.ActionSealJob, "j1")
	require.NoError(t, r.Insert(ctx, a))

	next := now.Add(time.Minute)
	a.State = models.StateInFlight
	a.RetryCount = 2
	a.NextAttemptAt = &next
	a.LastError = "timeout"
	require.NoError(t, r.Update(ctx, a))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StateInFlight, got.State)
	assert.Equal(t, 2, got.RetryCount)
	assert.True(t, got.NextAttemptAt.Equal(next))
	assert.Equal(t, "timeout", got.LastError)

	n, err := r.RecoverInFlight(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	got, err = r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StateRetrying, got.State)

	assert.ErrorIs(t, r.Update(ctx, action("zzz", models.ActionSealJob, "j1")), common.ErrorNotFound)
}

func TestDeleteByEntity(t *testing.T) {
	r := NewSQLiteRepository(repotest.Open(t))
	ctx := context.Background()

	require.NoError(t, r.Insert(ctx, action("a", models.ActionCreateJob, "j1")))
	require.NoError(t, r.Insert(ctx, action("b", models.ActionUpdateJob, "j1")))
	require.NoError(t, r.Insert(ctx, action("c", models.ActionUpdateJob, "j2")))

	n, err := r.DeleteByEntity(ctx, models.EntityJob, "j1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	total, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	require.NoError(t, r.Delete(ctx, "c"))
	_, err = r.Get(ctx, "c")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestInsertAhead(t *testing.T) {
	r := NewSQLiteRepository(repotest.Open(t))
	ctx := context.Background()

	for _, x := range []*models.QueueAction{
		action("u1", models.ActionUpdateJob, "j1"),
		action("other", models.ActionUpdateJob, "j2"),
		action("u2", models.ActionSealJob, "j1"),
		action("contact", models.ActionUpdateClient, "j1"),
	} {
		require.NoError(t, r.Insert(ctx, x))
	}

	require.NoError(t, r.InsertAhead(ctx, action("retry", models.ActionCreateJob, "j1")))

	lane, err := r.ListByEntity(ctx, models.EntityJob, "j1")
	require.NoError(t, err)
	ids := make([]string, 0, len(lane))
	for _, a := range lane {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"retry", "u1", "u2"}, ids)

	contacts, err := r.ListByEntity(ctx, models.EntityContact, "j1")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Less(t, contacts[0].Seq, lane[0].Seq, "other lanes keep their place")
}
