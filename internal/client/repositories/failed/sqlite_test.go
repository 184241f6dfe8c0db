package failed

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

func TestInsert_IsExactlyOnce(t *testing.T) {
	r := NewSQLiteRepository(repotest.Open(t))
	ctx := context.Background()
	at := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	f := &models.FailedAction{ID: "a1", Type: models.ActionUpdateJob, EntityID: "j1", Payload: []byte(`{"x":1}`),
		RetryCount: 6, LastError: "503", CreatedAt: at, FailedAt: at}
	ok, err := r.Insert(ctx, f)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Insert(ctx, f)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := r.CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(got.Payload))
	assert.Equal(t, 6, got.RetryCount)
}

func TestAcknowledgeAndDelete(t *testing.T) {
	r := NewSQLiteRepository(repotest.Open(t))
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"a", "b"} {
		_, err := r.Insert(ctx, &models.FailedAction{ID: id, Type: models.ActionSealJob, EntityID: "j", Payload: []byte(`{}`), CreatedAt: now, FailedAt: now})
		require.NoError(t, err)
	}
	require.NoError(t, r.Acknowledge(ctx, "a"))
	assert.ErrorIs(t, r.Acknowledge(ctx, "zzz"), common.ErrorNotFound)

	open, err := r.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "b", open[0].ID)

	all, err := r.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, r.Delete(ctx, "b"))
	n, err := r.CountOpen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountByEntity(t *testing.T) {
	r := NewSQLiteRepository(repotest.Open(t))
	ctx := context.Background()
	now := time.Now()

	for _, f := range []*models.FailedAction{
		{ID: "a", Type: models.ActionCreateJob, EntityID: "x", Acknowledged: true},
		{ID: "b", Type: models.ActionUploadPhoto, EntityID: "x"},
		{ID: "c", Type: models.ActionCreateClient, EntityID: "x"},
	} {
		f.Payload, f.CreatedAt, f.FailedAt = []byte(`{}`), now, now
		_, err := r.Insert(ctx, f)
		require.NoError(t, err)
	}

	n, err := r.CountByEntity(ctx, models.EntityJob, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = r.CountByEntity(ctx, models.EntityContact, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = r.CountByEntity(ctx, models.EntityJob, "y")
	require.NoError(t, err)
	assert.Zero(t, n)
}
