package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_TextRoundTrip(t *testing.T) {
	for s := StatusDraft; s <= StatusArchived; s++ {
		b, err := s.MarshalText()
		require.NoError(t, err)

		var got JobStatus
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}

	_, err := StatusUnknown.MarshalText()
	assert.Error(t, err)

	_, err = ParseJobStatus("unknown")
	assert.Error(t, err)
	assert.Equal(t, "JobStatus(42)", JobStatus(42).String())
}

func TestJobStatus_JSONField(t *testing.T) {
	b, err := json.Marshal(struct {
		S JobStatus `json:"s"`
	}{StatusInProgress})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"in_progress"}`, string(b))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"forward", StatusDraft, StatusInProgress, true},
		{"same", StatusPending, StatusPending, true},
		{"fresh job", StatusUnknown, StatusDraft, true},
		{"backward", StatusSubmitted, StatusPending, false},
		{"edit into sealed", StatusSubmitted, StatusSealed, false},
		{"edit into archived", StatusSubmitted, StatusArchived, false},
		{"out of sealed", StatusSealed, StatusSubmitted, false},
		{"out of archived", StatusArchived, StatusArchived, false},
		{"invalid target", StatusDraft, StatusUnknown, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := CanTransition(tc.from, tc.to)
			assert.Equal(t, tc.allowed, r.Allowed, r.Reason)
			if tc.allowed {
				assert.NoError(t, r.Error())
			} else {
				assert.Error(t, r.Error())
			}
		})
	}
}

func TestApplySealAndArchive(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	j := &Job{ID: "J1", Status: StatusSubmitted}

	require.NoError(t, j.EnsureMutable())
	assert.False(t, ApplyArchive(j, now), "unsealed jobs are never archived")
	assert.Equal(t, StatusSubmitted, j.Status)

	ApplySeal(j, "ab", now)
	assert.Equal(t, StatusSealed, j.Status)
	assert.True(t, errors.Is(j.EnsureMutable(), common.ErrSealedJobImmutable))

	retention := 180 * 24 * time.Hour
	assert.False(t, Archivable(j, now.Add(retention), retention))
	later := now.Add(retention + time.Second)
	assert.True(t, Archivable(j, later, retention))

	assert.True(t, ApplyArchive(j, later))
	assert.Equal(t, StatusArchived, j.Status)
	assert.True(t, j.Archived())
	assert.Equal(t, "ab", j.EvidenceHash)
	assert.True(t, j.SealedAt.Equal(now))

	assert.False(t, ApplyArchive(j, later.Add(time.Hour)), "second archive is a no-op")
	assert.True(t, j.ArchivedAt.Equal(later))
}

func TestPendingPhotos(t *testing.T) {
	j := &Job{Photos: []Photo{{SyncStatus: SyncSynced}, {SyncStatus: SyncPending}, {SyncStatus: SyncFailed}}}
	assert.Equal(t, 2, j.PendingPhotos())
}

func TestParseEnums(t *testing.T) {
	pt, err := ParsePhotoType("evidence")
	require.NoError(t, err)
	assert.Equal(t, PhotoEvidence, pt)
	_, err = ParsePhotoType("selfie")
	assert.Error(t, err)

	k, err := ParseContactKind("technician")
	require.NoError(t, err)
	assert.Equal(t, ContactTechnician, k)
	_, err = ParseContactKind("vendor")
	assert.Error(t, err)

	assert.True(t, SyncSyncing.Valid())
	assert.False(t, SyncStatus("dirty").Valid())
}
