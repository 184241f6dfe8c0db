package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/cryptox"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"github.com/dmitrijs2005/fieldseal/internal/server/metrics"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	rsaKey  *cryptox.RSASigner
)

func testSigner(t *testing.T) *cryptox.RSASigner {
	t.Helper()
	keyOnce.Do(func() {
		k, err := cryptox.GenerateRSAKey(2048)
		require.NoError(t, err)
		rsaKey, err = cryptox.NewRSASigner(k)
		require.NoError(t, err)
	})
	return rsaKey
}

type memSnapshots struct {
	data map[string][]byte
}

func (m *memSnapshots) PutSnapshot(_ context.Context, ws, job string, b []byte) error {
	m.data[ws+"/"+job] = append([]byte(nil), b...)
	return nil
}

func (m *memSnapshots) GetSnapshot(_ context.Context, ws, job string) ([]byte, error) {
	b, ok := m.data[ws+"/"+job]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return b, nil
}

// sealableJob stores a submitted, signed job with one uploaded photo and
// returns the device's snapshot of it.
func sealableJob(t *testing.T, e *testEnv, id string) (snapshot []byte, hash string) {
	t.Helper()
	j := openJob(id)
	j.Status = domain.StatusSubmitted
	j.Signature = &domain.Signature{SignerName: "Kim", SignedAt: fixedNow.Add(-time.Hour)}
	photoHash := evidence.HashBytes([]byte("jpeg bytes " + id))
	j.Photos = []domain.Photo{{ID: id + "-p1", JobID: id, Type: domain.PhotoAfter, TakenAt: fixedNow.Add(-2 * time.Hour), ContentHash: photoHash}}

	snapshot, hash, err := evidence.Snapshot(&j)
	require.NoError(t, err)

	stored := j
	stored.Photos = nil
	e.putJob(stored, 3, "m3")
	e.rm.photos.rows[id+"-p1"] = models.PhotoObject{ID: id + "-p1", JobID: id, ContentHash: photoHash, StorageKey: PhotoKey(id, id+"-p1"), Uploaded: true}
	return snapshot, hash
}

func newSeal(t *testing.T, e *testEnv, snaps SnapshotStore) *SealService {
	t.Helper()
	signer := testSigner(t)
	s := NewSealService(e.db, e.rm, signer, cryptox.NewKeyRing(signer.Public()),
		SealOptions{Authority: "fieldseal-test", Snapshots: snaps, Metrics: metrics.New()}, logging.Discard())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestRequestSeal_IssuesAndVerifies(t *testing.T) {
	e := newEnv(t)
	snaps := &memSnapshots{data: map[string][]byte{}}
	s := newSeal(t, e, snaps)
	snapshot, hash := sealableJob(t, e, "j1")
	e.rm.tokens.rows["t1"] = models.AccessToken{JTI: "t1", JobID: "j1", ExpiresAt: fixedNow.Add(time.Hour)}

	e.expectTx(true)
	seal, err := s.RequestSeal(context.Background(), principal, "j1", hash, snapshot)
	require.NoError(t, err)
	assert.Equal(t, evidence.AlgRSASHA256, seal.Algorithm)
	assert.Equal(t, "fieldseal-test", seal.SealedBy)
	assert.Equal(t, fixedNow, seal.SealedAt)

	stored := e.rm.jobs.rows["j1"]
	assert.Equal(t, domain.StatusSealed, stored.Job.Status)
	assert.Equal(t, hash, stored.Job.EvidenceHash)
	assert.NotNil(t, e.rm.tokens.rows["t1"].RevokedAt)
	assert.Equal(t, snapshot, snaps.data["ws-1/j1"])

	res, err := s.VerifySeal(context.Background(), principal, "j1")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, evidence.StatusValid, res.Status)

	e.expectTx(true)
	again, err := s.RequestSeal(context.Background(), principal, "j1", hash, snapshot)
	require.NoError(t, err)
	assert.Equal(t, seal.Signature, again.Signature)
}

func TestRequestSeal_DifferentHashForSealedJob(t *testing.T) {
	e := newEnv(t)
	s := newSeal(t, e, nil)
	snapshot, hash := sealableJob(t, e, "j1")

	e.expectTx(true)
	_, err := s.RequestSeal(context.Background(), principal, "j1", hash, snapshot)
	require.NoError(t, err)

	j := e.rm.jobs.rows["j1"].Job
	j.Title = "rewritten"
	j.Status = domain.StatusSubmitted
	j.Photos = []domain.Photo{{ID: "j1-p1", JobID: "j1", Type: domain.PhotoAfter, ContentHash: e.rm.photos.rows["j1-p1"].ContentHash}}
	other, otherHash, err := evidence.Snapshot(&j)
	require.NoError(t, err)

	e.expectTx(false)
	_, err = s.RequestSeal(context.Background(), principal, "j1", otherHash, other)
	require.ErrorIs(t, err, common.ErrAlreadySealed)
}

func TestRequestSeal_Rejections(t *testing.T) {
	t.Run("hash mismatch", func(t *testing.T) {
		e := newEnv(t)
		s := newSeal(t, e, nil)
		snapshot, _ := sealableJob(t, e, "j1")
		_, err := s.RequestSeal(context.Background(), principal, "j1", evidence.HashBytes([]byte("x")), snapshot)
		require.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("snapshot of another job", func(t *testing.T) {
		e := newEnv(t)
		s := newSeal(t, e, nil)
		snapshot, hash := sealableJob(t, e, "j1")
		_, err := s.RequestSeal(context.Background(), principal, "j2", hash, snapshot)
		require.ErrorIs(t, err, common.ErrValidation)
	})

	t.Run("photo not uploaded", func(t *testing.T) {
		e := newEnv(t)
		s := newSeal(t, e, nil)
		snapshot, hash := sealableJob(t, e, "j1")
		p := e.rm.photos.rows["j1-p1"]
		p.Uploaded = false
		e.rm.photos.rows["j1-p1"] = p

		e.expectTx(false)
		_, err := s.RequestSeal(context.Background(), principal, "j1", hash, snapshot)
		require.ErrorIs(t, err, common.ErrValidation)
		assert.Contains(t, err.Error(), "photo j1-p1 is not uploaded")
		assert.Empty(t, e.rm.seals.rows)
	})

	t.Run("foreign workspace", func(t *testing.T) {
		e := newEnv(t)
		s := newSeal(t, e, nil)
		snapshot, hash := sealableJob(t, e, "j1")
		stored := e.rm.jobs.rows["j1"]
		stored.Job.WorkspaceID = "ws-2"
		e.rm.jobs.rows["j1"] = stored

		e.expectTx(false)
		_, err := s.RequestSeal(context.Background(), principal, "j1", hash, snapshot)
		require.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestVerifySeal_TamperedRetainedCopy(t *testing.T) {
	e := newEnv(t)
	snaps := &memSnapshots{data: map[string][]byte{}}
	s := newSeal(t, e, snaps)
	snapshot, hash := sealableJob(t, e, "j1")

	e.expectTx(true)
	_, err := s.RequestSeal(context.Background(), principal, "j1", hash, snapshot)
	require.NoError(t, err)

	snaps.data["ws-1/j1"] = append([]byte(nil), snapshot[:len(snapshot)-1]...)
	res, err := s.VerifyPublic(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, evidence.StatusHashMismatch, res.Status)
	assert.Equal(t, "retained snapshot differs from sealed record", res.Detail)

	_, err = s.VerifySeal(context.Background(), principal, "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = s.VerifySeal(context.Background(), principalOf("ws-2"), "j1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func principalOf(ws string) auth.Principal {
	return auth.Principal{DeviceID: "dev-2", WorkspaceID: ws}
}

func TestPublicKeyPEM(t *testing.T) {
	e := newEnv(t)
	s := newSeal(t, e, nil)
	alg, pem, err := s.PublicKeyPEM()
	require.NoError(t, err)
	assert.Equal(t, evidence.AlgRSASHA256, alg)
	assert.Contains(t, string(pem), "PUBLIC KEY")

	hmac, err := cryptox.NewLegacyHMACSigner([]byte("shared"), func(k string) string {
		if k == cryptox.LegacyHMACEnv {
			return cryptox.LegacyHMACAck
		}
		return ""
	})
	require.NoError(t, err)
	legacy := NewSealService(e.db, e.rm, hmac, nil, SealOptions{}, logging.Discard())
	alg, _, err = legacy.PublicKeyPEM()
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, evidence.AlgHMACSHA256, alg)
}
