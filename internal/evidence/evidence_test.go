package evidence

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleJob() *domain.Job {
	scheduled := at("2025-05-01T09:00:00Z")
	return &domain.Job{
		ID:          "J1",
		WorkspaceID: "ws-1",
		Status:      domain.StatusSubmitted,
		Title:       "Boiler service",
		Client:      `Acme "North" Ltd`,
		Technician:  "Dana",
		Address:     "1 Main St",
		WorkSummary: "Replaced valve",
		ScheduledAt: &scheduled,
		Photos: []domain.Photo{
			{ID: "P2", JobID: "J1", TakenAt: at("2025-05-01T10:30:00Z"), Type: domain.PhotoAfter,
				GPS:      &domain.GPS{Lat: 51.5, Lng: -0.1275}, ContentHash: "bb", SyncStatus: domain.SyncSynced,
				LocalRef: "/data/p2.jpg"},
			{ID: "P1", JobID: "J1", TakenAt: at("2025-05-01T09:15:00Z"), Type: domain.PhotoBefore,
				ContentHash: "aa", SyncStatus: domain.SyncSynced},
		},
		Signature:   &domain.Signature{SignerName: "Pat Client", SignedAt: at("2025-05-01T11:00:00Z"), ImageHash: "cc"},
		SyncStatus:  domain.SyncSynced,
		BaseVersion: 3,
		LastUpdated: at("2025-05-01T11:05:00Z"),
	}
}

func TestBundle_CanonicalGolden(t *testing.T) {
	b, err := BuildBundle(sampleJob()).Canonical()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "bundle", b)
}

func TestSnapshot_DeterministicHash(t *testing.T) {
	snap1, h1, err := Snapshot(sampleJob())
	require.NoError(t, err)

	j := sampleJob()
	j.Photos[0], j.Photos[1] = j.Photos[1], j.Photos[0]
	j.BaseVersion = 9
	j.SyncStatus = domain.SyncPending
	j.LastUpdated = time.Now()
	snap2, h2, err := Snapshot(j)
	require.NoError(t, err)

	assert.Equal(t, snap1, snap2)
	assert.Equal(t, h1, h2)
	assert.Equal(t, "d04e9b0e4b79c2f1f6d09074e23a5bf6470e494be66a28e3085651bfc98ff9b1", h1)
	assert.True(t, ValidHash(h1))

	j.WorkSummary = "Replaced valve and seal"
	_, h3, err := Snapshot(j)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestDecodeBundle_RoundTrip(t *testing.T) {
	snap, _, err := Snapshot(sampleJob())
	require.NoError(t, err)

	b, err := DecodeBundle(snap)
	require.NoError(t, err)
	assert.Equal(t, BuildBundle(sampleJob()), b)

	again, err := b.Canonical()
	require.NoError(t, err)
	assert.Equal(t, snap, again)

	_, err = DecodeBundle([]byte("{"))
	assert.Error(t, err)
}

func TestMarshalCanonical(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"b":  []any{int64(2), true, "x<y&z"},
		"a":  "tab\there \u2028",
		"é":  1,
		"\t": false,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"\\t\":false,\"a\":\"tab\\there \u2028\",\"b\":[2,true,\"x<y&z\"],\"é\":1}", string(out))

	decomposed := "e\u0301"
	out, err = MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "\"é\"", string(out), "strings are NFC normalised")

	_, err = MarshalCanonical(map[string]any{"x": 1.5})
	assert.Error(t, err)
	_, err = MarshalCanonical([]any{nil})
	assert.Error(t, err)
	_, err = MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestLessUTF16(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 byte order but after it in UTF-16.
	assert.True(t, lessUTF16("\U0001F600", "\uFF61"))
	assert.True(t, lessUTF16("a", "ab"))
	assert.False(t, lessUTF16("b", "a"))
}

func TestValidHash(t *testing.T) {
	assert.False(t, ValidHash("ABC"))
	assert.False(t, ValidHash("D04E9B0E4B79C2F1F6D09074E23A5BF6470E494BE66A28E3085651BFC98FF9B1"))
	assert.True(t, ValidHash(HashBytes([]byte("x"))))
}

func TestCanSeal_AccumulatesReasons(t *testing.T) {
	j := &domain.Job{ID: "J1", Status: domain.StatusDraft}

	e := CanSeal(j, nil)
	assert.False(t, e.Allowed)
	assert.Equal(t, []string{
		"job status draft is not sealable",
		ReasonNoPhotos,
		ReasonNoSignature,
	}, e.Reasons)

	err := e.Err()
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Contains(t, err.Error(), "at least one photo")
	assert.Contains(t, err.Error(), "must have a signature")
}

func TestCanSeal_SignerNameAndUnsyncedPhotos(t *testing.T) {
	j := sampleJob()
	j.Signature.SignerName = "  "
	j.Photos[1].SyncStatus = domain.SyncPending

	e := CanSeal(j, nil)
	assert.Equal(t, []string{ReasonNoSignerName, "all photos must be synced (1 pending)"}, e.Reasons)
}

func TestCanSeal_AllowedAndConfiguredSet(t *testing.T) {
	j := sampleJob()
	assert.True(t, CanSeal(j, nil).Allowed)
	assert.NoError(t, CanSeal(j, nil).Err())

	j.Status = domain.StatusInProgress
	assert.False(t, CanSeal(j, nil).Allowed)
	assert.True(t, CanSeal(j, []domain.JobStatus{domain.StatusInProgress, domain.StatusSubmitted}).Allowed)
}

func TestCanSeal_AlreadySealed(t *testing.T) {
	j := sampleJob()
	domain.ApplySeal(j, "h", at("2025-05-02T00:00:00Z"))

	e := CanSeal(j, nil)
	assert.Equal(t, []string{ReasonAlreadySealed}, e.Reasons)
	assert.ErrorIs(t, e.Err(), common.ErrAlreadySealed)
}

func TestCheckBundle(t *testing.T) {
	assert.True(t, CheckBundle(BuildBundle(sampleJob())).Allowed)

	e := CheckBundle(Bundle{Version: 7})
	assert.Equal(t, []string{"unsupported bundle version 7", "bundle has no job id", ReasonNoPhotos, ReasonNoSignature}, e.Reasons)

	b := BuildBundle(sampleJob())
	b.Signature.SignerName = ""
	assert.Equal(t, []string{ReasonNoSignerName}, CheckBundle(b).Reasons)
}

type spyVerifier struct {
	calls int
	err   error
}

func (s *spyVerifier) VerifySignature(algorithm, evidenceHash, signature string) error {
	s.calls++
	return s.err
}

func sealFor(t *testing.T) *Seal {
	t.Helper()
	snap, hash, err := Snapshot(sampleJob())
	require.NoError(t, err)
	return &Seal{JobID: "J1", EvidenceHash: hash, Signature: "sig", Algorithm: AlgRSASHA256,
		SealedAt: at("2025-05-02T00:00:00Z"), SealedBy: "authority", Snapshot: snap}
}

func TestVerify_Valid(t *testing.T) {
	s := sealFor(t)
	spy := &spyVerifier{}

	res := Verify(s, spy)
	assert.Equal(t, StatusValid, res.Status)
	assert.True(t, res.IsValid)
	assert.NoError(t, res.Err())
	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, "authority", res.SealedBy)
}

func TestVerify_HashMismatchSkipsSignature(t *testing.T) {
	s := sealFor(t)
	s.Snapshot[10] ^= 0x01
	spy := &spyVerifier{}

	res := Verify(s, spy)
	assert.Equal(t, StatusHashMismatch, res.Status)
	assert.False(t, res.IsValid)
	assert.ErrorIs(t, res.Err(), common.ErrHashMismatch)
	assert.Equal(t, 0, spy.calls, "signature must not be evaluated on mismatch")
	assert.NotEqual(t, res.EvidenceHash, res.ComputedHash)
}

func TestVerify_InvalidSignature(t *testing.T) {
	s := sealFor(t)
	res := Verify(s, &spyVerifier{err: errors.New("crypto/rsa: verification error")})

	assert.Equal(t, StatusInvalidSignature, res.Status)
	assert.False(t, res.IsValid)
	assert.ErrorIs(t, res.Err(), common.ErrInvalidSignature)
	assert.Contains(t, res.Detail, "verification error")
}
