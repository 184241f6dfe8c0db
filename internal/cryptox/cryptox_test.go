package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := GenerateRSAKey(2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func optedIn(key string) string {
	if key == LegacyHMACEnv {
		return LegacyHMACAck
	}
	return ""
}

const hash = "d04e9b0e4b79c2f1f6d09074e23a5bf6470e494be66a28e3085651bfc98ff9b1"

func TestRSASignAndVerify(t *testing.T) {
	s, err := NewRSASigner(signingKey(t))
	require.NoError(t, err)
	assert.Equal(t, evidence.AlgRSASHA256, s.Algorithm())

	sig, err := s.Sign(hash)
	require.NoError(t, err)

	ring := NewKeyRing(s.Public())
	require.NoError(t, ring.VerifySignature(evidence.AlgRSASHA256, hash, sig))

	tampered := "e" + hash[1:]
	err = ring.VerifySignature(evidence.AlgRSASHA256, tampered, sig)
	assert.ErrorIs(t, err, common.ErrInvalidSignature)

	err = ring.VerifySignature(evidence.AlgRSASHA256, hash, "!!!")
	assert.ErrorIs(t, err, common.ErrInvalidSignature)

	err = ring.VerifySignature("ED25519", hash, sig)
	assert.ErrorIs(t, err, common.ErrUnsupportedSealAlgo)
}

func TestRSASigner_RejectsSmallKeys(t *testing.T) {
	small, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	_, err = NewRSASigner(small)
	assert.Error(t, err)

	_, err = GenerateRSAKey(1024)
	assert.Error(t, err)
}

func TestLegacyHMAC_GatedByEnvironment(t *testing.T) {
	_, err := NewLegacyHMACSigner([]byte("shared"), func(string) string { return "" })
	assert.ErrorIs(t, err, common.ErrLegacyHMACDisabled)

	_, err = NewLegacyHMACSigner([]byte("shared"), func(string) string { return "yes" })
	assert.ErrorIs(t, err, common.ErrLegacyHMACDisabled)

	_, err = NewLegacyHMACSigner(nil, optedIn)
	assert.Error(t, err)

	s, err := NewLegacyHMACSigner([]byte("shared"), optedIn)
	require.NoError(t, err)
	sig, err := s.Sign(hash)
	require.NoError(t, err)
	assert.Equal(t, evidence.AlgHMACSHA256, s.Algorithm())

	ring := NewKeyRing(nil)
	assert.ErrorIs(t, ring.VerifySignature(evidence.AlgHMACSHA256, hash, sig), common.ErrLegacyHMACDisabled)

	legacy, err := ring.WithLegacySecret([]byte("shared"), optedIn)
	require.NoError(t, err)
	require.NoError(t, legacy.VerifySignature(evidence.AlgHMACSHA256, hash, sig))

	other, err := ring.WithLegacySecret([]byte("other"), optedIn)
	require.NoError(t, err)
	assert.ErrorIs(t, other.VerifySignature(evidence.AlgHMACSHA256, hash, sig), common.ErrInvalidSignature)

	_, err = ring.WithLegacySecret([]byte("shared"), nil)
	assert.ErrorIs(t, err, common.ErrLegacyHMACDisabled)
}

func TestPEMRoundTrip(t *testing.T) {
	k := signingKey(t)
	dir := t.TempDir()

	privPEM, err := EncodePrivateKeyPEM(k)
	require.NoError(t, err)
	pubPEM, err := EncodePublicKeyPEM(&k.PublicKey)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "seal.key"), privPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seal.pub"), pubPEM, 0o644))

	priv, err := LoadPrivateKey(filepath.Join(dir, "seal.key"))
	require.NoError(t, err)
	assert.True(t, priv.Equal(k))

	pub, err := LoadPublicKey(filepath.Join(dir, "seal.pub"))
	require.NoError(t, err)
	assert.True(t, pub.Equal(&k.PublicKey))

	_, err = ParsePrivateKeyPEM([]byte("garbage"))
	assert.Error(t, err)
	_, err = ParsePublicKeyPEM([]byte("garbage"))
	assert.Error(t, err)
	_, err = LoadPublicKey(filepath.Join(dir, "missing.pub"))
	assert.Error(t, err)
}

func TestKeyRing_SatisfiesEvidenceVerifier(t *testing.T) {
	var _ evidence.SignatureVerifier = NewKeyRing(nil)

	s, err := NewRSASigner(signingKey(t))
	require.NoError(t, err)

	snap := []byte(`{"job":{"id":"J1"}}`)
	h := evidence.HashBytes(snap)
	sig, err := s.Sign(h)
	require.NoError(t, err)

	res := evidence.Verify(&evidence.Seal{EvidenceHash: h, Signature: sig, Algorithm: s.Algorithm(), Snapshot: snap},
		NewKeyRing(s.Public()))
	assert.Equal(t, evidence.StatusValid, res.Status)
}
