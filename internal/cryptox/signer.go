package cryptox

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// Legacy HMAC sealing is reachable only when this variable holds the
// acknowledgement value.
const (
	LegacyHMACEnv = "FIELDSEAL_ENABLE_LEGACY_HMAC"
	LegacyHMACAck = "i-understand-the-risk"
)

var hmacInfo = []byte("fieldseal/seal-hmac/v1")

// LegacyHMACAllowed reports whether the legacy opt-in is set in env.
func LegacyHMACAllowed(getenv func(string) string) bool {
	return getenv != nil && getenv(LegacyHMACEnv) == LegacyHMACAck
}

// Signer produces a detached signature over an evidence hash.
type Signer interface {
	Algorithm() string
	Sign(evidenceHash string) (string, error)
}

type RSASigner struct {
	key *rsa.PrivateKey
}

func NewRSASigner(key *rsa.PrivateKey) (*RSASigner, error) {
	if _, err := checkSize(key); err != nil {
		return nil, err
	}
	return &RSASigner{key: key}, nil
}

func (s *RSASigner) Algorithm() string { return evidence.AlgRSASHA256 }

func (s *RSASigner) Sign(evidenceHash string) (string, error) {
	sig, err := jwt.SigningMethodRS256.Sign(evidenceHash, s.key)
	if err != nil {
		return "", fmt.Errorf("rsa sign: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

func (s *RSASigner) Public() *rsa.PublicKey { return &s.key.PublicKey }

type HMACSigner struct {
	key []byte
}

// NewLegacyHMACSigner returns common.ErrLegacyHMACDisabled unless the
// environment opt-in is present.
func NewLegacyHMACSigner(secret []byte, getenv func(string) string) (*HMACSigner, error) {
	key, err := legacyKey(secret, getenv)
	if err != nil {
		return nil, err
	}
	return &HMACSigner{key: key}, nil
}

func (s *HMACSigner) Algorithm() string { return evidence.AlgHMACSHA256 }

func (s *HMACSigner) Sign(evidenceHash string) (string, error) {
	sig, err := jwt.SigningMethodHS256.Sign(evidenceHash, s.key)
	if err != nil {
		return "", fmt.Errorf("hmac sign: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

func legacyKey(secret []byte, getenv func(string) string) ([]byte, error) {
	if !LegacyHMACAllowed(getenv) {
		return nil, common.ErrLegacyHMACDisabled
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("legacy hmac secret is empty")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hmacInfo), key); err != nil {
		return nil, err
	}
	return key, nil
}

// KeyRing verifies seal signatures with the authority public key and, when
// opted in, the legacy shared secret.
type KeyRing struct {
	public  *rsa.PublicKey
	hmacKey []byte
}

func NewKeyRing(public *rsa.PublicKey) *KeyRing {
	return &KeyRing{public: public}
}

// WithLegacySecret enables verification of legacy HMAC seals.
func (k *KeyRing) WithLegacySecret(secret []byte, getenv func(string) string) (*KeyRing, error) {
	key, err := legacyKey(secret, getenv)
	if err != nil {
		return nil, err
	}
	return &KeyRing{public: k.public, hmacKey: key}, nil
}

func (k *KeyRing) VerifySignature(algorithm, evidenceHash, signature string) error {
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature encoding", common.ErrInvalidSignature)
	}

	switch algorithm {
	case evidence.AlgRSASHA256:
		if k.public == nil {
			return fmt.Errorf("no public key configured")
		}
		if err := jwt.SigningMethodRS256.Verify(evidenceHash, sig, k.public); err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
		}
	case evidence.AlgHMACSHA256:
		if k.hmacKey == nil {
			return common.ErrLegacyHMACDisabled
		}
		if err := jwt.SigningMethodHS256.Verify(evidenceHash, sig, k.hmacKey); err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
		}
	default:
		return fmt.Errorf("%w: %q", common.ErrUnsupportedSealAlgo, algorithm)
	}
	return nil
}
