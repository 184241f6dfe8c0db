package sealing

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/fieldseal/internal/client/client"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
)

type SealSource interface {
	Get(ctx context.Context, jobID string) (*evidence.Seal, error)
}

// Verifier checks stored seals. Local verification needs only the public key;
// remote verification asks the backend to recompute from its own copy.
type Verifier struct {
	seals  SealSource
	keys   evidence.SignatureVerifier
	remote client.Client
}

func NewVerifier(seals SealSource, keys evidence.SignatureVerifier, remote client.Client) *Verifier {
	return &Verifier{seals: seals, keys: keys, remote: remote}
}

var errNoKey = errors.New("no seal verification key configured")

// Verify recomputes the snapshot hash of the stored seal. On a mismatch the
// signature is not consulted.
func (v *Verifier) Verify(ctx context.Context, jobID string) (evidence.VerifyResult, error) {
	if v.keys == nil {
		return evidence.VerifyResult{}, errNoKey
	}
	seal, err := v.seals.Get(ctx, jobID)
	if err != nil {
		return evidence.VerifyResult{}, err
	}
	return evidence.Verify(seal, v.keys), nil
}

func (v *Verifier) VerifyRemote(ctx context.Context, jobID string) (evidence.VerifyResult, error) {
	return v.remote.VerifySeal(ctx, jobID)
}
