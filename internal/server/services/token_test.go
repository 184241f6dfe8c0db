package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens(e *testEnv) *TokenService {
	s := NewTokenService(e.db, e.rm, []byte("test-secret"), time.Hour, 24*time.Hour)
	s.now = func() time.Time { return time.Now().UTC() }
	return s
}

func TestDeviceTokenRoundTrip(t *testing.T) {
	e := newEnv(t)
	s := newTokens(e)

	tok, err := s.IssueDeviceToken("dev-1", "ws-1")
	require.NoError(t, err)

	p, err := s.Authenticate(tok, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, principal, p)

	_, err = s.Authenticate(tok, "dev-2")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = s.Authenticate("garbage", "dev-1")
	require.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = s.IssueDeviceToken("", "ws-1")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestAccessTokens(t *testing.T) {
	e := newEnv(t)
	s := newTokens(e)
	e.putJob(openJob("j1"), 1, "m1")

	tok, exp, err := s.IssueAccessToken(context.Background(), principal, "j1", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, time.Minute)
	require.Len(t, e.rm.tokens.rows, 1)

	j, err := s.ResolveShare(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "j1", j.ID)

	n, err := s.RevokeAccessTokens(context.Background(), principal, "j1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.ResolveShare(context.Background(), tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestAccessTokens_Rejections(t *testing.T) {
	e := newEnv(t)
	s := newTokens(e)
	sealedAt := fixedNow
	sealed := openJob("j2")
	sealed.Status = domain.StatusSealed
	sealed.SealedAt = &sealedAt
	e.putJob(openJob("j1"), 1, "m1")
	e.putJob(sealed, 2, "m2")

	_, _, err := s.IssueAccessToken(context.Background(), principal, "j2", time.Hour)
	require.ErrorIs(t, err, common.ErrSealedJobImmutable)

	_, _, err = s.IssueAccessToken(context.Background(), principalOf("ws-2"), "j1", time.Hour)
	require.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.RevokeAccessTokens(context.Background(), principalOf("ws-2"), "j1")
	require.ErrorIs(t, err, common.ErrorNotFound)

	tok, _, err := s.IssueAccessToken(context.Background(), principal, "j1", time.Hour)
	require.NoError(t, err)
	clear(e.rm.tokens.rows)
	_, err = s.ResolveShare(context.Background(), tok)
	require.ErrorIs(t, err, common.ErrInvalidToken)

	device, err := s.IssueDeviceToken("dev-1", "ws-1")
	require.NoError(t, err)
	_, err = s.ResolveShare(context.Background(), device)
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
