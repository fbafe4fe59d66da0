package service

import (
	"context"
	"testing"
	"time"

	"github.com/betahouse/betahouse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestTokenService_MintAndVerify(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	access, err := env.tokens.MintAccessToken("acct-1", "sess-1", "agent", now)
	require.NoError(t, err)

	claims, err := env.tokens.VerifyAccessToken(ctx, access)
	require.NoError(t, err)
	require.Equal(t, "acct-1", claims.Subject)
	require.Equal(t, "sess-1", claims.SID)
	require.Equal(t, "agent", claims.Role)

	// A refresh token never passes access verification.
	refresh, err := env.tokens.MintRefreshToken("acct-1", now)
	require.NoError(t, err)
	_, err = env.tokens.VerifyAccessToken(ctx, refresh)
	require.ErrorIs(t, err, ErrInvalidToken)

	// And vice versa.
	_, err = env.tokens.VerifyRefreshToken(ctx, access)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Revoke(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	access, err := env.tokens.MintAccessToken("acct-1", "sess-1", "user", time.Now())
	require.NoError(t, err)

	_, err = env.tokens.VerifyAccessToken(ctx, access)
	require.NoError(t, err)

	require.NoError(t, env.tokens.Revoke(ctx, access))
	_, err = env.tokens.VerifyAccessToken(ctx, access)
	require.ErrorIs(t, err, ErrRevoked)

	// Revoking garbage is rejected, not cached.
	require.ErrorIs(t, env.tokens.Revoke(ctx, "garbage"), ErrInvalidToken)
}

func TestTokenService_RevokeSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	one, err := env.tokens.MintAccessToken("acct-1", "sess-1", "user", now)
	require.NoError(t, err)
	two, err := env.tokens.MintAccessToken("acct-1", "sess-1", "user", now)
	require.NoError(t, err)
	other, err := env.tokens.MintAccessToken("acct-1", "sess-2", "user", now)
	require.NoError(t, err)

	env.tokens.RevokeSession(ctx, "sess-1")

	// Every token of the session is dead, regardless of when minted.
	_, err = env.tokens.VerifyAccessToken(ctx, one)
	require.ErrorIs(t, err, ErrRevoked)
	_, err = env.tokens.VerifyAccessToken(ctx, two)
	require.ErrorIs(t, err, ErrRevoked)

	// Other sessions are untouched.
	_, err = env.tokens.VerifyAccessToken(ctx, other)
	require.NoError(t, err)
}

func TestTokenService_ExpiredToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	// Minted in the past so it is already expired.
	past := time.Now().Add(-2 * jwtx.DefaultAccessTokenTTL)
	access, err := env.tokens.MintAccessToken("acct-1", "sess-1", "user", past)
	require.NoError(t, err)

	_, err = env.tokens.VerifyAccessToken(ctx, access)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Revoking an expired token is a no-op, not an error.
	require.NoError(t, env.tokens.Revoke(ctx, access))
}
