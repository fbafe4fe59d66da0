package service

import (
	"context"
	"errors"
	"time"

	"github.com/betahouse/betahouse/internal/cache"
	"github.com/betahouse/betahouse/pkg/cryptox"
	"github.com/betahouse/betahouse/pkg/jwtx"
)

// Cache key prefixes for token revocation. A fingerprint entry kills one
// specific token; a session entry kills every access token minted for that
// session.
const (
	blacklistPrefix        = "bl:"
	sessionBlacklistPrefix = "bl:sid:"
)

// TokenService mints and validates the HS256 token pair. Access and refresh
// tokens are signed with distinct secrets so one can never stand in for the
// other.
type TokenService struct {
	AccessSigner    jwtx.Signer
	AccessVerifier  jwtx.Verifier
	RefreshSigner   jwtx.Signer
	RefreshVerifier jwtx.Verifier

	Cache *cache.Cache

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// MintAccessToken signs a short-lived access token bound to the session.
func (s *TokenService) MintAccessToken(accountID, sessionID, role string, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(accountID, sessionID, role, s.AccessSigner.Issuer, s.AccessTTL, now)
	return s.AccessSigner.Sign(claims)
}

// MintRefreshToken signs a refresh token for the account.
func (s *TokenService) MintRefreshToken(accountID string, now time.Time) (string, error) {
	claims := jwtx.NewRefreshClaims(accountID, s.RefreshSigner.Issuer, s.RefreshTTL, now)
	return s.RefreshSigner.Sign(claims)
}

// VerifyAccessToken validates signature, expiry and issuer, then checks the
// revocation list for both the token itself and its session.
func (s *TokenService) VerifyAccessToken(ctx context.Context, raw string) (jwtx.Claims, error) {
	claims, err := s.AccessVerifier.Verify(raw)
	if err != nil {
		return jwtx.Claims{}, mapTokenErr(err)
	}
	if s.Cache.Has(blacklistPrefix + cryptox.FingerprintToken(raw)) {
		return jwtx.Claims{}, ErrRevoked
	}
	if claims.SID != "" && s.Cache.Has(sessionBlacklistPrefix+claims.SID) {
		return jwtx.Claims{}, ErrRevoked
	}
	return claims, nil
}

// VerifyRefreshToken validates a refresh token and checks revocation.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, raw string) (jwtx.Claims, error) {
	claims, err := s.RefreshVerifier.Verify(raw)
	if err != nil {
		return jwtx.Claims{}, mapTokenErr(err)
	}
	if s.Cache.Has(blacklistPrefix + cryptox.FingerprintToken(raw)) {
		return jwtx.Claims{}, ErrRevoked
	}
	return claims, nil
}

// Revoke blacklists a single token for the rest of its lifetime. Tokens
// already past expiry need no entry.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	exp, err := jwtx.ExpiryUnverified(raw)
	if err != nil {
		return ErrInvalidToken
	}
	remaining := time.Until(exp)
	if remaining <= 0 {
		return nil
	}
	s.Cache.Set(blacklistPrefix+cryptox.FingerprintToken(raw), []byte("1"), remaining)
	return nil
}

// RevokeSession blacklists every outstanding access token of a session. The
// entry only needs to outlive the longest-lived access token.
func (s *TokenService) RevokeSession(ctx context.Context, sessionID string) {
	s.Cache.Set(sessionBlacklistPrefix+sessionID, []byte("1"), s.AccessTTL)
}

// Fingerprint is the stable lookup key for a token: SHA-256, base64url.
func (s *TokenService) Fingerprint(raw string) string {
	return cryptox.FingerprintToken(raw)
}

func mapTokenErr(err error) error {
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return ErrInvalidToken
	case errors.Is(err, jwtx.ErrInvalidToken), errors.Is(err, jwtx.ErrIssuer):
		return ErrInvalidToken
	default:
		return err
	}
}
