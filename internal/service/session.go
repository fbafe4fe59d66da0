package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/geoip"
	"github.com/betahouse/betahouse/internal/store"
	"github.com/betahouse/betahouse/pkg/idx"
	"github.com/betahouse/betahouse/pkg/slogx"
)

// DeviceContext is what the transport layer knows about the caller.
type DeviceContext struct {
	IPAddress string
	UserAgent string
}

// SessionService owns the session lifecycle: establishing one on login,
// rotating its refresh token, and revoking it on logout or from another
// device.
type SessionService struct {
	Store  store.Store
	Tokens *TokenService
	Geo    geoip.Resolver
}

// Establish issues a token pair for the account, reusing the existing
// session row when the same device (account, user agent, IP) logs in again
// so the session list does not fill with duplicates.
func (s *SessionService) Establish(ctx context.Context, account domain.Account, dev DeviceContext) (domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	refresh, err := s.Tokens.MintRefreshToken(account.ID, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refreshFP := s.Tokens.Fingerprint(refresh)

	var sessionID string
	existing, err := s.Store.Sessions().FindSessionByDevice(ctx, account.ID, dev.UserAgent, dev.IPAddress)
	switch {
	case err == nil:
		sessionID = existing.ID
		if err := s.Store.Sessions().ReplaceSessionRefresh(ctx, sessionID, refreshFP, now); err != nil {
			return domain.TokenPair{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		sessionID = idx.New().String()
		sess := domain.Session{
			ID:           sessionID,
			AccountID:    account.ID,
			RefreshHash:  refreshFP,
			IPAddress:    dev.IPAddress,
			UserAgent:    dev.UserAgent,
			Device:       parseDevice(dev.UserAgent),
			Location:     s.resolveLocation(ctx, dev.IPAddress),
			LastActiveAt: now,
		}
		if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
			return domain.TokenPair{}, err
		}
	default:
		return domain.TokenPair{}, err
	}

	access, err := s.Tokens.MintAccessToken(account.ID, sessionID, string(account.Role), now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	l.Info("session established",
		slog.String("account_id", account.ID),
		slog.String("session_id", sessionID),
	)

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.Tokens.AccessTTL,
	}, nil
}

// Refresh rotates a refresh token: the presented token is validated, its
// session gets a new refresh fingerprint, and the old token is blacklisted.
// A token whose fingerprint no longer matches any session was already
// rotated or revoked and is rejected.
func (s *SessionService) Refresh(ctx context.Context, rawRefresh string) (domain.TokenPair, error) {
	now := time.Now()

	claims, err := s.Tokens.VerifyRefreshToken(ctx, rawRefresh)
	if err != nil {
		if errors.Is(err, ErrRevoked) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		if errors.Is(err, ErrInvalidToken) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}

	fp := s.Tokens.Fingerprint(rawRefresh)
	sess, err := s.Store.Sessions().GetSessionByRefreshHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}
	if sess.AccountID != claims.Subject {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	account, err := s.Store.Accounts().GetAccountByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}

	newRefresh, err := s.Tokens.MintRefreshToken(account.ID, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := s.Store.Sessions().ReplaceSessionRefresh(ctx, sess.ID, s.Tokens.Fingerprint(newRefresh), now); err != nil {
		return domain.TokenPair{}, err
	}
	_ = s.Tokens.Revoke(ctx, rawRefresh)

	access, err := s.Tokens.MintAccessToken(account.ID, sess.ID, string(account.Role), now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		ExpiresIn:    s.Tokens.AccessTTL,
	}, nil
}

// List returns the account's sessions, most recently active first.
func (s *SessionService) List(ctx context.Context, accountID string) ([]domain.Session, error) {
	return s.Store.Sessions().ListSessionsByAccount(ctx, accountID)
}

// Logout revokes the presented access token and deletes the session it was
// bound to, which also invalidates the session's refresh token.
func (s *SessionService) Logout(ctx context.Context, accountID, sessionID, rawAccess string) error {
	if rawAccess != "" {
		_ = s.Tokens.Revoke(ctx, rawAccess)
	}
	if sessionID == "" {
		return nil
	}
	if _, err := s.Store.Sessions().GetSessionForAccount(ctx, sessionID, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.Store.Sessions().DeleteSession(ctx, sessionID)
}

// Revoke terminates one of the account's sessions, typically from the
// "active sessions" screen. Live access tokens of that session stop
// verifying immediately.
func (s *SessionService) Revoke(ctx context.Context, accountID, sessionID string) error {
	if _, err := s.Store.Sessions().GetSessionForAccount(ctx, sessionID, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.Tokens.RevokeSession(ctx, sessionID)
	return s.Store.Sessions().DeleteSession(ctx, sessionID)
}

// RevokeOthers terminates every session of the account except the current
// one.
func (s *SessionService) RevokeOthers(ctx context.Context, accountID, currentSessionID string) error {
	others, err := s.Store.Sessions().ListOtherSessions(ctx, accountID, currentSessionID)
	if err != nil {
		return err
	}
	for _, sess := range others {
		s.Tokens.RevokeSession(ctx, sess.ID)
	}
	return s.Store.Sessions().DeleteOtherSessions(ctx, accountID, currentSessionID)
}

// RevokeAll terminates every session of the account, used after a password
// reset.
func (s *SessionService) RevokeAll(ctx context.Context, accountID string) error {
	sessions, err := s.Store.Sessions().ListSessionsByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		s.Tokens.RevokeSession(ctx, sess.ID)
	}
	return s.Store.Sessions().DeleteSessionsByAccount(ctx, accountID)
}

func (s *SessionService) resolveLocation(ctx context.Context, ip string) *domain.Location {
	if s.Geo == nil {
		return nil
	}
	loc, err := s.Geo.Resolve(ctx, ip)
	if err != nil {
		if !errors.Is(err, geoip.ErrLocalAddress) {
			slogx.FromContext(ctx).Warn("geolocation lookup failed",
				slog.String("ip", ip),
				slog.Any("error", err),
			)
		}
		return nil
	}
	return &loc
}

// parseDevice turns a user agent into a coarse "Browser / OS" label for the
// session list. Unknown agents fall back to "Unknown".
func parseDevice(ua string) string {
	browser := "Unknown"
	switch {
	case strings.Contains(ua, "Edg/"):
		browser = "Edge"
	case strings.Contains(ua, "OPR/"), strings.Contains(ua, "Opera"):
		browser = "Opera"
	case strings.Contains(ua, "Chrome/"):
		browser = "Chrome"
	case strings.Contains(ua, "Firefox/"):
		browser = "Firefox"
	case strings.Contains(ua, "Safari/"):
		browser = "Safari"
	case strings.Contains(ua, "curl/"):
		browser = "curl"
	}

	os := ""
	switch {
	case strings.Contains(ua, "Windows"):
		os = "Windows"
	case strings.Contains(ua, "Android"):
		os = "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		os = "iOS"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		os = "macOS"
	case strings.Contains(ua, "Linux"):
		os = "Linux"
	}

	if os == "" {
		return browser
	}
	return browser + " / " + os
}
