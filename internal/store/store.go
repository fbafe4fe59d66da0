package store

import (
	"context"
	"errors"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// postgres later) implement this. Sub-repositories keep concerns tidy and
// make it obvious which tables an operation can touch.
type Store interface {
	Accounts() Accounts
	Sessions() Sessions
	TwoFactorChallenges() TwoFactorChallenges
	Notifications() Notifications

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Accounts() Accounts
	Sessions() Sessions
	TwoFactorChallenges() TwoFactorChallenges
	Notifications() Notifications
}

type Accounts interface {
	// CreateAccount inserts a new account (id is provided by the app via
	// ULID). Returns ErrAlreadyExists on a duplicate email.
	CreateAccount(ctx context.Context, a domain.Account) error

	GetAccountByID(ctx context.Context, id string) (domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	// GetAccountByVerificationToken finds the account holding the given
	// active email-verification token.
	GetAccountByVerificationToken(ctx context.Context, token string) (domain.Account, error)

	// GetAccountByResetHash finds the account with the given unexpired
	// password-reset token hash.
	GetAccountByResetHash(ctx context.Context, hash string, now time.Time) (domain.Account, error)

	// MarkEmailVerified sets the verified flag and clears the token.
	MarkEmailVerified(ctx context.Context, id string) error

	// SetVerificationToken replaces the active verification token.
	SetVerificationToken(ctx context.Context, id, token string) error

	// UpdatePhone sets the phone number and marks it verified.
	UpdatePhone(ctx context.Context, id, phone string) error

	UpdatePasswordHash(ctx context.Context, id, hash string) error

	SetResetToken(ctx context.Context, id, hash string, expires time.Time) error
	ClearResetToken(ctx context.Context, id string) error

	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error

	// SetTOTPSecret stores or clears (nil) the authenticator secret.
	SetTOTPSecret(ctx context.Context, id string, secret *string) error

	DeleteAccount(ctx context.Context, id string) error

	// ClearExpiredResetTokens is housekeeping.
	ClearExpiredResetTokens(ctx context.Context, now time.Time) error
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByRefreshHash is the refresh/rotation lookup.
	GetSessionByRefreshHash(ctx context.Context, hash string) (domain.Session, error)

	// GetSessionForAccount returns the session only when it belongs to the
	// account, so ownership checks cannot be forgotten at call sites.
	GetSessionForAccount(ctx context.Context, id, accountID string) (domain.Session, error)

	// FindSessionByDevice locates an existing session for the same
	// (account, user agent, IP) pairing, used by the login upsert.
	FindSessionByDevice(ctx context.Context, accountID, userAgent, ip string) (domain.Session, error)

	// ReplaceSessionRefresh swaps the refresh hash and bumps last-active.
	ReplaceSessionRefresh(ctx context.Context, id, refreshHash string, lastActive time.Time) error

	ListSessionsByAccount(ctx context.Context, accountID string) ([]domain.Session, error)

	// ListOtherSessions returns every session of the account except one.
	ListOtherSessions(ctx context.Context, accountID, exceptID string) ([]domain.Session, error)

	DeleteSession(ctx context.Context, id string) error
	DeleteOtherSessions(ctx context.Context, accountID, exceptID string) error
	DeleteSessionsByAccount(ctx context.Context, accountID string) error

	// DeleteIdleSessions drops sessions whose last activity predates the
	// cutoff (their refresh tokens have long expired). Housekeeping.
	DeleteIdleSessions(ctx context.Context, cutoff time.Time) error
}

type TwoFactorChallenges interface {
	// CreateChallenge inserts a fresh challenge. Callers delete prior
	// challenges first; at most one live challenge exists per account.
	CreateChallenge(ctx context.Context, c domain.TwoFactorChallenge) error

	// GetActiveChallenge returns the newest challenge for the account.
	GetActiveChallenge(ctx context.Context, accountID string) (domain.TwoFactorChallenge, error)

	// IncrementChallengeAttempts bumps the failed-attempt counter and
	// returns the new count.
	IncrementChallengeAttempts(ctx context.Context, id string) (int, error)

	DeleteChallengesByAccount(ctx context.Context, accountID string) error

	// DeleteExpiredChallenges is housekeeping.
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

type Notifications interface {
	CreateNotification(ctx context.Context, n domain.Notification) error

	// GetNotificationForAccount is ownership-checked like sessions.
	GetNotificationForAccount(ctx context.Context, id, accountID string) (domain.Notification, error)

	// ListNotifications returns newest-first pages.
	ListNotifications(ctx context.Context, accountID string, limit, offset int) ([]domain.Notification, error)

	CountNotifications(ctx context.Context, accountID string) (int, error)

	MarkNotificationRead(ctx context.Context, id, accountID string) error
	MarkAllNotificationsRead(ctx context.Context, accountID string) error

	DeleteNotification(ctx context.Context, id, accountID string) error

	// DeleteUnreadSystemByTitle removes pending reminders (e.g. the
	// verify-email nudge once the email is verified).
	DeleteUnreadSystemByTitle(ctx context.Context, accountID, title string) error
}
