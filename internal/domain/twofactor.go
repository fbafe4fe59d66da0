package domain

import "time"

// TwoFactorChallenge is a short-lived one-time email code gating token
// issuance. At most one live challenge exists per account: creating a new
// one deletes all prior challenges.
type TwoFactorChallenge struct {
	ID        string
	AccountID string
	Code      string
	// Attempts counts failed verifications. The challenge is invalidated
	// once MaxTwoFactorAttempts is reached.
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// MaxTwoFactorAttempts caps wrong-code guesses per challenge. A 6-digit code
// inside a 5-minute window is brute-forceable without this.
const MaxTwoFactorAttempts = 5

// TwoFactorChallengeTTL is how long an emailed code stays redeemable.
const TwoFactorChallengeTTL = 5 * time.Minute

// Expired reports whether the challenge is past its expiry at the given time.
func (c TwoFactorChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
