package domain

import "time"

// TokenPair is what a completed login returns: the short-lived access token
// (JWT) and the longer-lived refresh token.
type TokenPair struct {
	AccessToken  string        `json:"token"`
	RefreshToken string        `json:"refreshToken"`
	ExpiresIn    time.Duration `json:"-"`
}
