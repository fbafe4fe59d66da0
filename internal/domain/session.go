package domain

import "time"

// Location is a best-effort geolocation resolved from the login IP. Nil on
// loopback logins and when the lookup provider is unavailable.
type Location struct {
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
	Coords  string `json:"loc,omitempty"` // "lat,lon" as the provider reports it
}

// Session binds an account to a device/IP pairing and the refresh token
// currently valid for it. The refresh token is stored as a SHA-256
// fingerprint; the fingerprint is the rotation/revocation lookup key.
type Session struct {
	ID        string
	AccountID string

	RefreshHash string

	IPAddress string
	UserAgent string
	// Device is a coarse descriptor parsed from the user agent, e.g.
	// "Chrome / Windows". Display-only.
	Device string

	Location *Location

	LastActiveAt time.Time
	CreatedAt    time.Time
}
