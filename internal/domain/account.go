package domain

import "time"

// Role is the coarse authorization level of an account. Role transitions are
// monotonic in practice (user -> agent) but not enforced structurally.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// Account is an identity record with credentials and role.
type Account struct {
	ID    string
	Email string
	Name  string
	Phone *string

	// PasswordHash is an argon2id PHC string. Empty for accounts created
	// through federated login, which never set a local password.
	PasswordHash string

	Role             Role
	EmailVerified    bool
	PhoneVerified    bool
	TwoFactorEnabled bool

	// TOTPSecret is the base32 authenticator secret, set once the account
	// activates an authenticator app as its second factor.
	TOTPSecret *string

	// VerificationToken is the single active email-verification token.
	// Cleared when the email is verified.
	VerificationToken *string

	// ResetTokenHash and ResetTokenExpires track the active password-reset
	// token. The raw token only ever travels by email.
	ResetTokenHash    *string
	ResetTokenExpires *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
