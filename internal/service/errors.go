package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrRevoked            = errors.New("token revoked")

	// ErrTwoFactorRequired signals that the password checked out but a second
	// factor is still needed before tokens are issued.
	ErrTwoFactorRequired = errors.New("two-factor verification required")

	ErrInvalidCode     = errors.New("invalid verification code")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrTooManyAttempts = errors.New("too many failed attempts")

	ErrAlreadyVerified     = errors.New("email already verified")
	ErrInvalidVerification = errors.New("invalid verification token")
	ErrInvalidReset        = errors.New("invalid or expired reset token")

	ErrTwoFactorEnabled  = errors.New("two-factor already enabled")
	ErrTwoFactorDisabled = errors.New("two-factor not enabled")
	ErrNotEnrolled       = errors.New("authenticator not enrolled")

	ErrNotFound = errors.New("not found")
)

// ValidationError marks user-correctable input problems. The transport
// layer maps it to a 400 and echoes the message verbatim.
type ValidationError struct {
	msg string
}

func (e ValidationError) Error() string { return e.msg }

// Invalidf builds a ValidationError.
func Invalidf(format string, args ...any) error {
	return ValidationError{msg: fmt.Sprintf(format, args...)}
}
