// Package mail sends transactional email over SMTP.
package mail

import (
	"context"
	"fmt"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers a single message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Verification builds the email-verification message pointing at the
// frontend's verify page.
func Verification(name, baseURL, token string) (subject, body string) {
	subject = "Verify Your Email"
	body = fmt.Sprintf(
		"Hi %s,\r\n\r\n"+
			"Welcome to BetaHouse. Please confirm your email address by opening the link below:\r\n\r\n"+
			"%s/verify-email?token=%s\r\n\r\n"+
			"If you did not create an account, you can ignore this email.\r\n",
		name, baseURL, token)
	return subject, body
}

// TwoFactorCode builds the one-time code message.
func TwoFactorCode(code string) (subject, body string) {
	subject = "Your Two-Factor Authentication (2FA) Code"
	body = fmt.Sprintf(
		"Your verification code is: %s\r\n\r\n"+
			"The code expires in 5 minutes. Do not share it with anyone.\r\n",
		code)
	return subject, body
}

// PasswordReset builds the reset message pointing at the frontend's reset
// page.
func PasswordReset(name, baseURL, token string) (subject, body string) {
	subject = "Password Reset Request"
	body = fmt.Sprintf(
		"Hi %s,\r\n\r\n"+
			"We received a request to reset your password. Open the link below to choose a new one:\r\n\r\n"+
			"%s/reset-password?token=%s\r\n\r\n"+
			"The link expires in 1 hour. If you did not request a reset, no action is needed.\r\n",
		name, baseURL, token)
	return subject, body
}

// Notification builds a plain copy of an in-app notification.
func Notification(title, content string) (subject, body string) {
	return title, content + "\r\n"
}
