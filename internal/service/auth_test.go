package service

import (
	"context"
	"strings"
	"testing"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	account := env.signup(t, "alice@example.com")
	require.Equal(t, "alice@example.com", account.Email)
	require.Equal(t, domain.RoleUser, account.Role)
	require.False(t, account.EmailVerified)
	require.NotNil(t, account.VerificationToken)

	// Password is stored hashed, never verbatim.
	stored, err := env.store.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotEqual(t, "correct horse battery", stored.PasswordHash)
	require.NoError(t, cryptox.VerifyPassword("correct horse battery", stored.PasswordHash))

	// Verification email went out with the token.
	msg := env.mailer.find(t, *account.VerificationToken)
	require.Equal(t, "alice@example.com", msg.To)

	// Welcome and verify-email notifications were seeded, each with an
	// email copy.
	items, total, err := env.notifier.List(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	titles := []string{items[0].Title, items[1].Title}
	require.ElementsMatch(t, []string{titleWelcome, titleVerifyEmail}, titles)
	require.Equal(t, "alice@example.com", env.mailer.find(t, titleWelcome).To)
	require.Equal(t, 3, env.mailer.count())
}

func TestSignup_DuplicateEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.signup(t, "bob@example.com")
	_, err := env.auth.Signup(context.Background(), SignupInput{
		Email:    "Bob@Example.com", // case-insensitive duplicate
		Name:     "Other Bob",
		Password: "another password",
	})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignup_NotificationsSurviveMailOutage(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.mailer.fail = true

	account, err := env.auth.Signup(context.Background(), SignupInput{
		Email:    "carol@example.com",
		Name:     "Carol",
		Password: "password123",
	})
	require.NoError(t, err, "signup must succeed even when email cannot be sent")

	_, total, err := env.notifier.List(context.Background(), account.ID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	account := env.signup(t, "dave@example.com")

	pair, err := env.auth.Login(ctx, "dave@example.com", "correct horse battery", testDevice)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := env.tokens.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, account.ID, claims.Subject)
	require.Equal(t, "user", claims.Role)
	require.NotEmpty(t, claims.SID)

	_, err = env.auth.Login(ctx, "dave@example.com", "wrong password", testDevice)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.auth.Login(ctx, "nobody@example.com", "whatever", testDevice)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_SameDeviceReusesSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	account := env.signup(t, "erin@example.com")

	_, err := env.auth.Login(ctx, "erin@example.com", "correct horse battery", testDevice)
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, "erin@example.com", "correct horse battery", testDevice)
	require.NoError(t, err)

	sessions, err := env.sessions.List(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1, "same device should upsert, not duplicate")

	other := DeviceContext{IPAddress: "10.1.2.3", UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0"}
	_, err = env.auth.Login(ctx, "erin@example.com", "correct horse battery", other)
	require.NoError(t, err)

	sessions, err = env.sessions.List(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestVerifyEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	account := env.signup(t, "frank@example.com")
	token := *account.VerificationToken

	require.NoError(t, env.auth.VerifyEmail(ctx, token))

	stored, err := env.store.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, stored.EmailVerified)
	require.Nil(t, stored.VerificationToken)

	// Reminder dismissed, confirmation added: welcome + verified = 2.
	items, total, err := env.notifier.List(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	for _, n := range items {
		require.NotEqual(t, titleVerifyEmail, n.Title)
	}

	// Token is single use.
	require.ErrorIs(t, env.auth.VerifyEmail(ctx, token), ErrInvalidVerification)
}

func TestResendVerification(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	account := env.signup(t, "grace@example.com")
	oldToken := *account.VerificationToken

	require.NoError(t, env.auth.ResendVerification(ctx, "grace@example.com"))

	stored, err := env.store.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VerificationToken)
	require.NotEqual(t, oldToken, *stored.VerificationToken)

	// Old token no longer redeems.
	require.ErrorIs(t, env.auth.VerifyEmail(ctx, oldToken), ErrInvalidVerification)
	require.NoError(t, env.auth.VerifyEmail(ctx, *stored.VerificationToken))

	require.ErrorIs(t, env.auth.ResendVerification(ctx, "grace@example.com"), ErrAlreadyVerified)
}

func TestForgotAndResetPassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	account := env.signup(t, "heidi@example.com")

	// Establish a session that the reset must kill.
	pair, err := env.auth.Login(ctx, "heidi@example.com", "correct horse battery", testDevice)
	require.NoError(t, err)

	require.NoError(t, env.auth.ForgotPassword(ctx, "heidi@example.com"))

	// The raw token only exists in the email; fish it out of the link.
	msg := env.mailer.last(t)
	require.Contains(t, msg.Body, "reset-password?token=")
	token := extractToken(t, msg.Body, "reset-password?token=")

	require.NoError(t, env.auth.ResetPassword(ctx, token, "brand new password"))

	// Old password dead, new one works.
	_, err = env.auth.Login(ctx, "heidi@example.com", "correct horse battery", testDevice)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "heidi@example.com", "brand new password", testDevice)
	require.NoError(t, err)

	// The pre-reset refresh token no longer rotates.
	_, err = env.sessions.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefresh)

	// Reset token is single use.
	require.ErrorIs(t, env.auth.ResetPassword(ctx, token, "yet another password"), ErrInvalidReset)

	// Password-changed notification exists.
	items, _, err := env.notifier.List(ctx, account.ID, 10, 0)
	require.NoError(t, err)
	var found bool
	for _, n := range items {
		if n.Title == titlePasswordChanged {
			found = true
		}
	}
	require.True(t, found)
}

func TestForgotPassword_UnknownEmailSilent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	require.NoError(t, env.auth.ForgotPassword(context.Background(), "ghost@example.com"))
	require.Zero(t, env.mailer.count())
}

func TestUpdatePhone(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	account := env.signup(t, "ivan@example.com")

	require.NoError(t, env.auth.UpdatePhone(ctx, account.ID, "+61 400 000 000"))

	stored, err := env.store.Accounts().GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Phone)
	require.Equal(t, "+61 400 000 000", *stored.Phone)
	require.True(t, stored.PhoneVerified)

	err = env.auth.UpdatePhone(ctx, account.ID, "   ")
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
}

// extractToken pulls the token query value out of an emailed link.
func extractToken(t *testing.T, body, marker string) string {
	t.Helper()
	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0)
	rest := body[idx+len(marker):]
	if end := strings.IndexAny(rest, "\r\n &"); end >= 0 {
		return rest[:end]
	}
	return rest
}
