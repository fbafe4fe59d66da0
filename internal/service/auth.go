package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/mail"
	"github.com/betahouse/betahouse/internal/store"
	"github.com/betahouse/betahouse/pkg/cryptox"
	"github.com/betahouse/betahouse/pkg/idx"
	"github.com/betahouse/betahouse/pkg/slogx"
	"github.com/google/uuid"
)

// ResetTokenTTL bounds how long an emailed password-reset link stays valid.
const ResetTokenTTL = time.Hour

// Notification titles the auth flows emit. The verify-email reminder is
// matched by title when it gets dismissed, so it lives here as a constant.
const (
	titleWelcome         = "Welcome to BetaHouse"
	titleVerifyEmail     = "Verify your email"
	titleEmailVerified   = "Email Verified"
	titlePasswordChanged = "Password Changed"
	titlePhoneUpdated    = "Phone Number Updated"
)

// AuthService implements signup, login and account credential flows on top
// of the session, token, two-factor and notification services.
type AuthService struct {
	Store     store.Store
	Sessions  *SessionService
	TwoFactor *TwoFactorService
	Notifier  *NotificationService
	Mailer    mail.Mailer

	// FrontendURL is the base for links embedded in emails.
	FrontendURL string
}

type SignupInput struct {
	Email    string
	Name     string
	Password string
	Phone    string
}

// Signup registers an account, emails a verification link and seeds the
// welcome notifications. The account starts unverified; login works
// regardless, verification only gates trust signals.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (domain.Account, error) {
	l := slogx.FromContext(ctx)

	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return domain.Account{}, Invalidf("email and name are required")
	}
	if len(in.Password) < 8 {
		return domain.Account{}, Invalidf("password must be at least 8 characters")
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.Account{}, err
	}

	verifyToken := uuid.NewString()
	account := domain.Account{
		ID:                idx.New().String(),
		Email:             email,
		Name:              name,
		PasswordHash:      hash,
		Role:              domain.RoleUser,
		VerificationToken: &verifyToken,
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		account.Phone = &phone
	}

	if err := s.Store.Accounts().CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, ErrEmailTaken
		}
		return domain.Account{}, err
	}

	subject, body := mail.Verification(account.Name, s.FrontendURL, verifyToken)
	if err := s.Mailer.Send(ctx, mail.Message{To: account.Email, Subject: subject, Body: body}); err != nil {
		l.Warn("verification email failed",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
	}

	s.dispatchSystem(ctx, account.ID, titleWelcome,
		"Welcome to BetaHouse, "+account.Name+"! Complete your profile to get the most out of your account.")
	s.dispatchSystem(ctx, account.ID, titleVerifyEmail,
		"Please verify your email address to unlock all features.")

	l.Info("account created", slog.String("account_id", account.ID))
	return account, nil
}

// Login checks the password and either issues tokens or, when the account
// has two-factor enabled, starts a challenge and reports
// ErrTwoFactorRequired.
func (s *AuthService) Login(ctx context.Context, email, password string, dev DeviceContext) (domain.TokenPair, error) {
	account, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	if account.TwoFactorEnabled {
		// Authenticator users produce their own codes; only email-code
		// accounts need a challenge created and sent.
		if account.TOTPSecret == nil || *account.TOTPSecret == "" {
			if err := s.TwoFactor.BeginEmailChallenge(ctx, account); err != nil {
				return domain.TokenPair{}, err
			}
		}
		return domain.TokenPair{}, ErrTwoFactorRequired
	}

	return s.Sessions.Establish(ctx, account, dev)
}

// CompleteTwoFactor finishes a login that stopped at the second factor.
func (s *AuthService) CompleteTwoFactor(ctx context.Context, email, code string, dev DeviceContext) (domain.TokenPair, error) {
	account, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if !account.TwoFactorEnabled {
		return domain.TokenPair{}, ErrTwoFactorDisabled
	}
	if err := s.TwoFactor.VerifySecondFactor(ctx, account, code); err != nil {
		return domain.TokenPair{}, err
	}
	return s.Sessions.Establish(ctx, account, dev)
}

// VerifyEmail redeems a verification token, dismisses the pending reminder
// and confirms with a notification.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	account, err := s.Store.Accounts().GetAccountByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidVerification
		}
		return err
	}

	if err := s.Store.Accounts().MarkEmailVerified(ctx, account.ID); err != nil {
		return err
	}

	if err := s.Notifier.DismissReminder(ctx, account.ID, titleVerifyEmail); err != nil {
		slogx.FromContext(ctx).Warn("failed to dismiss verify-email reminder",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
	}
	s.dispatchSystem(ctx, account.ID, titleEmailVerified,
		"Your email address has been verified. Thanks for confirming it's you.")
	return nil
}

// ResendVerification replaces the verification token and emails the new
// link.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	account, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.EmailVerified {
		return ErrAlreadyVerified
	}

	token := uuid.NewString()
	if err := s.Store.Accounts().SetVerificationToken(ctx, account.ID, token); err != nil {
		return err
	}

	subject, body := mail.Verification(account.Name, s.FrontendURL, token)
	return s.Mailer.Send(ctx, mail.Message{To: account.Email, Subject: subject, Body: body})
}

// ForgotPassword issues a reset token and emails the link. Unknown emails
// return success so the endpoint does not leak which addresses exist.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			slogx.FromContext(ctx).Info("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}
	expires := time.Now().Add(ResetTokenTTL)
	if err := s.Store.Accounts().SetResetToken(ctx, account.ID, cryptox.FingerprintToken(token), expires); err != nil {
		return err
	}

	subject, body := mail.PasswordReset(account.Name, s.FrontendURL, token)
	if err := s.Mailer.Send(ctx, mail.Message{To: account.Email, Subject: subject, Body: body}); err != nil {
		slogx.FromContext(ctx).Warn("password reset email failed",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
	}
	return nil
}

// ResetPassword redeems a reset token, replaces the password and revokes
// every session so stolen tokens die with the old password.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return Invalidf("password must be at least 8 characters")
	}

	now := time.Now()
	account, err := s.Store.Accounts().GetAccountByResetHash(ctx, cryptox.FingerprintToken(token), now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidReset
		}
		return err
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdatePasswordHash(ctx, account.ID, hash); err != nil {
			return err
		}
		return tx.Accounts().ClearResetToken(ctx, account.ID)
	})
	if err != nil {
		return err
	}

	if err := s.Sessions.RevokeAll(ctx, account.ID); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke sessions after password reset",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
	}

	s.dispatchSystem(ctx, account.ID, titlePasswordChanged,
		"Your password was changed. If this wasn't you, reset it immediately and contact support.")
	return nil
}

// GetAccount loads the account for profile display.
func (s *AuthService) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, ErrNotFound
		}
		return domain.Account{}, err
	}
	return account, nil
}

// GetAccountByEmail serves pre-auth flows that need the account record,
// e.g. resending a two-factor code. Unknown emails map to
// ErrInvalidCredentials.
func (s *AuthService) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	return s.lookupByEmail(ctx, email)
}

// UpdatePhone sets the account's phone number.
func (s *AuthService) UpdatePhone(ctx context.Context, accountID, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Invalidf("phone number is required")
	}
	if err := s.Store.Accounts().UpdatePhone(ctx, accountID, phone); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.dispatch(ctx, domain.Notification{
		AccountID: accountID,
		Category:  domain.NotifyProfileUpdated,
		Title:     titlePhoneUpdated,
		Content:   "Your phone number on file was updated.",
	})
	return nil
}

func (s *AuthService) lookupByEmail(ctx context.Context, email string) (domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.Store.Accounts().GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, ErrInvalidCredentials
		}
		return domain.Account{}, err
	}
	return account, nil
}

func (s *AuthService) dispatchSystem(ctx context.Context, accountID, title, content string) {
	s.dispatch(ctx, domain.Notification{
		AccountID: accountID,
		Category:  domain.NotifySystem,
		Title:     title,
		Content:   content,
	})
}

// dispatch is best effort: a notification failure never fails the auth flow
// that triggered it.
func (s *AuthService) dispatch(ctx context.Context, n domain.Notification) {
	if _, err := s.Notifier.Dispatch(ctx, n); err != nil {
		slogx.FromContext(ctx).Warn("notification dispatch failed",
			slog.String("account_id", n.AccountID),
			slog.String("title", n.Title),
			slog.Any("error", err),
		)
	}
}
