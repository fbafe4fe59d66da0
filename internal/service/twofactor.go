package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/mail"
	"github.com/betahouse/betahouse/internal/store"
	"github.com/betahouse/betahouse/pkg/cryptox"
	"github.com/betahouse/betahouse/pkg/idx"
	"github.com/betahouse/betahouse/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const twoFactorCodeDigits = 6

// TOTPEnrollment is handed back from EnrollTOTP so the client can render a
// QR code. Activation still requires a valid code.
type TOTPEnrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

// TwoFactorService implements the second login factor: emailed one-time
// codes by default, with an authenticator app (TOTP) as an opt-in
// replacement.
type TwoFactorService struct {
	Store  store.Store
	Mailer mail.Mailer

	// TOTPIssuer is the label shown in authenticator apps.
	TOTPIssuer string
}

// BeginEmailChallenge creates a fresh challenge for the account and emails
// the code. Any prior challenge is invalidated first, so at most one code
// is redeemable at a time.
func (s *TwoFactorService) BeginEmailChallenge(ctx context.Context, account domain.Account) error {
	now := time.Now()

	code, err := cryptox.GenerateNumericCode(twoFactorCodeDigits)
	if err != nil {
		return err
	}

	challenge := domain.TwoFactorChallenge{
		ID:        idx.New().String(),
		AccountID: account.ID,
		Code:      code,
		ExpiresAt: now.Add(domain.TwoFactorChallengeTTL),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TwoFactorChallenges().DeleteChallengesByAccount(ctx, account.ID); err != nil {
			return err
		}
		return tx.TwoFactorChallenges().CreateChallenge(ctx, challenge)
	})
	if err != nil {
		return err
	}

	subject, body := mail.TwoFactorCode(code)
	if err := s.Mailer.Send(ctx, mail.Message{To: account.Email, Subject: subject, Body: body}); err != nil {
		slogx.FromContext(ctx).Error("two-factor code email failed",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// VerifyEmailCode redeems an emailed code. Codes are single use: a match
// deletes the challenge. A wrong code burns an attempt; hitting the cap
// invalidates the challenge entirely.
func (s *TwoFactorService) VerifyEmailCode(ctx context.Context, accountID, code string) error {
	now := time.Now()

	challenge, err := s.Store.TwoFactorChallenges().GetActiveChallenge(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}

	if challenge.Expired(now) {
		_ = s.Store.TwoFactorChallenges().DeleteChallengesByAccount(ctx, accountID)
		return ErrCodeExpired
	}
	if challenge.Attempts >= domain.MaxTwoFactorAttempts {
		_ = s.Store.TwoFactorChallenges().DeleteChallengesByAccount(ctx, accountID)
		return ErrTooManyAttempts
	}

	if challenge.Code != code {
		attempts, err := s.Store.TwoFactorChallenges().IncrementChallengeAttempts(ctx, challenge.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if attempts >= domain.MaxTwoFactorAttempts {
			_ = s.Store.TwoFactorChallenges().DeleteChallengesByAccount(ctx, accountID)
			return ErrTooManyAttempts
		}
		return ErrInvalidCode
	}

	return s.Store.TwoFactorChallenges().DeleteChallengesByAccount(ctx, accountID)
}

// VerifySecondFactor checks the code against whichever factor the account
// uses: the authenticator app when enrolled, the emailed code otherwise.
func (s *TwoFactorService) VerifySecondFactor(ctx context.Context, account domain.Account, code string) error {
	if account.TOTPSecret != nil && *account.TOTPSecret != "" {
		if !totp.Validate(code, *account.TOTPSecret) {
			return ErrInvalidCode
		}
		return nil
	}
	return s.VerifyEmailCode(ctx, account.ID, code)
}

// Enable turns on two-factor login for the account.
func (s *TwoFactorService) Enable(ctx context.Context, accountID string) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TwoFactorEnabled {
		return ErrTwoFactorEnabled
	}
	return s.Store.Accounts().SetTwoFactorEnabled(ctx, accountID, true)
}

// Disable turns off two-factor login after re-verifying the password. The
// authenticator secret is cleared too so a later re-enable starts clean.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, password string) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		return ErrTwoFactorDisabled
	}
	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().SetTwoFactorEnabled(ctx, accountID, false); err != nil {
			return err
		}
		if err := tx.Accounts().SetTOTPSecret(ctx, accountID, nil); err != nil {
			return err
		}
		return tx.TwoFactorChallenges().DeleteChallengesByAccount(ctx, accountID)
	})
}

// EnrollTOTP generates an authenticator secret for the account. The secret
// is stored immediately but only becomes the active factor once ActivateTOTP
// confirms the account can produce valid codes.
func (s *TwoFactorService) EnrollTOTP(ctx context.Context, accountID string) (TOTPEnrollment, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return TOTPEnrollment{}, err
	}
	if account.TwoFactorEnabled && account.TOTPSecret != nil && *account.TOTPSecret != "" {
		return TOTPEnrollment{}, ErrTwoFactorEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.TOTPIssuer,
		AccountName: account.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPEnrollment{}, err
	}

	secret := key.Secret()
	if err := s.Store.Accounts().SetTOTPSecret(ctx, accountID, &secret); err != nil {
		return TOTPEnrollment{}, err
	}

	return TOTPEnrollment{Secret: secret, OTPAuthURL: key.URL()}, nil
}

// ActivateTOTP verifies a code from the freshly enrolled authenticator and
// switches two-factor login on with the app as the active factor.
func (s *TwoFactorService) ActivateTOTP(ctx context.Context, accountID, code string) error {
	account, err := s.Store.Accounts().GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.TOTPSecret == nil || *account.TOTPSecret == "" {
		return ErrNotEnrolled
	}
	if !totp.Validate(code, *account.TOTPSecret) {
		return ErrInvalidCode
	}
	return s.Store.Accounts().SetTwoFactorEnabled(ctx, accountID, true)
}
