package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/store"
)

type accountsRepo struct {
	q querier
}

const accountColumns = `id, email, name, phone, password_hash, role,
	email_verified, phone_verified, two_factor_enabled, totp_secret,
	verification_token, reset_token_hash, reset_token_expires,
	created_at, updated_at`

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (
			id, email, name, phone, password_hash, role,
			email_verified, phone_verified, two_factor_enabled,
			totp_secret, verification_token
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Email, a.Name, mapOptionalString(a.Phone), a.PasswordHash, string(a.Role),
		a.EmailVerified, a.PhoneVerified, a.TwoFactorEnabled,
		mapOptionalString(a.TOTPSecret), mapOptionalString(a.VerificationToken),
	)
	return mapConflict(err)
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByVerificationToken(ctx context.Context, token string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE verification_token = ?`, token)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByResetHash(ctx context.Context, hash string, now time.Time) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE reset_token_hash = ? AND reset_token_expires > ?`, hash, now)
	return scanAccount(row)
}

func (r *accountsRepo) MarkEmailVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET email_verified = 1, verification_token = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
}

func (r *accountsRepo) SetVerificationToken(ctx context.Context, id, token string) error {
	return r.exec(ctx, `
		UPDATE accounts SET verification_token = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, token, id)
}

func (r *accountsRepo) UpdatePhone(ctx context.Context, id, phone string) error {
	return r.exec(ctx, `
		UPDATE accounts SET phone = ?, phone_verified = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, phone, id)
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx, `
		UPDATE accounts SET password_hash = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, hash, id)
}

func (r *accountsRepo) SetResetToken(ctx context.Context, id, hash string, expires time.Time) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET reset_token_hash = ?, reset_token_expires = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, hash, expires, id)
}

func (r *accountsRepo) ClearResetToken(ctx context.Context, id string) error {
	return r.exec(ctx, `
		UPDATE accounts
		SET reset_token_hash = NULL, reset_token_expires = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
}

func (r *accountsRepo) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	return r.exec(ctx, `
		UPDATE accounts SET two_factor_enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, enabled, id)
}

func (r *accountsRepo) SetTOTPSecret(ctx context.Context, id string, secret *string) error {
	return r.exec(ctx, `
		UPDATE accounts SET totp_secret = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, mapOptionalString(secret), id)
}

func (r *accountsRepo) DeleteAccount(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM accounts WHERE id = ?`, id)
}

func (r *accountsRepo) ClearExpiredResetTokens(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE accounts
		SET reset_token_hash = NULL, reset_token_expires = NULL
		WHERE reset_token_expires IS NOT NULL AND reset_token_expires <= ?`, now)
	return err
}

// exec runs a single-row mutation and maps "no row touched" to ErrNotFound.
func (r *accountsRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	var (
		a            domain.Account
		role         string
		phone        sql.NullString
		totpSecret   sql.NullString
		verifToken   sql.NullString
		resetHash    sql.NullString
		resetExpires sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &phone, &a.PasswordHash, &role,
		&a.EmailVerified, &a.PhoneVerified, &a.TwoFactorEnabled, &totpSecret,
		&verifToken, &resetHash, &resetExpires,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.Role = domain.Role(role)
	a.Phone = mapNullStringPtr(phone)
	a.TOTPSecret = mapNullStringPtr(totpSecret)
	a.VerificationToken = mapNullStringPtr(verifToken)
	a.ResetTokenHash = mapNullStringPtr(resetHash)
	a.ResetTokenExpires = mapNullTimePtr(resetExpires)
	return a, nil
}
