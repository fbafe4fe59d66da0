package sqlite

import (
	"context"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/store"
)

type challengesRepo struct {
	q querier
}

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.TwoFactorChallenge) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO two_factor_challenges (id, account_id, code, attempts, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.Code, c.Attempts, c.ExpiresAt,
	)
	return err
}

func (r *challengesRepo) GetActiveChallenge(ctx context.Context, accountID string) (domain.TwoFactorChallenge, error) {
	var c domain.TwoFactorChallenge
	err := r.q.QueryRowContext(ctx, `
		SELECT id, account_id, code, attempts, expires_at, created_at
		FROM two_factor_challenges
		WHERE account_id = ?
		ORDER BY created_at DESC
		LIMIT 1`, accountID).
		Scan(&c.ID, &c.AccountID, &c.Code, &c.Attempts, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.TwoFactorChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) IncrementChallengeAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.q.QueryRowContext(ctx, `
		UPDATE two_factor_challenges SET attempts = attempts + 1
		WHERE id = ?
		RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *challengesRepo) DeleteChallengesByAccount(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM two_factor_challenges WHERE account_id = ?`, accountID)
	return err
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM two_factor_challenges WHERE expires_at <= ?`, now)
	return err
}

var _ store.TwoFactorChallenges = (*challengesRepo)(nil)
