package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
)

type sessionsRepo struct {
	q querier
}

const sessionColumns = `id, account_id, refresh_hash, ip_address, user_agent,
	device, location, last_active_at, created_at`

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	loc, err := marshalLocation(s.Location)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO sessions (
			id, account_id, refresh_hash, ip_address, user_agent, device,
			location, last_active_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AccountID, s.RefreshHash, s.IPAddress, s.UserAgent, s.Device,
		loc, s.LastActiveAt,
	)
	return mapConflict(err)
}

func (r *sessionsRepo) GetSessionByRefreshHash(ctx context.Context, hash string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_hash = ?`, hash)
	return scanSession(row)
}

func (r *sessionsRepo) GetSessionForAccount(ctx context.Context, id, accountID string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? AND account_id = ?`, id, accountID)
	return scanSession(row)
}

func (r *sessionsRepo) FindSessionByDevice(ctx context.Context, accountID, userAgent, ip string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE account_id = ? AND user_agent = ? AND ip_address = ?`,
		accountID, userAgent, ip)
	return scanSession(row)
}

func (r *sessionsRepo) ReplaceSessionRefresh(ctx context.Context, id, refreshHash string, lastActive time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET refresh_hash = ?, last_active_at = ?
		WHERE id = ?`, refreshHash, lastActive, id)
	return mapConflict(err)
}

func (r *sessionsRepo) ListSessionsByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE account_id = ? ORDER BY last_active_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *sessionsRepo) ListOtherSessions(ctx context.Context, accountID, exceptID string) ([]domain.Session, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE account_id = ? AND id != ? ORDER BY last_active_at DESC`,
		accountID, exceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *sessionsRepo) DeleteOtherSessions(ctx context.Context, accountID, exceptID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM sessions WHERE account_id = ? AND id != ?`, accountID, exceptID)
	return err
}

func (r *sessionsRepo) DeleteSessionsByAccount(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = ?`, accountID)
	return err
}

func (r *sessionsRepo) DeleteIdleSessions(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE last_active_at < ?`, cutoff)
	return err
}

func scanSession(row *sql.Row) (domain.Session, error) {
	var (
		s   domain.Session
		loc sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.AccountID, &s.RefreshHash, &s.IPAddress, &s.UserAgent,
		&s.Device, &loc, &s.LastActiveAt, &s.CreatedAt,
	)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.Location = unmarshalLocation(loc)
	return s, nil
}

func collectSessions(rows *sql.Rows) ([]domain.Session, error) {
	var out []domain.Session
	for rows.Next() {
		var (
			s   domain.Session
			loc sql.NullString
		)
		if err := rows.Scan(
			&s.ID, &s.AccountID, &s.RefreshHash, &s.IPAddress, &s.UserAgent,
			&s.Device, &loc, &s.LastActiveAt, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		s.Location = unmarshalLocation(loc)
		out = append(out, s)
	}
	return out, rows.Err()
}
