package sqlite

import (
	"context"
	"database/sql"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/store"
)

type notificationsRepo struct {
	q querier
}

const notificationColumns = `id, account_id, category, title, content,
	related_kind, related_id, is_read, created_at`

func (r *notificationsRepo) CreateNotification(ctx context.Context, n domain.Notification) error {
	var kind, relID sql.NullString
	if n.Related != nil {
		kind = sql.NullString{String: string(n.Related.Kind), Valid: true}
		relID = sql.NullString{String: n.Related.ID, Valid: true}
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO notifications (
			id, account_id, category, title, content, related_kind, related_id, is_read
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.AccountID, string(n.Category), n.Title, n.Content, kind, relID, n.Read,
	)
	return err
}

func (r *notificationsRepo) GetNotificationForAccount(ctx context.Context, id, accountID string) (domain.Notification, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE id = ? AND account_id = ?`, id, accountID)
	return scanNotification(row)
}

func (r *notificationsRepo) ListNotifications(ctx context.Context, accountID string, limit, offset int) ([]domain.Notification, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		n, err := scanNotificationRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *notificationsRepo) CountNotifications(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE account_id = ?`, accountID).Scan(&count)
	return count, err
}

func (r *notificationsRepo) MarkNotificationRead(ctx context.Context, id, accountID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1
		WHERE id = ? AND account_id = ?`, id, accountID)
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

func (r *notificationsRepo) MarkAllNotificationsRead(ctx context.Context, accountID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE notifications SET is_read = 1
		WHERE account_id = ? AND is_read = 0`, accountID)
	return err
}

func (r *notificationsRepo) DeleteNotification(ctx context.Context, id, accountID string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND account_id = ?`, id, accountID)
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

func (r *notificationsRepo) DeleteUnreadSystemByTitle(ctx context.Context, accountID, title string) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE account_id = ? AND category = ? AND title = ? AND is_read = 0`,
		accountID, string(domain.NotifySystem), title)
	return err
}

func scanNotification(row *sql.Row) (domain.Notification, error) {
	var (
		n          domain.Notification
		category   string
		kind, rid  sql.NullString
	)
	err := row.Scan(&n.ID, &n.AccountID, &category, &n.Title, &n.Content, &kind, &rid, &n.Read, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, mapNotFound(err)
	}
	n.Category = domain.NotificationCategory(category)
	n.Related = relatedFromColumns(kind, rid)
	return n, nil
}

func scanNotificationRows(rows *sql.Rows) (domain.Notification, error) {
	var (
		n         domain.Notification
		category  string
		kind, rid sql.NullString
	)
	err := rows.Scan(&n.ID, &n.AccountID, &category, &n.Title, &n.Content, &kind, &rid, &n.Read, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, err
	}
	n.Category = domain.NotificationCategory(category)
	n.Related = relatedFromColumns(kind, rid)
	return n, nil
}

func relatedFromColumns(kind, id sql.NullString) *domain.RelatedRef {
	if !kind.Valid || !id.Valid {
		return nil
	}
	return &domain.RelatedRef{Kind: domain.RefKind(kind.String), ID: id.String}
}
