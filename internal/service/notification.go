package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/betahouse/betahouse/internal/cache"
	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/mail"
	"github.com/betahouse/betahouse/internal/store"
	"github.com/betahouse/betahouse/pkg/idx"
	"github.com/betahouse/betahouse/pkg/slogx"
)

const (
	notificationCachePrefix = "notifications:"
	notificationCacheTTL    = 24 * time.Hour

	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationService persists notifications, keeps a short-lived read
// cache, and pushes to any live event stream. The store write is the only
// step that can fail the dispatch; cache and push are best effort.
type NotificationService struct {
	Store    store.Store
	Cache    *cache.Cache
	Presence *Presence
	Mailer   mail.Mailer
}

// Dispatch validates, persists and fans out a notification. The returned
// value carries the assigned ID and timestamp.
func (s *NotificationService) Dispatch(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if !n.Category.Valid() {
		return domain.Notification{}, Invalidf("unknown notification category %q", n.Category)
	}
	if n.Related != nil {
		if err := n.Related.Validate(); err != nil {
			return domain.Notification{}, Invalidf("%s", err.Error())
		}
	}
	if n.AccountID == "" || n.Title == "" {
		return domain.Notification{}, Invalidf("notification missing account or title")
	}

	id := idx.New()
	n.ID = id.String()
	n.CreatedAt = id.Time()
	n.Read = false

	if err := s.Store.Notifications().CreateNotification(ctx, n); err != nil {
		return domain.Notification{}, err
	}

	s.cachePut(n)
	s.Presence.Publish(n.AccountID, n)
	s.emailCopy(ctx, n)

	return n, nil
}

// emailCopy delivers a plain-text copy of the notification to the account's
// registered address. Failures are logged and swallowed; mail is a courtesy
// channel and the persisted row is the source of truth.
func (s *NotificationService) emailCopy(ctx context.Context, n domain.Notification) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, n.AccountID)
	if err != nil {
		slogx.FromContext(ctx).Warn("notification email skipped, account lookup failed",
			slog.String("account_id", n.AccountID),
			slog.Any("error", err),
		)
		return
	}

	subject, body := mail.Notification(n.Title, n.Content)
	if err := s.Mailer.Send(ctx, mail.Message{To: account.Email, Subject: subject, Body: body}); err != nil {
		slogx.FromContext(ctx).Warn("notification email failed",
			slog.String("account_id", n.AccountID),
			slog.Any("error", err),
		)
	}
}

// Get returns a single notification, serving from cache when possible.
func (s *NotificationService) Get(ctx context.Context, accountID, id string) (domain.Notification, error) {
	if n, ok := s.cacheGet(accountID, id); ok {
		return n, nil
	}
	n, err := s.Store.Notifications().GetNotificationForAccount(ctx, id, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Notification{}, ErrNotFound
		}
		return domain.Notification{}, err
	}
	s.cachePut(n)
	return n, nil
}

// List returns a newest-first page plus the total count. The cache is
// consulted first; the store is the fallback and refills it.
func (s *NotificationService) List(ctx context.Context, accountID string, limit, offset int) ([]domain.Notification, int, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	if offset < 0 {
		offset = 0
	}

	if cached, ok := s.cacheList(accountID); ok {
		total := len(cached)
		if offset >= total {
			return []domain.Notification{}, total, nil
		}
		page := cached[offset:]
		if len(page) > limit {
			page = page[:limit]
		}
		return page, total, nil
	}

	items, err := s.Store.Notifications().ListNotifications(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Store.Notifications().CountNotifications(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}

	for _, n := range items {
		s.cachePut(n)
	}
	return items, total, nil
}

// MarkRead flips the read flag on one notification.
func (s *NotificationService) MarkRead(ctx context.Context, accountID, id string) error {
	if err := s.Store.Notifications().MarkNotificationRead(ctx, id, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if n, ok := s.cacheGet(accountID, id); ok {
		n.Read = true
		s.cachePut(n)
	}
	return nil
}

// MarkAllRead flips the read flag on every notification of the account.
func (s *NotificationService) MarkAllRead(ctx context.Context, accountID string) error {
	if err := s.Store.Notifications().MarkAllNotificationsRead(ctx, accountID); err != nil {
		return err
	}
	// Rewrite the cached copies in place. Dropping them wholesale would
	// leave the next dispatch as the only cached entry, and list reads
	// would then serve an incomplete page.
	for _, key := range s.Cache.Keys(notificationCachePrefix + accountID + ":") {
		b, ok := s.Cache.Get(key)
		if !ok {
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal(b, &n); err != nil {
			s.Cache.Delete(key)
			continue
		}
		n.Read = true
		s.cachePut(n)
	}
	return nil
}

// Delete removes one notification.
func (s *NotificationService) Delete(ctx context.Context, accountID, id string) error {
	if err := s.Store.Notifications().DeleteNotification(ctx, id, accountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.Cache.Delete(notificationCacheKey(accountID, id))
	return nil
}

// DismissReminder removes an unread system reminder by title, e.g. the
// verify-email nudge once verification succeeds.
func (s *NotificationService) DismissReminder(ctx context.Context, accountID, title string) error {
	if err := s.Store.Notifications().DeleteUnreadSystemByTitle(ctx, accountID, title); err != nil {
		return err
	}
	// Evict only the dismissed entries so the rest of the cached set stays
	// servable.
	if cached, ok := s.cacheList(accountID); ok {
		for _, n := range cached {
			if n.Category == domain.NotifySystem && n.Title == title && !n.Read {
				s.Cache.Delete(notificationCacheKey(accountID, n.ID))
			}
		}
	}
	return nil
}

func notificationCacheKey(accountID, id string) string {
	return notificationCachePrefix + accountID + ":" + id
}

func (s *NotificationService) cachePut(n domain.Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		return
	}
	s.Cache.Set(notificationCacheKey(n.AccountID, n.ID), b, notificationCacheTTL)
}

// cacheList returns every cached notification of the account, newest first.
// ULIDs embed their creation time, so sorting on ID sorts on age.
func (s *NotificationService) cacheList(accountID string) ([]domain.Notification, bool) {
	keys := s.Cache.Keys(notificationCachePrefix + accountID + ":")
	if len(keys) == 0 {
		return nil, false
	}

	items := make([]domain.Notification, 0, len(keys))
	for _, key := range keys {
		b, ok := s.Cache.Get(key)
		if !ok {
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal(b, &n); err != nil {
			return nil, false
		}
		items = append(items, n)
	}
	if len(items) == 0 {
		return nil, false
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, true
}

func (s *NotificationService) cacheGet(accountID, id string) (domain.Notification, bool) {
	b, ok := s.Cache.Get(notificationCacheKey(accountID, id))
	if !ok {
		return domain.Notification{}, false
	}
	var n domain.Notification
	if err := json.Unmarshal(b, &n); err != nil {
		return domain.Notification{}, false
	}
	return n, true
}
