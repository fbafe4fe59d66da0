package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/betahouse/betahouse/internal/store"
)

// HousekeepingService periodically removes expired two-factor challenges,
// stale reset tokens and long-idle sessions so the tables don't grow
// without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// SessionIdleCutoff is how long a session may sit inactive before its
	// row is dropped. Defaults to the refresh token lifetime; after that the
	// refresh token is expired anyway.
	SessionIdleCutoff time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, sessionIdleCutoff time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if sessionIdleCutoff <= 0 {
		sessionIdleCutoff = 7 * 24 * time.Hour
	}
	return &HousekeepingService{
		Store:             st,
		Logger:            logger,
		Interval:          interval,
		SessionIdleCutoff: sessionIdleCutoff,
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, waiting for any in-progress sweep.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep runs each cleanup independently; one failing doesn't stop the rest.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	now := time.Now()

	if err := s.Store.TwoFactorChallenges().DeleteExpiredChallenges(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired two-factor challenges", "error", err)
	}
	if err := s.Store.Accounts().ClearExpiredResetTokens(ctx, now); err != nil {
		s.Logger.Error("failed to clear expired reset tokens", "error", err)
	}
	if err := s.Store.Sessions().DeleteIdleSessions(ctx, now.Add(-s.SessionIdleCutoff)); err != nil {
		s.Logger.Error("failed to delete idle sessions", "error", err)
	}
}
