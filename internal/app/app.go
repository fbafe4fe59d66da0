package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/betahouse/betahouse/internal/cache"
	"github.com/betahouse/betahouse/internal/geoip"
	httpapi "github.com/betahouse/betahouse/internal/http"
	"github.com/betahouse/betahouse/internal/mail"
	"github.com/betahouse/betahouse/internal/service"
	"github.com/betahouse/betahouse/internal/store"
	"github.com/betahouse/betahouse/internal/store/drivers/sqlite"
	"github.com/betahouse/betahouse/pkg/jwtx"
	"github.com/betahouse/betahouse/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the session and notification backend together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	cache    *cache.Cache
	presence *service.Presence

	authService         *service.AuthService
	sessionService      *service.SessionService
	tokenService        *service.TokenService
	twoFactorService    *service.TwoFactorService
	notificationService *service.NotificationService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "betahouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.cache = cache.New()
	app.presence = service.NewPresence()

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("betahouse starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the HTTP server, background workers and storage.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.cache.Close()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied")
	return nil
}

func (app *Application) initServices() {
	mailer := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:      app.cfg.SMTPHost,
		Port:      app.cfg.SMTPPort,
		Username:  app.cfg.SMTPUsername,
		Password:  app.cfg.SMTPPassword,
		TLSMode:   app.cfg.SMTPTLSMode,
		FromName:  app.cfg.SMTPFromName,
		FromEmail: app.cfg.SMTPFromEmail,
	})

	var geo geoip.Resolver
	if app.cfg.GeoIPToken != "" {
		geo = geoip.NewClient(app.cfg.GeoIPBaseURL, app.cfg.GeoIPToken)
	}

	app.tokenService = &service.TokenService{
		AccessSigner:    jwtx.Signer{Secret: []byte(app.cfg.AccessSecret), Issuer: app.cfg.Issuer},
		AccessVerifier:  jwtx.Verifier{Secret: []byte(app.cfg.AccessSecret), Issuer: app.cfg.Issuer},
		RefreshSigner:   jwtx.Signer{Secret: []byte(app.cfg.RefreshSecret), Issuer: app.cfg.Issuer},
		RefreshVerifier: jwtx.Verifier{Secret: []byte(app.cfg.RefreshSecret), Issuer: app.cfg.Issuer},
		Cache:           app.cache,
		AccessTTL:       app.cfg.AccessTTL,
		RefreshTTL:      app.cfg.RefreshTTL,
	}

	app.sessionService = &service.SessionService{
		Store:  app.db,
		Tokens: app.tokenService,
		Geo:    geo,
	}

	app.twoFactorService = &service.TwoFactorService{
		Store:      app.db,
		Mailer:     mailer,
		TOTPIssuer: "BetaHouse",
	}

	app.notificationService = &service.NotificationService{
		Store:    app.db,
		Cache:    app.cache,
		Presence: app.presence,
		Mailer:   mailer,
	}

	app.authService = &service.AuthService{
		Store:       app.db,
		Sessions:    app.sessionService,
		TwoFactor:   app.twoFactorService,
		Notifier:    app.notificationService,
		Mailer:      mailer,
		FrontendURL: app.cfg.FrontendURL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.RefreshTTL,
	)
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.AuthService = app.authService
	router.SessionService = app.sessionService
	router.TokenService = app.tokenService
	router.TwoFactorService = app.twoFactorService
	router.NotificationService = app.notificationService
	router.Presence = app.presence
	router.ApplyRoutes()

	app.router = router

	// No WriteTimeout: /v1/events holds its connection open indefinitely.
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
