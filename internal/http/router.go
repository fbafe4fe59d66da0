package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/betahouse/betahouse/internal/service"
	"github.com/betahouse/betahouse/internal/store"
	"github.com/betahouse/betahouse/pkg/httpx"
	"github.com/betahouse/betahouse/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	AuthService         *service.AuthService
	SessionService      *service.SessionService
	TokenService        *service.TokenService
	TwoFactorService    *service.TwoFactorService
	NotificationService *service.NotificationService
	Presence            *service.Presence
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerTwoFactor()
	r.registerSessions()
	r.registerNotifications()
	r.registerEvents()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService:    r.AuthService,
		SessionService: r.SessionService,
	}

	// Credential endpoints take the strict limit: these are the brute-force
	// targets.
	r.Mux.Handle("POST /v1/auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignup),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /v1/auth/login/2fa",
		httpx.Chain(http.HandlerFunc(h.HandleLoginTwoFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))

	r.Mux.Handle("GET /v1/auth/verify-email",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyEmail),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		))
	r.Mux.Handle("POST /v1/auth/resend-verification",
		httpx.Chain(http.HandlerFunc(h.HandleResendVerification),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /v1/auth/forgot-password",
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	r.Mux.Handle("POST /v1/auth/reset-password",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))

	r.Mux.Handle("GET /v1/auth/me",
		httpx.Chain(http.HandlerFunc(h.HandleMe),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.LenientLimit),
		))
	r.Mux.Handle("PUT /v1/auth/me/phone",
		httpx.Chain(http.HandlerFunc(h.HandleUpdatePhone),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{
		AuthService:      r.AuthService,
		TwoFactorService: r.TwoFactorService,
	}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("POST /v1/2fa/enable", secured(h.HandleEnable))
	r.Mux.Handle("POST /v1/2fa/disable", secured(h.HandleDisable))
	r.Mux.Handle("POST /v1/2fa/totp/enroll", secured(h.HandleEnrollTOTP))
	r.Mux.Handle("POST /v1/2fa/totp/activate", secured(h.HandleActivateTOTP))

	// Resending the login code is pre-auth by nature.
	r.Mux.Handle("POST /v1/2fa/resend",
		httpx.Chain(http.HandlerFunc(h.HandleResendCode),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{SessionService: r.SessionService}

	r.Mux.Handle("GET /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.LenientLimit),
		))
	r.Mux.Handle("DELETE /v1/sessions/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
	r.Mux.Handle("DELETE /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleRevokeOthers),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
}

func (r *Router) registerNotifications() {
	h := &NotificationsHandler{NotificationService: r.NotificationService}

	r.Mux.Handle("GET /v1/notifications",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.LenientLimit),
		))
	r.Mux.Handle("GET /v1/notifications/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.LenientLimit),
		))
	r.Mux.Handle("POST /v1/notifications/read-all",
		httpx.Chain(http.HandlerFunc(h.HandleReadAll),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
	r.Mux.Handle("POST /v1/notifications/{id}/read",
		httpx.Chain(http.HandlerFunc(h.HandleRead),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
	r.Mux.Handle("DELETE /v1/notifications/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleDelete),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))

	// Administrative dispatch: backoffice tooling pushes notifications to
	// arbitrary accounts.
	r.Mux.Handle("POST /v1/notifications",
		httpx.Chain(http.HandlerFunc(h.HandleDispatch),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RequireRole("admin"),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		))
}

func (r *Router) registerEvents() {
	h := &EventsHandler{Presence: r.Presence}

	r.Mux.Handle("GET /v1/events",
		httpx.Chain(http.HandlerFunc(h.HandleStream),
			httpx.AuthnMiddleware(r.TokenService),
		))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.buildVersion, r.startTime))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.store))
}
