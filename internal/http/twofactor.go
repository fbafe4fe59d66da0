package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/betahouse/betahouse/internal/service"
	"github.com/betahouse/betahouse/pkg/httpx"
)

// TwoFactorHandler serves the two-factor settings endpoints plus the
// pre-auth code resend.
type TwoFactorHandler struct {
	AuthService      *service.AuthService
	TwoFactorService *service.TwoFactorService
}

type disableTwoFactorRequest struct {
	Password string `json:"password"`
}

type totpActivateRequest struct {
	Code string `json:"code"`
}

// HandleEnable handles POST /v1/2fa/enable. Subsequent logins require the
// emailed code (or the authenticator once one is activated).
func (h *TwoFactorHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.TwoFactorService.Enable(ctx, httpx.AccountIDFromContext(ctx)); err != nil {
		if errors.Is(err, service.ErrTwoFactorEnabled) {
			httpx.WriteMessage(w, http.StatusConflict, "two-factor already enabled")
			return
		}
		writeServerError(w, r, "failed to enable two-factor", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "two-factor enabled")
}

// HandleDisable handles POST /v1/2fa/disable. Requires the password so a
// hijacked session can't quietly weaken the account.
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req disableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.TwoFactorService.Disable(ctx, httpx.AccountIDFromContext(ctx), req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorDisabled):
			httpx.WriteMessage(w, http.StatusConflict, "two-factor not enabled")
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteMessage(w, http.StatusUnauthorized, "invalid password")
		default:
			writeServerError(w, r, "failed to disable two-factor", err)
		}
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "two-factor disabled")
}

// HandleEnrollTOTP handles POST /v1/2fa/totp/enroll.
func (h *TwoFactorHandler) HandleEnrollTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enrollment, err := h.TwoFactorService.EnrollTOTP(ctx, httpx.AccountIDFromContext(ctx))
	if err != nil {
		if errors.Is(err, service.ErrTwoFactorEnabled) {
			httpx.WriteMessage(w, http.StatusConflict, "authenticator already active")
			return
		}
		writeServerError(w, r, "authenticator enrollment failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, enrollment)
}

// HandleActivateTOTP handles POST /v1/2fa/totp/activate.
func (h *TwoFactorHandler) HandleActivateTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req totpActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "code is required")
		return
	}

	if err := h.TwoFactorService.ActivateTOTP(ctx, httpx.AccountIDFromContext(ctx), req.Code); err != nil {
		switch {
		case errors.Is(err, service.ErrNotEnrolled):
			httpx.WriteMessage(w, http.StatusBadRequest, "enroll an authenticator first")
		case errors.Is(err, service.ErrInvalidCode):
			httpx.WriteMessage(w, http.StatusBadRequest, "invalid authenticator code")
		default:
			writeServerError(w, r, "authenticator activation failed", err)
		}
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "authenticator activated")
}

// HandleResendCode handles POST /v1/2fa/resend for logins stuck waiting on
// a code that never arrived.
func (h *TwoFactorHandler) HandleResendCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "email is required")
		return
	}

	account, err := h.AuthService.GetAccountByEmail(ctx, req.Email)
	if err != nil || !account.TwoFactorEnabled {
		// Same response either way: this endpoint must not reveal whether
		// the email exists or uses two-factor.
		httpx.WriteMessage(w, http.StatusOK, "if applicable, a new code has been sent")
		return
	}

	if err := h.TwoFactorService.BeginEmailChallenge(ctx, account); err != nil {
		writeServerError(w, r, "failed to send verification code", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "if applicable, a new code has been sent")
}
