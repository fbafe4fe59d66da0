package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/service"
	"github.com/betahouse/betahouse/pkg/httpx"
	"github.com/betahouse/betahouse/pkg/slogx"
)

// AuthHandler serves signup, login and credential recovery endpoints.
type AuthHandler struct {
	AuthService    *service.AuthService
	SessionService *service.SessionService
}

type signupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type twoFactorLoginRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type twoFactorPendingResponse struct {
	TwoFactorRequired bool   `json:"twoFactorRequired"`
	Email             string `json:"email"`
	Message           string `json:"message"`
}

// authResponse is the shape of every successful credential exchange: a token
// pair plus the account it belongs to.
type authResponse struct {
	domain.TokenPair
	User accountResponse `json:"user"`
}

type accountResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone,omitempty"`
	Role             string    `json:"role"`
	EmailVerified    bool      `json:"emailVerified"`
	PhoneVerified    bool      `json:"phoneVerified"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toAccountResponse(a domain.Account) accountResponse {
	resp := accountResponse{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		Role:             string(a.Role),
		EmailVerified:    a.EmailVerified,
		PhoneVerified:    a.PhoneVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
	}
	if a.Phone != nil {
		resp.Phone = *a.Phone
	}
	return resp
}

// HandleSignup handles POST /v1/auth/signup.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	account, err := h.AuthService.Signup(ctx, service.SignupInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			httpx.WriteMessage(w, http.StatusConflict, "email already registered")
			return
		}
		if isValidationErr(err) {
			httpx.WriteMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServerError(w, r, "signup failed", err)
		return
	}

	// A fresh account is logged in straight away.
	pair, err := h.SessionService.Establish(ctx, account, deviceContext(r))
	if err != nil {
		writeServerError(w, r, "signup session failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authResponse{
		TokenPair: pair,
		User:      toAccountResponse(account),
	})
}

// HandleLogin handles POST /v1/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pair, err := h.AuthService.Login(ctx, req.Email, req.Password, deviceContext(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTwoFactorRequired):
			httpx.WriteJSON(w, http.StatusOK, twoFactorPendingResponse{
				TwoFactorRequired: true,
				Email:             req.Email,
				Message:           "verification code required",
			})
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteMessage(w, http.StatusUnauthorized, "invalid email or password")
		default:
			writeServerError(w, r, "login failed", err)
		}
		return
	}

	h.writeAuthResponse(w, r, req.Email, pair)
}

// HandleLoginTwoFactor handles POST /v1/auth/login/2fa.
func (h *AuthHandler) HandleLoginTwoFactor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req twoFactorLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pair, err := h.AuthService.CompleteTwoFactor(ctx, req.Email, req.Code, deviceContext(r))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCode):
			httpx.WriteMessage(w, http.StatusUnauthorized, "invalid verification code")
		case errors.Is(err, service.ErrCodeExpired):
			httpx.WriteMessage(w, http.StatusUnauthorized, "verification code expired")
		case errors.Is(err, service.ErrTooManyAttempts):
			httpx.WriteMessage(w, http.StatusTooManyRequests, "too many failed attempts, request a new code")
		case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrTwoFactorDisabled):
			httpx.WriteMessage(w, http.StatusUnauthorized, "invalid email or code")
		default:
			writeServerError(w, r, "two-factor login failed", err)
		}
		return
	}

	h.writeAuthResponse(w, r, req.Email, pair)
}

// writeAuthResponse loads the account so login responses carry the profile
// alongside the token pair.
func (h *AuthHandler) writeAuthResponse(w http.ResponseWriter, r *http.Request, email string, pair domain.TokenPair) {
	account, err := h.AuthService.GetAccountByEmail(r.Context(), email)
	if err != nil {
		writeServerError(w, r, "failed to load account", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authResponse{
		TokenPair: pair,
		User:      toAccountResponse(account),
	})
}

// HandleRefresh handles POST /v1/auth/refresh. The presented refresh token
// is rotated; the response carries a fresh pair.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	pair, err := h.SessionService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			httpx.WriteMessage(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeServerError(w, r, "token refresh failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleLogout handles POST /v1/auth/logout. The access token is revoked
// and the current session deleted, which invalidates its refresh token too.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := httpx.AccountIDFromContext(ctx)
	sessionID := httpx.SessionIDFromContext(ctx)
	raw := httpx.TokenFromContext(ctx)

	if err := h.SessionService.Logout(ctx, accountID, sessionID, raw); err != nil {
		writeServerError(w, r, "logout failed", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "logged out")
}

// HandleVerifyEmail handles GET /v1/auth/verify-email?token=...
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.AuthService.VerifyEmail(ctx, token); err != nil {
		if errors.Is(err, service.ErrInvalidVerification) {
			httpx.WriteMessage(w, http.StatusBadRequest, "invalid or expired verification token")
			return
		}
		writeServerError(w, r, "email verification failed", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "email verified")
}

// HandleResendVerification handles POST /v1/auth/resend-verification.
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.AuthService.ResendVerification(ctx, req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyVerified):
			httpx.WriteMessage(w, http.StatusConflict, "email already verified")
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteMessage(w, http.StatusNotFound, "account not found")
		default:
			writeServerError(w, r, "resend verification failed", err)
		}
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "verification email sent")
}

// HandleForgotPassword handles POST /v1/auth/forgot-password. Always
// responds success so the endpoint cannot be used to probe for accounts.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.AuthService.ForgotPassword(ctx, req.Email); err != nil {
		writeServerError(w, r, "forgot password failed", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "if that email exists, a reset link has been sent")
}

// HandleResetPassword handles POST /v1/auth/reset-password.
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "token and password are required")
		return
	}

	if err := h.AuthService.ResetPassword(ctx, req.Token, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidReset):
			httpx.WriteMessage(w, http.StatusBadRequest, "invalid or expired reset token")
		case isValidationErr(err):
			httpx.WriteMessage(w, http.StatusBadRequest, err.Error())
		default:
			writeServerError(w, r, "password reset failed", err)
		}
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "password updated")
}

// HandleMe handles GET /v1/auth/me.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := h.AuthService.GetAccount(ctx, httpx.AccountIDFromContext(ctx))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "account not found")
			return
		}
		writeServerError(w, r, "failed to load account", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// HandleUpdatePhone handles PUT /v1/auth/me/phone.
func (h *AuthHandler) HandleUpdatePhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req phoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.AuthService.UpdatePhone(ctx, httpx.AccountIDFromContext(ctx), req.Phone); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			httpx.WriteMessage(w, http.StatusNotFound, "account not found")
		case isValidationErr(err):
			httpx.WriteMessage(w, http.StatusBadRequest, err.Error())
		default:
			writeServerError(w, r, "phone update failed", err)
		}
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "phone number updated")
}

func deviceContext(r *http.Request) service.DeviceContext {
	return service.DeviceContext{
		IPAddress: httpx.IPKeyExtractor(r),
		UserAgent: r.UserAgent(),
	}
}

func isValidationErr(err error) bool {
	var verr service.ValidationError
	return errors.As(err, &verr)
}

func writeServerError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slogx.FromContext(r.Context()).Error(msg, "err", err)
	httpx.WriteMessage(w, http.StatusInternalServerError, "internal server error")
}
