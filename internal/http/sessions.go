package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/service"
	"github.com/betahouse/betahouse/pkg/httpx"
)

// SessionsHandler serves the active-sessions screen.
type SessionsHandler struct {
	SessionService *service.SessionService
}

type sessionResponse struct {
	ID           string           `json:"id"`
	IPAddress    string           `json:"ipAddress"`
	Device       string           `json:"device"`
	Location     *domain.Location `json:"location,omitempty"`
	Current      bool             `json:"current"`
	LastActiveAt time.Time        `json:"lastActiveAt"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// HandleList handles GET /v1/sessions.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	currentID := httpx.SessionIDFromContext(ctx)

	sessions, err := h.SessionService.List(ctx, httpx.AccountIDFromContext(ctx))
	if err != nil {
		writeServerError(w, r, "failed to list sessions", err)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:           s.ID,
			IPAddress:    s.IPAddress,
			Device:       s.Device,
			Location:     s.Location,
			Current:      s.ID == currentID,
			LastActiveAt: s.LastActiveAt,
			CreatedAt:    s.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// HandleRevoke handles DELETE /v1/sessions/{id}.
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	if id == "" {
		httpx.WriteMessage(w, http.StatusBadRequest, "session id is required")
		return
	}

	if err := h.SessionService.Revoke(ctx, httpx.AccountIDFromContext(ctx), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "session not found")
			return
		}
		writeServerError(w, r, "failed to revoke session", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "session revoked")
}

// HandleRevokeOthers handles DELETE /v1/sessions, terminating every
// session except the caller's.
func (h *SessionsHandler) HandleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.SessionService.RevokeOthers(ctx,
		httpx.AccountIDFromContext(ctx),
		httpx.SessionIDFromContext(ctx),
	)
	if err != nil {
		writeServerError(w, r, "failed to revoke other sessions", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "other sessions revoked")
}
