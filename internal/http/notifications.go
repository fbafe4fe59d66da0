package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/betahouse/betahouse/internal/domain"
	"github.com/betahouse/betahouse/internal/service"
	"github.com/betahouse/betahouse/pkg/httpx"
)

// NotificationsHandler serves the notification inbox endpoints.
type NotificationsHandler struct {
	NotificationService *service.NotificationService
}

type notificationListResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Total         int                   `json:"total"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

type dispatchRequest struct {
	AccountID string             `json:"accountId"`
	Category  string             `json:"category"`
	Title     string             `json:"title"`
	Content   string             `json:"content"`
	Related   *domain.RelatedRef `json:"related,omitempty"`
}

// HandleList handles GET /v1/notifications?limit=&offset=.
func (h *NotificationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	items, total, err := h.NotificationService.List(ctx, httpx.AccountIDFromContext(ctx), limit, offset)
	if err != nil {
		writeServerError(w, r, "failed to list notifications", err)
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}

	httpx.WriteJSON(w, http.StatusOK, notificationListResponse{
		Notifications: items,
		Total:         total,
		Limit:         limit,
		Offset:        offset,
	})
}

// HandleGet handles GET /v1/notifications/{id}.
func (h *NotificationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	n, err := h.NotificationService.Get(ctx, httpx.AccountIDFromContext(ctx), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "notification not found")
			return
		}
		writeServerError(w, r, "failed to load notification", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, n)
}

// HandleRead handles POST /v1/notifications/{id}/read.
func (h *NotificationsHandler) HandleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	if err := h.NotificationService.MarkRead(ctx, httpx.AccountIDFromContext(ctx), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "notification not found")
			return
		}
		writeServerError(w, r, "failed to mark notification read", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "notification marked read")
}

// HandleReadAll handles POST /v1/notifications/read-all.
func (h *NotificationsHandler) HandleReadAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.NotificationService.MarkAllRead(ctx, httpx.AccountIDFromContext(ctx)); err != nil {
		writeServerError(w, r, "failed to mark notifications read", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "all notifications marked read")
}

// HandleDelete handles DELETE /v1/notifications/{id}.
func (h *NotificationsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	if err := h.NotificationService.Delete(ctx, httpx.AccountIDFromContext(ctx), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			httpx.WriteMessage(w, http.StatusNotFound, "notification not found")
			return
		}
		writeServerError(w, r, "failed to delete notification", err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "notification deleted")
}

// HandleDispatch handles POST /v1/notifications, the admin-only entry point
// for pushing a notification to an account.
func (h *NotificationsHandler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, err := h.NotificationService.Dispatch(ctx, domain.Notification{
		AccountID: req.AccountID,
		Category:  domain.NotificationCategory(req.Category),
		Title:     req.Title,
		Content:   req.Content,
		Related:   req.Related,
	})
	if err != nil {
		if isValidationErr(err) {
			httpx.WriteMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServerError(w, r, "failed to dispatch notification", err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, n)
}
