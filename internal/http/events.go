package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/betahouse/betahouse/internal/service"
	"github.com/betahouse/betahouse/pkg/httpx"
	"github.com/betahouse/betahouse/pkg/slogx"
)

// keepAliveInterval paces SSE comment lines so proxies don't reap the
// connection as idle.
const keepAliveInterval = 25 * time.Second

// EventsHandler streams notifications to the client over server-sent
// events. Connecting marks the account online; disconnecting (or being
// replaced by a newer connection) marks it offline.
type EventsHandler struct {
	Presence *service.Presence
}

// HandleStream handles GET /v1/events.
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	accountID := httpx.AccountIDFromContext(ctx)
	events, cancel := h.Presence.Subscribe(accountID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case n, open := <-events:
			if !open {
				// Replaced by a newer connection from the same account.
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				log.Error("failed to encode notification event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
