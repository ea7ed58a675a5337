package handlers

import (
	"net/http"

	"standup-desk/internal/middleware"
	"standup-desk/internal/realtime"
	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// WebSocketHandler upgrades authenticated clients to the notification stream
type WebSocketHandler struct {
	auth middleware.Authenticator
	hub  *realtime.Hub
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(auth middleware.Authenticator, hub *realtime.Hub) *WebSocketHandler {
	return &WebSocketHandler{auth: auth, hub: hub}
}

// Notifications streams alerts to the caller. Browsers cannot set headers on
// a websocket handshake, so the access token may come as ?token=.
// @Summary Notification stream
// @Tags Notifications
// @Param token query string false "Access token (alternative to the Authorization header)"
// @Success 101 "Switching protocols"
// @Failure 401 {object} response.Envelope "Unauthorized"
// @Router /ws/notifications [get]
func (h *WebSocketHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		response.Error(w, r, service.NewError(service.CodeUnauthorized, "missing access token"))
		return
	}

	actor, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	h.hub.Serve(w, r, actor.ID, actor.Role)
}
