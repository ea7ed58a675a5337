package handlers

import (
	"net/http"

	"standup-desk/internal/middleware"
	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// SessionHandler handles session management requests
type SessionHandler struct {
	authService *service.AuthService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(authService *service.AuthService) *SessionHandler {
	return &SessionHandler{authService: authService}
}

// GetMySessions gets the current user's active sessions
// @Summary Get user sessions
// @Description Get all active sessions for the authenticated user; access and refresh tokens of one login are grouped
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]service.SessionInfo} "List of active sessions"
// @Failure 401 {object} response.Envelope "Unauthorized"
// @Router /users/me/sessions [get]
func (h *SessionHandler) GetMySessions(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	sessions, err := h.authService.Sessions(r.Context(), actor, middleware.GetToken(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, sessions, "")
}

// DeleteMySession deletes a specific session for the current user
// @Summary Delete user session
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID to delete"
// @Success 200 {object} response.Envelope "Session deleted"
// @Failure 404 {object} response.Envelope "Session not found"
// @Router /users/me/sessions/{sessionId} [delete]
func (h *SessionHandler) DeleteMySession(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		response.Error(w, r, invalidParam("sessionId", "is required"))
		return
	}

	if err := h.authService.RevokeSession(r.Context(), actor, sessionID, middleware.ClientInfo(r)); err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, nil, "session deleted")
}
