package handlers

import (
	"net/http"

	"standup-desk/internal/middleware"
	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles user login
// @Summary User login
// @Description Authenticate user, return JWT tokens and record the attendance login
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body service.LoginInput true "Login credentials"
// @Success 200 {object} response.Envelope{data=service.TokenPair} "Login successful with tokens"
// @Failure 400 {object} response.Envelope "Invalid request"
// @Failure 401 {object} response.Envelope "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	pair, err := h.authService.Login(r.Context(), req, middleware.ClientInfo(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, pair, "login successful")
}

// Refresh handles token refresh
// @Summary Refresh access token
// @Description Exchange a refresh token for a new token pair; the old refresh token stops working
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh token"
// @Success 200 {object} response.Envelope{data=service.TokenPair} "New token pair"
// @Failure 401 {object} response.Envelope "Invalid, expired or revoked refresh token"
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		response.Error(w, r, invalidParam("refresh_token", "is required"))
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken, middleware.ClientInfo(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, pair, "")
}

// Logout handles user logout
// @Summary User logout
// @Description Revoke the current session and record the attendance logout
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope "Logged out"
// @Failure 401 {object} response.Envelope "Unauthorized"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.authService.Logout(r.Context(), actor, middleware.GetToken(r), middleware.ClientInfo(r)); err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, nil, "logged out")
}

// Me returns the profile of the caller
// @Summary Get user profile
// @Description Get the authenticated user's profile
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.User} "User profile"
// @Failure 401 {object} response.Envelope "Unauthorized"
// @Router /users/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	user, err := h.authService.Me(r.Context(), actor)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, user, "")
}
