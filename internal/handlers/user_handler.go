package handlers

import (
	"net/http"

	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// UserHandler handles user administration requests
type UserHandler struct {
	authService *service.AuthService
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *service.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// List lists users (admin only)
// @Summary List users
// @Description Paginated user listing filtered by role, department, active flag and search text
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search in email and names"
// @Param role query string false "EMPLOYEE, MANAGER or ADMIN"
// @Param department query string false "Department"
// @Param is_active query bool false "Active flag"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(20)
// @Success 200 {object} response.Envelope{data=service.Page[models.User]} "Users"
// @Failure 403 {object} response.Envelope "Forbidden - admin only"
// @Router /admin/users [get]
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	q := r.URL.Query()
	query := service.UserQuery{
		Search:     q.Get("search"),
		Role:       q.Get("role"),
		Department: q.Get("department"),
	}
	if query.IsActive, err = queryBool(r, "is_active"); err != nil {
		response.Error(w, r, err)
		return
	}
	if query.Page, query.PageSize, err = pagination(r); err != nil {
		response.Error(w, r, err)
		return
	}

	page, err := h.authService.ListUsers(r.Context(), actor, query)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, page, "")
}

// Create creates a user (admin only)
// @Summary Create user
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateUserInput true "New user"
// @Success 201 {object} response.Envelope{data=models.User} "Created user"
// @Failure 400 {object} response.Envelope "Validation error"
// @Failure 403 {object} response.Envelope "Forbidden - admin only"
// @Router /admin/users [post]
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req service.CreateUserInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	user, err := h.authService.CreateUser(r.Context(), actor, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.Created(w, user, "user created")
}

// Update changes names, role or department of a user (admin only)
// @Summary Update user
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param request body service.UpdateUserInput true "Changed fields"
// @Success 200 {object} response.Envelope{data=models.User} "Updated user"
// @Failure 404 {object} response.Envelope "User not found"
// @Failure 409 {object} response.Envelope "Last active admin"
// @Router /admin/users/{id} [put]
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req service.UpdateUserInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	user, err := h.authService.UpdateUser(r.Context(), actor, id, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, user, "user updated")
}

// Deactivate disables a user and revokes their sessions (admin only)
// @Summary Deactivate user
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} response.Envelope "User deactivated"
// @Failure 404 {object} response.Envelope "User not found"
// @Failure 409 {object} response.Envelope "Own account or last active admin"
// @Router /admin/users/{id}/deactivate [post]
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.authService.DeactivateUser(r.Context(), actor, id); err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, nil, "user deactivated")
}
