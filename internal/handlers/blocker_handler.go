package handlers

import (
	"net/http"
	"time"

	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// BlockerHandler handles blocker tracking
type BlockerHandler struct {
	blockers *service.BlockerService
	loc      *time.Location
}

// NewBlockerHandler creates a new blocker handler
func NewBlockerHandler(blockers *service.BlockerService, loc *time.Location) *BlockerHandler {
	return &BlockerHandler{blockers: blockers, loc: loc}
}

// Raise records a new blocker
// @Summary Raise blocker
// @Tags Blockers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.RaiseInput true "Blocker"
// @Success 201 {object} response.Envelope{data=models.Blocker} "Created blocker"
// @Failure 400 {object} response.Envelope "Validation error"
// @Router /blockers [post]
func (h *BlockerHandler) Raise(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req service.RaiseInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	blocker, err := h.blockers.Raise(r.Context(), actor, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.Created(w, blocker, "blocker raised")
}

// List lists blockers, most severe first
// @Summary List blockers
// @Tags Blockers
// @Produce json
// @Security BearerAuth
// @Param status query string false "OPEN, IN_PROGRESS, ESCALATED or RESOLVED"
// @Param severity query string false "LOW, MEDIUM, HIGH or CRITICAL"
// @Param category query string false "Category"
// @Param department query string false "Department (manager+)"
// @Param user_id query int false "User ID (manager+)"
// @Param only_mine query bool false "Only the caller's blockers"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(20)
// @Success 200 {object} response.Envelope{data=service.Page[models.BlockerWithUser]} "Blockers"
// @Router /blockers [get]
func (h *BlockerHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	q := r.URL.Query()
	query := service.BlockerQuery{
		Status:     q.Get("status"),
		Severity:   q.Get("severity"),
		Category:   q.Get("category"),
		Department: q.Get("department"),
	}
	if query.UserID, err = queryUint(r, "user_id"); err != nil {
		response.Error(w, r, err)
		return
	}
	onlyMine, err := queryBool(r, "only_mine")
	if err != nil {
		response.Error(w, r, err)
		return
	}
	query.OnlyMine = onlyMine != nil && *onlyMine
	if query.Page, query.PageSize, err = pagination(r); err != nil {
		response.Error(w, r, err)
		return
	}

	page, err := h.blockers.List(r.Context(), actor, query)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, page, "")
}

// Analytics counts blockers by status, severity and category (manager+)
// @Summary Blocker analytics
// @Tags Blockers
// @Produce json
// @Security BearerAuth
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope{data=models.BlockerAnalytics} "Counts"
// @Failure 403 {object} response.Envelope "Forbidden"
// @Router /blockers/analytics [get]
func (h *BlockerHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	from, err := queryDate(r, "from", h.loc)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	to, err := queryDate(r, "to", h.loc)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	analytics, err := h.blockers.Analytics(r.Context(), actor, from, to)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, analytics, "")
}

// Get returns one blocker
// @Summary Get blocker
// @Tags Blockers
// @Produce json
// @Security BearerAuth
// @Param id path int true "Blocker ID"
// @Success 200 {object} response.Envelope{data=models.BlockerWithUser} "Blocker"
// @Failure 404 {object} response.Envelope "Blocker not found"
// @Router /blockers/{id} [get]
func (h *BlockerHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	blocker, err := h.blockers.Get(r.Context(), actor, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, blocker, "")
}

// UpdateStatus moves a blocker to OPEN or IN_PROGRESS
// @Summary Update blocker status
// @Tags Blockers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Blocker ID"
// @Param request body service.StatusInput true "Target status"
// @Success 200 {object} response.Envelope{data=models.Blocker} "Updated blocker"
// @Failure 409 {object} response.Envelope "INVALID_STATUS"
// @Router /blockers/{id}/status [put]
func (h *BlockerHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req service.StatusInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	blocker, err := h.blockers.UpdateStatus(r.Context(), actor, id, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, blocker, "blocker updated")
}

// Escalate hands a blocker to a manager or admin
// @Summary Escalate blocker
// @Tags Blockers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Blocker ID"
// @Param request body service.EscalateInput true "Escalation"
// @Success 200 {object} response.Envelope{data=models.Blocker} "Escalated blocker"
// @Failure 400 {object} response.Envelope "Invalid escalation target"
// @Failure 409 {object} response.Envelope "INVALID_STATUS"
// @Router /blockers/{id}/escalate [post]
func (h *BlockerHandler) Escalate(w http.ResponseWriter, r *http.Request) {
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

	var req service.EscalateInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	blocker, err := h.blockers.Escalate(r.Context(), actor, id, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, blocker, "blocker escalated")
}

// Resolve closes a blocker
// @Summary Resolve blocker
// @Tags Blockers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Blocker ID"
// @Param request body service.ResolveInput true "Resolution"
// @Success 200 {object} response.Envelope{data=models.Blocker} "Resolved blocker"
// @Failure 409 {object} response.Envelope "ALREADY_RESOLVED"
// @Router /blockers/{id}/resolve [post]
func (h *BlockerHandler) Resolve(w http.ResponseWriter, r *http.Request) {
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

	var req service.ResolveInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	blocker, err := h.blockers.Resolve(r.Context(), actor, id, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, blocker, "blocker resolved")
}
