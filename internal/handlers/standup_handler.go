package handlers

import (
	"net/http"
	"time"

	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// StandupHandler handles the daily standup lifecycle
type StandupHandler struct {
	standups *service.StandupService
	loc      *time.Location
}

// NewStandupHandler creates a new standup handler
func NewStandupHandler(standups *service.StandupService, loc *time.Location) *StandupHandler {
	return &StandupHandler{standups: standups, loc: loc}
}

// Create starts a new standup for today
// @Summary Create standup
// @Description Start a new PENDING standup for today with the next sequence number
// @Tags Standups
// @Produce json
// @Security BearerAuth
// @Success 201 {object} response.Envelope{data=models.Standup} "Created standup"
// @Router /standups [post]
func (h *StandupHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	standup, err := h.standups.Create(r.Context(), actor)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.Created(w, standup, "standup created")
}

// SetGoal records today's goal
// @Summary Set today's goal
// @Description Set the goal of a pending standup. Without standup_id a new standup is created first.
// @Tags Standups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.GoalInput true "Goal"
// @Success 200 {object} response.Envelope{data=models.Standup} "Standup with goal"
// @Failure 400 {object} response.Envelope "Validation error"
// @Failure 409 {object} response.Envelope "GOAL_ALREADY_SET"
// @Router /standups/goal [post]
func (h *StandupHandler) SetGoal(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req service.GoalInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	standup, err := h.standups.SetGoal(r.Context(), actor, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, standup, "goal set")
}

// Submit records the achievement of a standup
// @Summary Submit achievement
// @Tags Standups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Standup ID"
// @Param request body service.SubmitInput true "Achievement"
// @Success 200 {object} response.Envelope{data=models.Standup} "Submitted standup"
// @Failure 400 {object} response.Envelope "Validation error"
// @Failure 404 {object} response.Envelope "Standup not found"
// @Failure 409 {object} response.Envelope "NO_GOAL_SET or ALREADY_SUBMITTED"
// @Router /standups/{id}/submit [post]
func (h *StandupHandler) Submit(w http.ResponseWriter, r *http.Request) {
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

	var req service.SubmitInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	standup, err := h.standups.Submit(r.Context(), actor, id, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, standup, "standup submitted")
}

// Review approves a submission, leaves feedback or flags it (manager+)
// @Summary Review standup
// @Tags Standups
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Standup ID"
// @Param request body service.ReviewInput true "Review"
// @Success 200 {object} response.Envelope{data=models.Standup} "Reviewed standup"
// @Failure 403 {object} response.Envelope "Forbidden"
// @Failure 409 {object} response.Envelope "INVALID_STATUS"
// @Router /standups/{id}/review [post]
func (h *StandupHandler) Review(w http.ResponseWriter, r *http.Request) {
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

	var req service.ReviewInput
	if err := response.Decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	standup, err := h.standups.Review(r.Context(), actor, id, req)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, standup, "standup reviewed")
}

// Get returns one standup
// @Summary Get standup
// @Tags Standups
// @Produce json
// @Security BearerAuth
// @Param id path int true "Standup ID"
// @Success 200 {object} response.Envelope{data=models.StandupWithUser} "Standup"
// @Failure 404 {object} response.Envelope "Standup not found"
// @Router /standups/{id} [get]
func (h *StandupHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	standup, err := h.standups.Get(r.Context(), actor, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, standup, "")
}

// Today lists the caller's standups of today
// @Summary Today's standups
// @Tags Standups
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]models.Standup} "Standups by sequence"
// @Router /standups/today [get]
func (h *StandupHandler) Today(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	standups, err := h.standups.Today(r.Context(), actor)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, standups, "")
}

// History lists past standups
// @Summary Standup history
// @Description Employees see their own standups; managers may filter by user
// @Tags Standups
// @Produce json
// @Security BearerAuth
// @Param user_id query int false "User ID (manager+)"
// @Param status query string false "Status"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(20)
// @Success 200 {object} response.Envelope{data=service.Page[models.StandupWithUser]} "Standups"
// @Router /standups/history [get]
func (h *StandupHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	query := service.HistoryQuery{Status: r.URL.Query().Get("status")}
	if query.UserID, err = queryUint(r, "user_id"); err != nil {
		response.Error(w, r, err)
		return
	}
	if query.From, err = queryDate(r, "from", h.loc); err != nil {
		response.Error(w, r, err)
		return
	}
	if query.To, err = queryDate(r, "to", h.loc); err != nil {
		response.Error(w, r, err)
		return
	}
	if query.Page, query.PageSize, err = pagination(r); err != nil {
		response.Error(w, r, err)
		return
	}

	page, err := h.standups.History(r.Context(), actor, query)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, page, "")
}

// PendingReview lists submissions awaiting review (manager+)
// @Summary Pending reviews
// @Tags Standups
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]models.StandupWithUser} "Submitted standups"
// @Failure 403 {object} response.Envelope "Forbidden"
// @Router /standups/pending-review [get]
func (h *StandupHandler) PendingReview(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	standups, err := h.standups.PendingReview(r.Context(), actor)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, standups, "")
}

// Team lists today's standups of the caller's team (manager+)
// @Summary Team standups
// @Tags Standups
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]models.StandupWithUser} "Today's team standups"
// @Failure 403 {object} response.Envelope "Forbidden"
// @Router /standups/team [get]
func (h *StandupHandler) Team(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	standups, err := h.standups.Team(r.Context(), actor)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, standups, "")
}
