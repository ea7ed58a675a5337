package handlers

import (
	"net/http"

	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// AIHandler exposes the advisory AI operations
type AIHandler struct {
	ai       *service.AIService
	standups *service.StandupService
	blockers *service.BlockerService
}

// NewAIHandler creates a new AI handler
func NewAIHandler(ai *service.AIService, standups *service.StandupService, blockers *service.BlockerService) *AIHandler {
	return &AIHandler{ai: ai, standups: standups, blockers: blockers}
}

// SuggestGoalRequest is the optional focus of a goal suggestion
type SuggestGoalRequest struct {
	Hint string `json:"hint"`
}

// SuggestGoal proposes a goal for today
// @Summary Suggest a goal
// @Description Proposes a goal from the caller's recent goals; falls back to a fixed suggestion when the model is unavailable
// @Tags AI
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SuggestGoalRequest false "Optional focus"
// @Success 200 {object} response.Envelope{data=service.GoalSuggestion} "Suggestion"
// @Router /ai/suggest-goal [post]
func (h *AIHandler) SuggestGoal(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req SuggestGoalRequest
	if r.ContentLength != 0 {
		if err := response.Decode(r, &req); err != nil {
			response.Error(w, r, err)
			return
		}
	}

	suggestion, err := h.ai.SuggestGoal(r.Context(), actor, req.Hint)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, suggestion, "")
}

// AnalyzeStandup scores a submitted standup now
// @Summary Analyze standup
// @Description Runs the submission analysis synchronously and stores it in ai_insights
// @Tags AI
// @Produce json
// @Security BearerAuth
// @Param id path int true "Standup ID"
// @Success 200 {object} response.Envelope{data=service.SubmissionInsights} "Insights"
// @Failure 404 {object} response.Envelope "Standup not found"
// @Failure 409 {object} response.Envelope "Standup not submitted"
// @Router /ai/analyze/standups/{id} [post]
func (h *AIHandler) AnalyzeStandup(w http.ResponseWriter, r *http.Request) {
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

	// visibility check: owner or manager+
	if _, err := h.standups.Get(r.Context(), actor, id); err != nil {
		response.Error(w, r, err)
		return
	}

	insights, err := h.ai.AnalyzeStandup(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, insights, "")
}

// TriageBlocker suggests severity, category and next steps for a blocker now
// @Summary Triage blocker
// @Description Runs the blocker triage synchronously and stores it in ai_analysis
// @Tags AI
// @Produce json
// @Security BearerAuth
// @Param id path int true "Blocker ID"
// @Success 200 {object} response.Envelope{data=service.BlockerTriage} "Triage"
// @Failure 404 {object} response.Envelope "Blocker not found"
// @Router /ai/analyze/blockers/{id} [post]
func (h *AIHandler) TriageBlocker(w http.ResponseWriter, r *http.Request) {
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

	if _, err := h.blockers.Get(r.Context(), actor, id); err != nil {
		response.Error(w, r, err)
		return
	}

	triage, err := h.ai.TriageBlocker(r.Context(), id)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, triage, "")
}
