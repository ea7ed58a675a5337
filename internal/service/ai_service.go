package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"standup-desk/internal/models"
	"standup-desk/internal/repository"
)

// Result sources
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
)

// Generator produces text from a prompt
type Generator interface {
	Generate(ctx context.Context, prompt, format string) (string, error)
}

// AIStandupStore is the standup persistence used by the AI advisory
type AIStandupStore interface {
	GetByID(ctx context.Context, id uint) (*models.Standup, error)
	RecentGoals(ctx context.Context, userID uint, limit int) ([]string, error)
	SetAIInsights(ctx context.Context, id uint, insights []byte) error
}

// AIBlockerStore is the blocker persistence used by the AI advisory
type AIBlockerStore interface {
	GetByID(ctx context.Context, id uint) (*models.Blocker, error)
	SetAIAnalysis(ctx context.Context, id uint, analysis []byte) error
}

// AIService provides advisory text analysis. Every operation has a
// deterministic fallback and never fails because the model is unavailable.
type AIService struct {
	llm      Generator
	standups AIStandupStore
	blockers AIBlockerStore
}

// NewAIService creates a new AI advisory service
func NewAIService(llm Generator, standups AIStandupStore, blockers AIBlockerStore) *AIService {
	return &AIService{llm: llm, standups: standups, blockers: blockers}
}

// GoalSuggestion is a proposed goal for today
type GoalSuggestion struct {
	Suggestion string `json:"suggestion"`
	Source     string `json:"source"`
}

// SubmissionInsights is the analysis stored in a standup's ai_insights
type SubmissionInsights struct {
	Score     int      `json:"score"`
	Summary   string   `json:"summary"`
	Strengths []string `json:"strengths"`
	Risks     []string `json:"risks"`
	Source    string   `json:"source"`
}

// BlockerTriage is the analysis stored in a blocker's ai_analysis
type BlockerTriage struct {
	SuggestedSeverity string   `json:"suggested_severity"`
	SuggestedCategory string   `json:"suggested_category"`
	NextSteps         []string `json:"next_steps"`
	Source            string   `json:"source"`
}

const fallbackGoal = "Finish the most important open task from yesterday, define one measurable outcome for today and raise any blocker early."

// SuggestGoal proposes a goal for today based on the user's recent goals
func (s *AIService) SuggestGoal(ctx context.Context, actor Actor, hint string) (*GoalSuggestion, error) {
	recent, err := s.standups.RecentGoals(ctx, actor.ID, 5)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("You help an employee write today's standup goal. ")
	sb.WriteString("Propose one concrete, measurable goal between 60 and 300 characters. ")
	sb.WriteString(`Answer with JSON: {"suggestion": "..."}.` + "\n\n")
	if len(recent) > 0 {
		sb.WriteString("Recent goals, newest first:\n")
		for i, g := range recent {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, g))
		}
	}
	if hint = strings.TrimSpace(hint); hint != "" {
		sb.WriteString("Focus for today: " + hint + "\n")
	}

	var reply struct {
		Suggestion string `json:"suggestion"`
	}
	if err := s.generateJSON(ctx, sb.String(), &reply); err == nil && utf8.RuneCountInString(strings.TrimSpace(reply.Suggestion)) >= 50 {
		return &GoalSuggestion{Suggestion: strings.TrimSpace(reply.Suggestion), Source: SourceAI}, nil
	}

	return &GoalSuggestion{Suggestion: fallbackGoal, Source: SourceFallback}, nil
}

// AnalyzeStandup scores a submitted standup and stores the result
func (s *AIService) AnalyzeStandup(ctx context.Context, standupID uint) (*SubmissionInsights, error) {
	standup, err := s.standups.GetByID(ctx, standupID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("standup")
	}
	if err != nil {
		return nil, err
	}
	if standup.SubmissionTime == nil {
		return nil, NewError(CodeInvalidStatus, "only submitted standups can be analyzed")
	}

	insights := s.analyze(ctx, standup)

	data, err := json.Marshal(insights)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal insights: %w", err)
	}
	if err := s.standups.SetAIInsights(ctx, standupID, data); err != nil {
		return nil, err
	}

	return insights, nil
}

func (s *AIService) analyze(ctx context.Context, standup *models.Standup) *SubmissionInsights {
	prompt := fmt.Sprintf(
		"Evaluate this end-of-day standup. Answer with JSON: "+
			`{"score": 0-100, "summary": "...", "strengths": ["..."], "risks": ["..."]}`+"\n\n"+
			"Goal: %s\nAchievement: %s\n%s\nGoal status: %s\nCompletion: %d%%\nReason if not achieved: %s\n",
		deref(standup.TodayGoal),
		deref(standup.AchievementTitle),
		deref(standup.AchievementDesc),
		deref(standup.GoalStatus),
		derefInt(standup.CompletionPercentage),
		deref(standup.NotAchievedReason),
	)

	var reply SubmissionInsights
	if err := s.generateJSON(ctx, prompt, &reply); err == nil && reply.Summary != "" {
		reply.Score = clamp(reply.Score, 0, 100)
		reply.Source = SourceAI
		return &reply
	}

	return FallbackInsights(standup)
}

// FallbackInsights derives a deterministic analysis from the submission fields
func FallbackInsights(standup *models.Standup) *SubmissionInsights {
	status := deref(standup.GoalStatus)

	score := derefInt(standup.CompletionPercentage)
	if standup.CompletionPercentage == nil {
		switch status {
		case models.GoalAchieved:
			score = 100
		case models.GoalPartiallyAchieved:
			score = 50
		}
	}

	insights := &SubmissionInsights{
		Strengths: []string{},
		Risks:     []string{},
		Source:    SourceFallback,
	}

	switch status {
	case models.GoalAchieved:
		insights.Strengths = append(insights.Strengths, "Goal achieved")
	case models.GoalPartiallyAchieved:
		insights.Strengths = append(insights.Strengths, "Partial progress on the goal")
		insights.Risks = append(insights.Risks, "Goal only partially achieved")
	case models.GoalNotAchieved:
		insights.Risks = append(insights.Risks, "Goal not achieved")
	}
	if len(standup.TaskRefs) > 0 {
		insights.Strengths = append(insights.Strengths, fmt.Sprintf("Linked to %d task reference(s)", len(standup.TaskRefs)))
	}
	if standup.IsLateSubmission {
		insights.Risks = append(insights.Risks, "Submitted after 19:00")
		score -= 10
	}

	insights.Score = clamp(score, 0, 100)
	outcome := strings.ToLower(strings.ReplaceAll(status, "_", " "))
	if standup.CompletionPercentage != nil {
		insights.Summary = fmt.Sprintf("Goal %s with %d%% completion.", outcome, *standup.CompletionPercentage)
	} else {
		insights.Summary = fmt.Sprintf("Goal %s.", outcome)
	}
	return insights
}

// TriageBlocker suggests severity, category and next steps for a blocker and stores the result
func (s *AIService) TriageBlocker(ctx context.Context, blockerID uint) (*BlockerTriage, error) {
	blocker, err := s.blockers.GetByID(ctx, blockerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("blocker")
	}
	if err != nil {
		return nil, err
	}

	triage := s.triage(ctx, blocker)

	data, err := json.Marshal(triage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal triage: %w", err)
	}
	if err := s.blockers.SetAIAnalysis(ctx, blockerID, data); err != nil {
		return nil, err
	}

	return triage, nil
}

func (s *AIService) triage(ctx context.Context, blocker *models.Blocker) *BlockerTriage {
	prompt := fmt.Sprintf(
		"Triage this workplace blocker. Severity is one of LOW, MEDIUM, HIGH, CRITICAL. "+
			"Category is one of TECHNICAL, RESOURCE, COMMUNICATION, EXTERNAL, OTHER. Answer with JSON: "+
			`{"suggested_severity": "...", "suggested_category": "...", "next_steps": ["..."]}`+"\n\n"+
			"Title: %s\nDescription: %s\nReported severity: %s\nReported category: %s\nSupport required: %s\n",
		blocker.Title, blocker.Description, blocker.Severity, blocker.Category, deref(blocker.SupportRequired),
	)

	var reply BlockerTriage
	if err := s.generateJSON(ctx, prompt, &reply); err == nil && len(reply.NextSteps) > 0 {
		reply.SuggestedSeverity = strings.ToUpper(reply.SuggestedSeverity)
		reply.SuggestedCategory = strings.ToUpper(reply.SuggestedCategory)
		if !models.Severity(reply.SuggestedSeverity).Valid() {
			reply.SuggestedSeverity = string(blocker.Severity)
		}
		if !validCategory(reply.SuggestedCategory) {
			reply.SuggestedCategory = blocker.Category
		}
		reply.Source = SourceAI
		return &reply
	}

	return FallbackTriage(blocker)
}

var categorySteps = map[string][]string{
	models.BlockerCategoryTechnical:     {"Reproduce the problem and capture logs", "Pair with a teammate who owns the affected component"},
	models.BlockerCategoryResource:      {"List the missing resources and who can approve them", "Agree on a temporary workaround with the manager"},
	models.BlockerCategoryCommunication: {"Set up a short call with everyone involved", "Write down the open questions and owners"},
	models.BlockerCategoryExternal:      {"Contact the external party with a concrete deadline", "Plan work that does not depend on the external party"},
	models.BlockerCategoryOther:         {"Describe the impact on today's goal", "Ask the manager for a decision"},
}

// FallbackTriage keeps the reported classification and proposes steps per category
func FallbackTriage(blocker *models.Blocker) *BlockerTriage {
	steps, ok := categorySteps[blocker.Category]
	if !ok {
		steps = categorySteps[models.BlockerCategoryOther]
	}
	if blocker.Severity == models.SeverityCritical || blocker.Severity == models.SeverityHigh {
		steps = append([]string{"Escalate to a manager today"}, steps...)
	}
	return &BlockerTriage{
		SuggestedSeverity: string(blocker.Severity),
		SuggestedCategory: blocker.Category,
		NextSteps:         steps,
		Source:            SourceFallback,
	}
}

// WeeklySummary writes an executive summary of a weekly report
func (s *AIService) WeeklySummary(ctx context.Context, report *models.WeeklyReport) (string, string) {
	metrics, _ := json.Marshal(report)
	prompt := "Write a short executive summary (at most 5 sentences) of this weekly team health report " +
		"for the leadership team. Mention submission rate, completion rate and the most affected departments.\n\n" +
		string(metrics)

	if s.llm != nil {
		text, err := s.llm.Generate(ctx, prompt, "")
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), SourceAI
		}
		if err != nil && !errors.Is(err, ErrLLMDisabled) {
			slog.Warn("AI weekly summary unavailable, using fallback", "error", err)
		}
	}

	return FallbackWeeklySummary(report), SourceFallback
}

// FallbackWeeklySummary renders the report metrics as plain sentences
func FallbackWeeklySummary(r *models.WeeklyReport) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Week %s to %s: %d of %d expected standups were submitted (%.1f%%). ",
		r.From.Format("2006-01-02"), r.To.Format("2006-01-02"), r.Submissions, r.ExpectedSubmissions, r.SubmissionRate))
	sb.WriteString(fmt.Sprintf("%d goals were fully achieved (%.1f%% completion rate), %d submissions were late. ",
		r.AchievedGoals, r.CompletionRate, r.LateSubmissions))

	total := 0
	for _, c := range r.BlockersBySeverity {
		total += c
	}
	sb.WriteString(fmt.Sprintf("%d blockers were raised", total))
	if c := r.BlockersBySeverity[string(models.SeverityCritical)]; c > 0 {
		sb.WriteString(fmt.Sprintf(", %d of them critical", c))
	}
	sb.WriteString(fmt.Sprintf("; %d blockers are still open.", r.OpenBlockers))
	if len(r.BlockersByDepartment) > 0 {
		top := r.BlockersByDepartment[0]
		sb.WriteString(fmt.Sprintf(" Most blockers came from %s (%d).", top.Department, top.Count))
	}
	return sb.String()
}

// generateJSON asks the model for a JSON reply and decodes it into v
func (s *AIService) generateJSON(ctx context.Context, prompt string, v interface{}) error {
	if s.llm == nil {
		return ErrLLMDisabled
	}
	text, err := s.llm.Generate(ctx, prompt, "json")
	if err != nil {
		if !errors.Is(err, ErrLLMDisabled) {
			slog.Warn("AI request failed, using fallback", "error", err)
		}
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		slog.Warn("AI reply is not valid JSON, using fallback", "error", err)
		return err
	}
	return nil
}

func validCategory(c string) bool {
	_, ok := categorySteps[c]
	return ok
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
