package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"standup-desk/internal/models"
)

// Notification types stored in the log
const (
	TypeStandupSubmitted = "standup_submitted"
	TypeStandupReviewed  = "standup_reviewed"
	TypeBlockerRaised    = "blocker_raised"
	TypeBlockerEscalated = "blocker_escalated"
	TypeBlockerResolved  = "blocker_resolved"
	TypeDailyReminder    = "daily_reminder"
	TypeWeeklyReport     = "weekly_report"
)

// StandupSubmitted tells the owner's managers that a standup awaits review
func (s *Service) StandupSubmitted(ctx context.Context, standup *models.StandupWithUser) error {
	fields := []Field{
		{"Employee", standup.UserName},
		{"Date", standup.Date.Format("2006-01-02")},
		{"Goal status", deref(standup.GoalStatus)},
	}
	if standup.CompletionPercentage != nil {
		fields = append(fields, Field{"Completion", strconv.Itoa(*standup.CompletionPercentage) + "%"})
	}
	if standup.IsLateSubmission {
		fields = append(fields, Field{"Late", "yes"})
	}

	alert := Alert{
		Type:   TypeStandupSubmitted,
		Title:  fmt.Sprintf("%s submitted a standup", standup.UserName),
		Text:   deref(standup.AchievementTitle),
		Fields: fields,
		Link:   fmt.Sprintf("/standups/%d", standup.ID),
		Data:   map[string]uint{"standup_id": standup.ID},
	}
	return s.notifyTeam(ctx, models.RoleManager, standup.Department, alert).err()
}

// StandupReviewed tells the owner about the manager's decision
func (s *Service) StandupReviewed(ctx context.Context, standup *models.StandupWithUser, action string) error {
	owner, err := s.directory.GetByID(ctx, standup.UserID)
	if err != nil {
		return fmt.Errorf("failed to load standup owner: %w", err)
	}

	title := "Your standup was reviewed"
	switch action {
	case models.ReviewApprove:
		title = "Your standup was approved"
	case models.ReviewNeedsAttention:
		title = "Your standup needs attention"
	case models.ReviewFeedback:
		title = "You received feedback on your standup"
	}

	alert := Alert{
		Type:  TypeStandupReviewed,
		Title: title,
		Text:  deref(standup.ManagerFeedback),
		Fields: []Field{
			{"Date", standup.Date.Format("2006-01-02")},
			{"Status", standup.Status},
		},
		Link: fmt.Sprintf("/standups/%d", standup.ID),
		Data: map[string]interface{}{"standup_id": standup.ID, "action": action},
	}
	return s.notifyUser(ctx, owner, alert).err()
}

// BlockerRaised alerts managers; CRITICAL blockers also reach the admins
func (s *Service) BlockerRaised(ctx context.Context, blocker *models.BlockerWithUser) error {
	alert := Alert{
		Type:     TypeBlockerRaised,
		Title:    fmt.Sprintf("%s blocker raised by %s", blocker.Severity, blocker.UserName),
		Text:     blocker.Title,
		Fields:   blockerFields(blocker),
		Severity: string(blocker.Severity),
		Link:     fmt.Sprintf("/blockers/%d", blocker.ID),
		Data:     map[string]uint{"blocker_id": blocker.ID},
	}

	out := s.notifyTeam(ctx, models.RoleManager, blocker.Department, alert)
	if blocker.Severity == models.SeverityCritical {
		out.merge(s.notifyTeam(ctx, models.RoleAdmin, "", alert))
	}
	return out.err()
}

// BlockerEscalated alerts the escalation target and the owner's managers
func (s *Service) BlockerEscalated(ctx context.Context, blocker *models.BlockerWithUser) error {
	if blocker.EscalatedTo == nil {
		return errors.New("blocker has no escalation target")
	}
	target, err := s.directory.GetByID(ctx, *blocker.EscalatedTo)
	if err != nil {
		return fmt.Errorf("failed to load escalation target: %w", err)
	}

	fields := blockerFields(blocker)
	if blocker.EscalationDeadline != nil {
		fields = append(fields, Field{"Deadline", blocker.EscalationDeadline.Format(time.RFC3339)})
	}
	alert := Alert{
		Type:     TypeBlockerEscalated,
		Title:    fmt.Sprintf("Blocker escalated to %s", target.FullName()),
		Text:     blocker.Title + "\n" + deref(blocker.EscalationNotes),
		Fields:   fields,
		Severity: string(blocker.Severity),
		Link:     fmt.Sprintf("/blockers/%d", blocker.ID),
		Data:     map[string]uint{"blocker_id": blocker.ID, "escalated_to": target.ID},
	}

	out := s.notifyUser(ctx, target, alert)
	out.merge(s.notifyTeam(ctx, models.RoleManager, blocker.Department, alert))
	return out.err()
}

// BlockerResolved tells the owner that the blocker is closed
func (s *Service) BlockerResolved(ctx context.Context, blocker *models.BlockerWithUser) error {
	owner, err := s.directory.GetByID(ctx, blocker.UserID)
	if err != nil {
		return fmt.Errorf("failed to load blocker owner: %w", err)
	}

	alert := Alert{
		Type:     TypeBlockerResolved,
		Title:    "Your blocker was resolved",
		Text:     blocker.Title + "\n" + deref(blocker.ResolutionNotes),
		Severity: string(blocker.Severity),
		Link:     fmt.Sprintf("/blockers/%d", blocker.ID),
		Data:     map[string]uint{"blocker_id": blocker.ID},
	}
	return s.notifyUser(ctx, owner, alert).err()
}

// DailyReminder asks one employee to submit today's standup
func (s *Service) DailyReminder(ctx context.Context, user *models.User, date time.Time) error {
	alert := Alert{
		Type:  TypeDailyReminder,
		Title: "Reminder: submit your standup",
		Text: fmt.Sprintf("Hi %s, you have not submitted your standup for %s yet. Submissions after 19:00 are marked late.",
			user.FirstName, date.Format("Monday, 2006-01-02")),
		Link: "/standups/today",
	}
	return s.notifyUser(ctx, user, alert).err()
}

// WeeklyReport sends the team health report to the admins
func (s *Service) WeeklyReport(ctx context.Context, report *models.WeeklyReport) error {
	alert := Alert{
		Type:  TypeWeeklyReport,
		Title: fmt.Sprintf("Weekly team report %s to %s", report.From.Format("2006-01-02"), report.To.Format("2006-01-02")),
		Text:  report.Summary,
		Fields: []Field{
			{"Submission rate", fmt.Sprintf("%.1f%%", report.SubmissionRate)},
			{"Completion rate", fmt.Sprintf("%.1f%%", report.CompletionRate)},
			{"Late submissions", strconv.Itoa(report.LateSubmissions)},
			{"Open blockers", strconv.Itoa(report.OpenBlockers)},
			{"Critical blockers", strconv.Itoa(report.BlockersBySeverity[string(models.SeverityCritical)])},
		},
		Link: "/reports/weekly",
		Data: report,
	}
	return s.notifyTeam(ctx, models.RoleAdmin, "", alert).err()
}

func blockerFields(b *models.BlockerWithUser) []Field {
	fields := []Field{
		{"Employee", b.UserName},
		{"Category", b.Category},
		{"Severity", string(b.Severity)},
		{"Status", b.Status},
	}
	if b.Department != "" {
		fields = append(fields, Field{"Department", b.Department})
	}
	if b.SupportRequired != nil && *b.SupportRequired != "" {
		fields = append(fields, Field{"Support required", *b.SupportRequired})
	}
	return fields
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
