package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"standup-desk/internal/models"
	"standup-desk/internal/tasks"
)

var (
	validGoal = "Finish the CSV export of the attendance report and write the tests for it"
	validDesc = strings.Repeat("Implemented the export endpoint, covered it with tests and reviewed it. ", 2)
)

func newStandupService(now *time.Time) (*StandupService, *memStandups, *recordingPublisher, *logoutRecorder) {
	store := newMemStandups(testUsers()...)
	pub := &recordingPublisher{}
	logouts := &logoutRecorder{}
	return NewStandupService(store, logouts, pub, fixedClock(now)), store, pub, logouts
}

func submitInput(status string) SubmitInput {
	return SubmitInput{AchievementTitle: "Export shipped", AchievementDesc: validDesc, GoalStatus: status}
}

func TestSetGoal_CreatesStandupsInSequence(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, berlin)
	svc, _, _, _ := newStandupService(&now)
	ctx := context.Background()

	first, err := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal, TaskRefs: []string{"JIRA-1", "  "}})
	if err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	if first.Status != models.StandupStatusGoalSet || first.Sequence != 1 {
		t.Errorf("Expected GOAL_SET with sequence 1, got %s/%d", first.Status, first.Sequence)
	}
	if len(first.TaskRefs) != 1 || first.TaskRefs[0] != "JIRA-1" {
		t.Errorf("Expected blank refs to be dropped, got %v", first.TaskRefs)
	}
	if first.GoalSetTime == nil || !first.GoalSetTime.Equal(now) {
		t.Errorf("Expected goal time %v, got %v", now, first.GoalSetTime)
	}

	second, err := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal})
	if err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	if second.Sequence != 2 {
		t.Errorf("Expected a second standup with sequence 2, got %d", second.Sequence)
	}

	// the next day starts over
	now = now.Add(24 * time.Hour)
	third, err := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal})
	if err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	if third.Sequence != 1 {
		t.Errorf("Expected sequence to restart on a new day, got %d", third.Sequence)
	}
}

func TestSetGoal_Errors(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, berlin)
	svc, _, _, _ := newStandupService(&now)
	ctx := context.Background()

	_, err := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: "too short"})
	if ErrorCode(err) != CodeValidation {
		t.Fatalf("Expected VALIDATION_ERROR for a short goal, got %v", err)
	}

	standup, err := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal})
	if err != nil {
		t.Fatalf("SetGoal: %v", err)
	}

	_, err = svc.SetGoal(ctx, employee, GoalInput{StandupID: &standup.ID, TodayGoal: validGoal})
	if ErrorCode(err) != CodeGoalAlreadySet {
		t.Errorf("Expected GOAL_ALREADY_SET, got %v", err)
	}

	_, err = svc.SetGoal(ctx, otherEmployee, GoalInput{StandupID: &standup.ID, TodayGoal: validGoal})
	if ErrorCode(err) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND for another user's standup, got %v", err)
	}

	missing := uint(999)
	_, err = svc.SetGoal(ctx, employee, GoalInput{StandupID: &missing, TodayGoal: validGoal})
	if ErrorCode(err) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND for a missing standup, got %v", err)
	}
}

func TestSubmit_LateBoundary(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		late bool
	}{
		{"one second before", time.Date(2026, 3, 2, 18, 59, 59, 0, berlin), false},
		{"exactly at the hour", time.Date(2026, 3, 2, 19, 0, 0, 0, berlin), true},
		{"late evening", time.Date(2026, 3, 2, 23, 30, 0, 0, berlin), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2026, 3, 2, 9, 0, 0, 0, berlin)
			svc, _, _, logouts := newStandupService(&now)
			ctx := context.Background()

			standup, err := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal})
			if err != nil {
				t.Fatalf("SetGoal: %v", err)
			}

			now = tt.at
			submitted, err := svc.Submit(ctx, employee, standup.ID, submitInput(models.GoalAchieved))
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if submitted.IsLateSubmission != tt.late {
				t.Errorf("Expected late=%v at %s, got %v", tt.late, tt.at.Format("15:04:05"), submitted.IsLateSubmission)
			}
			if len(logouts.calls) != 1 || !logouts.calls[0].Equal(tt.at) {
				t.Errorf("Expected attendance logout at submission time, got %v", logouts.calls)
			}
		})
	}
}

func TestSubmit_Rules(t *testing.T) {
	now := time.Date(2026, 3, 2, 17, 0, 0, 0, berlin)
	svc, store, pub, _ := newStandupService(&now)
	ctx := context.Background()

	pending, _ := store.Create(ctx, employee.ID, startOfDay(now))
	_, err := svc.Submit(ctx, employee, pending.ID, submitInput(models.GoalAchieved))
	if ErrorCode(err) != CodeNoGoalSet {
		t.Errorf("Expected NO_GOAL_SET for a pending standup, got %v", err)
	}

	standup, err := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal})
	if err != nil {
		t.Fatalf("SetGoal: %v", err)
	}

	// partial progress needs a reason
	_, err = svc.Submit(ctx, employee, standup.ID, submitInput(models.GoalPartiallyAchieved))
	if ErrorCode(err) != CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR without a reason, got %v", err)
	}

	_, err = svc.Submit(ctx, otherEmployee, standup.ID, submitInput(models.GoalAchieved))
	if ErrorCode(err) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND when submitting another user's standup, got %v", err)
	}

	submitted, err := svc.Submit(ctx, employee, standup.ID, submitInput(models.GoalAchieved))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.CompletionPercentage == nil || *submitted.CompletionPercentage != 100 {
		t.Errorf("Expected achieved goal to default to 100%%, got %v", submitted.CompletionPercentage)
	}

	_, err = svc.Submit(ctx, employee, standup.ID, submitInput(models.GoalAchieved))
	if ErrorCode(err) != CodeAlreadySubmitted {
		t.Errorf("Expected ALREADY_SUBMITTED, got %v", err)
	}

	got := strings.Join(pub.types(), ",")
	want := tasks.TypeAnalyzeStandup + "," + tasks.TypeStandupSubmitted
	if got != want {
		t.Errorf("Expected published tasks %q, got %q", want, got)
	}
}

func TestSubmit_PublishFailureDoesNotFail(t *testing.T) {
	now := time.Date(2026, 3, 2, 17, 0, 0, 0, berlin)
	svc, _, pub, _ := newStandupService(&now)
	pub.err = errors.New("redis down")
	ctx := context.Background()

	standup, _ := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal})
	reason := "The staging environment was down for most of the afternoon and blocked testing."
	pct := 40
	input := submitInput(models.GoalNotAchieved)
	input.NotAchievedReason = &reason
	input.CompletionPercentage = &pct

	submitted, err := svc.Submit(ctx, employee, standup.ID, input)
	if err != nil {
		t.Fatalf("Expected submission to succeed when publishing fails, got %v", err)
	}
	if submitted.Status != models.StandupStatusSubmitted || *submitted.CompletionPercentage != 40 {
		t.Errorf("Unexpected submission %+v", submitted)
	}
}

func TestReview(t *testing.T) {
	now := time.Date(2026, 3, 2, 17, 0, 0, 0, berlin)
	svc, _, pub, _ := newStandupService(&now)
	ctx := context.Background()

	standup, _ := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal})
	if _, err := svc.Submit(ctx, employee, standup.ID, submitInput(models.GoalAchieved)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err := svc.Review(ctx, employee, standup.ID, ReviewInput{Action: "approve"})
	var svcErr *Error
	if !errors.As(err, &svcErr) || svcErr.Code != CodeForbidden {
		t.Fatalf("Expected FORBIDDEN for an employee, got %v", err)
	}
	details, _ := svcErr.Details.(map[string]interface{})
	if details["required_role"] != models.RoleManager {
		t.Errorf("Expected required_role MANAGER, got %v", svcErr.Details)
	}

	_, err = svc.Review(ctx, manager, standup.ID, ReviewInput{Action: "feedback"})
	if ErrorCode(err) != CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR for feedback without text, got %v", err)
	}

	text := "Please link the ticket next time"
	reviewed, err := svc.Review(ctx, manager, standup.ID, ReviewInput{Action: "feedback", Feedback: &text})
	if err != nil {
		t.Fatalf("Review feedback: %v", err)
	}
	if reviewed.Status != models.StandupStatusSubmitted || reviewed.ManagerFeedback == nil {
		t.Errorf("Expected feedback to keep SUBMITTED, got %s", reviewed.Status)
	}

	reviewed, err = svc.Review(ctx, manager, standup.ID, ReviewInput{Action: " Needs_Attention "})
	if err != nil {
		t.Fatalf("Review needs_attention: %v", err)
	}
	if reviewed.Status != models.StandupStatusNeedsAttention {
		t.Errorf("Expected NEEDS_ATTENTION, got %s", reviewed.Status)
	}

	// a flagged standup can be submitted again
	if _, err := svc.Submit(ctx, employee, standup.ID, submitInput(models.GoalAchieved)); err != nil {
		t.Fatalf("Resubmit after needs_attention: %v", err)
	}

	reviewed, err = svc.Review(ctx, admin, standup.ID, ReviewInput{Action: "approve"})
	if err != nil {
		t.Fatalf("Review approve: %v", err)
	}
	if reviewed.Status != models.StandupStatusApproved || reviewed.ReviewedBy == nil || *reviewed.ReviewedBy != admin.ID {
		t.Errorf("Expected APPROVED by admin, got %+v", reviewed)
	}

	_, err = svc.Review(ctx, manager, standup.ID, ReviewInput{Action: "approve"})
	if ErrorCode(err) != CodeInvalidStatus {
		t.Errorf("Expected INVALID_STATUS for an approved standup, got %v", err)
	}
	_, err = svc.Review(ctx, manager, 999, ReviewInput{Action: "approve"})
	if ErrorCode(err) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND for a missing standup, got %v", err)
	}

	reviews := 0
	for _, tt := range pub.types() {
		if tt == tasks.TypeStandupReviewed {
			reviews++
		}
	}
	if reviews != 3 {
		t.Errorf("Expected 3 review notifications, got %d", reviews)
	}
}

func TestGetAndHistoryVisibility(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, berlin)
	svc, _, _, _ := newStandupService(&now)
	ctx := context.Background()

	mine, _ := svc.SetGoal(ctx, employee, GoalInput{TodayGoal: validGoal})
	if _, err := svc.SetGoal(ctx, otherEmployee, GoalInput{TodayGoal: validGoal}); err != nil {
		t.Fatalf("SetGoal: %v", err)
	}

	if _, err := svc.Get(ctx, otherEmployee, mine.ID); ErrorCode(err) != CodeNotFound {
		t.Errorf("Expected NOT_FOUND for another employee, got %v", err)
	}
	got, err := svc.Get(ctx, manager, mine.ID)
	if err != nil || got.UserEmail != "employee@test.com" {
		t.Errorf("Expected manager to see the standup with owner, got %+v / %v", got, err)
	}

	// employees cannot widen their history to another user
	otherID := otherEmployee.ID
	page, err := svc.History(ctx, employee, HistoryQuery{UserID: &otherID})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if page.Total != 1 || page.Items[0].UserID != employee.ID {
		t.Errorf("Expected only own history, got %+v", page)
	}
	if page.Page != 1 || page.PageSize != 20 {
		t.Errorf("Expected default paging, got %d/%d", page.Page, page.PageSize)
	}

	page, err = svc.History(ctx, admin, HistoryQuery{})
	if err != nil || page.Total != 2 {
		t.Errorf("Expected admin to see both standups, got %+v / %v", page, err)
	}

	from := now
	to := now.AddDate(0, 0, -1)
	if _, err := svc.History(ctx, manager, HistoryQuery{From: &from, To: &to}); ErrorCode(err) != CodeValidation {
		t.Errorf("Expected VALIDATION_ERROR for an inverted range, got %v", err)
	}

	today, err := svc.Today(ctx, employee)
	if err != nil || len(today) != 1 {
		t.Errorf("Expected one standup today, got %d / %v", len(today), err)
	}
}

func TestTeamAndPendingReviewScope(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, berlin)
	svc, _, _, _ := newStandupService(&now)
	ctx := context.Background()

	for _, a := range []Actor{employee, otherEmployee} {
		s, err := svc.SetGoal(ctx, a, GoalInput{TodayGoal: validGoal})
		if err != nil {
			t.Fatalf("SetGoal: %v", err)
		}
		if _, err := svc.Submit(ctx, a, s.ID, submitInput(models.GoalAchieved)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	pending, err := svc.PendingReview(ctx, manager)
	if err != nil || len(pending) != 1 || pending[0].Department != "engineering" {
		t.Errorf("Expected manager to see own department only, got %+v / %v", pending, err)
	}
	pending, err = svc.PendingReview(ctx, admin)
	if err != nil || len(pending) != 2 {
		t.Errorf("Expected admin to see every department, got %d / %v", len(pending), err)
	}

	if _, err := svc.Team(ctx, employee); ErrorCode(err) != CodeForbidden {
		t.Errorf("Expected FORBIDDEN for team view of an employee, got %v", err)
	}
	team, err := svc.Team(ctx, manager)
	if err != nil || len(team) != 1 {
		t.Errorf("Expected one team standup, got %d / %v", len(team), err)
	}
}

func TestIsLateSubmission(t *testing.T) {
	if IsLateSubmission(time.Date(2026, 3, 2, 18, 59, 59, 999, berlin)) {
		t.Error("18:59:59 must not be late")
	}
	if !IsLateSubmission(time.Date(2026, 3, 2, 19, 0, 0, 0, berlin)) {
		t.Error("19:00:00 must be late")
	}
}
