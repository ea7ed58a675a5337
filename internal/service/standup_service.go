package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"standup-desk/internal/models"
	"standup-desk/internal/repository"
	"standup-desk/internal/tasks"
	"standup-desk/pkg/validator"
)

// StandupStore is the persistence used by the standup lifecycle
type StandupStore interface {
	Create(ctx context.Context, userID uint, date time.Time) (*models.Standup, error)
	GetByID(ctx context.Context, id uint) (*models.Standup, error)
	GetWithUser(ctx context.Context, id uint) (*models.StandupWithUser, error)
	SetGoal(ctx context.Context, id, userID uint, goal string, taskRefs []string, at time.Time) (*models.Standup, error)
	Submit(ctx context.Context, id, userID uint, sub repository.Submission) (*models.Standup, error)
	Review(ctx context.Context, id, reviewerID uint, status string, feedback *string, at time.Time) (*models.Standup, error)
	ListByUserAndDate(ctx context.Context, userID uint, date time.Time) ([]models.Standup, error)
	History(ctx context.Context, filters repository.StandupFilters, limit, offset int) ([]models.StandupWithUser, int, error)
	PendingReview(ctx context.Context, department string) ([]models.StandupWithUser, error)
	Team(ctx context.Context, date time.Time, department string) ([]models.StandupWithUser, error)
}

// LogoutRecorder stores the end of a working day
type LogoutRecorder interface {
	RecordLogout(ctx context.Context, userID uint, date, at time.Time) (*models.Attendance, error)
}

// StandupService implements the standup lifecycle:
// PENDING -> GOAL_SET -> SUBMITTED -> APPROVED | NEEDS_ATTENTION
type StandupService struct {
	store      StandupStore
	attendance LogoutRecorder
	publisher  tasks.Publisher
	clock      Clock
}

// NewStandupService creates a new standup service
func NewStandupService(store StandupStore, attendance LogoutRecorder, publisher tasks.Publisher, clock Clock) *StandupService {
	return &StandupService{
		store:      store,
		attendance: attendance,
		publisher:  publisher,
		clock:      clock,
	}
}

// GoalInput is the payload of a set-goal request
type GoalInput struct {
	StandupID *uint    `json:"standup_id"`
	TodayGoal string   `json:"today_goal" validate:"required,min=50,max=2000"`
	TaskRefs  []string `json:"task_refs" validate:"max=20"`
}

// SubmitInput is the payload of a submission
type SubmitInput struct {
	AchievementTitle     string  `json:"achievement_title" validate:"required,min=1,max=100"`
	AchievementDesc      string  `json:"achievement_desc" validate:"required,min=100,max=5000"`
	GoalStatus           string  `json:"goal_status" validate:"required,oneof=ACHIEVED PARTIALLY_ACHIEVED NOT_ACHIEVED"`
	CompletionPercentage *int    `json:"completion_percentage" validate:"gte=0,lte=100"`
	NotAchievedReason    *string `json:"not_achieved_reason" validate:"max=2000"`
}

// MinNotAchievedReason is the minimum reason length for partially or not achieved goals
const MinNotAchievedReason = 50

// ReviewInput is the payload of a manager review
type ReviewInput struct {
	Action   string  `json:"action" validate:"required,oneof=approve feedback needs_attention"`
	Feedback *string `json:"feedback" validate:"max=2000"`
}

// Create starts a new PENDING standup for today with the next sequence number
func (s *StandupService) Create(ctx context.Context, actor Actor) (*models.Standup, error) {
	standup, err := s.store.Create(ctx, actor.ID, s.clock.today())
	if err != nil {
		return nil, err
	}

	slog.Info("Standup created", "standup_id", standup.ID, "user_id", actor.ID, "sequence", standup.Sequence)
	return standup, nil
}

// SetGoal records today's goal. Without a standup id a new standup is created first.
func (s *StandupService) SetGoal(ctx context.Context, actor Actor, input GoalInput) (*models.Standup, error) {
	input.TodayGoal = validator.SanitizeString(input.TodayGoal)
	input.TaskRefs = cleanRefs(input.TaskRefs)
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	var standupID uint
	if input.StandupID != nil {
		standupID = *input.StandupID
	} else {
		created, err := s.Create(ctx, actor)
		if err != nil {
			return nil, err
		}
		standupID = created.ID
	}

	standup, err := s.store.SetGoal(ctx, standupID, actor.ID, input.TodayGoal, input.TaskRefs, s.clock.now())
	if errors.Is(err, repository.ErrConflict) {
		return nil, s.goalConflict(ctx, actor, standupID)
	}
	if err != nil {
		return nil, err
	}

	return standup, nil
}

func (s *StandupService) goalConflict(ctx context.Context, actor Actor, id uint) error {
	current, err := s.ownedStandup(ctx, actor, id)
	if err != nil {
		return err
	}
	if current.Status != models.StandupStatusPending {
		return NewError(CodeGoalAlreadySet, "goal has already been set for this standup")
	}
	return fmt.Errorf("goal update for standup %d did not apply", id)
}

// Submit records the end-of-day achievement of a standup with a goal
func (s *StandupService) Submit(ctx context.Context, actor Actor, id uint, input SubmitInput) (*models.Standup, error) {
	input.AchievementTitle = validator.SanitizeString(input.AchievementTitle)
	input.AchievementDesc = validator.SanitizeString(input.AchievementDesc)
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	sub := repository.Submission{
		AchievementTitle:     input.AchievementTitle,
		AchievementDesc:      input.AchievementDesc,
		GoalStatus:           input.GoalStatus,
		CompletionPercentage: input.CompletionPercentage,
	}

	if input.GoalStatus == models.GoalAchieved {
		if sub.CompletionPercentage == nil {
			full := 100
			sub.CompletionPercentage = &full
		}
	} else {
		reason := ""
		if input.NotAchievedReason != nil {
			reason = validator.SanitizeString(*input.NotAchievedReason)
		}
		if utf8.RuneCountInString(reason) < MinNotAchievedReason {
			return nil, invalidField("not_achieved_reason",
				fmt.Sprintf("not_achieved_reason must be at least %d characters when the goal was not fully achieved", MinNotAchievedReason))
		}
		sub.NotAchievedReason = &reason
	}

	now := s.clock.now()
	sub.At = now
	sub.IsLate = IsLateSubmission(now)

	standup, err := s.store.Submit(ctx, id, actor.ID, sub)
	if errors.Is(err, repository.ErrConflict) {
		return nil, s.submitConflict(ctx, actor, id)
	}
	if err != nil {
		return nil, err
	}

	if s.attendance != nil {
		if _, err := s.attendance.RecordLogout(ctx, actor.ID, startOfDay(now), now); err != nil {
			slog.Error("Failed to update attendance on submission", "standup_id", id, "user_id", actor.ID, "error", err)
		}
	}

	tasks.Fire(ctx, s.publisher, tasks.TypeAnalyzeStandup, tasks.StandupPayload{StandupID: standup.ID})
	tasks.Fire(ctx, s.publisher, tasks.TypeStandupSubmitted, tasks.StandupPayload{StandupID: standup.ID})

	slog.Info("Standup submitted", "standup_id", standup.ID, "user_id", actor.ID, "late", sub.IsLate)
	return standup, nil
}

func (s *StandupService) submitConflict(ctx context.Context, actor Actor, id uint) error {
	current, err := s.ownedStandup(ctx, actor, id)
	if err != nil {
		return err
	}
	switch current.Status {
	case models.StandupStatusPending:
		return NewError(CodeNoGoalSet, "set a goal before submitting")
	case models.StandupStatusSubmitted, models.StandupStatusApproved:
		return NewError(CodeAlreadySubmitted, "standup has already been submitted")
	default:
		return NewError(CodeInvalidStatus, "standup cannot be submitted in status "+current.Status)
	}
}

// Review applies a manager decision to a SUBMITTED standup
func (s *StandupService) Review(ctx context.Context, actor Actor, id uint, input ReviewInput) (*models.Standup, error) {
	if err := Authorize(actor.Role, models.RoleManager); err != nil {
		return nil, err
	}

	input.Action = strings.ToLower(strings.TrimSpace(input.Action))
	if input.Feedback != nil {
		trimmed := validator.SanitizeString(*input.Feedback)
		input.Feedback = &trimmed
		if trimmed == "" {
			input.Feedback = nil
		}
	}
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	status := models.StandupStatusSubmitted
	switch input.Action {
	case models.ReviewApprove:
		status = models.StandupStatusApproved
	case models.ReviewNeedsAttention:
		status = models.StandupStatusNeedsAttention
	case models.ReviewFeedback:
		if input.Feedback == nil {
			return nil, invalidField("feedback", "feedback is required for the feedback action")
		}
	}

	standup, err := s.store.Review(ctx, id, actor.ID, status, input.Feedback, s.clock.now())
	if errors.Is(err, repository.ErrConflict) {
		if _, getErr := s.store.GetByID(ctx, id); errors.Is(getErr, repository.ErrNotFound) {
			return nil, notFound("standup")
		}
		return nil, NewError(CodeInvalidStatus, "only submitted standups can be reviewed")
	}
	if err != nil {
		return nil, err
	}

	tasks.Fire(ctx, s.publisher, tasks.TypeStandupReviewed, tasks.ReviewPayload{StandupID: standup.ID, Action: input.Action})

	slog.Info("Standup reviewed", "standup_id", id, "reviewer_id", actor.ID, "action", input.Action)
	return standup, nil
}

// Get returns a standup visible to the actor: their own, or any for managers
func (s *StandupService) Get(ctx context.Context, actor Actor, id uint) (*models.StandupWithUser, error) {
	standup, err := s.store.GetWithUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("standup")
	}
	if err != nil {
		return nil, err
	}
	if standup.UserID != actor.ID && !actor.IsManager() {
		return nil, notFound("standup")
	}
	return standup, nil
}

// Today lists the actor's standups of the current day in sequence order
func (s *StandupService) Today(ctx context.Context, actor Actor) ([]models.Standup, error) {
	return s.store.ListByUserAndDate(ctx, actor.ID, s.clock.today())
}

// HistoryQuery filters a standup history listing
type HistoryQuery struct {
	UserID   *uint
	Status   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Page is one page of a listing
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

// History lists standups newest day first. Employees only see their own.
func (s *StandupService) History(ctx context.Context, actor Actor, q HistoryQuery) (*Page[models.StandupWithUser], error) {
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, invalidField("to", "to must not be before from")
	}

	filters := repository.StandupFilters{UserID: q.UserID, Status: q.Status, From: q.From, To: q.To}
	if !actor.IsManager() {
		filters.UserID = &actor.ID
	}

	page, size := normalizePage(q.Page, q.PageSize)
	items, total, err := s.store.History(ctx, filters, size, (page-1)*size)
	if err != nil {
		return nil, err
	}

	return &Page[models.StandupWithUser]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// PendingReview lists submitted standups awaiting review, most recent first
func (s *StandupService) PendingReview(ctx context.Context, actor Actor) ([]models.StandupWithUser, error) {
	if err := Authorize(actor.Role, models.RoleManager); err != nil {
		return nil, err
	}
	return s.store.PendingReview(ctx, actor.scopeDepartment())
}

// Team lists today's standups of the manager's department, or all for admins
func (s *StandupService) Team(ctx context.Context, actor Actor) ([]models.StandupWithUser, error) {
	if err := Authorize(actor.Role, models.RoleManager); err != nil {
		return nil, err
	}
	return s.store.Team(ctx, s.clock.today(), actor.scopeDepartment())
}

// ownedStandup loads a standup and hides it from anyone but its owner
func (s *StandupService) ownedStandup(ctx context.Context, actor Actor, id uint) (*models.Standup, error) {
	standup, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("standup")
	}
	if err != nil {
		return nil, err
	}
	if standup.UserID != actor.ID {
		return nil, notFound("standup")
	}
	return standup, nil
}

func cleanRefs(refs []string) []string {
	var out []string
	for _, r := range refs {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
