package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"standup-desk/internal/models"
	"standup-desk/internal/repository"
	"standup-desk/internal/tasks"
	"standup-desk/pkg/validator"
)

// BlockerStore is the persistence used by the blocker lifecycle
type BlockerStore interface {
	Create(ctx context.Context, blocker *models.Blocker) error
	GetByID(ctx context.Context, id uint) (*models.Blocker, error)
	GetWithUser(ctx context.Context, id uint) (*models.BlockerWithUser, error)
	UpdateStatus(ctx context.Context, id uint, status string, at time.Time) (*models.Blocker, error)
	Escalate(ctx context.Context, id, escalatedTo uint, notes *string, deadline *time.Time, at time.Time) (*models.Blocker, error)
	Resolve(ctx context.Context, id, resolvedBy uint, notes string, at time.Time) (*models.Blocker, error)
	List(ctx context.Context, filters repository.BlockerFilters, limit, offset int, onlyID ...uint) ([]models.BlockerWithUser, int, error)
	Analytics(ctx context.Context, filters repository.BlockerFilters) (*models.BlockerAnalytics, error)
}

// StandupLookup finds standups a blocker can be linked to
type StandupLookup interface {
	GetByID(ctx context.Context, id uint) (*models.Standup, error)
	ListByUserAndDate(ctx context.Context, userID uint, date time.Time) ([]models.Standup, error)
}

// UserLookup loads users by id
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// BlockerService implements the blocker lifecycle:
// OPEN <-> IN_PROGRESS, either -> ESCALATED, any unresolved -> RESOLVED (terminal)
type BlockerService struct {
	store     BlockerStore
	standups  StandupLookup
	users     UserLookup
	publisher tasks.Publisher
	clock     Clock
}

// NewBlockerService creates a new blocker service
func NewBlockerService(store BlockerStore, standups StandupLookup, users UserLookup, publisher tasks.Publisher, clock Clock) *BlockerService {
	return &BlockerService{
		store:     store,
		standups:  standups,
		users:     users,
		publisher: publisher,
		clock:     clock,
	}
}

// RaiseInput is the payload of a new blocker
type RaiseInput struct {
	Title           string  `json:"title" validate:"required,min=1,max=100"`
	Description     string  `json:"description" validate:"required,min=100,max=5000"`
	Category        string  `json:"category" validate:"required,oneof=TECHNICAL RESOURCE COMMUNICATION EXTERNAL OTHER"`
	Severity        string  `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	SupportRequired *string `json:"support_required" validate:"max=200"`
	StandupID       *uint   `json:"standup_id"`
}

// StatusInput is the payload of a status change
type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=OPEN IN_PROGRESS"`
}

// EscalateInput is the payload of an escalation
type EscalateInput struct {
	EscalatedTo uint       `json:"escalated_to" validate:"required"`
	Notes       *string    `json:"escalation_notes" validate:"max=2000"`
	Deadline    *time.Time `json:"escalation_deadline"`
}

// ResolveInput is the payload of a resolution
type ResolveInput struct {
	ResolutionNotes string `json:"resolution_notes" validate:"required,min=20,max=2000"`
}

// Raise records a new OPEN blocker for the actor. It is linked to the given
// standup, or to the actor's latest standup of today when none is given.
func (s *BlockerService) Raise(ctx context.Context, actor Actor, input RaiseInput) (*models.Blocker, error) {
	input.Title = validator.SanitizeString(input.Title)
	input.Description = validator.SanitizeString(input.Description)
	input.Category = strings.ToUpper(strings.TrimSpace(input.Category))
	input.Severity = strings.ToUpper(strings.TrimSpace(input.Severity))
	if input.SupportRequired != nil {
		support := validator.SanitizeString(*input.SupportRequired)
		input.SupportRequired = &support
		if support == "" {
			input.SupportRequired = nil
		}
	}
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	standupID, err := s.linkStandup(ctx, actor, input.StandupID)
	if err != nil {
		return nil, err
	}

	blocker := &models.Blocker{
		UserID:          actor.ID,
		StandupID:       standupID,
		Title:           input.Title,
		Description:     input.Description,
		Category:        input.Category,
		Severity:        models.Severity(input.Severity),
		SupportRequired: input.SupportRequired,
	}
	if err := s.store.Create(ctx, blocker); err != nil {
		return nil, err
	}

	tasks.Fire(ctx, s.publisher, tasks.TypeTriageBlocker, tasks.BlockerPayload{BlockerID: blocker.ID})
	tasks.Fire(ctx, s.publisher, tasks.TypeBlockerRaised, tasks.BlockerPayload{BlockerID: blocker.ID})

	slog.Info("Blocker raised", "blocker_id", blocker.ID, "user_id", actor.ID, "severity", blocker.Severity)
	return blocker, nil
}

func (s *BlockerService) linkStandup(ctx context.Context, actor Actor, requested *uint) (*uint, error) {
	if requested != nil {
		standup, err := s.standups.GetByID(ctx, *requested)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && standup.UserID != actor.ID) {
			return nil, notFound("standup")
		}
		if err != nil {
			return nil, err
		}
		if !sameDate(standup.Date, s.clock.today()) {
			return nil, invalidField("standup_id", "a blocker can only be linked to today's standup")
		}
		return &standup.ID, nil
	}

	today, err := s.standups.ListByUserAndDate(ctx, actor.ID, s.clock.today())
	if err != nil {
		// Linking is opportunistic
		slog.Warn("Failed to look up today's standup for blocker", "user_id", actor.ID, "error", err)
		return nil, nil
	}
	if len(today) == 0 {
		return nil, nil
	}
	id := today[len(today)-1].ID
	return &id, nil
}

// UpdateStatus moves an unresolved blocker between OPEN and IN_PROGRESS
func (s *BlockerService) UpdateStatus(ctx context.Context, actor Actor, id uint, input StatusInput) (*models.Blocker, error) {
	if err := Authorize(actor.Role, models.RoleManager); err != nil {
		return nil, err
	}
	input.Status = strings.ToUpper(strings.TrimSpace(input.Status))
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	blocker, err := s.store.UpdateStatus(ctx, id, input.Status, s.clock.now())
	if errors.Is(err, repository.ErrConflict) {
		return nil, s.resolvedConflict(ctx, id, NewError(CodeInvalidStatus, "resolved blockers cannot change status"))
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Blocker status updated", "blocker_id", id, "status", input.Status, "by", actor.ID)
	return blocker, nil
}

// Escalate hands an unresolved blocker to a manager or admin
func (s *BlockerService) Escalate(ctx context.Context, actor Actor, id uint, input EscalateInput) (*models.Blocker, error) {
	if err := Authorize(actor.Role, models.RoleManager); err != nil {
		return nil, err
	}
	if input.Notes != nil {
		notes := validator.SanitizeString(*input.Notes)
		input.Notes = &notes
		if notes == "" {
			input.Notes = nil
		}
	}
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	now := s.clock.now()
	if input.Deadline != nil && !input.Deadline.After(now) {
		return nil, invalidField("escalation_deadline", "escalation_deadline must be in the future")
	}

	target, err := s.users.GetByID(ctx, input.EscalatedTo)
	if errors.Is(err, repository.ErrUserNotFound) || (err == nil && !target.IsActive) {
		return nil, invalidField("escalated_to", "escalation target does not exist or is inactive")
	}
	if err != nil {
		return nil, err
	}
	if !target.Role.AtLeast(models.RoleManager) {
		return nil, invalidField("escalated_to", "blockers can only be escalated to a manager or admin")
	}

	blocker, err := s.store.Escalate(ctx, id, target.ID, input.Notes, input.Deadline, now)
	if errors.Is(err, repository.ErrConflict) {
		return nil, s.resolvedConflict(ctx, id, NewError(CodeInvalidStatus, "resolved blockers cannot be escalated"))
	}
	if err != nil {
		return nil, err
	}

	tasks.Fire(ctx, s.publisher, tasks.TypeBlockerEscalated, tasks.BlockerPayload{BlockerID: blocker.ID})

	slog.Info("Blocker escalated", "blocker_id", id, "escalated_to", target.ID, "by", actor.ID)
	return blocker, nil
}

// Resolve closes a blocker for good
func (s *BlockerService) Resolve(ctx context.Context, actor Actor, id uint, input ResolveInput) (*models.Blocker, error) {
	if err := Authorize(actor.Role, models.RoleManager); err != nil {
		return nil, err
	}
	input.ResolutionNotes = validator.SanitizeString(input.ResolutionNotes)
	if err := validator.ValidateStruct(&input); err != nil {
		return nil, validationError(err)
	}

	blocker, err := s.store.Resolve(ctx, id, actor.ID, input.ResolutionNotes, s.clock.now())
	if errors.Is(err, repository.ErrConflict) {
		return nil, s.resolvedConflict(ctx, id, NewError(CodeAlreadyResolved, "blocker is already resolved"))
	}
	if err != nil {
		return nil, err
	}

	tasks.Fire(ctx, s.publisher, tasks.TypeBlockerResolved, tasks.BlockerPayload{BlockerID: blocker.ID})

	slog.Info("Blocker resolved", "blocker_id", id, "by", actor.ID)
	return blocker, nil
}

// resolvedConflict explains a conditional update miss: the blocker is either
// gone or already resolved
func (s *BlockerService) resolvedConflict(ctx context.Context, id uint, conflict *Error) error {
	_, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("blocker")
	}
	if err != nil {
		return err
	}
	return conflict
}

// Get returns a blocker visible to the actor
func (s *BlockerService) Get(ctx context.Context, actor Actor, id uint) (*models.BlockerWithUser, error) {
	blocker, err := s.store.GetWithUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("blocker")
	}
	if err != nil {
		return nil, err
	}
	if blocker.UserID != actor.ID && !actor.IsManager() {
		return nil, notFound("blocker")
	}
	return blocker, nil
}

// BlockerQuery filters a blocker listing
type BlockerQuery struct {
	Status     string
	Severity   string
	Category   string
	Department string
	UserID     *uint
	OnlyMine   bool
	Page       int
	PageSize   int
}

// List returns blockers, most severe first. Employees only see their own.
func (s *BlockerService) List(ctx context.Context, actor Actor, q BlockerQuery) (*Page[models.BlockerWithUser], error) {
	filters := repository.BlockerFilters{
		UserID:     q.UserID,
		Department: q.Department,
		Status:     strings.ToUpper(q.Status),
		Severity:   strings.ToUpper(q.Severity),
		Category:   strings.ToUpper(q.Category),
	}
	if q.OnlyMine || !actor.IsManager() {
		filters.UserID = &actor.ID
	}
	if filters.Severity != "" && !models.Severity(filters.Severity).Valid() {
		return nil, invalidField("severity", "severity must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}

	page, size := normalizePage(q.Page, q.PageSize)
	items, total, err := s.store.List(ctx, filters, size, (page-1)*size)
	if err != nil {
		return nil, err
	}

	return &Page[models.BlockerWithUser]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Analytics counts blockers by status, severity and category. Managers are
// limited to their department.
func (s *BlockerService) Analytics(ctx context.Context, actor Actor, from, to *time.Time) (*models.BlockerAnalytics, error) {
	if err := Authorize(actor.Role, models.RoleManager); err != nil {
		return nil, err
	}

	filters := repository.BlockerFilters{Department: actor.scopeDepartment(), From: from}
	if to != nil {
		end := to.AddDate(0, 0, 1)
		filters.To = &end
	}
	return s.store.Analytics(ctx, filters)
}
