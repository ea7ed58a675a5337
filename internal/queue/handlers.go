package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"standup-desk/internal/models"
	"standup-desk/internal/repository"
	"standup-desk/internal/service"
	"standup-desk/internal/tasks"
)

// Analyzer runs the AI advisory on stored records
type Analyzer interface {
	AnalyzeStandup(ctx context.Context, standupID uint) (*service.SubmissionInsights, error)
	TriageBlocker(ctx context.Context, blockerID uint) (*service.BlockerTriage, error)
}

// Notifier delivers lifecycle alerts
type Notifier interface {
	StandupSubmitted(ctx context.Context, standup *models.StandupWithUser) error
	StandupReviewed(ctx context.Context, standup *models.StandupWithUser, action string) error
	BlockerRaised(ctx context.Context, blocker *models.BlockerWithUser) error
	BlockerEscalated(ctx context.Context, blocker *models.BlockerWithUser) error
	BlockerResolved(ctx context.Context, blocker *models.BlockerWithUser) error
	DailyReminder(ctx context.Context, user *models.User, date time.Time) error
}

// StandupReader loads standups with their owner
type StandupReader interface {
	GetWithUser(ctx context.Context, id uint) (*models.StandupWithUser, error)
}

// BlockerReader loads blockers with their owner
type BlockerReader interface {
	GetWithUser(ctx context.Context, id uint) (*models.BlockerWithUser, error)
}

// UserReader loads users
type UserReader interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// HandlerFunc processes the payload of one task
type HandlerFunc func(ctx context.Context, payload []byte) error

// Handlers maps task types to their processing
type Handlers struct {
	analyzer Analyzer
	notifier Notifier
	standups StandupReader
	blockers BlockerReader
	users    UserReader
}

// NewHandlers creates the task handlers
func NewHandlers(analyzer Analyzer, notifier Notifier, standups StandupReader, blockers BlockerReader, users UserReader) *Handlers {
	return &Handlers{
		analyzer: analyzer,
		notifier: notifier,
		standups: standups,
		blockers: blockers,
		users:    users,
	}
}

// Routes returns the handler of every task type
func (h *Handlers) Routes() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		tasks.TypeAnalyzeStandup:   h.analyzeStandup,
		tasks.TypeTriageBlocker:    h.triageBlocker,
		tasks.TypeStandupSubmitted: h.standupSubmitted,
		tasks.TypeStandupReviewed:  h.standupReviewed,
		tasks.TypeBlockerRaised:    h.blockerEvent(h.notifier.BlockerRaised),
		tasks.TypeBlockerEscalated: h.blockerEvent(h.notifier.BlockerEscalated),
		tasks.TypeBlockerResolved:  h.blockerEvent(h.notifier.BlockerResolved),
		tasks.TypeDailyReminder:    h.dailyReminder,
	}
}

// Register adds every handler to an asynq mux
func (h *Handlers) Register(mux *asynq.ServeMux) {
	for taskType, fn := range h.Routes() {
		fn := fn
		mux.HandleFunc(taskType, func(ctx context.Context, task *asynq.Task) error {
			return fn(ctx, task.Payload())
		})
	}
}

func (h *Handlers) analyzeStandup(ctx context.Context, data []byte) error {
	var p tasks.StandupPayload
	if err := tasks.Decode(data, &p); err != nil {
		return permanent(err)
	}

	insights, err := h.analyzer.AnalyzeStandup(ctx, p.StandupID)
	if err != nil {
		return classify(err, "analyze standup %d", p.StandupID)
	}

	slog.Info("Standup analyzed", "standup_id", p.StandupID, "score", insights.Score, "source", insights.Source)
	return nil
}

func (h *Handlers) triageBlocker(ctx context.Context, data []byte) error {
	var p tasks.BlockerPayload
	if err := tasks.Decode(data, &p); err != nil {
		return permanent(err)
	}

	triage, err := h.analyzer.TriageBlocker(ctx, p.BlockerID)
	if err != nil {
		return classify(err, "triage blocker %d", p.BlockerID)
	}

	slog.Info("Blocker triaged", "blocker_id", p.BlockerID, "suggested_severity", triage.SuggestedSeverity, "source", triage.Source)
	return nil
}

func (h *Handlers) standupSubmitted(ctx context.Context, data []byte) error {
	var p tasks.StandupPayload
	if err := tasks.Decode(data, &p); err != nil {
		return permanent(err)
	}

	standup, err := h.standups.GetWithUser(ctx, p.StandupID)
	if err != nil {
		return classify(err, "load standup %d", p.StandupID)
	}
	return h.notifier.StandupSubmitted(ctx, standup)
}

func (h *Handlers) standupReviewed(ctx context.Context, data []byte) error {
	var p tasks.ReviewPayload
	if err := tasks.Decode(data, &p); err != nil {
		return permanent(err)
	}

	standup, err := h.standups.GetWithUser(ctx, p.StandupID)
	if err != nil {
		return classify(err, "load standup %d", p.StandupID)
	}
	return h.notifier.StandupReviewed(ctx, standup, p.Action)
}

func (h *Handlers) blockerEvent(notify func(context.Context, *models.BlockerWithUser) error) HandlerFunc {
	return func(ctx context.Context, data []byte) error {
		var p tasks.BlockerPayload
		if err := tasks.Decode(data, &p); err != nil {
			return permanent(err)
		}

		blocker, err := h.blockers.GetWithUser(ctx, p.BlockerID)
		if err != nil {
			return classify(err, "load blocker %d", p.BlockerID)
		}
		return notify(ctx, blocker)
	}
}

func (h *Handlers) dailyReminder(ctx context.Context, data []byte) error {
	var p tasks.ReminderPayload
	if err := tasks.Decode(data, &p); err != nil {
		return permanent(err)
	}

	user, err := h.users.GetByID(ctx, p.UserID)
	if err != nil {
		return classify(err, "load user %d", p.UserID)
	}
	if !user.IsActive {
		return nil
	}
	return h.notifier.DailyReminder(ctx, user, p.Date)
}

// permanent marks an error that retrying cannot fix
func permanent(err error) error {
	return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
}

// classify turns missing records and request-level service errors into
// permanent failures and keeps everything else retryable
func classify(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	var svcErr *service.Error
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrUserNotFound) ||
		errors.As(err, &svcErr) {
		return fmt.Errorf("%s: %v: %w", msg, err, asynq.SkipRetry)
	}
	return fmt.Errorf("failed to %s: %w", msg, err)
}
