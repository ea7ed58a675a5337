package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"standup-desk/internal/database"
	"standup-desk/internal/models"
)

// ErrConflict is returned by conditional updates when the row exists but is
// not in a state that allows the change
var ErrConflict = errors.New("record state conflict")

const standupColumns = `s.id, s.user_id, s.date, s.sequence, s.today_goal, s.goal_set_time, s.task_refs,
	s.achievement_title, s.achievement_desc, s.goal_status, s.completion_percentage, s.not_achieved_reason,
	s.submission_time, s.is_late_submission, s.status, s.reviewed_by, s.reviewed_at, s.manager_feedback,
	s.ai_insights, s.created_at, s.updated_at`

// StandupRepository handles standup database operations
type StandupRepository struct {
	db *sql.DB
}

// NewStandupRepository creates a new standup repository
func NewStandupRepository(db *sql.DB) *StandupRepository {
	return &StandupRepository{db: db}
}

func scanStandup(row rowScanner, s *models.Standup, extra ...interface{}) error {
	var insights []byte
	dest := []interface{}{
		&s.ID,
		&s.UserID,
		&s.Date,
		&s.Sequence,
		&s.TodayGoal,
		&s.GoalSetTime,
		&s.TaskRefs,
		&s.AchievementTitle,
		&s.AchievementDesc,
		&s.GoalStatus,
		&s.CompletionPercentage,
		&s.NotAchievedReason,
		&s.SubmissionTime,
		&s.IsLateSubmission,
		&s.Status,
		&s.ReviewedBy,
		&s.ReviewedAt,
		&s.ManagerFeedback,
		&insights,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if len(insights) > 0 {
		s.AIInsights = insights
	}
	return nil
}

// Create allocates the next sequence number for the user and date and inserts
// a PENDING standup. Concurrent creates for the same user and date are
// serialized by a transaction-scoped advisory lock.
func (r *StandupRepository) Create(ctx context.Context, userID uint, date time.Time) (*models.Standup, error) {
	standup := &models.Standup{}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		dayKey := date.Year()*10000 + int(date.Month())*100 + date.Day()
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1::int, $2::int)`, int32(userID), dayKey); err != nil {
			return fmt.Errorf("failed to lock standup sequence: %w", err)
		}

		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sequence), 0) + 1 FROM standups WHERE user_id = $1 AND date = $2::date`,
			userID, dateParam(date),
		).Scan(&next); err != nil {
			return fmt.Errorf("failed to compute standup sequence: %w", err)
		}

		query := `
			INSERT INTO standups AS s (user_id, date, sequence, status)
			VALUES ($1, $2::date, $3, $4)
			RETURNING ` + standupColumns

		return scanStandup(tx.QueryRowContext(ctx, query, userID, dateParam(date), next, models.StandupStatusPending), standup)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create standup: %w", err)
	}

	return standup, nil
}

// GetByID retrieves a standup by ID
func (r *StandupRepository) GetByID(ctx context.Context, id uint) (*models.Standup, error) {
	query := `SELECT ` + standupColumns + ` FROM standups s WHERE s.id = $1`

	standup := &models.Standup{}
	err := scanStandup(r.db.QueryRowContext(ctx, query, id), standup)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get standup: %w", err)
	}

	return standup, nil
}

// SetGoal stores the goal of a PENDING standup owned by userID and moves it to GOAL_SET.
// ErrConflict means no PENDING standup with that id belongs to the user.
func (r *StandupRepository) SetGoal(ctx context.Context, id, userID uint, goal string, taskRefs []string, at time.Time) (*models.Standup, error) {
	query := `
		UPDATE standups AS s
		SET today_goal = $1, task_refs = $2, goal_set_time = $3, status = $4, updated_at = $3
		WHERE s.id = $5 AND s.user_id = $6 AND s.status = $7
		RETURNING ` + standupColumns

	standup := &models.Standup{}
	err := scanStandup(r.db.QueryRowContext(ctx, query,
		goal,
		stringArray(taskRefs),
		at,
		models.StandupStatusGoalSet,
		id,
		userID,
		models.StandupStatusPending,
	), standup)
	if err == sql.ErrNoRows {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set goal: %w", err)
	}

	return standup, nil
}

// Submission holds the achievement fields written on submit
type Submission struct {
	AchievementTitle     string
	AchievementDesc      string
	GoalStatus           string
	CompletionPercentage *int
	NotAchievedReason    *string
	IsLate               bool
	At                   time.Time
}

// Submit stores the achievement of a standup in GOAL_SET or NEEDS_ATTENTION
// and moves it to SUBMITTED. ErrConflict means the standup was not in one of
// those states or does not belong to the user.
func (r *StandupRepository) Submit(ctx context.Context, id, userID uint, sub Submission) (*models.Standup, error) {
	query := `
		UPDATE standups AS s
		SET achievement_title = $1, achievement_desc = $2, goal_status = $3, completion_percentage = $4,
		    not_achieved_reason = $5, is_late_submission = $6, submission_time = $7, status = $8,
		    updated_at = $7
		WHERE s.id = $9 AND s.user_id = $10 AND s.status IN ($11, $12)
		RETURNING ` + standupColumns

	standup := &models.Standup{}
	err := scanStandup(r.db.QueryRowContext(ctx, query,
		sub.AchievementTitle,
		sub.AchievementDesc,
		sub.GoalStatus,
		sub.CompletionPercentage,
		sub.NotAchievedReason,
		sub.IsLate,
		sub.At,
		models.StandupStatusSubmitted,
		id,
		userID,
		models.StandupStatusGoalSet,
		models.StandupStatusNeedsAttention,
	), standup)
	if err == sql.ErrNoRows {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to submit standup: %w", err)
	}

	return standup, nil
}

// Review stamps the reviewer on a SUBMITTED standup and sets its new status.
// Feedback is only overwritten when non-nil. ErrConflict means the standup is
// no longer SUBMITTED.
func (r *StandupRepository) Review(ctx context.Context, id, reviewerID uint, status string, feedback *string, at time.Time) (*models.Standup, error) {
	query := `
		UPDATE standups AS s
		SET status = $1, manager_feedback = COALESCE($2, s.manager_feedback),
		    reviewed_by = $3, reviewed_at = $4, updated_at = $4
		WHERE s.id = $5 AND s.status = $6
		RETURNING ` + standupColumns

	standup := &models.Standup{}
	err := scanStandup(r.db.QueryRowContext(ctx, query,
		status,
		feedback,
		reviewerID,
		at,
		id,
		models.StandupStatusSubmitted,
	), standup)
	if err == sql.ErrNoRows {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to review standup: %w", err)
	}

	return standup, nil
}

// SetAIInsights stores the AI analysis of a submission
func (r *StandupRepository) SetAIInsights(ctx context.Context, id uint, insights []byte) error {
	query := `UPDATE standups SET ai_insights = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, jsonParam(insights), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to store ai insights: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUserAndDate returns the user's standups of one day in sequence order
func (r *StandupRepository) ListByUserAndDate(ctx context.Context, userID uint, date time.Time) ([]models.Standup, error) {
	query := `
		SELECT ` + standupColumns + `
		FROM standups s
		WHERE s.user_id = $1 AND s.date = $2::date
		ORDER BY s.sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, dateParam(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list standups: %w", err)
	}
	defer closeRows(rows)

	standups := []models.Standup{}
	for rows.Next() {
		var s models.Standup
		if err := scanStandup(rows, &s); err != nil {
			return nil, fmt.Errorf("failed to scan standup: %w", err)
		}
		standups = append(standups, s)
	}

	return standups, rows.Err()
}

// RecentGoals returns the latest goals a user has set, newest first
func (r *StandupRepository) RecentGoals(ctx context.Context, userID uint, limit int) ([]string, error) {
	query := `
		SELECT today_goal FROM standups
		WHERE user_id = $1 AND today_goal IS NOT NULL
		ORDER BY date DESC, sequence DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent goals: %w", err)
	}
	defer closeRows(rows)

	var goals []string
	for rows.Next() {
		var goal string
		if err := rows.Scan(&goal); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goals = append(goals, goal)
	}

	return goals, rows.Err()
}

// StandupFilters narrows history and team listings
type StandupFilters struct {
	UserID     *uint
	Department string
	Status     string
	From       *time.Time
	To         *time.Time
}

func (f StandupFilters) where() (string, []interface{}) {
	clause := ` WHERE 1=1`
	var args []interface{}
	argPos := 1

	if f.UserID != nil {
		clause += fmt.Sprintf(` AND s.user_id = $%d`, argPos)
		args = append(args, *f.UserID)
		argPos++
	}
	if f.Department != "" {
		clause += fmt.Sprintf(` AND u.department = $%d`, argPos)
		args = append(args, f.Department)
		argPos++
	}
	if f.Status != "" {
		clause += fmt.Sprintf(` AND s.status = $%d`, argPos)
		args = append(args, f.Status)
		argPos++
	}
	if f.From != nil {
		clause += fmt.Sprintf(` AND s.date >= $%d::date`, argPos)
		args = append(args, dateParam(*f.From))
		argPos++
	}
	if f.To != nil {
		clause += fmt.Sprintf(` AND s.date <= $%d::date`, argPos)
		args = append(args, dateParam(*f.To))
	}
	return clause, args
}

func (r *StandupRepository) listWithUser(ctx context.Context, query string, args ...interface{}) ([]models.StandupWithUser, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list standups: %w", err)
	}
	defer closeRows(rows)

	standups := []models.StandupWithUser{}
	for rows.Next() {
		var s models.StandupWithUser
		if err := scanStandup(rows, &s.Standup, &s.UserName, &s.UserEmail, &s.Department); err != nil {
			return nil, fmt.Errorf("failed to scan standup: %w", err)
		}
		standups = append(standups, s)
	}

	return standups, rows.Err()
}

const standupUserColumns = `, TRIM(u.first_name || ' ' || u.last_name), u.email, u.department
	FROM standups s
	JOIN users u ON u.id = s.user_id`

// GetWithUser retrieves a standup together with its owner details
func (r *StandupRepository) GetWithUser(ctx context.Context, id uint) (*models.StandupWithUser, error) {
	standups, err := r.listWithUser(ctx, `SELECT `+standupColumns+standupUserColumns+` WHERE s.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(standups) == 0 {
		return nil, ErrNotFound
	}
	return &standups[0], nil
}

// History lists standups matching the filters, newest day first and
// same-day standups in sequence order
func (r *StandupRepository) History(ctx context.Context, filters StandupFilters, limit, offset int) ([]models.StandupWithUser, int, error) {
	where, args := filters.where()

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM standups s JOIN users u ON u.id = s.user_id`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count standups: %w", err)
	}

	query := `SELECT ` + standupColumns + standupUserColumns + where +
		fmt.Sprintf(` ORDER BY s.date DESC, s.sequence ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	standups, err := r.listWithUser(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return standups, total, nil
}

// PendingReview lists SUBMITTED standups, most recently submitted first.
// An empty department lists every department.
func (r *StandupRepository) PendingReview(ctx context.Context, department string) ([]models.StandupWithUser, error) {
	where, args := StandupFilters{Department: department, Status: models.StandupStatusSubmitted}.where()
	query := `SELECT ` + standupColumns + standupUserColumns + where +
		` ORDER BY s.submission_time DESC, s.sequence ASC`

	return r.listWithUser(ctx, query, args...)
}

// Team lists every standup of the day for a department (all departments when empty)
func (r *StandupRepository) Team(ctx context.Context, date time.Time, department string) ([]models.StandupWithUser, error) {
	where, args := StandupFilters{Department: department, From: &date, To: &date}.where()
	query := `SELECT ` + standupColumns + standupUserColumns + where +
		` ORDER BY u.first_name, u.last_name, s.sequence ASC`

	return r.listWithUser(ctx, query, args...)
}
