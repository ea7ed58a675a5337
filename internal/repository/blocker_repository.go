package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"standup-desk/internal/models"
)

const blockerColumns = `b.id, b.user_id, b.standup_id, b.title, b.description, b.category, b.severity,
	b.support_required, b.status, b.escalated_to, b.escalation_notes, b.escalation_deadline,
	b.resolution_notes, b.resolved_at, b.resolved_by, b.ai_analysis, b.created_at, b.updated_at`

// openBlockerStatuses are the states a blocker may leave
var openBlockerStatuses = []string{models.BlockerStatusOpen, models.BlockerStatusInProgress, models.BlockerStatusEscalated}

// BlockerRepository handles blocker database operations
type BlockerRepository struct {
	db *sql.DB
}

// NewBlockerRepository creates a new blocker repository
func NewBlockerRepository(db *sql.DB) *BlockerRepository {
	return &BlockerRepository{db: db}
}

func scanBlocker(row rowScanner, b *models.Blocker, extra ...interface{}) error {
	var analysis []byte
	dest := []interface{}{
		&b.ID,
		&b.UserID,
		&b.StandupID,
		&b.Title,
		&b.Description,
		&b.Category,
		&b.Severity,
		&b.SupportRequired,
		&b.Status,
		&b.EscalatedTo,
		&b.EscalationNotes,
		&b.EscalationDeadline,
		&b.ResolutionNotes,
		&b.ResolvedAt,
		&b.ResolvedBy,
		&analysis,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if len(analysis) > 0 {
		b.AIAnalysis = analysis
	}
	return nil
}

// Create inserts a new OPEN blocker
func (r *BlockerRepository) Create(ctx context.Context, blocker *models.Blocker) error {
	query := `
		INSERT INTO blockers AS b (user_id, standup_id, title, description, category, severity, support_required, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING ` + blockerColumns

	now := time.Now()
	err := scanBlocker(r.db.QueryRowContext(ctx,
		query,
		blocker.UserID,
		blocker.StandupID,
		blocker.Title,
		blocker.Description,
		blocker.Category,
		blocker.Severity,
		blocker.SupportRequired,
		models.BlockerStatusOpen,
		now,
	), blocker)
	if err != nil {
		return fmt.Errorf("failed to create blocker: %w", err)
	}

	return nil
}

// GetByID retrieves a blocker by ID
func (r *BlockerRepository) GetByID(ctx context.Context, id uint) (*models.Blocker, error) {
	query := `SELECT ` + blockerColumns + ` FROM blockers b WHERE b.id = $1`

	blocker := &models.Blocker{}
	err := scanBlocker(r.db.QueryRowContext(ctx, query, id), blocker)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blocker: %w", err)
	}

	return blocker, nil
}

// conditionalUpdate runs an UPDATE ... RETURNING that only matches
// unresolved blockers; ErrConflict means nothing matched
func (r *BlockerRepository) conditionalUpdate(ctx context.Context, action, set string, args ...interface{}) (*models.Blocker, error) {
	n := len(args)
	query := `UPDATE blockers AS b SET ` + set +
		fmt.Sprintf(` WHERE b.id = $%d AND b.status IN ($%d, $%d, $%d)`, n-3, n-2, n-1, n) +
		` RETURNING ` + blockerColumns

	blocker := &models.Blocker{}
	err := scanBlocker(r.db.QueryRowContext(ctx, query, args...), blocker)
	if err == sql.ErrNoRows {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s blocker: %w", action, err)
	}
	return blocker, nil
}

func unresolvedArgs(id uint) []interface{} {
	return []interface{}{id, openBlockerStatuses[0], openBlockerStatuses[1], openBlockerStatuses[2]}
}

// UpdateStatus moves an unresolved blocker to status
func (r *BlockerRepository) UpdateStatus(ctx context.Context, id uint, status string, at time.Time) (*models.Blocker, error) {
	args := append([]interface{}{status, at}, unresolvedArgs(id)...)
	return r.conditionalUpdate(ctx, "update status of", `status = $1, updated_at = $2`, args...)
}

// Escalate marks an unresolved blocker ESCALATED to the given user
func (r *BlockerRepository) Escalate(ctx context.Context, id, escalatedTo uint, notes *string, deadline *time.Time, at time.Time) (*models.Blocker, error) {
	args := append([]interface{}{models.BlockerStatusEscalated, escalatedTo, notes, deadline, at}, unresolvedArgs(id)...)
	return r.conditionalUpdate(ctx, "escalate",
		`status = $1, escalated_to = $2, escalation_notes = $3, escalation_deadline = $4, updated_at = $5`, args...)
}

// Resolve marks an unresolved blocker RESOLVED
func (r *BlockerRepository) Resolve(ctx context.Context, id, resolvedBy uint, notes string, at time.Time) (*models.Blocker, error) {
	args := append([]interface{}{models.BlockerStatusResolved, notes, at, resolvedBy}, unresolvedArgs(id)...)
	return r.conditionalUpdate(ctx, "resolve",
		`status = $1, resolution_notes = $2, resolved_at = $3, resolved_by = $4, updated_at = $3`, args...)
}

// SetAIAnalysis stores the AI triage of a blocker
func (r *BlockerRepository) SetAIAnalysis(ctx context.Context, id uint, analysis []byte) error {
	query := `UPDATE blockers SET ai_analysis = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, jsonParam(analysis), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to store ai analysis: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BlockerFilters narrows a blocker listing
type BlockerFilters struct {
	UserID     *uint
	Department string
	Status     string
	Severity   string
	Category   string
	From       *time.Time
	To         *time.Time
}

func (f BlockerFilters) where() (string, []interface{}) {
	clause := ` WHERE 1=1`
	var args []interface{}

	add := func(cond string, value interface{}) {
		args = append(args, value)
		clause += fmt.Sprintf(cond, len(args))
	}
	if f.UserID != nil {
		add(` AND b.user_id = $%d`, *f.UserID)
	}
	if f.Department != "" {
		add(` AND u.department = $%d`, f.Department)
	}
	if f.Status != "" {
		add(` AND b.status = $%d`, f.Status)
	}
	if f.Severity != "" {
		add(` AND b.severity = $%d`, f.Severity)
	}
	if f.Category != "" {
		add(` AND b.category = $%d`, f.Category)
	}
	if f.From != nil {
		add(` AND b.created_at >= $%d`, *f.From)
	}
	if f.To != nil {
		add(` AND b.created_at < $%d`, *f.To)
	}
	return clause, args
}

// GetWithUser retrieves a blocker together with its owner details
func (r *BlockerRepository) GetWithUser(ctx context.Context, id uint) (*models.BlockerWithUser, error) {
	blockers, _, err := r.List(ctx, BlockerFilters{}, 1, 0, id)
	if err != nil {
		return nil, err
	}
	if len(blockers) == 0 {
		return nil, ErrNotFound
	}
	return &blockers[0], nil
}

// List returns blockers matching the filters ordered by severity (CRITICAL
// first) and then by creation time, newest first. When onlyID is given the
// listing is restricted to that blocker.
func (r *BlockerRepository) List(ctx context.Context, filters BlockerFilters, limit, offset int, onlyID ...uint) ([]models.BlockerWithUser, int, error) {
	where, args := filters.where()
	if len(onlyID) > 0 {
		args = append(args, onlyID[0])
		where += fmt.Sprintf(` AND b.id = $%d`, len(args))
	}

	from := ` FROM blockers b JOIN users u ON u.id = b.user_id`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count blockers: %w", err)
	}

	query := `SELECT ` + blockerColumns + `, TRIM(u.first_name || ' ' || u.last_name), u.email, u.department` +
		from + where +
		fmt.Sprintf(` ORDER BY b.severity_rank DESC, b.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list blockers: %w", err)
	}
	defer closeRows(rows)

	blockers := []models.BlockerWithUser{}
	for rows.Next() {
		var b models.BlockerWithUser
		if err := scanBlocker(rows, &b.Blocker, &b.UserName, &b.UserEmail, &b.Department); err != nil {
			return nil, 0, fmt.Errorf("failed to scan blocker: %w", err)
		}
		blockers = append(blockers, b)
	}

	return blockers, total, rows.Err()
}

// Analytics counts blockers matching the filters by status, severity and category
func (r *BlockerRepository) Analytics(ctx context.Context, filters BlockerFilters) (*models.BlockerAnalytics, error) {
	where, args := filters.where()
	from := ` FROM blockers b JOIN users u ON u.id = b.user_id`

	result := &models.BlockerAnalytics{}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&result.Total); err != nil {
		return nil, fmt.Errorf("failed to count blockers: %w", err)
	}

	groups := []struct {
		column string
		order  string
		dest   *[]models.BlockerCount
	}{
		{"b.status", "COUNT(*) DESC, b.status", &result.ByStatus},
		{"b.severity", "MAX(b.severity_rank) DESC", &result.BySeverity},
		{"b.category", "COUNT(*) DESC, b.category", &result.ByCategory},
	}

	for _, g := range groups {
		query := `SELECT ` + g.column + `, COUNT(*)` + from + where +
			` GROUP BY ` + g.column + ` ORDER BY ` + g.order
		counts, err := r.countBy(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		*g.dest = counts
	}

	return result, nil
}

func (r *BlockerRepository) countBy(ctx context.Context, query string, args ...interface{}) ([]models.BlockerCount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate blockers: %w", err)
	}
	defer closeRows(rows)

	counts := []models.BlockerCount{}
	for rows.Next() {
		var c models.BlockerCount
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan blocker count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
