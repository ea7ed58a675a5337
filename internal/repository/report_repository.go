package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"standup-desk/internal/models"
)

// ReportRepository aggregates team health metrics
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// WeeklyStats fills the raw counts of a weekly report for the inclusive date
// range [from, to]. Rates and the summary are left to the caller.
func (r *ReportRepository) WeeklyStats(ctx context.Context, from, to time.Time) (*models.WeeklyReport, error) {
	report := &models.WeeklyReport{
		From:               from,
		To:                 to,
		BlockersBySeverity: map[string]int{},
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE is_active AND role = $1`, models.RoleEmployee,
	).Scan(&report.ActiveEmployees); err != nil {
		return nil, fmt.Errorf("failed to count active employees: %w", err)
	}

	standupQuery := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE goal_status = $3),
		       COUNT(*) FILTER (WHERE is_late_submission)
		FROM standups
		WHERE date BETWEEN $1::date AND $2::date AND submission_time IS NOT NULL
	`
	if err := r.db.QueryRowContext(ctx, standupQuery, dateParam(from), dateParam(to), models.GoalAchieved).Scan(
		&report.Submissions,
		&report.AchievedGoals,
		&report.LateSubmissions,
	); err != nil {
		return nil, fmt.Errorf("failed to aggregate standups: %w", err)
	}

	blockerRange := `b.created_at >= $1::date AND b.created_at < ($2::date + 1)`

	rows, err := r.db.QueryContext(ctx, `
		SELECT b.severity, COUNT(*)
		FROM blockers b
		WHERE `+blockerRange+`
		GROUP BY b.severity
	`, dateParam(from), dateParam(to))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate blockers by severity: %w", err)
	}
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to scan blocker severity: %w", err)
		}
		report.BlockersBySeverity[severity] = count
	}
	closeRows(rows)

	rows, err = r.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(u.department, ''), 'Unassigned'), COUNT(*)
		FROM blockers b
		JOIN users u ON u.id = b.user_id
		WHERE `+blockerRange+`
		GROUP BY 1
		ORDER BY 2 DESC, 1
	`, dateParam(from), dateParam(to))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate blockers by department: %w", err)
	}
	report.BlockersByDepartment = []models.DepartmentBlockers{}
	for rows.Next() {
		var d models.DepartmentBlockers
		if err := rows.Scan(&d.Department, &d.Count); err != nil {
			closeRows(rows)
			return nil, fmt.Errorf("failed to scan blocker department: %w", err)
		}
		report.BlockersByDepartment = append(report.BlockersByDepartment, d)
	}
	closeRows(rows)

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blockers WHERE status <> $1`, models.BlockerStatusResolved,
	).Scan(&report.OpenBlockers); err != nil {
		return nil, fmt.Errorf("failed to count open blockers: %w", err)
	}

	return report, nil
}
