package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"standup-desk/internal/database"
	"standup-desk/internal/models"
)

const attendanceColumns = `a.id, a.user_id, a.date, a.login_time, a.logout_time, a.hours_worked, a.status, a.created_at, a.updated_at`

// AttendanceRepository handles attendance database operations
type AttendanceRepository struct {
	db *sql.DB
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func scanAttendance(row rowScanner, a *models.Attendance, extra ...interface{}) error {
	dest := []interface{}{
		&a.ID,
		&a.UserID,
		&a.Date,
		&a.LoginTime,
		&a.LogoutTime,
		&a.HoursWorked,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

// RecordLogin creates the day's attendance row with the login time. An
// existing login time is never replaced; a row previously marked ABSENT
// without a login becomes PRESENT.
func (r *AttendanceRepository) RecordLogin(ctx context.Context, userID uint, date, at time.Time) (*models.Attendance, error) {
	query := `
		INSERT INTO attendance AS a (user_id, date, login_time, status, created_at, updated_at)
		VALUES ($1, $2::date, $3, $4, $3, $3)
		ON CONFLICT (user_id, date) DO UPDATE
		SET login_time = COALESCE(a.login_time, EXCLUDED.login_time),
		    status = CASE WHEN a.login_time IS NULL AND a.status = $5 THEN EXCLUDED.status ELSE a.status END,
		    updated_at = CASE WHEN a.login_time IS NULL THEN EXCLUDED.updated_at ELSE a.updated_at END
		RETURNING ` + attendanceColumns

	record := &models.Attendance{}
	err := scanAttendance(r.db.QueryRowContext(ctx, query,
		userID,
		dateParam(date),
		at,
		models.AttendancePresent,
		models.AttendanceAbsent,
	), record)
	if err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	return record, nil
}

// RecordLogout stores the logout time and the derived hours worked. A day
// without an attendance row gets one with the logout time and no hours.
func (r *AttendanceRepository) RecordLogout(ctx context.Context, userID uint, date, at time.Time) (*models.Attendance, error) {
	record := &models.Attendance{}

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `SELECT ` + attendanceColumns + ` FROM attendance a WHERE a.user_id = $1 AND a.date = $2::date FOR UPDATE`
		err := scanAttendance(tx.QueryRowContext(ctx, query, userID, dateParam(date)), record)

		if err == sql.ErrNoRows {
			insert := `
				INSERT INTO attendance AS a (user_id, date, logout_time, status, created_at, updated_at)
				VALUES ($1, $2::date, $3, $4, $3, $3)
				ON CONFLICT (user_id, date) DO UPDATE SET logout_time = EXCLUDED.logout_time, updated_at = EXCLUDED.updated_at
				RETURNING ` + attendanceColumns
			return scanAttendance(tx.QueryRowContext(ctx, insert, userID, dateParam(date), at, models.AttendancePresent), record)
		}
		if err != nil {
			return err
		}

		hours := models.HoursWorked(record.LoginTime, at)
		update := `
			UPDATE attendance AS a SET logout_time = $1, hours_worked = $2, updated_at = $1
			WHERE a.id = $3
			RETURNING ` + attendanceColumns
		return scanAttendance(tx.QueryRowContext(ctx, update, at, hours, record.ID), record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record logout: %w", err)
	}

	return record, nil
}

// GetByUserAndDate retrieves the attendance row of a user for one day
func (r *AttendanceRepository) GetByUserAndDate(ctx context.Context, userID uint, date time.Time) (*models.Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance a WHERE a.user_id = $1 AND a.date = $2::date`

	record := &models.Attendance{}
	err := scanAttendance(r.db.QueryRowContext(ctx, query, userID, dateParam(date)), record)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}

	return record, nil
}

// MarkAbsent creates an ABSENT row for every active employee without an
// attendance row on date. Running it twice creates nothing new.
func (r *AttendanceRepository) MarkAbsent(ctx context.Context, date time.Time) (int64, error) {
	query := `
		INSERT INTO attendance (user_id, date, status)
		SELECT u.id, $1::date, $2
		FROM users u
		WHERE u.is_active AND u.role = $3
		ON CONFLICT (user_id, date) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, dateParam(date), models.AttendanceAbsent, models.RoleEmployee)
	if err != nil {
		return 0, fmt.Errorf("failed to mark absent: %w", err)
	}
	return result.RowsAffected()
}

// MarkLate moves PRESENT rows of date whose login is after cutoff to LATE.
// LATE rows are never moved back.
func (r *AttendanceRepository) MarkLate(ctx context.Context, date, cutoff time.Time) (int64, error) {
	query := `
		UPDATE attendance
		SET status = $1, updated_at = NOW()
		WHERE date = $2::date AND status = $3 AND login_time > $4
	`

	result, err := r.db.ExecContext(ctx, query, models.AttendanceLate, dateParam(date), models.AttendancePresent, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark late: %w", err)
	}
	return result.RowsAffected()
}

// AttendanceFilters narrows an attendance report
type AttendanceFilters struct {
	From       time.Time
	To         time.Time
	UserID     *uint
	Department string
	Status     string
}

// Report lists attendance rows in the date range, newest day first
func (r *AttendanceRepository) Report(ctx context.Context, filters AttendanceFilters) ([]models.AttendanceWithUser, error) {
	query := `
		SELECT ` + attendanceColumns + `, TRIM(u.first_name || ' ' || u.last_name), u.department
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.date BETWEEN $1::date AND $2::date
	`
	args := []interface{}{dateParam(filters.From), dateParam(filters.To)}

	if filters.UserID != nil {
		args = append(args, *filters.UserID)
		query += fmt.Sprintf(` AND a.user_id = $%d`, len(args))
	}
	if filters.Department != "" {
		args = append(args, filters.Department)
		query += fmt.Sprintf(` AND u.department = $%d`, len(args))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		query += fmt.Sprintf(` AND a.status = $%d`, len(args))
	}
	query += ` ORDER BY a.date DESC, u.first_name, u.last_name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance report: %w", err)
	}
	defer closeRows(rows)

	records := []models.AttendanceWithUser{}
	for rows.Next() {
		var a models.AttendanceWithUser
		if err := scanAttendance(rows, &a.Attendance, &a.UserName, &a.Department); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, a)
	}

	return records, rows.Err()
}
