package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"standup-desk/internal/models"
	"standup-desk/internal/repository"
)

// AttendanceStore is the persistence used by attendance reconciliation
type AttendanceStore interface {
	RecordLogin(ctx context.Context, userID uint, date, at time.Time) (*models.Attendance, error)
	RecordLogout(ctx context.Context, userID uint, date, at time.Time) (*models.Attendance, error)
	GetByUserAndDate(ctx context.Context, userID uint, date time.Time) (*models.Attendance, error)
	MarkAbsent(ctx context.Context, date time.Time) (int64, error)
	MarkLate(ctx context.Context, date, cutoff time.Time) (int64, error)
	Report(ctx context.Context, filters repository.AttendanceFilters) ([]models.AttendanceWithUser, error)
}

// AttendanceService derives daily presence from logins, logouts and batch runs
type AttendanceService struct {
	store        AttendanceStore
	clock        Clock
	cutoffHour   int
	cutoffMinute int
}

// NewAttendanceService creates a new attendance service. Logins after
// cutoffHour:cutoffMinute local time are marked LATE by MarkLate.
func NewAttendanceService(store AttendanceStore, clock Clock, cutoffHour, cutoffMinute int) *AttendanceService {
	return &AttendanceService{
		store:        store,
		clock:        clock,
		cutoffHour:   cutoffHour,
		cutoffMinute: cutoffMinute,
	}
}

// Login records the first login of today; later logins keep the first time
func (s *AttendanceService) Login(ctx context.Context, userID uint) (*models.Attendance, error) {
	now := s.clock.now()
	return s.store.RecordLogin(ctx, userID, startOfDay(now), now)
}

// Logout records the logout time and hours worked for today
func (s *AttendanceService) Logout(ctx context.Context, userID uint) (*models.Attendance, error) {
	now := s.clock.now()
	return s.store.RecordLogout(ctx, userID, startOfDay(now), now)
}

// RecordLogout implements LogoutRecorder for the standup lifecycle
func (s *AttendanceService) RecordLogout(ctx context.Context, userID uint, date, at time.Time) (*models.Attendance, error) {
	return s.store.RecordLogout(ctx, userID, date, at)
}

// Today returns the actor's attendance of today, nil when there is none yet
func (s *AttendanceService) Today(ctx context.Context, actor Actor) (*models.Attendance, error) {
	record, err := s.store.GetByUserAndDate(ctx, actor.ID, s.clock.today())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return record, err
}

// MarkAbsent creates ABSENT rows for active employees without attendance on date
func (s *AttendanceService) MarkAbsent(ctx context.Context, date time.Time) (int64, error) {
	n, err := s.store.MarkAbsent(ctx, startOfDay(date.In(s.location())))
	if err != nil {
		return 0, err
	}
	slog.Info("Marked absent employees", "date", date.Format("2006-01-02"), "count", n)
	return n, nil
}

// MarkLate moves PRESENT rows of date with a login after the cutoff to LATE
func (s *AttendanceService) MarkLate(ctx context.Context, date time.Time) (int64, error) {
	day := startOfDay(date.In(s.location()))
	cutoff := time.Date(day.Year(), day.Month(), day.Day(), s.cutoffHour, s.cutoffMinute, 0, 0, day.Location())

	n, err := s.store.MarkLate(ctx, day, cutoff)
	if err != nil {
		return 0, err
	}
	slog.Info("Marked late logins", "date", day.Format("2006-01-02"), "cutoff", cutoff.Format("15:04"), "count", n)
	return n, nil
}

// ReportQuery filters an attendance report
type ReportQuery struct {
	From       *time.Time
	To         *time.Time
	UserID     *uint
	Department string
	Status     string
}

// maxReportDays bounds the range of a single attendance report
const maxReportDays = 366

// Report lists attendance in a date range with totals per status. Employees
// only see their own records; the range defaults to the last 30 days.
func (s *AttendanceService) Report(ctx context.Context, actor Actor, q ReportQuery) (*models.AttendanceReport, error) {
	today := s.clock.today()
	to := today
	if q.To != nil {
		to = startOfDay(q.To.In(s.location()))
	}
	from := to.AddDate(0, 0, -29)
	if q.From != nil {
		from = startOfDay(q.From.In(s.location()))
	}
	if to.Before(from) {
		return nil, invalidField("to", "to must not be before from")
	}
	if to.Sub(from) > maxReportDays*24*time.Hour {
		return nil, invalidField("from", "report range must not exceed one year")
	}

	status := strings.ToUpper(q.Status)
	switch status {
	case "", models.AttendancePresent, models.AttendanceAbsent, models.AttendanceHalfDay, models.AttendanceLate:
	default:
		return nil, invalidField("status", "status must be one of PRESENT, ABSENT, HALF_DAY, LATE")
	}

	filters := repository.AttendanceFilters{
		From:       from,
		To:         to,
		UserID:     q.UserID,
		Department: q.Department,
		Status:     status,
	}
	if !actor.IsManager() {
		filters.UserID = &actor.ID
		filters.Department = ""
	}

	records, err := s.store.Report(ctx, filters)
	if err != nil {
		return nil, err
	}

	totals := map[string]int{
		models.AttendancePresent: 0,
		models.AttendanceAbsent:  0,
		models.AttendanceHalfDay: 0,
		models.AttendanceLate:    0,
	}
	for _, r := range records {
		totals[r.Status]++
	}

	return &models.AttendanceReport{From: from, To: to, Records: records, Totals: totals}, nil
}

func (s *AttendanceService) location() *time.Location {
	if s.clock.Location != nil {
		return s.clock.Location
	}
	return time.Local
}
