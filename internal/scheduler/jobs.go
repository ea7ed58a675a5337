package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"standup-desk/internal/config"
	"standup-desk/internal/models"
	"standup-desk/internal/tasks"
)

// Job names
const (
	JobDailyReminder  = "daily_reminder"
	JobMarkLate       = "mark_late"
	JobMarkAbsent     = "mark_absent"
	JobWeeklyReport   = "weekly_report"
	JobSessionCleanup = "session_cleanup"
)

// ReminderSource lists active employees without a submitted standup on a date
type ReminderSource interface {
	ListWithoutSubmission(ctx context.Context, date time.Time) ([]models.User, error)
}

// AttendanceMarker runs the attendance reconciliation
type AttendanceMarker interface {
	MarkAbsent(ctx context.Context, date time.Time) (int64, error)
	MarkLate(ctx context.Context, date time.Time) (int64, error)
}

// ReportGenerator builds the weekly report
type ReportGenerator interface {
	Generate(ctx context.Context) (*models.WeeklyReport, error)
}

// ReportSender delivers the weekly report to the admins
type ReportSender interface {
	WeeklyReport(ctx context.Context, report *models.WeeklyReport) error
}

// SessionCleaner removes expired sessions
type SessionCleaner interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Deps are the collaborators of the built-in jobs
type Deps struct {
	Reminders  ReminderSource
	Publisher  tasks.Publisher
	Attendance AttendanceMarker
	Reports    ReportGenerator
	Sender     ReportSender
	Sessions   SessionCleaner
}

// RegisterJobs registers the built-in jobs with their configured schedules
func RegisterJobs(s *Scheduler, cfg config.SchedulerConfig, deps Deps) error {
	jobs := []struct {
		name    string
		cron    string
		enabled bool
		run     JobFunc
	}{
		{JobDailyReminder, cfg.DailyReminderCron, cfg.EnableReminders, dailyReminder(deps)},
		{JobMarkLate, cfg.MarkLateCron, cfg.EnableAttendance, markLate(deps)},
		{JobMarkAbsent, cfg.MarkAbsentCron, cfg.EnableAttendance, markAbsent(deps)},
		{JobWeeklyReport, cfg.WeeklyReportCron, cfg.EnableWeeklyReport, weeklyReport(deps)},
		{JobSessionCleanup, cfg.SessionCleanupCron, true, sessionCleanup(deps)},
	}

	for _, j := range jobs {
		if err := s.Register(j.name, j.cron, j.enabled, j.run); err != nil {
			return err
		}
	}
	return nil
}

// dailyReminder queues one reminder per employee who has not submitted
// today. A user whose reminder cannot be queued does not stop the batch.
func dailyReminder(deps Deps) JobFunc {
	return func(ctx context.Context, now time.Time) error {
		date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		users, err := deps.Reminders.ListWithoutSubmission(ctx, date)
		if err != nil {
			return fmt.Errorf("failed to list users without submission: %w", err)
		}

		queued, failed := 0, 0
		for _, u := range users {
			err := deps.Publisher.Publish(ctx, tasks.TypeDailyReminder, tasks.ReminderPayload{UserID: u.ID, Date: date})
			if err != nil {
				failed++
				slog.Error("Failed to queue daily reminder", "user_id", u.ID, "error", err)
				continue
			}
			queued++
		}

		slog.Info("Daily reminders queued", "date", date.Format("2006-01-02"), "queued", queued, "failed", failed)
		if failed > 0 && queued == 0 {
			return fmt.Errorf("no reminder could be queued (%d failed)", failed)
		}
		return nil
	}
}

func markLate(deps Deps) JobFunc {
	return func(ctx context.Context, now time.Time) error {
		_, err := deps.Attendance.MarkLate(ctx, now)
		return err
	}
}

func markAbsent(deps Deps) JobFunc {
	return func(ctx context.Context, now time.Time) error {
		_, err := deps.Attendance.MarkAbsent(ctx, now)
		return err
	}
}

// weeklyReport aggregates the previous seven days and sends the report to
// the admin channel
func weeklyReport(deps Deps) JobFunc {
	return func(ctx context.Context, now time.Time) error {
		report, err := deps.Reports.Generate(ctx)
		if err != nil {
			return fmt.Errorf("failed to generate weekly report: %w", err)
		}

		if err := deps.Sender.WeeklyReport(ctx, report); err != nil {
			return fmt.Errorf("failed to send weekly report: %w", err)
		}

		slog.Info("Weekly report sent",
			"from", report.From.Format("2006-01-02"),
			"to", report.To.Format("2006-01-02"),
			"submission_rate", report.SubmissionRate,
			"summary_source", report.SummarySource,
		)
		return nil
	}
}

func sessionCleanup(deps Deps) JobFunc {
	return func(ctx context.Context, now time.Time) error {
		n, err := deps.Sessions.DeleteExpiredSessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete expired sessions: %w", err)
		}
		slog.Info("Expired sessions removed", "count", n)
		return nil
	}
}
