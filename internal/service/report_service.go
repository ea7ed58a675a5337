package service

import (
	"context"
	"math"
	"time"

	"standup-desk/internal/models"
)

// WeeklyStatsSource aggregates the raw weekly counts
type WeeklyStatsSource interface {
	WeeklyStats(ctx context.Context, from, to time.Time) (*models.WeeklyReport, error)
}

// WeeklySummarizer writes the executive summary of a report
type WeeklySummarizer interface {
	WeeklySummary(ctx context.Context, report *models.WeeklyReport) (summary, source string)
}

// ReportService assembles the weekly team health report
type ReportService struct {
	stats      WeeklyStatsSource
	summarizer WeeklySummarizer
	clock      Clock
}

// NewReportService creates a new report service
func NewReportService(stats WeeklyStatsSource, summarizer WeeklySummarizer, clock Clock) *ReportService {
	return &ReportService{stats: stats, summarizer: summarizer, clock: clock}
}

// Weekly returns the report of the last seven days for managers and admins
func (s *ReportService) Weekly(ctx context.Context, actor Actor) (*models.WeeklyReport, error) {
	if err := Authorize(actor.Role, models.RoleManager); err != nil {
		return nil, err
	}
	return s.Generate(ctx)
}

// Generate aggregates the seven days before today, derives the rates and
// attaches a summary. The summary falls back to a plain rendering of the
// metrics when the model is unavailable.
func (s *ReportService) Generate(ctx context.Context) (*models.WeeklyReport, error) {
	today := s.clock.today()
	from := today.AddDate(0, 0, -7)
	to := today.AddDate(0, 0, -1)

	report, err := s.stats.WeeklyStats(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report.WorkingDays = WorkingDays(from, to)
	report.ExpectedSubmissions = report.ActiveEmployees * report.WorkingDays
	report.SubmissionRate = percent(report.Submissions, report.ExpectedSubmissions)
	report.CompletionRate = percent(report.AchievedGoals, report.Submissions)

	if s.summarizer != nil {
		report.Summary, report.SummarySource = s.summarizer.WeeklySummary(ctx, report)
	} else {
		report.Summary, report.SummarySource = FallbackWeeklySummary(report), SourceFallback
	}

	return report, nil
}

// WorkingDays counts Monday to Friday dates in the inclusive range [from, to]
func WorkingDays(from, to time.Time) int {
	days := 0
	for d := startOfDay(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// percent returns part/whole in percent rounded to one decimal, 0 for an empty whole
func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}
