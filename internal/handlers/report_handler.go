package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"standup-desk/internal/response"
	"standup-desk/internal/scheduler"
	"standup-desk/internal/service"
)

// JobRunner runs scheduled jobs on demand
type JobRunner interface {
	RunNow(ctx context.Context, name string) (time.Duration, error)
	Jobs() []scheduler.JobInfo
}

// ReportHandler serves the weekly report and the batch job controls
type ReportHandler struct {
	reports *service.ReportService
	jobs    JobRunner
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *service.ReportService, jobs JobRunner) *ReportHandler {
	return &ReportHandler{reports: reports, jobs: jobs}
}

// JobRun is the outcome of a manual job run
type JobRun struct {
	Job        string `json:"job"`
	DurationMS int64  `json:"duration_ms"`
}

// Weekly computes the report of the last seven days (manager+)
// @Summary Weekly report
// @Description Team health of the seven days before today with an AI or fallback summary
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=models.WeeklyReport} "Report"
// @Failure 403 {object} response.Envelope "Forbidden"
// @Router /reports/weekly [get]
func (h *ReportHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	report, err := h.reports.Weekly(r.Context(), actor)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, report, "")
}

// ListJobs lists the batch jobs with their schedule and last outcome (admin only)
// @Summary List jobs
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]scheduler.JobInfo} "Jobs"
// @Router /admin/jobs [get]
func (h *ReportHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.jobs.Jobs(), "")
}

// RunJob triggers a job immediately under the same lock as scheduled runs (admin only)
// @Summary Run job
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param name path string true "daily_reminder, mark_late, mark_absent, weekly_report or session_cleanup"
// @Success 200 {object} response.Envelope{data=JobRun} "Job completed"
// @Failure 404 {object} response.Envelope "Unknown job"
// @Failure 409 {object} response.Envelope "Job already running"
// @Failure 500 {object} response.Envelope "Job failed"
// @Router /admin/jobs/{name}/run [post]
func (h *ReportHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	// the run outlives a client disconnect
	ctx := context.WithoutCancel(r.Context())
	elapsed, err := h.jobs.RunNow(ctx, name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		response.Error(w, r, service.NewError(service.CodeNotFound, "job "+name+" not found"))
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		response.Error(w, r, service.NewError(service.CodeInvalidStatus, "job "+name+" is already running"))
		return
	case err != nil:
		response.Error(w, r, err)
		return
	}

	response.OK(w, JobRun{Job: name, DurationMS: elapsed.Milliseconds()}, "job completed")
}
