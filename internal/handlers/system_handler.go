package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"standup-desk/internal/config"
	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker func(ctx context.Context) error

// SystemHandler serves health and public configuration
type SystemHandler struct {
	config *config.Config
	checks map[string]HealthChecker
}

// NewSystemHandler creates a new system handler. checks are probed by Health.
func NewSystemHandler(cfg *config.Config, checks map[string]HealthChecker) *SystemHandler {
	return &SystemHandler{config: cfg, checks: checks}
}

// HealthStatus is the body of a health check
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// Health probes the database and the other dependencies
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} response.Envelope{data=HealthStatus} "Healthy"
// @Failure 503 {object} response.Envelope{data=HealthStatus} "A dependency is unavailable"
// @Router /health [get]
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := HealthStatus{Status: "healthy", Version: h.config.App.Version, Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status.Status = "unhealthy"
			status.Checks[name] = "error: " + err.Error()
			continue
		}
		status.Checks[name] = "ok"
	}

	if status.Status != "healthy" {
		response.JSON(w, http.StatusServiceUnavailable, response.Envelope{
			Success: false,
			Data:    status,
			Error:   &response.ErrorBody{Code: "UNAVAILABLE", Message: "a dependency is unavailable"},
		})
		return
	}
	response.OK(w, status, "")
}

// AppConfig is the public configuration a client needs
type AppConfig struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	Timezone          string   `json:"timezone"`
	LateCutoff        string   `json:"late_cutoff"`
	LateSubmissionAt  string   `json:"late_submission_at"`
	MaxFileSize       int64    `json:"max_file_size"`
	MaxFilesPerParent int      `json:"max_files_per_parent"`
	AllowedExtensions []string `json:"allowed_extensions"`
	WebSocketEnabled  bool     `json:"websocket_enabled"`
}

// GetAppConfig returns the public app configuration for the frontend
// @Summary Get app configuration
// @Tags System
// @Produce json
// @Success 200 {object} response.Envelope{data=AppConfig} "App configuration"
// @Router /config/app [get]
func (h *SystemHandler) GetAppConfig(w http.ResponseWriter, r *http.Request) {
	response.OK(w, AppConfig{
		Name:              h.config.App.Name,
		Version:           h.config.App.Version,
		Timezone:          h.config.App.Timezone,
		LateCutoff:        h.config.Scheduler.LateCutoff,
		LateSubmissionAt:  fmt.Sprintf("%02d:00", service.LateSubmissionHour),
		MaxFileSize:       h.config.Storage.MaxFileSize,
		MaxFilesPerParent: h.config.Storage.MaxFilesPerParent,
		AllowedExtensions: h.config.Storage.AllowedExtensions,
		WebSocketEnabled:  h.config.Notify.WebSocketEnabled,
	}, "")
}
