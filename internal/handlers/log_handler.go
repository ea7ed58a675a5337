package handlers

import (
	"context"
	"net/http"

	"standup-desk/internal/models"
	"standup-desk/internal/response"
)

// NotificationLogLister reads the notification log
type NotificationLogLister interface {
	List(ctx context.Context, notificationType string, limit, offset int) ([]models.NotificationLog, error)
}

// AuditLogLister reads the audit log
type AuditLogLister interface {
	GetAll(ctx context.Context, limit, offset int) ([]models.AuditLog, error)
	GetByUserID(ctx context.Context, userID uint, limit, offset int) ([]models.AuditLog, error)
}

// LogHandler serves the notification and audit logs (admin only)
type LogHandler struct {
	notifications NotificationLogLister
	audit         AuditLogLister
}

// NewLogHandler creates a new log handler
func NewLogHandler(notifications NotificationLogLister, audit AuditLogLister) *LogHandler {
	return &LogHandler{notifications: notifications, audit: audit}
}

// LogPage is one page of log entries
type LogPage[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// logPaging reads page and limit; limit defaults to 50 and is capped at 200
func logPaging(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return page, limit, nil
}

// NotificationLogs lists notification attempts, newest first
// @Summary List notification logs
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param type query string false "Notification type, e.g. blocker_raised"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Success 200 {object} response.Envelope{data=LogPage[models.NotificationLog]} "Notification logs"
// @Failure 403 {object} response.Envelope "Forbidden - admin only"
// @Router /notifications/logs [get]
func (h *LogHandler) NotificationLogs(w http.ResponseWriter, r *http.Request) {
	page, limit, err := logPaging(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	logs, err := h.notifications.List(r.Context(), r.URL.Query().Get("type"), limit, (page-1)*limit)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, LogPage[models.NotificationLog]{Items: logs, Page: page, Limit: limit}, "")
}

// AuditLogs lists audit entries, newest first
// @Summary List audit logs
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param user_id query int false "Filter by user ID"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Success 200 {object} response.Envelope{data=LogPage[models.AuditLog]} "Audit logs"
// @Failure 403 {object} response.Envelope "Forbidden - admin only"
// @Router /admin/audit-logs [get]
func (h *LogHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	page, limit, err := logPaging(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	userID, err := queryUint(r, "user_id")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var logs []models.AuditLog
	if userID != nil {
		logs, err = h.audit.GetByUserID(r.Context(), *userID, limit, (page-1)*limit)
	} else {
		logs, err = h.audit.GetAll(r.Context(), limit, (page-1)*limit)
	}
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, LogPage[models.AuditLog]{Items: logs, Page: page, Limit: limit}, "")
}
