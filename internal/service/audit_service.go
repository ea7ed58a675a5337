package service

import (
	"context"
	"log/slog"

	"standup-desk/internal/models"
)

// AuditWriter appends audit log entries
type AuditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// AuditService handles audit logging
type AuditService struct {
	auditRepo AuditWriter
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo AuditWriter) *AuditService {
	return &AuditService{
		auditRepo: auditRepo,
	}
}

// Log creates an audit log entry. Failures are logged and never reach the
// caller, so auditing cannot fail the main operation. A nil service is a no-op.
func (s *AuditService) Log(ctx context.Context, userID *uint, action, resource, details string, client ClientInfo) {
	if s == nil || s.auditRepo == nil {
		return
	}
	err := s.auditRepo.Create(ctx, &models.AuditLog{
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Details:   details,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	if err != nil {
		slog.Error("Failed to write audit log", "action", action, "resource", resource, "error", err)
	}
}
