package repository

import (
	"context"
	"database/sql"
	"fmt"

	"standup-desk/internal/models"
)

// NotificationLogRepository appends and lists notification attempts
type NotificationLogRepository struct {
	db *sql.DB
}

// NewNotificationLogRepository creates a new notification log repository
func NewNotificationLogRepository(db *sql.DB) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// Create appends a notification attempt
func (r *NotificationLogRepository) Create(ctx context.Context, log *models.NotificationLog) error {
	query := `
		INSERT INTO notification_logs (type, channel, recipient, payload, success, error)
		VALUES ($1, $2, $3, COALESCE($4::jsonb, '{}'::jsonb), $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		log.Type,
		log.Channel,
		log.Recipient,
		jsonParam(log.Payload),
		log.Success,
		log.Error,
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}

	return nil
}

// List returns notification attempts newest first, optionally of one type
func (r *NotificationLogRepository) List(ctx context.Context, notificationType string, limit, offset int) ([]models.NotificationLog, error) {
	query := `
		SELECT id, type, channel, COALESCE(recipient, ''), payload, success, error, created_at
		FROM notification_logs
		WHERE ($1::text = '' OR type = $1::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, notificationType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer closeRows(rows)

	logs := []models.NotificationLog{}
	for rows.Next() {
		var l models.NotificationLog
		var payload []byte
		if err := rows.Scan(&l.ID, &l.Type, &l.Channel, &l.Recipient, &payload, &l.Success, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		l.Payload = payload
		logs = append(logs, l)
	}

	return logs, rows.Err()
}
