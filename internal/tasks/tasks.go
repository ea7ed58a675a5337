// Package tasks defines the outbound work items that lifecycle operations hand
// off to the background worker: AI analysis and notifications.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Task type names
const (
	TypeAnalyzeStandup   = "ai:analyze_standup"
	TypeTriageBlocker    = "ai:triage_blocker"
	TypeStandupSubmitted = "notify:standup_submitted"
	TypeStandupReviewed  = "notify:standup_reviewed"
	TypeBlockerRaised    = "notify:blocker_raised"
	TypeBlockerEscalated = "notify:blocker_escalated"
	TypeBlockerResolved  = "notify:blocker_resolved"
	TypeDailyReminder    = "notify:daily_reminder"
)

// StandupPayload references a standup
type StandupPayload struct {
	StandupID uint `json:"standup_id"`
}

// ReviewPayload references a reviewed standup and the review action
type ReviewPayload struct {
	StandupID uint   `json:"standup_id"`
	Action    string `json:"action"`
}

// BlockerPayload references a blocker
type BlockerPayload struct {
	BlockerID uint `json:"blocker_id"`
}

// ReminderPayload addresses one daily reminder
type ReminderPayload struct {
	UserID uint      `json:"user_id"`
	Date   time.Time `json:"date"`
}

// Publisher hands a task to the background worker
type Publisher interface {
	Publish(ctx context.Context, taskType string, payload interface{}) error
}

// Fire publishes a task without letting a failure reach the caller.
// The triggering operation has already succeeded when this is called.
func Fire(ctx context.Context, p Publisher, taskType string, payload interface{}) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, taskType, payload); err != nil {
		slog.Error("Failed to publish task", "type", taskType, "error", err)
	}
}

// Decode unmarshals a task payload
func Decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
