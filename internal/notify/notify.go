// Package notify delivers lifecycle alerts to Slack, e-mail and connected
// browsers and records every delivery attempt in the notification log.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"standup-desk/internal/email"
	"standup-desk/internal/models"
	"standup-desk/internal/realtime"
)

// Delivery channels recorded in the notification log
const (
	ChannelSlack     = "slack"
	ChannelEmail     = "email"
	ChannelWebSocket = "websocket"
)

// LogStore appends notification log rows
type LogStore interface {
	Create(ctx context.Context, log *models.NotificationLog) error
}

// Directory resolves notification recipients
type Directory interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	ListActiveByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

// Mailer sends e-mail messages
type Mailer interface {
	Enabled() bool
	Send(to string, msg email.Message) error
}

// Broadcaster pushes events to connected clients
type Broadcaster interface {
	BroadcastRole(role models.Role, event realtime.Event) int
	SendToUser(userID uint, event realtime.Event) int
}

// Webhook posts Slack messages
type Webhook interface {
	Post(ctx context.Context, webhookURL string, msg SlackMessage) error
}

// Config selects the team channels
type Config struct {
	ManagerWebhook string
	AdminWebhook   string
	ManagerChannel string
	AdminChannel   string
}

// Service fans alerts out to the configured channels
type Service struct {
	logs      LogStore
	directory Directory
	mailer    Mailer
	hub       Broadcaster
	slack     Webhook
	cfg       Config
	now       func() time.Time
}

// NewService creates a notification service. mailer, hub and slack may be nil.
func NewService(logs LogStore, directory Directory, mailer Mailer, hub Broadcaster, slack Webhook, cfg Config) *Service {
	return &Service{
		logs:      logs,
		directory: directory,
		mailer:    mailer,
		hub:       hub,
		slack:     slack,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Alert is the channel independent content of a notification
type Alert struct {
	Type     string      `json:"type"`
	Title    string      `json:"title"`
	Text     string      `json:"text"`
	Fields   []Field     `json:"fields,omitempty"`
	Severity string      `json:"severity,omitempty"`
	Link     string      `json:"link,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// Field is a labelled value shown with an alert
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ErrNotDelivered is returned when no channel accepted a notification
var ErrNotDelivered = errors.New("notification was not delivered on any channel")

// outcome collects the attempts of one notification
type outcome struct {
	attempts  int
	delivered int
	errs      []error
}

func (o *outcome) add(err error) {
	o.attempts++
	if err != nil {
		o.errs = append(o.errs, err)
		return
	}
	o.delivered++
}

func (o *outcome) merge(other *outcome) {
	o.attempts += other.attempts
	o.delivered += other.delivered
	o.errs = append(o.errs, other.errs...)
}

// err reports failure only when every attempt failed, so a retry never
// repeats a notification that already reached someone
func (o *outcome) err() error {
	if o.attempts == 0 || o.delivered > 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNotDelivered, errors.Join(o.errs...))
}

// notifyTeam alerts the members of a role. Slack is used when a webhook is
// configured for the role; otherwise each active member gets an e-mail.
// Connected browsers of the role always receive a push. A non-empty
// department limits e-mail to managers of that department when there are any.
func (s *Service) notifyTeam(ctx context.Context, role models.Role, department string, alert Alert) *outcome {
	out := &outcome{}

	webhook, channelName := s.cfg.ManagerWebhook, s.cfg.ManagerChannel
	if role == models.RoleAdmin {
		webhook, channelName = s.cfg.AdminWebhook, s.cfg.AdminChannel
	}

	if webhook != "" && s.slack != nil {
		err := s.slack.Post(ctx, webhook, slackMessage(alert, s.now()))
		s.record(ctx, alert, ChannelSlack, channelName, err)
		out.add(err)
	} else if s.mailer != nil && s.mailer.Enabled() {
		members, err := s.members(ctx, role, department)
		if err != nil {
			slog.Error("Failed to resolve notification recipients", "type", alert.Type, "role", role, "error", err)
			out.add(err)
		}
		for _, m := range members {
			s.email(ctx, out, m.Email, alert)
		}
	}

	if s.hub != nil {
		if n := s.hub.BroadcastRole(role, wsEvent(alert, s.now())); n > 0 {
			s.record(ctx, alert, ChannelWebSocket, "role:"+string(role), nil)
			out.add(nil)
		}
	}

	return out
}

// notifyUser alerts one user by e-mail and a push to their open sessions
func (s *Service) notifyUser(ctx context.Context, user *models.User, alert Alert) *outcome {
	out := &outcome{}

	if s.mailer != nil && s.mailer.Enabled() && user.Email != "" {
		s.email(ctx, out, user.Email, alert)
	}
	if s.hub != nil {
		if n := s.hub.SendToUser(user.ID, wsEvent(alert, s.now())); n > 0 {
			s.record(ctx, alert, ChannelWebSocket, fmt.Sprintf("user:%d", user.ID), nil)
			out.add(nil)
		}
	}

	return out
}

func (s *Service) email(ctx context.Context, out *outcome, to string, alert Alert) {
	lines := []string{alert.Text}
	for _, f := range alert.Fields {
		lines = append(lines, f.Name+": "+f.Value)
	}
	err := s.mailer.Send(to, email.Message{
		Subject:    "[Standup Desk] " + alert.Title,
		Heading:    alert.Title,
		Lines:      lines,
		ActionPath: alert.Link,
	})
	s.record(ctx, alert, ChannelEmail, to, err)
	out.add(err)
}

// members returns active users of a role; for managers the department is
// preferred and the whole role is the fallback
func (s *Service) members(ctx context.Context, role models.Role, department string) ([]models.User, error) {
	users, err := s.directory.ListActiveByRole(ctx, role)
	if err != nil || department == "" || role != models.RoleManager {
		return users, err
	}

	var scoped []models.User
	for _, u := range users {
		if u.Department == department {
			scoped = append(scoped, u)
		}
	}
	if len(scoped) == 0 {
		return users, nil
	}
	return scoped, nil
}

// record appends a notification log row; a failing log write is only logged
func (s *Service) record(ctx context.Context, alert Alert, channel, recipient string, sendErr error) {
	payload, err := json.Marshal(alert)
	if err != nil {
		payload = []byte(`{}`)
	}

	entry := &models.NotificationLog{
		Type:      alert.Type,
		Channel:   channel,
		Recipient: recipient,
		Payload:   payload,
		Success:   sendErr == nil,
	}
	if sendErr != nil {
		msg := sendErr.Error()
		entry.Error = &msg
		slog.Warn("Notification delivery failed", "type", alert.Type, "channel", channel, "recipient", recipient, "error", sendErr)
	}

	if s.logs == nil {
		return
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		slog.Error("Failed to write notification log", "type", alert.Type, "channel", channel, "error", err)
	}
}

var severityColors = map[string]string{
	string(models.SeverityLow):      "#36a64f",
	string(models.SeverityMedium):   "#f2c744",
	string(models.SeverityHigh):     "#ff8c00",
	string(models.SeverityCritical): "#d00000",
}

func slackMessage(alert Alert, now time.Time) SlackMessage {
	color, ok := severityColors[alert.Severity]
	if !ok {
		color = "#4a90e2"
	}

	var fields []SlackField
	for _, f := range alert.Fields {
		fields = append(fields, SlackField{Title: f.Name, Value: f.Value, Short: len(f.Value) < 40})
	}

	return SlackMessage{
		Text: alert.Title,
		Attachments: []SlackAttachment{{
			Color:     color,
			Title:     alert.Title,
			Text:      alert.Text,
			Fields:    fields,
			Footer:    slackUsername,
			Timestamp: now.Unix(),
		}},
	}
}

func wsEvent(alert Alert, now time.Time) realtime.Event {
	return realtime.Event{
		Type:    alert.Type,
		Message: alert.Title,
		Data:    alert,
		SentAt:  now,
	}
}
