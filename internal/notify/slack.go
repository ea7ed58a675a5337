package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SlackField is one short key/value of an attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackAttachment is the colored block of a webhook message
type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	TitleLink string       `json:"title_link,omitempty"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

// SlackMessage is an incoming-webhook request body
type SlackMessage struct {
	Username    string            `json:"username"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments"`
}

const slackUsername = "Standup Desk"

// SlackClient posts messages to Slack incoming webhooks
type SlackClient struct {
	client *http.Client
}

// NewSlackClient creates a webhook client with the given request timeout
func NewSlackClient(timeout time.Duration) *SlackClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackClient{client: &http.Client{Timeout: timeout}}
}

// Post sends msg to webhookURL
func (c *SlackClient) Post(ctx context.Context, webhookURL string, msg SlackMessage) error {
	if msg.Username == "" {
		msg.Username = slackUsername
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
