package email

import (
	"strings"
	"testing"

	"standup-desk/internal/config"
)

func TestRenderEscapesContentAndBuildsLink(t *testing.T) {
	svc := NewService(&config.EmailConfig{AppURL: "https://standup.example.com/"})

	body, err := svc.Render(Message{
		Subject:    "Reminder",
		Heading:    "Hello <Ada>",
		Lines:      []string{"Please submit your standup.", "<script>alert(1)</script>"},
		ActionPath: "/standups/today",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if strings.Contains(body, "<script>") {
		t.Error("user text must be escaped")
	}
	if !strings.Contains(body, "Hello &lt;Ada&gt;") {
		t.Error("heading missing from body")
	}
	if !strings.Contains(body, `href="https://standup.example.com/standups/today"`) {
		t.Error("action link should join the app URL and the path")
	}
	if !strings.Contains(body, "Open Standup Desk") {
		t.Error("default action label missing")
	}
}

func TestSendWithoutSMTPHostFails(t *testing.T) {
	svc := NewService(&config.EmailConfig{})
	if svc.Enabled() {
		t.Fatal("service without SMTP host should be disabled")
	}
	if err := svc.Send("a@example.com", Message{Subject: "x"}); err == nil {
		t.Error("expected an error when email is not configured")
	}
}

func TestHeaderValueStripsLineBreaks(t *testing.T) {
	if got := headerValue("Hi\r\nBcc: evil@example.com"); strings.ContainsAny(got, "\r\n") {
		t.Errorf("headerValue kept a line break: %q", got)
	}
}
