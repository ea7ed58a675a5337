package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"standup-desk/internal/models"
)

func dial(t *testing.T, srv *httptest.Server, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?role=" + role
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.Clients())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastRoleReachesOnlyThatRole(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := models.Role(r.URL.Query().Get("role"))
		hub.Serve(w, r, 1, role)
	}))
	defer srv.Close()

	manager := dial(t, srv, string(models.RoleManager))
	defer manager.Close()
	employee := dial(t, srv, string(models.RoleEmployee))
	defer employee.Close()
	admin := dial(t, srv, string(models.RoleAdmin))
	defer admin.Close()
	waitForClients(t, hub, 3)

	if sent := hub.BroadcastRole(models.RoleManager, Event{Type: "blocker_raised", Message: "low blocker"}); sent != 1 {
		t.Fatalf("BroadcastRole delivered to %d clients, expected 1", sent)
	}

	var got Event
	_ = manager.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := manager.ReadJSON(&got); err != nil {
		t.Fatalf("manager did not receive event: %v", err)
	}
	if got.Type != "blocker_raised" {
		t.Errorf("event type = %q, expected blocker_raised", got.Type)
	}

	_ = employee.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if err := employee.ReadJSON(&got); err == nil {
		t.Error("employee should not receive manager events")
	}
	_ = admin.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if err := admin.ReadJSON(&got); err == nil {
		t.Error("admin should not receive manager channel events")
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, 7, models.RoleAdmin)
	}))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
