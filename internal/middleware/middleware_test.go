package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"standup-desk/internal/config"
	"standup-desk/internal/models"
	"standup-desk/internal/service"
)

type fakeAuthenticator struct {
	actors map[string]service.Actor
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (service.Actor, error) {
	if token == "expired" {
		return service.Actor{}, service.NewError(service.CodeTokenExpired, "token has expired")
	}
	actor, ok := f.actors[token]
	if !ok {
		return service.Actor{}, service.NewError(service.CodeUnauthorized, "invalid token")
	}
	return actor, nil
}

func newAuthMiddleware() *AuthMiddleware {
	return NewAuthMiddleware(&fakeAuthenticator{actors: map[string]service.Actor{
		"employee": {ID: 3, Role: models.RoleEmployee, Department: "Engineering"},
		"manager":  {ID: 2, Role: models.RoleManager, Department: "Engineering"},
	}})
}

func TestAuthenticate(t *testing.T) {
	var seen service.Actor
	var seenToken string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetActor(r)
		seenToken = GetToken(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := newAuthMiddleware().Authenticate(next)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, service.CodeUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, service.CodeUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, service.CodeUnauthorized},
		{"expired token", "Bearer expired", http.StatusUnauthorized, service.CodeTokenExpired},
		{"valid token", "Bearer employee", http.StatusOK, ""},
		{"lowercase scheme", "bearer employee", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.code != "" && !strings.Contains(rec.Body.String(), `"code":"`+tt.code+`"`) {
				t.Errorf("Expected code %s in %s", tt.code, rec.Body.String())
			}
		})
	}

	if seen.ID != 3 || seenToken != "employee" {
		t.Errorf("Expected actor 3 with raw token in context, got %+v / %q", seen, seenToken)
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := newAuthMiddleware().Authenticate(RequireRole(models.RoleManager)(ok))

	tests := []struct {
		token  string
		status int
	}{
		{"employee", http.StatusForbidden},
		{"manager", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/standups/team", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusForbidden && !strings.Contains(rec.Body.String(), `"required_role":"MANAGER"`) {
				t.Errorf("Expected required role in details, got %s", rec.Body.String())
			}
		})
	}

	// without Authenticate in front there is no actor
	rec := httptest.NewRecorder()
	RequireRole(models.RoleEmployee)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without actor, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, Requests: 2, Duration: time.Minute})
	defer rl.Stop()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := do("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"RATE_LIMITED"`) {
		t.Errorf("Expected RATE_LIMITED envelope, got %s", rec.Body.String())
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After 60, got %q", rec.Header().Get("Retry-After"))
	}

	if rec := do("10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", rec.Code)
	}

	now = now.Add(time.Minute)
	if rec := do("10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("Expected bucket refill after window, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if ip := ClientIP(req); ip != "192.0.2.1" {
		t.Errorf("Expected socket address, got %q", ip)
	}

	req.Header.Set("X-Real-IP", "198.51.100.7")
	if ip := ClientIP(req); ip != "198.51.100.7" {
		t.Errorf("Expected X-Real-IP, got %q", ip)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if ip := ClientIP(req); ip != "203.0.113.5" {
		t.Errorf("Expected first forwarded hop, got %q", ip)
	}
}

func TestCORS(t *testing.T) {
	cors := NewCORSMiddleware(&config.CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	called := false
	handler := cors.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/standups", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || called {
		t.Errorf("Expected preflight to be answered directly, got %d (called=%v)", rec.Code, called)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Unexpected allowed methods %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "300" {
		t.Errorf("Unexpected max age %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/standups", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected no CORS headers for unknown origin")
	}
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []string
	users   []*uint
}

func (a *recordingAudit) Log(_ context.Context, userID *uint, action, resource, _ string, _ service.ClientInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, action+" "+resource)
	a.users = append(a.users, userID)
}

func TestAuditMiddleware(t *testing.T) {
	audit := &recordingAudit{}
	mw := NewAuditMiddleware(audit)

	status := http.StatusOK
	inner := mw.Log("job.run", "job:{name}")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	mux := http.NewServeMux()
	mux.Handle("POST /admin/jobs/{name}/run", newAuthMiddleware().Authenticate(inner))

	run := func() {
		req := httptest.NewRequest(http.MethodPost, "/admin/jobs/mark_late/run", nil)
		req.Header.Set("Authorization", "Bearer manager")
		mux.ServeHTTP(httptest.NewRecorder(), req)
	}

	run()
	status = http.StatusConflict
	run()

	if len(audit.entries) != 1 {
		t.Fatalf("Expected one audit entry for the successful call, got %v", audit.entries)
	}
	if audit.entries[0] != "job.run job:mark_late" {
		t.Errorf("Unexpected audit entry %q", audit.entries[0])
	}
	if audit.users[0] == nil || *audit.users[0] != 2 {
		t.Errorf("Expected audit entry for user 2, got %v", audit.users[0])
	}
}

func TestLoggingMiddleware_KeepsBody(t *testing.T) {
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(previous)

	var got string
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		got = buf.String()
		w.WriteHeader(http.StatusCreated)
	}))

	body := `{"today_goal":"` + strings.Repeat("x", 6000) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/standups/goal", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got != body {
		t.Errorf("Expected handler to read the full body (%d bytes), got %d", len(body), len(got))
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected nosniff header")
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'none'") {
		t.Errorf("Unexpected API CSP %q", rec.Header().Get("Content-Security-Policy"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "'unsafe-inline'") {
		t.Errorf("Expected relaxed CSP for swagger, got %q", rec.Header().Get("Content-Security-Policy"))
	}
}
