package middleware

import (
	"context"
	"net/http"

	"standup-desk/internal/service"
)

// AuditLogger appends audit entries
type AuditLogger interface {
	Log(ctx context.Context, userID *uint, action, resource, details string, client service.ClientInfo)
}

// AuditMiddleware logs security-related actions
type AuditMiddleware struct {
	audit AuditLogger
}

// NewAuditMiddleware creates a new audit middleware
func NewAuditMiddleware(audit AuditLogger) *AuditMiddleware {
	return &AuditMiddleware{audit: audit}
}

// Log records action on resource once the wrapped handler succeeded. The
// resource may reference a path value as "{name}".
func (m *AuditMiddleware) Log(action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusBadRequest {
				return
			}

			var userID *uint
			if actor, ok := GetActor(r); ok {
				userID = &actor.ID
			}

			m.audit.Log(r.Context(), userID, action, expandResource(r, resource), r.URL.RawQuery, ClientInfo(r))
		})
	}
}

// ClientInfo describes the client of a request for audit entries and sessions
func ClientInfo(r *http.Request) service.ClientInfo {
	return service.ClientInfo{
		IPAddress: ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// expandResource replaces "{name}" placeholders with the request's path values
func expandResource(r *http.Request, resource string) string {
	out := make([]byte, 0, len(resource))
	for i := 0; i < len(resource); i++ {
		if resource[i] != '{' {
			out = append(out, resource[i])
			continue
		}
		end := i + 1
		for end < len(resource) && resource[end] != '}' {
			end++
		}
		if end == len(resource) {
			out = append(out, resource[i:]...)
			break
		}
		out = append(out, r.PathValue(resource[i+1:end])...)
		i = end
	}
	return string(out)
}
