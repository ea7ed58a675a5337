package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"standup-desk/internal/middleware"
	"standup-desk/internal/models"
	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

func getContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// routes registers handlers under a common prefix behind the auth middleware
type routes struct {
	mux    *http.ServeMux
	prefix string
	auth   *middleware.AuthMiddleware
	audit  *middleware.AuditMiddleware
}

// public registers a route that needs no token
func (rt *routes) public(method, path string, h http.HandlerFunc) {
	rt.mux.HandleFunc(method+" "+rt.prefix+path, h)
}

// role registers a route for callers holding at least min
func (rt *routes) role(min models.Role, method, path string, h http.HandlerFunc) {
	rt.mux.Handle(method+" "+rt.prefix+path,
		rt.auth.Authenticate(
			middleware.RequireRole(min)(h),
		),
	)
}

// audited registers an admin route whose successful calls are written to the audit log
func (rt *routes) audited(min models.Role, method, path, action, resource string, h http.HandlerFunc) {
	rt.mux.Handle(method+" "+rt.prefix+path,
		rt.auth.Authenticate(
			middleware.RequireRole(min)(
				rt.audit.Log(action, resource)(h),
			),
		),
	)
}

// envelopeErrors rewrites the plain text 404 and 405 replies of the mux
// into the JSON envelope
func envelopeErrors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&envelopeWriter{ResponseWriter: w}, r)
	})
}

type envelopeWriter struct {
	http.ResponseWriter
	replaced bool
}

func (ew *envelopeWriter) WriteHeader(status int) {
	plain := strings.HasPrefix(ew.Header().Get("Content-Type"), "text/plain")
	switch {
	case plain && status == http.StatusNotFound:
		ew.replaced = true
		response.Fail(ew.ResponseWriter, status, service.CodeNotFound, "route not found", nil)
	case plain && status == http.StatusMethodNotAllowed:
		ew.replaced = true
		response.Fail(ew.ResponseWriter, status, response.CodeMethodNotAllowed, "method not allowed", nil)
	default:
		ew.ResponseWriter.WriteHeader(status)
	}
}

func (ew *envelopeWriter) Write(b []byte) (int, error) {
	if ew.replaced {
		return len(b), nil
	}
	return ew.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrade take over the connection
func (ew *envelopeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := ew.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (ew *envelopeWriter) Flush() {
	if f, ok := ew.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
