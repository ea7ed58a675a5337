package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"standup-desk/internal/middleware"
	"standup-desk/internal/service"
	"standup-desk/pkg/validator"
)

// DateLayout is the format of date query parameters
const DateLayout = "2006-01-02"

// invalidParam builds a VALIDATION_ERROR for a path or query parameter
func invalidParam(field, message string) error {
	return &service.Error{
		Code:    service.CodeValidation,
		Message: field + " " + message,
		Details: validator.ValidationErrors{{Field: field, Message: message}},
	}
}

// actorOf returns the authenticated caller. Routes using it sit behind the
// auth middleware, so a missing actor is a wiring error.
func actorOf(r *http.Request) (service.Actor, error) {
	actor, ok := middleware.GetActor(r)
	if !ok {
		return service.Actor{}, service.NewError(service.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

// pathID parses a positive numeric path value
func pathID(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil || id == 0 {
		return 0, invalidParam(name, "must be a positive integer")
	}
	return uint(id), nil
}

// queryInt parses an optional integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(name, "must be an integer")
	}
	return v, nil
}

// queryUint parses an optional id query parameter
func queryUint(r *http.Request, name string) (*uint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		return nil, invalidParam(name, "must be a positive integer")
	}
	id := uint(v)
	return &id, nil
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, invalidParam(name, "must be true or false")
	}
	return &v, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter as midnight in loc
func queryDate(r *http.Request, name string, loc *time.Location) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return nil, invalidParam(name, "must be a date in YYYY-MM-DD format")
	}
	return &d, nil
}

// pagination reads the page and page_size query parameters
func pagination(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := queryInt(r, "page_size")
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}
