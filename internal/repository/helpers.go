package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// dateLayout is the wire format used for DATE parameters. Dates are always
// passed as text so the session time zone never shifts the calendar day.
const dateLayout = "2006-01-02"

func dateParam(t time.Time) string {
	return t.Format(dateLayout)
}

// jsonParam converts raw JSON into a parameter accepted by a JSONB column.
// lib/pq sends []byte as bytea, so the value is passed as text.
func jsonParam(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// stringArray never returns nil so NOT NULL array columns get '{}'
func stringArray(values []string) pq.StringArray {
	if values == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(values)
}

// isUniqueViolation reports whether err is a Postgres unique constraint error
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("Failed to close rows", "error", err)
	}
}
