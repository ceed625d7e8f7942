package catalog

import (
	"fmt"
	"time"
)

// RequestLogEntry is one archive request as observed by the executor:
// what was asked, what came back, and how it was classified.
type RequestLogEntry struct {
	ID          int64
	URL         string
	Context     string // discovery method or "fetch"
	StatusCode  int
	Outcome     string
	Duration    time.Duration
	RequestedAt time.Time
}

// LogRequest appends one entry to the request audit log
func (c *Catalog) LogRequest(e RequestLogEntry) error {
	if e.RequestedAt.IsZero() {
		e.RequestedAt = time.Now().UTC()
	}
	_, err := c.db.Exec(`
		INSERT INTO request_log (url, context, status_code, outcome, duration_ms, requested_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.URL, e.Context, e.StatusCode, e.Outcome, e.Duration.Milliseconds(),
		e.RequestedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("catalog: log request: %w", err)
	}
	return nil
}

// RequestsSince counts logged requests at or after t
func (c *Catalog) RequestsSince(t time.Time) (int, error) {
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM request_log WHERE requested_at >= ?`,
		t.UTC().Format(time.RFC3339Nano)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("catalog: requests since: %w", err)
	}
	return n, nil
}

// RecentRequests returns the most recent entries, newest first
func (c *Catalog) RecentRequests(limit int) ([]RequestLogEntry, error) {
	rows, err := c.db.Query(`
		SELECT id, url, context, status_code, outcome, duration_ms, requested_at
		FROM request_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: recent requests: %w", err)
	}
	defer rows.Close()

	var out []RequestLogEntry
	for rows.Next() {
		var (
			e           RequestLogEntry
			durationMS  int64
			requestedAt string
		)
		if err := rows.Scan(&e.ID, &e.URL, &e.Context, &e.StatusCode, &e.Outcome, &durationMS, &requestedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan request: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.RequestedAt, _ = time.Parse(time.RFC3339Nano, requestedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
