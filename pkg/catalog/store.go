package catalog

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"derp/pkg/errors"
	"derp/pkg/logger"
)

// Capture is one archived snapshot of a page: a (url, timestamp) pair
// plus everything learned about it after fetching.
type Capture struct {
	ID           int64
	OriginalURL  string
	Timestamp    string // 14-digit YYYYMMDDhhmmss
	ArchiveURL   string
	DiscoveredAt time.Time
	Fetched      bool
	FetchedAt    time.Time
	ContentHash  string
	ContentPath  string
	FetchError   string
	Analyzed     bool
	Relevant     bool
	Notes        string
}

// InsertResult says what Insert did with a candidate capture
type InsertResult int

const (
	ResultInserted InsertResult = iota
	ResultAlreadyPresent
	ResultOutOfWindow
)

func (r InsertResult) String() string {
	switch r {
	case ResultInserted:
		return "inserted"
	case ResultAlreadyPresent:
		return "already_present"
	case ResultOutOfWindow:
		return "out_of_window"
	default:
		return "unknown"
	}
}

// MediaCandidate is a link to a possible audio/video resource found in
// a fetched page.
type MediaCandidate struct {
	ID        int64
	CaptureID int64
	URL       string
	Kind      string
	FoundAt   time.Time
}

// Stats summarizes the catalog for display and export
type Stats struct {
	TotalCaptures   int
	Fetched         int
	Analyzed        int
	Relevant        int
	FetchErrors     int
	MediaCandidates int
	ByMethod        map[string]int
	ByPhrase        map[string]int
	ByYear          map[string]int
	MediaByKind     map[string]int
}

// Catalog is the store of record for discovered captures. All writes
// funnel through it; the date window is enforced here and nowhere
// else, so no code path can smuggle an out-of-window capture in.
type Catalog struct {
	db         *sql.DB
	windowFrom string
	windowTo   string
	logger     logger.Logger
}

// New wraps an open database. windowFrom and windowTo are inclusive
// 14-digit timestamp bounds.
func New(db *sql.DB, windowFrom, windowTo string, log logger.Logger) *Catalog {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Catalog{db: db, windowFrom: windowFrom, windowTo: windowTo, logger: log}
}

// NormalizeURL canonicalizes a capture URL so that trivially different
// spellings of the same page dedupe: lowercased scheme and host,
// default ports stripped, fragment dropped, and a bare trailing slash
// removed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	u.Fragment = ""
	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
	}
	return u.String()
}

// InWindow reports whether a 14-digit timestamp falls inside the
// catalog's date window. Timestamps are fixed-width so a string
// comparison is a chronological comparison.
func (c *Catalog) InWindow(timestamp string) bool {
	return timestamp >= c.windowFrom && timestamp <= c.windowTo
}

func validTimestamp(ts string) bool {
	if len(ts) != 14 {
		return false
	}
	for _, r := range ts {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Insert records a discovered capture. It is idempotent on the
// normalized (url, timestamp) pair: re-discovering a known capture via
// another phrase or method only adds a provenance row. Captures
// outside the date window are rejected without touching the database.
func (c *Catalog) Insert(capt *Capture, phrase, method string) (InsertResult, error) {
	if !validTimestamp(capt.Timestamp) {
		return 0, errors.New(errors.ErrorTypeParse,
			fmt.Sprintf("malformed capture timestamp %q", capt.Timestamp))
	}
	if !c.InWindow(capt.Timestamp) {
		return ResultOutOfWindow, nil
	}

	capt.OriginalURL = NormalizeURL(capt.OriginalURL)
	if capt.DiscoveredAt.IsZero() {
		capt.DiscoveredAt = time.Now().UTC()
	}

	tx, err := c.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO captures (original_url, timestamp, archive_url, discovered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (original_url, timestamp) DO NOTHING`,
		capt.OriginalURL, capt.Timestamp, capt.ArchiveURL, capt.DiscoveredAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("catalog: insert capture: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("catalog: rows affected: %w", err)
	}

	result := ResultInserted
	if inserted > 0 {
		capt.ID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("catalog: last insert id: %w", err)
		}
	} else {
		result = ResultAlreadyPresent
		err = tx.QueryRow(`SELECT id FROM captures WHERE original_url = ? AND timestamp = ?`,
			capt.OriginalURL, capt.Timestamp).Scan(&capt.ID)
		if err != nil {
			return 0, fmt.Errorf("catalog: lookup existing capture: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO capture_sources (capture_id, phrase, method, discovered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (capture_id, phrase, method) DO NOTHING`,
		capt.ID, phrase, method, capt.DiscoveredAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("catalog: insert provenance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit: %w", err)
	}
	return result, nil
}

// MarkFetched records a successful page fetch
func (c *Catalog) MarkFetched(id int64, contentHash, contentPath string) error {
	_, err := c.db.Exec(`
		UPDATE captures
		SET fetched = 1, fetched_at = ?, content_hash = ?, content_path = ?, fetch_error = NULL
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), contentHash, contentPath, id)
	if err != nil {
		return fmt.Errorf("catalog: mark fetched: %w", err)
	}
	return nil
}

// MarkFetchError records a failed fetch so the capture can be retried
// or skipped later.
func (c *Catalog) MarkFetchError(id int64, msg string) error {
	_, err := c.db.Exec(`UPDATE captures SET fetch_error = ? WHERE id = ?`, msg, id)
	if err != nil {
		return fmt.Errorf("catalog: mark fetch error: %w", err)
	}
	return nil
}

// MarkAnalyzed records the content analysis verdict for a fetched capture
func (c *Catalog) MarkAnalyzed(id int64, relevant bool, notes string) error {
	_, err := c.db.Exec(`UPDATE captures SET analyzed = 1, relevant = ?, notes = ? WHERE id = ?`,
		relevant, notes, id)
	if err != nil {
		return fmt.Errorf("catalog: mark analyzed: %w", err)
	}
	return nil
}

// ListPending returns captures that have not been fetched yet, oldest
// discovered first. limit <= 0 means no limit.
func (c *Catalog) ListPending(limit int) ([]Capture, error) {
	q := `SELECT ` + captureColumns + ` FROM captures WHERE fetched = 0 AND fetch_error IS NULL ORDER BY id`
	args := []interface{}{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return c.queryCaptures(q, args...)
}

// ListCaptures returns all captures, optionally restricted to those
// analysis marked relevant.
func (c *Catalog) ListCaptures(onlyRelevant bool) ([]Capture, error) {
	q := `SELECT ` + captureColumns + ` FROM captures`
	if onlyRelevant {
		q += ` WHERE relevant = 1`
	}
	q += ` ORDER BY timestamp, original_url`
	return c.queryCaptures(q)
}

// GetCapture looks up a single capture by id
func (c *Catalog) GetCapture(id int64) (*Capture, error) {
	caps, err := c.queryCaptures(`SELECT `+captureColumns+` FROM captures WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(caps) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound,
			fmt.Sprintf("capture %d not found", id))
	}
	return &caps[0], nil
}

const captureColumns = `id, original_url, timestamp, archive_url, discovered_at,
	fetched, fetched_at, content_hash, content_path, fetch_error, analyzed, relevant, notes`

func (c *Catalog) queryCaptures(q string, args ...interface{}) ([]Capture, error) {
	rows, err := c.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var (
			capt                                   Capture
			discoveredAt                           string
			fetchedAt, hash, path, fetchErr, notes sql.NullString
		)
		err := rows.Scan(&capt.ID, &capt.OriginalURL, &capt.Timestamp, &capt.ArchiveURL, &discoveredAt,
			&capt.Fetched, &fetchedAt, &hash, &path, &fetchErr, &capt.Analyzed, &capt.Relevant, &notes)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan capture: %w", err)
		}
		capt.DiscoveredAt, _ = time.Parse(time.RFC3339Nano, discoveredAt)
		if fetchedAt.Valid {
			capt.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt.String)
		}
		capt.ContentHash = hash.String
		capt.ContentPath = path.String
		capt.FetchError = fetchErr.String
		capt.Notes = notes.String
		out = append(out, capt)
	}
	return out, rows.Err()
}

// AddMediaCandidates records media links extracted from a fetched
// page. Duplicate URLs for the same capture are ignored.
func (c *Catalog) AddMediaCandidates(captureID int64, items []MediaCandidate) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, m := range items {
		_, err := tx.Exec(`
			INSERT INTO media_candidates (capture_id, url, kind, found_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (capture_id, url) DO NOTHING`,
			captureID, m.URL, m.Kind, now)
		if err != nil {
			return fmt.Errorf("catalog: insert media candidate: %w", err)
		}
	}
	return tx.Commit()
}

// ListMediaCandidates returns all recorded media candidates
func (c *Catalog) ListMediaCandidates() ([]MediaCandidate, error) {
	rows, err := c.db.Query(`SELECT id, capture_id, url, kind, found_at FROM media_candidates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query media candidates: %w", err)
	}
	defer rows.Close()

	var out []MediaCandidate
	for rows.Next() {
		var (
			m       MediaCandidate
			foundAt string
		)
		if err := rows.Scan(&m.ID, &m.CaptureID, &m.URL, &m.Kind, &foundAt); err != nil {
			return nil, fmt.Errorf("catalog: scan media candidate: %w", err)
		}
		m.FoundAt, _ = time.Parse(time.RFC3339Nano, foundAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Stats computes catalog summary counts
func (c *Catalog) Stats() (*Stats, error) {
	s := &Stats{
		ByMethod:    make(map[string]int),
		ByPhrase:    make(map[string]int),
		ByYear:      make(map[string]int),
		MediaByKind: make(map[string]int),
	}

	err := c.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(fetched), 0),
		       COALESCE(SUM(analyzed), 0),
		       COALESCE(SUM(relevant), 0),
		       COALESCE(SUM(CASE WHEN fetch_error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM captures`).
		Scan(&s.TotalCaptures, &s.Fetched, &s.Analyzed, &s.Relevant, &s.FetchErrors)
	if err != nil {
		return nil, fmt.Errorf("catalog: stats: %w", err)
	}

	if err := c.db.QueryRow(`SELECT COUNT(*) FROM media_candidates`).Scan(&s.MediaCandidates); err != nil {
		return nil, fmt.Errorf("catalog: stats: %w", err)
	}

	if err := c.countInto(s.ByMethod,
		`SELECT method, COUNT(DISTINCT capture_id) FROM capture_sources GROUP BY method`); err != nil {
		return nil, err
	}
	if err := c.countInto(s.ByPhrase,
		`SELECT phrase, COUNT(DISTINCT capture_id) FROM capture_sources GROUP BY phrase`); err != nil {
		return nil, err
	}
	if err := c.countInto(s.ByYear,
		`SELECT substr(timestamp, 1, 4), COUNT(*) FROM captures GROUP BY 1`); err != nil {
		return nil, err
	}
	if err := c.countInto(s.MediaByKind,
		`SELECT kind, COUNT(*) FROM media_candidates GROUP BY kind`); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Catalog) countInto(dst map[string]int, q string) error {
	rows, err := c.db.Query(q)
	if err != nil {
		return fmt.Errorf("catalog: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("catalog: stats scan: %w", err)
		}
		dst[key] = n
	}
	return rows.Err()
}
