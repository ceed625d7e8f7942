package catalog

import (
	"database/sql"
	"fmt"
	"time"
)

// Cursor marks how far a (phrase, method) search has progressed. An
// empty token with Completed false means the search has not started;
// Completed true means the method was exhausted for that phrase and
// re-running it is a no-op.
type Cursor struct {
	Phrase    string
	Method    string
	Token     string
	Completed bool
	UpdatedAt time.Time
}

// LoadCursor returns the saved cursor for a (phrase, method) pair. The
// second return is false when no cursor has been saved yet.
func (c *Catalog) LoadCursor(phrase, method string) (Cursor, bool, error) {
	cur := Cursor{Phrase: phrase, Method: method}
	var updatedAt string
	err := c.db.QueryRow(
		`SELECT token, completed, updated_at FROM search_cursors WHERE phrase = ? AND method = ?`,
		phrase, method).Scan(&cur.Token, &cur.Completed, &updatedAt)
	if err == sql.ErrNoRows {
		return cur, false, nil
	}
	if err != nil {
		return cur, false, fmt.Errorf("catalog: load cursor: %w", err)
	}
	cur.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return cur, true, nil
}

// SaveCursor records the resume token for a (phrase, method) pair.
// Callers save only after the page the token points past has been
// fully recorded, so a crash between page and save repeats work
// instead of skipping it.
func (c *Catalog) SaveCursor(phrase, method, token string) error {
	return c.upsertCursor(phrase, method, token, false)
}

// MarkCompleted marks a (phrase, method) search as exhausted
func (c *Catalog) MarkCompleted(phrase, method string) error {
	return c.upsertCursor(phrase, method, "", true)
}

func (c *Catalog) upsertCursor(phrase, method, token string, completed bool) error {
	_, err := c.db.Exec(`
		INSERT INTO search_cursors (phrase, method, token, completed, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (phrase, method) DO UPDATE SET
			token = excluded.token,
			completed = excluded.completed,
			updated_at = excluded.updated_at`,
		phrase, method, token, completed, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("catalog: save cursor: %w", err)
	}
	return nil
}

// ListCursors returns all saved cursors, for progress display
func (c *Catalog) ListCursors() ([]Cursor, error) {
	rows, err := c.db.Query(
		`SELECT phrase, method, token, completed, updated_at FROM search_cursors ORDER BY phrase, method`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list cursors: %w", err)
	}
	defer rows.Close()

	var out []Cursor
	for rows.Next() {
		var (
			cur       Cursor
			updatedAt string
		)
		if err := rows.Scan(&cur.Phrase, &cur.Method, &cur.Token, &cur.Completed, &updatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan cursor: %w", err)
		}
		cur.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, cur)
	}
	return out, rows.Err()
}
