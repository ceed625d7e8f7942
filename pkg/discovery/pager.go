// Package discovery finds archived captures matching the configured
// phrases. Three method variants query the archive in different
// styles; all of them speak the same Pager contract, so the engine can
// drive any of them page by page with a persisted resume cursor.
package discovery

import "context"

// Method names. These are the cursor keys in the catalog, so they are
// stable strings rather than iota values.
const (
	MethodCDX      = "cdx"
	MethodCalendar = "calendar"
	MethodFullText = "fulltext"
)

// Methods lists all discovery methods in their default run order
func Methods() []string {
	return []string{MethodCDX, MethodCalendar, MethodFullText}
}

// Candidate is one capture descriptor produced by a discovery method,
// before catalog dedup and window filtering.
type Candidate struct {
	OriginalURL string
	Timestamp   string // 14-digit YYYYMMDDhhmmss
	ArchiveURL  string
	Context     string // method-specific provenance: pattern, site, or link text
}

// PageResult is one page of candidates plus where to resume after it.
// Done means the method is exhausted for the phrase; NextToken is
// meaningful only when Done is false.
type PageResult struct {
	Candidates []Candidate
	NextToken  string
	Done       bool
}

// Pager produces a restartable sequence of candidates for a phrase.
// Page is a pure step function over the opaque token: given the same
// token it re-fetches the same page, which is what makes a crash
// between page and cursor save safe (work repeats, never skips).
type Pager interface {
	Name() string
	Page(ctx context.Context, phrase, token string) (PageResult, error)
}
