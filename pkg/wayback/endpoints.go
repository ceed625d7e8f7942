package wayback

import (
	"fmt"
	"net/url"
	"strings"
)

// WebPrefix is the base of replay URLs for individual captures
const WebPrefix = "https://web.archive.org/web/"

// ArchiveURL builds the replay URL for a capture
func ArchiveURL(timestamp, originalURL string) string {
	return WebPrefix + timestamp + "/" + originalURL
}

// PhrasePatterns expands a phrase into the CDX wildcard patterns worth
// querying: the spellings a page URL might use for a multi-word name.
// Single-word phrases produce one pattern.
func PhrasePatterns(phrase string) []string {
	variants := []string{
		strings.ReplaceAll(phrase, " ", ""),
		strings.ReplaceAll(phrase, " ", "-"),
		strings.ReplaceAll(phrase, " ", "_"),
	}

	seen := make(map[string]bool)
	var patterns []string
	for _, v := range variants {
		p := "*" + v + "*"
		if !seen[p] {
			seen[p] = true
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// CDXQueryURL builds one CDX API page query. from and to are 8-digit
// date bounds applied server side; offset pages through the result
// stream.
func CDXQueryURL(base, pattern, matchType, from, to string, limit, offset int) string {
	params := url.Values{}
	params.Set("url", pattern)
	params.Set("output", "json")
	params.Set("collapse", "urlkey")
	params.Set("filter", "statuscode:200")
	params.Set("matchType", matchType)
	params.Set("from", from)
	params.Set("to", to)
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		params.Set("offset", fmt.Sprint(offset))
	}
	return base + "?" + params.Encode()
}

// CalendarYearURL asks for the per-day capture counts of a site in a year
func CalendarYearURL(base, site string, year int) string {
	return fmt.Sprintf("%s?url=%s&date=%d&groupby=day", base, url.QueryEscape(site), year)
}

// CalendarDayURL asks for the individual capture times of a site on a
// day (8-digit YYYYMMDD).
func CalendarDayURL(base, site, day string) string {
	return fmt.Sprintf("%s?url=%s&date=%s", base, url.QueryEscape(site), day)
}

// FullTextURL builds the text-search results URL for a phrase.
// Page 0 is the bare search URL; later pages add the page parameter.
func FullTextURL(base, phrase string, page int) string {
	u := base + url.QueryEscape(phrase)
	if page > 0 {
		u += fmt.Sprintf("?page=%d", page)
	}
	return u
}
