package wayback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"derp/pkg/errors"
)

// CDXRecord is one row of a CDX API result page
type CDXRecord struct {
	URLKey     string
	Timestamp  string
	Original   string
	MimeType   string
	StatusCode string
	Digest     string
}

// ParseCDX decodes a CDX JSON response: an array of string arrays
// whose first row names the columns. An empty body or a lone header
// row means no results.
func ParseCDX(data []byte) ([]CDXRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var rows [][]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.New(errors.ErrorTypeParse, fmt.Sprintf("decode CDX response: %v", err))
	}
	if len(rows) < 2 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[name] = i
	}
	field := func(row []string, name string) string {
		if i, ok := cols[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	records := make([]CDXRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		records = append(records, CDXRecord{
			URLKey:     field(row, "urlkey"),
			Timestamp:  field(row, "timestamp"),
			Original:   field(row, "original"),
			MimeType:   field(row, "mimetype"),
			StatusCode: field(row, "statuscode"),
			Digest:     field(row, "digest"),
		})
	}
	return records, nil
}

// calendarItems is the shared envelope of calendar API responses. The
// values inside items vary by query: day groups for a year query,
// capture times for a day query, and numbers arrive as either JSON
// numbers or strings depending on the era of the response.
type calendarItems struct {
	Items []interface{} `json:"items"`
}

func decodeCalendar(data []byte) (calendarItems, error) {
	var payload calendarItems
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return payload, errors.New(errors.ErrorTypeParse, fmt.Sprintf("decode calendar response: %v", err))
	}
	return payload, nil
}

// ParseCalendarDays extracts the 8-digit day stamps from a grouped-by-
// day calendar response. Entries it cannot interpret are skipped; a
// malformed envelope is an error.
func ParseCalendarDays(data []byte) ([]string, error) {
	payload, err := decodeCalendar(data)
	if err != nil {
		return nil, err
	}

	var days []string
	for _, item := range payload.Items {
		entry, ok := item.([]interface{})
		if !ok || len(entry) == 0 {
			continue
		}
		first := entry[0]
		if nested, ok := first.([]interface{}); ok {
			if len(nested) == 0 {
				continue
			}
			first = nested[0]
		}
		if day, ok := scalarString(first); ok && isDigits(day, 8) {
			days = append(days, day)
		}
	}
	return days, nil
}

// ParseCalendarTimes extracts the capture times (6-digit HHMMSS,
// zero-padded) from a single-day calendar response.
func ParseCalendarTimes(data []byte) ([]string, error) {
	payload, err := decodeCalendar(data)
	if err != nil {
		return nil, err
	}

	var times []string
	for _, item := range payload.Items {
		entry, ok := item.([]interface{})
		if !ok || len(entry) < 2 {
			continue
		}
		t, ok := scalarString(entry[0])
		if !ok {
			continue
		}
		if len(t) < 6 {
			t = strings.Repeat("0", 6-len(t)) + t
		}
		if isDigits(t, 6) {
			times = append(times, t)
		}
	}
	return times, nil
}

func scalarString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case json.Number:
		return x.String(), true
	case string:
		return x, true
	default:
		return "", false
	}
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ArchiveLink is a reference to a capture found in a search results
// page, with the text of the link kept as provenance.
type ArchiveLink struct {
	Timestamp   string
	OriginalURL string
	ArchiveURL  string
	LinkText    string
}

var archivePathRE = regexp.MustCompile(`/web/(\d{14})/(.+)`)

// ParseArchiveLinks walks an HTML search results page and collects
// every anchor pointing at a /web/TIMESTAMP/URL capture.
func ParseArchiveLinks(page []byte) ([]ArchiveLink, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParse, fmt.Sprintf("parse results page: %v", err))
	}

	var links []ArchiveLink
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := attr(n, "href"); ok {
				if m := archivePathRE.FindStringSubmatch(href); m != nil {
					archiveURL := href
					if !strings.HasPrefix(href, "http") {
						archiveURL = "https://web.archive.org" + href
					}
					links = append(links, ArchiveLink{
						Timestamp:   m[1],
						OriginalURL: m[2],
						ArchiveURL:  archiveURL,
						LinkText:    truncate(strings.TrimSpace(nodeText(n)), 200),
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
