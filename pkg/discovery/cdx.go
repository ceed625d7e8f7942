package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"derp/pkg/config"
	"derp/pkg/errors"
	"derp/pkg/logger"
	"derp/pkg/wayback"
)

// CDXPager queries the CDX API with wildcard URL patterns derived from
// the phrase plus any configured extra patterns. The cursor is
// "patternIndex:offset" into the flattened pattern × result stream.
type CDXPager struct {
	client    *wayback.Client
	baseURL   string
	matchType string
	pageSize  int
	extra     []string // configured URL patterns searched after the phrase variants
	dateFrom  string   // 8-digit server-side bounds
	dateTo    string
	logger    logger.Logger
}

// NewCDX builds the CDX discovery method from configuration
func NewCDX(client *wayback.Client, cfg *config.Config, log logger.Logger) *CDXPager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &CDXPager{
		client:    client,
		baseURL:   cfg.Wayback.CDXURL,
		matchType: cfg.Wayback.CDXMatchType,
		pageSize:  cfg.Wayback.CDXPageSize,
		extra:     cfg.Search.URLPatterns,
		dateFrom:  fmt.Sprintf("%d0101", int(cfg.Search.StartYear)),
		dateTo:    fmt.Sprintf("%d1231", int(cfg.Search.EndYear)),
		logger:    log,
	}
}

func (p *CDXPager) Name() string { return MethodCDX }

func (p *CDXPager) patterns(phrase string) []string {
	return append(wayback.PhrasePatterns(phrase), p.extra...)
}

// Page fetches one CDX result page. A full page keeps paging the same
// pattern at the next offset; a short page moves to the next pattern.
func (p *CDXPager) Page(ctx context.Context, phrase, token string) (PageResult, error) {
	patternIdx, offset, err := parseCDXToken(token)
	if err != nil {
		return PageResult{}, err
	}

	patterns := p.patterns(phrase)
	if patternIdx >= len(patterns) {
		return PageResult{Done: true}, nil
	}
	pattern := patterns[patternIdx]

	queryURL := wayback.CDXQueryURL(p.baseURL, pattern, p.matchType, p.dateFrom, p.dateTo, p.pageSize, offset)
	body, err := p.client.Execute(ctx, queryURL, MethodCDX)
	if err != nil {
		return PageResult{}, err
	}

	records, err := wayback.ParseCDX(body)
	if err != nil {
		// A garbled page cannot be partially consumed. Skip the rest of
		// this pattern so the phrase keeps making progress; the pattern
		// list is finite, so skipping always terminates.
		p.logger.WarnWithFields("unparseable cdx page, skipping pattern", map[string]interface{}{
			"phrase":  phrase,
			"pattern": pattern,
			"offset":  offset,
			"error":   err.Error(),
		})
		if patternIdx+1 >= len(patterns) {
			return PageResult{Done: true}, nil
		}
		return PageResult{NextToken: fmt.Sprintf("%d:0", patternIdx+1)}, nil
	}

	candidates := make([]Candidate, 0, len(records))
	for _, r := range records {
		if r.Original == "" || r.Timestamp == "" {
			p.logger.DebugWithFields("skipping incomplete CDX row", map[string]interface{}{
				"pattern": pattern,
			})
			continue
		}
		candidates = append(candidates, Candidate{
			OriginalURL: r.Original,
			Timestamp:   r.Timestamp,
			ArchiveURL:  wayback.ArchiveURL(r.Timestamp, r.Original),
			Context:     "pattern=" + pattern,
		})
	}

	p.logger.InfoWithFields("cdx page", map[string]interface{}{
		"phrase":     phrase,
		"pattern":    pattern,
		"offset":     offset,
		"candidates": len(candidates),
	})

	if p.pageSize > 0 && len(records) >= p.pageSize {
		return PageResult{
			Candidates: candidates,
			NextToken:  fmt.Sprintf("%d:%d", patternIdx, offset+p.pageSize),
		}, nil
	}

	// Pattern exhausted; move on or finish.
	if patternIdx+1 >= len(patterns) {
		return PageResult{Candidates: candidates, Done: true}, nil
	}
	return PageResult{
		Candidates: candidates,
		NextToken:  fmt.Sprintf("%d:0", patternIdx+1),
	}, nil
}

func parseCDXToken(token string) (patternIdx, offset int, err error) {
	if token == "" {
		return 0, 0, nil
	}
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return 0, 0, errors.New(errors.ErrorTypeParse, fmt.Sprintf("malformed cdx cursor %q", token))
	}
	patternIdx, err = strconv.Atoi(parts[0])
	if err == nil {
		offset, err = strconv.Atoi(parts[1])
	}
	if err != nil || patternIdx < 0 || offset < 0 {
		return 0, 0, errors.New(errors.ErrorTypeParse, fmt.Sprintf("malformed cdx cursor %q", token))
	}
	return patternIdx, offset, nil
}
