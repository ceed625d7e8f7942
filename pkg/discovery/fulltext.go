package discovery

import (
	"context"
	"fmt"
	"strconv"

	"derp/pkg/config"
	"derp/pkg/errors"
	"derp/pkg/logger"
	"derp/pkg/wayback"
)

// FullTextPager scrapes the archive's text-search results pages for
// capture links. The cursor is the next page number; a hard page
// ceiling bounds the worst-case runtime per phrase.
type FullTextPager struct {
	client   *wayback.Client
	baseURL  string
	maxPages int
	logger   logger.Logger
}

// NewFullText builds the full-text discovery method from configuration
func NewFullText(client *wayback.Client, cfg *config.Config, log logger.Logger) *FullTextPager {
	if log == nil {
		log = logger.GetLogger()
	}
	maxPages := cfg.Wayback.MaxPages
	if maxPages <= 0 || maxPages > 50 {
		maxPages = 50
	}
	return &FullTextPager{
		client:   client,
		baseURL:  cfg.Wayback.FullTextURL,
		maxPages: maxPages,
		logger:   log,
	}
}

func (p *FullTextPager) Name() string { return MethodFullText }

// Page fetches one results page. An empty page or the page ceiling
// ends the search.
func (p *FullTextPager) Page(ctx context.Context, phrase, token string) (PageResult, error) {
	page := 0
	if token != "" {
		var err error
		page, err = strconv.Atoi(token)
		if err != nil || page < 0 {
			return PageResult{}, errors.New(errors.ErrorTypeParse,
				fmt.Sprintf("malformed fulltext cursor %q", token))
		}
	}
	if page >= p.maxPages {
		return PageResult{Done: true}, nil
	}

	body, err := p.client.Execute(ctx, wayback.FullTextURL(p.baseURL, phrase, page), MethodFullText)
	if err != nil {
		return PageResult{}, err
	}

	links, err := wayback.ParseArchiveLinks(body)
	if err != nil {
		p.logger.WarnWithFields("unparseable results page, skipping page", map[string]interface{}{
			"phrase": phrase,
			"page":   page,
			"error":  err.Error(),
		})
		if page+1 >= p.maxPages {
			return PageResult{Done: true}, nil
		}
		return PageResult{NextToken: strconv.Itoa(page + 1)}, nil
	}

	candidates := make([]Candidate, 0, len(links))
	for _, l := range links {
		candidates = append(candidates, Candidate{
			OriginalURL: l.OriginalURL,
			Timestamp:   l.Timestamp,
			ArchiveURL:  l.ArchiveURL,
			Context:     "link_text=" + l.LinkText,
		})
	}

	p.logger.InfoWithFields("fulltext page", map[string]interface{}{
		"phrase":     phrase,
		"page":       page,
		"candidates": len(candidates),
	})

	if len(links) == 0 || page+1 >= p.maxPages {
		return PageResult{Candidates: candidates, Done: true}, nil
	}
	return PageResult{
		Candidates: candidates,
		NextToken:  strconv.Itoa(page + 1),
	}, nil
}
