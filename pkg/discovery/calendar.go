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

// CalendarPager drills through the calendar API hierarchically: for
// each configured site and each year in the window it lists the days
// with captures, then lists the capture times of one day per page.
// The cursor is "siteIndex:year:dayIndex", so resumption re-enters at
// the right day without re-walking completed years.
type CalendarPager struct {
	client    *wayback.Client
	baseURL   string
	sites     []string
	startYear int
	endYear   int
	dayCap    string // last 8-digit day inside the window
	logger    logger.Logger

	// dayLists caches the per-(site, year) day enumeration for the
	// lifetime of this pager. After a process restart the list is
	// refetched; the day index stays valid because the archive's past
	// never changes order.
	dayLists map[string][]string
}

// NewCalendar builds the calendar discovery method from configuration
func NewCalendar(client *wayback.Client, cfg *config.Config, log logger.Logger) *CalendarPager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &CalendarPager{
		client:    client,
		baseURL:   cfg.Wayback.CalendarURL,
		sites:     cfg.Wayback.CalendarSites,
		startYear: int(cfg.Search.StartYear),
		endYear:   int(cfg.Search.EndYear),
		dayCap:    fmt.Sprintf("%d1231", int(cfg.Search.EndYear)),
		logger:    log,
	}
}

func (p *CalendarPager) Name() string { return MethodCalendar }

// Page processes one day of one site. Advancing past the last day of a
// year or the last year of a site yields an empty page with the moved
// cursor rather than recursing.
func (p *CalendarPager) Page(ctx context.Context, phrase, token string) (PageResult, error) {
	siteIdx, year, dayIdx, err := p.parseToken(token)
	if err != nil {
		return PageResult{}, err
	}

	if siteIdx >= len(p.sites) {
		return PageResult{Done: true}, nil
	}
	site := p.sites[siteIdx]

	days, err := p.daysFor(ctx, site, year)
	if err != nil {
		if errors.TypeOf(err) == errors.ErrorTypeParse {
			// A garbled year calendar blocks every day in it; skip the
			// year so the site keeps making progress.
			p.logger.WarnWithFields("unparseable year calendar, skipping year", map[string]interface{}{
				"site":  site,
				"year":  year,
				"error": err.Error(),
			})
			next, done := p.advance(siteIdx, year)
			return PageResult{NextToken: next, Done: done}, nil
		}
		return PageResult{}, err
	}

	if dayIdx >= len(days) {
		next, done := p.advance(siteIdx, year)
		return PageResult{NextToken: next, Done: done}, nil
	}
	day := days[dayIdx]

	body, err := p.client.Execute(ctx, wayback.CalendarDayURL(p.baseURL, site, day), MethodCalendar)
	if err != nil {
		return PageResult{}, err
	}
	times, err := wayback.ParseCalendarTimes(body)
	if err != nil {
		p.logger.WarnWithFields("unparseable day calendar, skipping day", map[string]interface{}{
			"site":  site,
			"day":   day,
			"error": err.Error(),
		})
		if dayIdx+1 >= len(days) {
			next, done := p.advance(siteIdx, year)
			return PageResult{NextToken: next, Done: done}, nil
		}
		return PageResult{NextToken: fmt.Sprintf("%d:%d:%d", siteIdx, year, dayIdx+1)}, nil
	}

	candidates := make([]Candidate, 0, len(times))
	for _, t := range times {
		ts := day + t
		candidates = append(candidates, Candidate{
			OriginalURL: site,
			Timestamp:   ts,
			ArchiveURL:  wayback.ArchiveURL(ts, site),
			Context:     "site=" + site,
		})
	}

	p.logger.InfoWithFields("calendar day", map[string]interface{}{
		"site":       site,
		"day":        day,
		"candidates": len(candidates),
	})

	if dayIdx+1 >= len(days) {
		next, done := p.advance(siteIdx, year)
		return PageResult{Candidates: candidates, NextToken: next, Done: done}, nil
	}
	return PageResult{
		Candidates: candidates,
		NextToken:  fmt.Sprintf("%d:%d:%d", siteIdx, year, dayIdx+1),
	}, nil
}

// daysFor lists the in-window capture days of a site in a year,
// fetching and caching the year calendar on first use.
func (p *CalendarPager) daysFor(ctx context.Context, site string, year int) ([]string, error) {
	if p.dayLists == nil {
		p.dayLists = make(map[string][]string)
	}
	key := fmt.Sprintf("%s|%d", site, year)
	if days, ok := p.dayLists[key]; ok {
		return days, nil
	}

	body, err := p.client.Execute(ctx, wayback.CalendarYearURL(p.baseURL, site, year), MethodCalendar)
	if err != nil {
		return nil, err
	}
	all, err := wayback.ParseCalendarDays(body)
	if err != nil {
		return nil, err
	}

	// The end date is enforced here, inside day enumeration: a year
	// calendar can span past the window boundary.
	days := all[:0]
	for _, d := range all {
		if d <= p.dayCap {
			days = append(days, d)
		}
	}

	p.dayLists[key] = days
	return days, nil
}

// advance moves the cursor past the end of a year's day list
func (p *CalendarPager) advance(siteIdx, year int) (next string, done bool) {
	if year < p.endYear {
		return fmt.Sprintf("%d:%d:0", siteIdx, year+1), false
	}
	if siteIdx+1 < len(p.sites) {
		return fmt.Sprintf("%d:%d:0", siteIdx+1, p.startYear), false
	}
	return "", true
}

func (p *CalendarPager) parseToken(token string) (siteIdx, year, dayIdx int, err error) {
	if token == "" {
		return 0, p.startYear, 0, nil
	}
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return 0, 0, 0, errors.New(errors.ErrorTypeParse, fmt.Sprintf("malformed calendar cursor %q", token))
	}
	nums := make([]int, 3)
	for i, s := range parts {
		nums[i], err = strconv.Atoi(s)
		if err != nil || nums[i] < 0 {
			return 0, 0, 0, errors.New(errors.ErrorTypeParse, fmt.Sprintf("malformed calendar cursor %q", token))
		}
	}
	return nums[0], nums[1], nums[2], nil
}
