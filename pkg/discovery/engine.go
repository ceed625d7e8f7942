package discovery

import (
	"context"
	"fmt"

	"derp/pkg/catalog"
	"derp/pkg/config"
	"derp/pkg/errors"
	"derp/pkg/logger"
	"derp/pkg/retry"
	"derp/pkg/wayback"
)

// Summary tallies what one Search run did
type Summary struct {
	Phrase      string
	Method      string
	Pages       int
	Inserted    int
	Duplicates  int
	OutOfWindow int
	Completed   bool
	Skipped     bool // completed earlier and resume not requested
}

// Engine drives discovery methods page by page, writing candidates to
// the catalog and the cursor after every page.
type Engine struct {
	catalog    *catalog.Catalog
	pagers     map[string]Pager
	maxRetries int
	logger     logger.Logger
}

// New wires the three discovery methods to a shared client and catalog
func New(client *wayback.Client, cat *catalog.Catalog, cfg *config.Config, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		catalog: cat,
		pagers: map[string]Pager{
			MethodCDX:      NewCDX(client, cfg, log),
			MethodCalendar: NewCalendar(client, cfg, log),
			MethodFullText: NewFullText(client, cfg, log),
		},
		maxRetries: cfg.Wayback.MaxRetries,
		logger:     log,
	}
}

// Search runs one (phrase, method) pair to completion or cancellation.
// A pair that finished earlier is a no-op unless resume forces
// re-entry; an interrupted pair picks up at its saved cursor. The
// cursor is saved strictly after a page's candidates are recorded.
func (e *Engine) Search(ctx context.Context, phrase, method string, resume bool) (*Summary, error) {
	pager, ok := e.pagers[method]
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfiguration,
			fmt.Sprintf("unknown discovery method %q", method))
	}

	summary := &Summary{Phrase: phrase, Method: method}

	cursor, found, err := e.catalog.LoadCursor(phrase, method)
	if err != nil {
		return nil, err
	}

	token := cursor.Token
	if found && cursor.Completed {
		if !resume {
			e.logger.InfoWithFields("search already completed", map[string]interface{}{
				"phrase": phrase,
				"method": method,
			})
			summary.Completed = true
			summary.Skipped = true
			return summary, nil
		}
		token = "" // explicit resume of a finished pair starts over
	}

	e.logger.InfoWithFields("starting search", map[string]interface{}{
		"phrase": phrase,
		"method": method,
		"cursor": token,
	})

	retryCfg := &retry.Config{
		MaxAttempts: e.maxRetries,
		Backoff:     retry.DefaultExponentialBackoff(),
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      e.logger,
	}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		page, err := retry.DoWithResult(func() (PageResult, error) {
			return pager.Page(ctx, phrase, token)
		}, retryCfg)
		if err != nil {
			// Pagers consume malformed pages themselves; anything that
			// reaches here (transport, rate limit, bad cursor) stops the
			// pair. The cursor stays put and the run reports what it
			// managed.
			return summary, err
		}
		summary.Pages++

		for _, cand := range page.Candidates {
			result, err := e.catalog.Insert(&catalog.Capture{
				OriginalURL: cand.OriginalURL,
				Timestamp:   cand.Timestamp,
				ArchiveURL:  cand.ArchiveURL,
			}, phrase, method)
			if err != nil {
				e.logger.WarnWithFields("skipping candidate", map[string]interface{}{
					"url":   cand.OriginalURL,
					"error": err.Error(),
				})
				continue
			}
			switch result {
			case catalog.ResultInserted:
				summary.Inserted++
			case catalog.ResultAlreadyPresent:
				summary.Duplicates++
			case catalog.ResultOutOfWindow:
				summary.OutOfWindow++
			}
		}

		if page.Done {
			if err := e.catalog.MarkCompleted(phrase, method); err != nil {
				return summary, err
			}
			summary.Completed = true
			e.logger.InfoWithFields("search completed", map[string]interface{}{
				"phrase":        phrase,
				"method":        method,
				"pages":         summary.Pages,
				"inserted":      summary.Inserted,
				"duplicates":    summary.Duplicates,
				"out_of_window": summary.OutOfWindow,
			})
			return summary, nil
		}

		if err := e.catalog.SaveCursor(phrase, method, page.NextToken); err != nil {
			return summary, err
		}
		token = page.NextToken
	}
}

// SearchAll runs every configured method for every phrase, in order,
// accumulating per-pair summaries. A pair that fails does not stop the
// remaining pairs; its error is carried in the summary list.
func (e *Engine) SearchAll(ctx context.Context, phrases, methods []string, resume bool) ([]*Summary, error) {
	var summaries []*Summary
	for _, phrase := range phrases {
		for _, method := range methods {
			s, err := e.Search(ctx, phrase, method, resume)
			if s != nil {
				summaries = append(summaries, s)
			}
			if err != nil {
				if ctx.Err() != nil {
					return summaries, err
				}
				e.logger.ErrorWithFields("search pair failed, continuing", map[string]interface{}{
					"phrase": phrase,
					"method": method,
					"error":  err.Error(),
				})
			}
		}
	}
	return summaries, nil
}
