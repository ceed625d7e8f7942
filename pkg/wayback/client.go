// Package wayback talks to the Wayback Machine. Every outbound request
// goes through Client.Execute, which holds the governed
// acquire-send-classify-report cycle in one place.
package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"derp/pkg/catalog"
	"derp/pkg/config"
	"derp/pkg/errors"
	"derp/pkg/governor"
	"derp/pkg/logger"
)

// maxBodySize bounds how much of a response is read; archived pages
// from the target era are far smaller than this.
const maxBodySize = 10 << 20

// Client executes governed HTTP requests against the archive
type Client struct {
	httpClient *http.Client
	governor   *governor.Governor
	catalog    *catalog.Catalog
	userAgent  string
	logger     logger.Logger
}

// NewClient creates a client that routes every request through gov and
// records each exchange in cat's request log.
func NewClient(cfg config.WaybackConfig, gov *governor.Governor, cat *catalog.Catalog, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		governor:  gov,
		catalog:   cat,
		userAgent: cfg.UserAgent,
		logger:    log,
	}
}

// Execute performs one governed GET. kind labels the request in the
// audit log ("cdx", "calendar", "fulltext", "fetch"). The body is
// returned only on a 2xx response; any other outcome comes back as a
// classified error after the governor has been told about it.
func (c *Client) Execute(ctx context.Context, rawURL, kind string) ([]byte, error) {
	if err := c.governor.Acquire(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeConfiguration,
			fmt.Sprintf("build request for %s: %v", rawURL, err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	c.logger.DebugWithFields("sending archive request", map[string]interface{}{
		"url":  rawURL,
		"kind": kind,
	})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.report(rawURL, kind, 0, governor.OutcomeTransportError, duration)
		c.logger.WarnWithFields("archive request failed", map[string]interface{}{
			"url":   rawURL,
			"kind":  kind,
			"error": err.Error(),
		})
		return nil, errors.New(errors.ErrorTypeTransport, fmt.Sprintf("request %s: %v", rawURL, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if readErr != nil {
			c.report(rawURL, kind, resp.StatusCode, governor.OutcomeTransportError, duration)
			return nil, errors.New(errors.ErrorTypeTransport,
				fmt.Sprintf("read body of %s: %v", rawURL, readErr))
		}
		c.report(rawURL, kind, resp.StatusCode, governor.OutcomeSuccess, duration)
		return body, nil

	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable:
		c.report(rawURL, kind, resp.StatusCode, governor.OutcomeRateLimited, duration)
		c.logger.WarnWithFields("archive throttling", map[string]interface{}{
			"url":    rawURL,
			"kind":   kind,
			"status": resp.StatusCode,
		})
		return nil, errors.NewWithCode(errors.ErrorTypeRateLimited,
			fmt.Sprintf("archive throttled %s", rawURL), resp.StatusCode)

	case resp.StatusCode >= 500:
		c.report(rawURL, kind, resp.StatusCode, governor.OutcomeServerError, duration)
		return nil, errors.NewWithCode(errors.ErrorTypeServerError,
			fmt.Sprintf("archive error for %s", rawURL), resp.StatusCode)

	default:
		// A plain 4xx means the archive is responsive, so it does not
		// feed backoff, but the call itself still fails.
		c.report(rawURL, kind, resp.StatusCode, governor.OutcomeSuccess, duration)
		return nil, errors.NewWithCode(errors.ErrorTypeNotFound,
			fmt.Sprintf("archive returned %d for %s", resp.StatusCode, rawURL), resp.StatusCode)
	}
}

// ExecuteJSON runs Execute and decodes the body into v
func (c *Client) ExecuteJSON(ctx context.Context, rawURL, kind string, v interface{}) error {
	body, err := c.Execute(ctx, rawURL, kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New(errors.ErrorTypeParse,
			fmt.Sprintf("decode response of %s: %v", rawURL, err))
	}
	return nil
}

func (c *Client) report(url, kind string, status int, outcome governor.Outcome, duration time.Duration) {
	c.governor.Report(outcome)
	if c.catalog == nil {
		return
	}
	err := c.catalog.LogRequest(catalog.RequestLogEntry{
		URL:        url,
		Context:    kind,
		StatusCode: status,
		Outcome:    outcome.String(),
		Duration:   duration,
	})
	if err != nil {
		c.logger.WarnWithFields("request log write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
