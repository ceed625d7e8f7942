package wayback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"derp/pkg/catalog"
	"derp/pkg/config"
	"derp/pkg/errors"
	"derp/pkg/governor"
	"derp/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRoundTripper intercepts HTTP requests
type mockRoundTripper struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.handler(req)
}

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

// newTestClient wires a client to an instant governor, an in-memory
// catalog, and a canned transport.
func newTestClient(t *testing.T, handler func(req *http.Request) (*http.Response, error)) (*Client, *governor.Governor, *catalog.Catalog) {
	t.Helper()

	gov := governor.New(config.RateLimitConfig{RequestsPerHour: 1000}, logger.NewTestLogger())
	cat := catalog.New(catalog.OpenMemory(t), "20040101000000", "20111231235959", logger.NewTestLogger())

	client := NewClient(config.WaybackConfig{
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
	}, gov, cat, logger.NewTestLogger())
	client.httpClient = &http.Client{
		Transport: &mockRoundTripper{handler: handler},
		Timeout:   5 * time.Second,
	}
	return client, gov, cat
}

func TestExecuteSuccess(t *testing.T) {
	client, gov, cat := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "test-agent", req.Header.Get("User-Agent"))
		return newResponse(http.StatusOK, `{"ok":true}`), nil
	})

	body, err := client.Execute(context.Background(), "https://web.archive.org/cdx/search/cdx?url=x", "cdx")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))

	state := gov.Snapshot()
	assert.Equal(t, uint64(1), state.TotalRequests)
	assert.Equal(t, 0, state.BackoffLevel)

	entries, err := cat.RecentRequests(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cdx", entries[0].Context)
	assert.Equal(t, 200, entries[0].StatusCode)
	assert.Equal(t, "success", entries[0].Outcome)
}

func TestExecuteClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantType     errors.ErrorType
		wantBackoff  int
		wantOutcome  string
	}{
		{"forbidden is throttling", 403, errors.ErrorTypeRateLimited, 1, "rate_limited"},
		{"too many requests", 429, errors.ErrorTypeRateLimited, 1, "rate_limited"},
		{"service unavailable", 503, errors.ErrorTypeRateLimited, 1, "rate_limited"},
		{"internal server error", 500, errors.ErrorTypeServerError, 1, "server_error"},
		{"bad gateway", 502, errors.ErrorTypeServerError, 1, "server_error"},
		{"not found does not escalate", 404, errors.ErrorTypeNotFound, 0, "success"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, gov, cat := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				return newResponse(tt.status, ""), nil
			})

			_, err := client.Execute(context.Background(), "https://web.archive.org/web/x", "fetch")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errors.TypeOf(err))

			typed, ok := err.(*errors.Error)
			require.True(t, ok)
			assert.Equal(t, tt.status, typed.Code)
			assert.Equal(t, tt.wantBackoff, gov.Snapshot().BackoffLevel)

			entries, logErr := cat.RecentRequests(1)
			require.NoError(t, logErr)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantOutcome, entries[0].Outcome)
			assert.Equal(t, tt.status, entries[0].StatusCode)
		})
	}
}

func TestExecuteTransportError(t *testing.T) {
	client, gov, cat := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection refused")
	})

	_, err := client.Execute(context.Background(), "https://web.archive.org/web/x", "fetch")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeTransport, errors.TypeOf(err))
	assert.Equal(t, 1, gov.Snapshot().BackoffLevel)

	entries, logErr := cat.RecentRequests(1)
	require.NoError(t, logErr)
	require.Len(t, entries, 1)
	assert.Equal(t, "transport_error", entries[0].Outcome)
	assert.Equal(t, 0, entries[0].StatusCode)
}

func TestExecuteCancelledContext(t *testing.T) {
	client, _, _ := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusOK, "never reached"), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Execute(ctx, "https://web.archive.org/web/x", "fetch")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteJSON(t *testing.T) {
	client, _, _ := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusOK, `{"items": [1, 2]}`), nil
	})

	var payload struct {
		Items []int `json:"items"`
	}
	err := client.ExecuteJSON(context.Background(), "https://web.archive.org/x", "calendar", &payload)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, payload.Items)
}

func TestExecuteJSONParseError(t *testing.T) {
	client, _, _ := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusOK, `<html>not json</html>`), nil
	})

	var payload map[string]interface{}
	err := client.ExecuteJSON(context.Background(), "https://web.archive.org/x", "calendar", &payload)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeParse, errors.TypeOf(err))
}
