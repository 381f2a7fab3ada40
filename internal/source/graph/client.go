package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a thin HTTP client for the Microsoft Graph REST API. The
// underlying http.Client is expected to attach OAuth bearer tokens.
// Throttled requests (429, 503) are retried with the server's
// Retry-After hint or exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a Graph client rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		maxRetries: 3,
	}
}

// Get performs an HTTP GET request and decodes the JSON response.
func (c *Client) Get(ctx context.Context, op, path string, result interface{}) error {
	return c.do(ctx, op, http.MethodGet, path, nil, result)
}

// Post performs an HTTP POST request with a JSON body. result may be nil
// for endpoints that answer 202 or 204.
func (c *Client) Post(ctx context.Context, op, path string, body, result interface{}) error {
	return c.do(ctx, op, http.MethodPost, path, body, result)
}

func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	url := c.baseURL + path

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return source.TransportError(op,
				fmt.Errorf("executing request %s %s: %w", method, path, err))
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return source.TransportError(op, fmt.Errorf("reading response body: %w", readErr))
		}

		if resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusServiceUnavailable {
			lastErr = fmt.Errorf("throttled (%d) on %s %s", resp.StatusCode, method, path)
			if attempt == c.maxRetries {
				break
			}

			select {
			case <-ctx.Done():
				return source.TransportError(op, ctx.Err())
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return source.StatusError(model.ProviderMicrosoft, op, resp.StatusCode, errorDetail(respBody))
		}

		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return source.TransportError(op,
				fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err))
		}
		return nil
	}

	return source.TransportError(op, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr))
}

func errorDetail(body []byte) string {
	var ge errorResponse
	if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
		return ge.Error.Code + ": " + ge.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// retryAfterDuration reads the Retry-After header, falling back to
// exponential backoff capped at 30s.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
