package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"
)

// Client wraps HTTP operations with JSON APIs in mind.
//
// Client provides:
//   - Configured User-Agent header
//   - Timeout handling
//   - Optional request rate limiting
//   - JSON decoding of response bodies
//
// Example usage:
//
//	client := NewClient(60*time.Second, "CloudreveDownloader", 0)
//
//	var resp dto.ListResponse
//	err := client.GetJSON(ctx, listURL, &resp)
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a new HTTP client.
//
// A requestsPerSecond of zero or less disables rate limiting.
func NewClient(timeout time.Duration, userAgent string, requestsPerSecond float64) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		limiter:   limiter,
	}
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string

	// Body holds the response body, which some APIs use to carry error details.
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Status)
}

// GetJSON performs a GET request and decodes the JSON response into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, v)
}

// PutJSON performs a bodiless PUT request and decodes the JSON response into v.
func (c *Client) PutJSON(ctx context.Context, url string, v any) error {
	return c.doJSON(ctx, http.MethodPut, url, nil, v)
}

// PostJSON encodes body as JSON, POSTs it and decodes the JSON response into v.
func (c *Client) PostJSON(ctx context.Context, url string, body, v any) error {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, url, payload, v)
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload []byte, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       data,
		}
	}

	if v == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
