package gtasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"gtasksync/store"
)

const (
	// Google Tasks REST API v1 base URL
	APIBaseURL = "https://tasks.googleapis.com/tasks/v1"

	maxRetries = 5
)

// Client handles HTTP communication with the Google Tasks REST API.
// It consumes an already-obtained token; the interactive authorisation
// flow lives outside the sync core.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sleep      func(time.Duration)
}

// NewClient builds a client around an oauth2 token source. Wrapping with
// ReuseTokenSource makes refresh automatic and serialises concurrent
// refreshes of the same account token.
func NewClient(ts oauth2.TokenSource) *Client {
	httpClient := oauth2.NewClient(context.Background(), oauth2.ReuseTokenSource(nil, ts))
	httpClient.Timeout = 30 * time.Second
	return &Client{
		baseURL:    APIBaseURL,
		httpClient: httpClient,
		sleep:      time.Sleep,
	}
}

// NewClientWithHTTP builds a client against an explicit endpoint and HTTP
// client. Used by tests with httptest servers.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		sleep:      func(time.Duration) {},
	}
}

// doRequest performs one HTTP exchange and decodes the JSON response into
// out (when non-nil). 429 and 503 responses are retried up to 5 times,
// sleeping for the Retry-After header or 2^attempt seconds when absent.
func (c *Client) doRequest(op, method, path string, query url.Values, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, endpoint, reqBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.sleep(backoffDelay(attempt, ""))
			continue
		}

		retry, err := c.handleResponse(op, resp, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
		c.sleep(backoffDelay(attempt, resp.Header.Get("Retry-After")))
	}
	return &store.TransientNetError{Op: op, Attempts: maxRetries, Err: lastErr}
}

// handleResponse decodes or classifies one response. The bool return says
// whether the caller should retry.
func (c *Client) handleResponse(op string, resp *http.Response, out interface{}) (bool, error) {
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		if out != nil && resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return false, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		data, _ := io.ReadAll(resp.Body)
		return true, &store.UpstreamError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		data, _ := io.ReadAll(resp.Body)
		return false, &store.AuthError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))}
	default:
		data, _ := io.ReadAll(resp.Body)
		return false, &store.UpstreamError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
}

// backoffDelay honours Retry-After when the server sent one, otherwise
// 2^attempt seconds.
func backoffDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}
