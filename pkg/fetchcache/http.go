package fetchcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Getter is the engine's view of the HTTP capability. Implementations must
// be safe for concurrent use; timeout, TLS and redirect policy all belong to
// the implementation, not the engine.
type Getter interface {
	// Get retrieves the full payload at url, or an error. Timeouts, non-2xx
	// statuses and connection failures are all surfaced uniformly as errors.
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTPError reports a response with a non-success status code.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetchcache: GET %s returned %s", e.URL, e.Status)
}

// HTTPClient is the default Getter, wrapping a *net/http.Client.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a Getter with the given request timeout. A zero
// timeout defaults to 30 seconds.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// NewHTTPClientFrom wraps a caller-configured *http.Client, for engines that
// need custom transport settings.
func NewHTTPClientFrom(client *http.Client) *HTTPClient {
	return &HTTPClient{client: client}
}

// Get performs the request and reads the full response body.
func (c *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetchcache: building request for %s: %w", url, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchcache: GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetchcache: reading body of %s: %w", url, err)
	}
	return body, nil
}
