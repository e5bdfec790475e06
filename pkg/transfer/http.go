package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/RNFS/fetchpipe/pkg/client"
)

// StatusError reports a non-success HTTP status from the origin.
type StatusError struct {
	StatusCode int
	URL        string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("origin returned status %d for %s", e.StatusCode, e.URL)
}

// HTTP performs GET transfers over the network. Per-attempt deadlines come
// from the caller's context; the underlying http.Client carries no timeout
// of its own.
type HTTP struct {
	httpClient *http.Client
	userAgent  string
}

// NewHTTP creates the HTTP transfer variant.
func NewHTTP(userAgent string) *HTTP {
	if userAgent == "" {
		userAgent = "fetchpipe/0.1.0"
	}
	return &HTTP{
		httpClient: &http.Client{},
		userAgent:  userAgent,
	}
}

// Transfer fetches the item URL and returns the response body.
func (h *HTTP) Transfer(ctx context.Context, item client.WorkItem) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: item.URL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
