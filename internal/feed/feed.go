// Package feed fetches and decodes GTFS-realtime vehicle-position snapshots.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrUnavailable marks a transport-level fetch failure: the snapshot could
// not be retrieved at all. A successfully fetched empty feed is not an error.
var ErrUnavailable = errors.New("feed unavailable")

// Client fetches one binary snapshot of the fleet per call.
type Client struct {
	url     string
	httpc   *http.Client
	decoder *Decoder
}

// NewClient builds a feed client for the given base URL. The API key and
// agency are carried as query parameters on every request, matching the
// 511.org vehiclepositions endpoint.
func NewClient(baseURL, apiKey, agency string, timeout time.Duration, loc *time.Location) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("feed: API key is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("feed: invalid URL %q: %w", baseURL, err)
	}
	q := u.Query()
	q.Set("api_key", apiKey)
	if agency != "" {
		q.Set("agency", agency)
	}
	u.RawQuery = q.Encode()

	return &Client{
		url:     u.String(),
		httpc:   &http.Client{Timeout: timeout},
		decoder: NewDecoder(loc),
	}, nil
}

// Fetch performs one GET of the feed and returns the raw snapshot bytes.
// Any transport failure or non-2xx status wraps ErrUnavailable.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: build request: %w", err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	return raw, nil
}

// FetchSnapshot fetches and decodes one snapshot in a single call.
func (c *Client) FetchSnapshot(ctx context.Context) ([]VehiclePosition, int, error) {
	raw, err := c.Fetch(ctx)
	if err != nil {
		return nil, 0, err
	}
	return c.decoder.Decode(raw)
}
