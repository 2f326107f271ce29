package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/scipunch/newsdigest/fetcher/types"
)

const (
	DefaultTimeout = 30 * time.Second
	// Some hosts (Reddit among them) reject Go's default agent
	UserAgent = "newsdigest/1.0 (+https://github.com/scipunch/newsdigest)"

	maxBodySize = 10 << 20
)

// HTTPFetcher retrieves raw feed documents over HTTP(S)
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher bounding every request by timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// WithClient replaces the underlying HTTP client
func (f *HTTPFetcher) WithClient(client *http.Client) *HTTPFetcher {
	f.client = client
	return f
}

// Fetch performs a single GET against source.URL. It never retries.
func (f *HTTPFetcher) Fetch(ctx context.Context, source types.FeedSource) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, &types.FetchError{Source: source, Kind: types.Network, Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &types.FetchError{
			Source:     source,
			Kind:       types.HTTPStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, classify(source, err)
	}
	if len(body) > maxBodySize {
		return nil, &types.FetchError{
			Source: source,
			Kind:   types.Network,
			Err:    fmt.Errorf("response body exceeds %d bytes", maxBodySize),
		}
	}

	slog.Debug("feed fetched", "feed", source.Name, "bytes", len(body), "took", time.Since(start))
	return body, nil
}

func classify(source types.FeedSource, err error) error {
	kind := types.Network
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = types.Timeout
	}
	return &types.FetchError{Source: source, Kind: kind, Err: err}
}
