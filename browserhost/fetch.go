package browserhost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/regdetect/formdetect"
	"github.com/hazyhaar/regdetect/lifecycle"
)

const maxDocument = 10 << 20

// Fetched is a page acquired by HTTP GET, without a browser. Every snapshot
// refetches it.
type Fetched struct {
	*listeners

	url     string
	client  *http.Client
	ua      string
	logger  *slog.Logger
}

var _ lifecycle.Host = (*Fetched)(nil)

// FetchOption configures a Fetched host.
type FetchOption func(*Fetched)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) FetchOption {
	return func(f *Fetched) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetchOption {
	return func(f *Fetched) { f.ua = ua }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) FetchOption {
	return func(f *Fetched) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetched creates a host for url.
func NewFetched(url string, opts ...FetchOption) *Fetched {
	f := &Fetched{
		listeners: newListeners(),
		url:       url,
		client:    &http.Client{Timeout: 30 * time.Second},
		ua:        "Mozilla/5.0 (compatible; regdetect/1.0)",
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs the page body, capped at 10MB.
func (f *Fetched) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("browserhost: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browserhost: fetch %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("browserhost: fetch %s: status %d", f.url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocument))
	if err != nil {
		return nil, fmt.Errorf("browserhost: read %s: %w", f.url, err)
	}

	f.logger.Debug("browserhost: fetched",
		"url", f.url, "status", resp.StatusCode,
		"size", len(body), "sufficient", IsSufficient(body))
	return body, nil
}

func (f *Fetched) Snapshot(ctx context.Context) (formdetect.Page, error) {
	body, err := f.Fetch(ctx)
	if err != nil {
		return formdetect.Page{}, err
	}
	return formdetect.ParsePage(f.url, bytes.NewReader(body))
}
