package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

// Webhook POSTs each result as JSON, retrying with exponential backoff.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) {
		if n >= 0 {
			w.maxRetries = n
		}
	}
}

// WithWebhookTimeout sets the per-request timeout. Default: 10s.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) {
		if d > 0 {
			w.client.Timeout = d
		}
	}
}

// WithWebhookBackoff sets the first retry delay; each retry doubles it.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) Close() error { return nil }

// Deliver POSTs res. Network errors, 408, 429 and 5xx are retried with a
// doubling delay; any other status is final.
func (w *Webhook) Deliver(ctx context.Context, res *detection.Result) error {
	body, err := json.Marshal(envelope{Type: "detection", Data: res})
	if err != nil {
		return fmt.Errorf("transport: webhook marshal: %w", err)
	}

	delay := w.backoff
	attempts := 0
	for {
		attempts++
		retry, err := w.post(ctx, res.ID, body)
		if err == nil {
			return nil
		}
		if !retry || attempts > w.maxRetries {
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrTransport, w.url, attempts, err)
		}
		w.logger.Warn("transport: webhook attempt failed",
			"url", w.url, "result", res.ID, "attempt", attempts, "retry_in", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %s: %w", ErrTransport, w.url, ctx.Err())
		}
		delay *= 2
	}
}

// post makes one attempt and reports whether a failure is worth retrying.
func (w *Webhook) post(ctx context.Context, id string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("transport: webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "regdetect")
	if id != "" {
		req.Header.Set("X-Regdetect-Result-Id", id)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return false, nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return true, fmt.Errorf("status %d", code)
	default:
		return false, fmt.Errorf("status %d", code)
	}
}
