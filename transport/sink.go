// Package transport delivers detection results to sinks and exposes the
// lifecycle commands over HTTP and MCP. The detection core never imports it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/internal/config"
)

// ErrTransport wraps delivery failures that survived every retry.
var ErrTransport = errors.New("transport: delivery failed")

// Sink is an output backend for detection results.
type Sink interface {
	Deliver(ctx context.Context, res *detection.Result) error
	Close() error
}

type envelope struct {
	Type string            `json:"type"`
	Data *detection.Result `json:"data"`
}

// FromConfig builds a Router over the configured sinks. Stdout sinks write
// to w.
func FromConfig(cfgs []config.SinkConfig, w io.Writer, logger *slog.Logger) (*Router, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for i, c := range cfgs {
		switch c.Type {
		case "stdout":
			sinks = append(sinks, NewStdout(w))
		case "webhook":
			sinks = append(sinks, NewWebhook(c.URL,
				WithWebhookRetries(c.MaxRetries),
				WithWebhookTimeout(c.Timeout),
				WithWebhookLogger(logger)))
		default:
			return nil, fmt.Errorf("transport: sinks[%d]: unknown type %q", i, c.Type)
		}
	}
	return NewRouter(logger, sinks...), nil
}
