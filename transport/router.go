package transport

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

// Router fans results out to every sink. One sink error does not block the
// others: errors are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends a sink.
func (r *Router) Add(s Sink) { r.sinks = append(r.sinks, s) }

func (r *Router) Deliver(ctx context.Context, res *detection.Result) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Deliver(ctx, res); err != nil {
			r.logger.Warn("transport: deliver failed", "id", res.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
