package transport

import (
	"context"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

// Callback hands results to an in-process function, without serialisation.
type Callback struct {
	fn func(ctx context.Context, res *detection.Result) error
}

// NewCallback creates a Callback sink. A nil fn discards results.
func NewCallback(fn func(ctx context.Context, res *detection.Result) error) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Deliver(ctx context.Context, res *detection.Result) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, res)
}

func (c *Callback) Close() error { return nil }
