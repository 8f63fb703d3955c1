package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/kit"
	"github.com/hazyhaar/regdetect/lifecycle"
)

// Controller is the command surface of a running lifecycle.
// *lifecycle.Lifecycle implements it.
type Controller interface {
	Result() (*detection.Result, error)
	Status() lifecycle.Status
	Trigger() error
	Confirm(ctx context.Context, confirmed bool) error
}

// PingResponse answers a liveness probe.
type PingResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}

// TriggerResponse acknowledges a forced re-detection.
type TriggerResponse struct {
	Triggered bool             `json:"triggered"`
	Status    lifecycle.Status `json:"status"`
}

// ConfirmRequest carries the user's verdict. A missing value confirms.
type ConfirmRequest struct {
	Confirmed *bool `json:"confirmed,omitempty"`
}

// ConfirmResponse echoes the recorded verdict.
type ConfirmResponse struct {
	Pattern   string `json:"url_pattern"`
	Confirmed bool   `json:"confirmed"`
}

var _ Controller = (*lifecycle.Lifecycle)(nil)

// Commands exposes Controller operations as kit endpoints, shared by the
// HTTP and MCP surfaces.
type Commands struct {
	ctl     Controller
	version string
	logger  *slog.Logger
	now     func() time.Time
}

// NewCommands wraps ctl.
func NewCommands(ctl Controller, version string, logger *slog.Logger) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Commands{ctl: ctl, version: version, logger: logger, now: time.Now}
}

func (c *Commands) wrap(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(c.logger, name))(e)
}

// Ping reports liveness.
func (c *Commands) Ping() kit.Endpoint {
	return c.wrap("ping", func(context.Context, any) (any, error) {
		return PingResponse{Status: "ok", Version: c.version, Time: c.now().UTC()}, nil
	})
}

// GetResult returns the current result.
func (c *Commands) GetResult() kit.Endpoint {
	return c.wrap("get_result", func(context.Context, any) (any, error) {
		return c.ctl.Result()
	})
}

// GetStatus returns the lifecycle status.
func (c *Commands) GetStatus() kit.Endpoint {
	return c.wrap("get_status", func(context.Context, any) (any, error) {
		return c.ctl.Status(), nil
	})
}

// Trigger forces a fresh detection.
func (c *Commands) Trigger() kit.Endpoint {
	return c.wrap("trigger", func(context.Context, any) (any, error) {
		if err := c.ctl.Trigger(); err != nil {
			return nil, err
		}
		return TriggerResponse{Triggered: true, Status: c.ctl.Status()}, nil
	})
}

// Confirm records the user's verdict on the current result.
func (c *Commands) Confirm() kit.Endpoint {
	return c.wrap("confirm", func(ctx context.Context, req any) (any, error) {
		confirmed := true
		if r, ok := req.(*ConfirmRequest); ok && r.Confirmed != nil {
			confirmed = *r.Confirmed
		}
		if err := c.ctl.Confirm(ctx, confirmed); err != nil {
			return nil, err
		}
		resp := ConfirmResponse{Confirmed: confirmed}
		if res, err := c.ctl.Result(); err == nil {
			resp.Pattern = res.URLPattern
		}
		return resp, nil
	})
}
