package browserhost

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/regdetect/internal/config"
)

// Browser is a Chrome instance, launched locally or reached over its
// DevTools WebSocket.
type Browser struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	mu     sync.Mutex
	rod    *rod.Browser
	lnch   *launcher.Launcher
	closed bool
}

// Launch starts Chrome, or connects to cfg.Remote when set.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (*Browser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Browser{cfg: cfg, logger: logger}

	wsURL := cfg.Remote
	if wsURL != "" {
		logger.Info("browserhost: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx).Headless(!cfg.Headful)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browserhost: launch chrome: %w", err)
		}
		wsURL = u
		b.lnch = l
		logger.Info("browserhost: launched local chrome", "url", wsURL, "headful", cfg.Headful)
	}

	r := rod.New().ControlURL(wsURL)
	if err := r.Connect(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("browserhost: connect chrome: %w", err)
	}
	if err := r.IgnoreCertErrors(true); err != nil {
		logger.Warn("browserhost: ignore cert errors failed", "error", err)
	}
	b.rod = r
	return b, nil
}

// Close shuts Chrome down. Tabs opened from b stop working.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.cleanup()
}

func (b *Browser) cleanup() error {
	var err error
	if b.rod != nil {
		err = b.rod.Close()
		b.rod = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}
