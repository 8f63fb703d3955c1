package browserhost

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/regdetect/formdetect"
	"github.com/hazyhaar/regdetect/lifecycle"
)

//go:embed observer.js
var observerJS string

//go:embed annotate.js
var annotateJS string

const bindingName = "__regdetect_binding"

// Most mutation notifications forwarded per binding call.
const maxMutationsPerCall = 100

// ErrNotReady is returned by Snapshot before the first load or after Close.
var ErrNotReady = errors.New("browserhost: page not ready")

// Tab is a live browser page. It reports DOM mutations and in-document
// navigations through an injected observer, and full navigations and load
// events through CDP.
type Tab struct {
	*listeners

	page   *rod.Page
	hijack *rod.HijackRouter
	logger *slog.Logger
	cancel context.CancelFunc

	mu     sync.Mutex
	url    string
	ready  bool
	closed bool
}

var _ lifecycle.Host = (*Tab)(nil)

// Open creates a tab, installs the observer and navigates to url.
func (b *Browser) Open(ctx context.Context, url string) (*Tab, error) {
	b.mu.Lock()
	r := b.rod
	b.mu.Unlock()
	if r == nil {
		return nil, fmt.Errorf("browserhost: browser closed")
	}

	var page *rod.Page
	var err error
	if b.cfg.NoStealth {
		page, err = r.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(r)
	}
	if err != nil {
		return nil, fmt.Errorf("browserhost: create tab: %w", err)
	}

	t := &Tab{listeners: newListeners(), page: page, logger: b.logger, url: url}
	if err := t.setup(b); err != nil {
		page.Close()
		return nil, err
	}

	evCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.listen(evCtx)

	navCtx, navCancel := context.WithTimeout(ctx, b.cfg.NavigateTimeout)
	defer navCancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		t.Close()
		return nil, fmt.Errorf("browserhost: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn("browserhost: wait load", "url", url, "error", err)
	}
	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
	return t, nil
}

func (t *Tab) setup(b *Browser) error {
	if b.cfg.ViewportWidth > 0 && b.cfg.ViewportHeight > 0 {
		err := t.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.ViewportWidth,
			Height:            b.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("browserhost: viewport: %w", err)
		}
	}
	if len(b.cfg.ResourceBlocking) > 0 {
		t.hijack = blockResources(t.page, b.cfg.ResourceBlocking)
	}
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(t.page); err != nil {
		return fmt.Errorf("browserhost: add binding: %w", err)
	}
	if _, err := t.page.EvalOnNewDocument(observerJS); err != nil {
		return fmt.Errorf("browserhost: install observer: %w", err)
	}
	return nil
}

// listen forwards CDP events to subscribers until ctx is cancelled.
func (t *Tab) listen(ctx context.Context) {
	t.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != bindingName {
				return
			}
			if err := t.dispatch(e.Payload); err != nil {
				t.logger.Debug("browserhost: binding payload", "error", err)
			}
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
			t.mu.Lock()
			t.url = e.Frame.URL
			t.ready = false
			t.mu.Unlock()
			t.navigated(lifecycle.Navigation{Kind: lifecycle.NavFull, URL: e.Frame.URL})
		},
		func(e *proto.PageNavigatedWithinDocument) {
			t.mu.Lock()
			prev := t.url
			t.url = e.URL
			t.mu.Unlock()
			if e.URL == prev {
				return
			}
			t.navigated(lifecycle.Navigation{Kind: inDocumentKind(prev, e.URL), URL: e.URL})
		},
		func(e *proto.PageLoadEventFired) {
			t.mu.Lock()
			t.ready = true
			t.mu.Unlock()
			t.loaded()
		},
	)()
}

// inDocumentKind classifies a same-document URL change the observer script
// did not label.
func inDocumentKind(prev, next string) string {
	p, _, _ := strings.Cut(prev, "#")
	n, _, _ := strings.Cut(next, "#")
	if p == n {
		return lifecycle.NavHash
	}
	return lifecycle.NavPush
}

type bindingMessage struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
	Nav   string `json:"nav"`
	URL   string `json:"url"`
}

// dispatch handles one message from the injected observer.
func (t *Tab) dispatch(payload string) error {
	var msg bindingMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return fmt.Errorf("browserhost: decode binding: %w", err)
	}
	switch msg.Kind {
	case "mutation":
		for range min(max(msg.Count, 1), maxMutationsPerCall) {
			t.mutated()
		}
	case "nav":
		switch msg.Nav {
		case lifecycle.NavPush, lifecycle.NavReplace, lifecycle.NavPopState, lifecycle.NavHash:
		default:
			return fmt.Errorf("browserhost: unknown navigation kind %q", msg.Nav)
		}
		t.mu.Lock()
		prev := t.url
		t.url = msg.URL
		t.mu.Unlock()
		if msg.URL != prev {
			t.navigated(lifecycle.Navigation{Kind: msg.Nav, URL: msg.URL})
		}
	default:
		return fmt.Errorf("browserhost: unknown message kind %q", msg.Kind)
	}
	return nil
}

// URL returns the current page URL.
func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Snapshot stamps layout attributes onto the live DOM, serialises it and
// parses the result.
func (t *Tab) Snapshot(ctx context.Context) (formdetect.Page, error) {
	t.mu.Lock()
	ready, closed, url := t.ready, t.closed, t.url
	t.mu.Unlock()
	if closed || !ready {
		return formdetect.Page{}, ErrNotReady
	}

	res, err := t.page.Context(ctx).Eval(annotateJS)
	if err != nil {
		return formdetect.Page{}, fmt.Errorf("browserhost: snapshot %s: %w", url, err)
	}
	return formdetect.ParsePage(url, strings.NewReader(res.Value.Str()))
}

// Close stops event forwarding and closes the page.
func (t *Tab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}
	if t.hijack != nil {
		t.hijack.Stop()
	}
	return t.page.Close()
}
