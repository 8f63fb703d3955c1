// Package lifecycle decides when detection passes run for one page and owns
// the current state and last result.
//
// States: Idle -> Running -> {Succeeded, Failed}. A failed pass moves to
// Retrying and runs again after Backoff(BaseDelay, attempt) until
// MaxAttempts is reached; exhaustion stores a fallback result. Succeeded and
// Failed are terminal until a reset (navigation, manual trigger, content
// fingerprint change).
//
// At most one pass runs at a time. A request arriving while a pass runs is
// coalesced: counted and dropped. A reset during a run bumps the generation
// so the running pass's result is discarded, and a fresh pass starts when it
// returns.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hazyhaar/regdetect/adaptive"
	"github.com/hazyhaar/regdetect/formdetect"
	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/internal/config"
)

var (
	// ErrExhausted is recorded when every attempt of a pass failed.
	ErrExhausted = errors.New("lifecycle: attempts exhausted")
	// ErrNoResult is returned when no pass has completed since the last reset.
	ErrNoResult = errors.New("lifecycle: no result")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("lifecycle: closed")
)

// State is the lifecycle state.
type State string

const (
	Idle      State = "idle"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
	Retrying  State = "retrying"
)

// Navigation kinds reported by hosts.
const (
	NavHash     = "hash"
	NavPush     = "push"
	NavReplace  = "replace"
	NavPopState = "popstate"
	NavFull     = "full"
)

// Navigation is a URL change observed by the host.
type Navigation struct {
	Kind string
	URL  string
}

// Host is the page the lifecycle watches. Subscriptions return a function
// that cancels them.
type Host interface {
	Snapshot(ctx context.Context) (formdetect.Page, error)
	OnMutation(func()) (cancel func())
	OnNavigation(func(Navigation)) (cancel func())
	OnLoad(func()) (cancel func())
}

// Detector runs one detection pass.
type Detector interface {
	Detect(ctx context.Context, page formdetect.Page) (*detection.Result, error)
}

// Publisher receives every stored result.
type Publisher interface {
	Deliver(ctx context.Context, res *detection.Result) error
}

// Config wires a Lifecycle.
type Config struct {
	Host      Host
	Detector  Detector
	Publisher Publisher        // optional
	History   adaptive.History // optional, used by Confirm and AutoRecord

	BaseDelay        time.Duration // default 1s
	MaxAttempts      int           // default 5
	LoadDelay        time.Duration // default 2.5s
	MutationWindow   time.Duration // default 500ms
	MutationBurst    int           // default 50
	NavigationSettle time.Duration // default 500ms
	PassTimeout      time.Duration // default 10s
	DeliveryTimeout  time.Duration // default 30s
	// AutoRecord appends every business-form result to History.
	AutoRecord bool

	Clock    Clock        // default RealClock
	Executor func(func()) // default: new goroutine
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.LoadDelay <= 0 {
		c.LoadDelay = 2500 * time.Millisecond
	}
	if c.NavigationSettle <= 0 {
		c.NavigationSettle = 500 * time.Millisecond
	}
	if c.PassTimeout <= 0 {
		c.PassTimeout = 10 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = RealClock
	}
	if c.Executor == nil {
		c.Executor = func(f func()) { go f() }
	}
	if c.History == nil {
		c.History = adaptive.Nop{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// FromConfig copies the lifecycle settings of lc into a Config.
func FromConfig(lc config.LifecycleConfig, ac config.AdaptiveConfig) Config {
	return Config{
		BaseDelay:        lc.BaseDelay,
		MaxAttempts:      lc.MaxAttempts,
		LoadDelay:        lc.LoadDelay,
		MutationWindow:   lc.MutationWindow,
		MutationBurst:    lc.MutationBurst,
		NavigationSettle: lc.NavigationSettle,
		PassTimeout:      lc.PassTimeout,
		DeliveryTimeout:  lc.DeliveryTimeout,
		AutoRecord:       ac.AutoRecord,
	}
}

// Backoff returns the delay before retry n (n >= 1): base x 1.5^(n-1).
func Backoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(float64(base) * math.Pow(1.5, float64(n-1)))
}

// Status is a point-in-time view of the lifecycle.
type Status struct {
	State       State     `json:"state"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`
	Coalesced   int       `json:"coalesced"`
	Generation  uint64    `json:"generation"`
	URL         string    `json:"url,omitempty"`
	HasResult   bool      `json:"has_result"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Lifecycle schedules detection passes for one page.
type Lifecycle struct {
	cfg    Config
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mutations   *debouncer
	navigations *debouncer

	mu         sync.Mutex
	state      State
	attempt    int
	result     *detection.Result
	lastErr    error
	coalesced  int
	generation uint64
	pending    bool
	url        string
	fp         formdetect.Fingerprint
	hasFP      bool
	updatedAt  time.Time
	retryTimer Timer
	loadTimer  Timer
	unsubs     []func()
	started    bool
	closed     bool
}

// New creates an idle Lifecycle. Call Start to subscribe to the host.
func New(cfg Config) *Lifecycle {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	l := &Lifecycle{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		state:  Idle,
	}
	l.updatedAt = cfg.Clock.Now()
	l.mutations = newDebouncer(cfg.Clock, cfg.MutationWindow, cfg.MutationBurst, func(n int) {
		l.refresh("mutation", n)
	})
	l.navigations = newDebouncer(cfg.Clock, cfg.NavigationSettle, math.MaxInt, func(int) {
		l.request("navigation", true)
	})
	return l
}

// Start subscribes to the host, runs a first pass immediately and schedules
// the on-load and delayed passes. The lifecycle closes when ctx ends.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.started {
		l.mu.Unlock()
		return fmt.Errorf("lifecycle: already started")
	}
	l.started = true
	h := l.cfg.Host
	l.mu.Unlock()

	unsubs := []func(){
		h.OnMutation(l.onMutation),
		h.OnNavigation(l.onNavigation),
		h.OnLoad(func() { l.refresh("load", 0) }),
	}
	stop := context.AfterFunc(ctx, l.Close)
	unsubs = append(unsubs, func() { stop() })

	l.mu.Lock()
	l.unsubs = append(l.unsubs, unsubs...)
	l.loadTimer = l.cfg.Clock.AfterFunc(l.cfg.LoadDelay, func() { l.refresh("load-delay", 0) })
	l.mu.Unlock()

	l.request("start", false)
	return nil
}

// Trigger forces a re-detection: the lifecycle is reset and a fresh pass
// runs, or starts as soon as the running one returns.
func (l *Lifecycle) Trigger() error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	l.request("trigger", true)
	return nil
}

// Result returns a deep copy of the current result.
func (l *Lifecycle) Result() (*detection.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.result == nil {
		return nil, ErrNoResult
	}
	return l.result.Clone(), nil
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Status returns the current status.
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Status{
		State:       l.state,
		Attempt:     l.attempt,
		MaxAttempts: l.cfg.MaxAttempts,
		Coalesced:   l.coalesced,
		Generation:  l.generation,
		URL:         l.url,
		HasResult:   l.result != nil,
		UpdatedAt:   l.updatedAt,
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

// Confirm records the user's verdict on the current result in the history.
func (l *Lifecycle) Confirm(ctx context.Context, confirmed bool) error {
	res, err := l.Result()
	if err != nil {
		return err
	}
	if res.FallbackMode {
		return fmt.Errorf("lifecycle: cannot confirm a fallback result")
	}
	err = l.cfg.History.Confirm(ctx, res.URLPattern, confirmed)
	if errors.Is(err, adaptive.ErrNoRecord) {
		err = l.cfg.History.Record(ctx, adaptive.FromResult(res, confirmed))
	}
	if err != nil {
		return fmt.Errorf("lifecycle: confirm: %w", err)
	}
	l.logger.Info("lifecycle: result confirmed", "pattern", res.URLPattern, "confirmed", confirmed)
	return nil
}

// Close stops every timer and subscription. A running pass finishes but its
// result is dropped.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.generation++
	l.stopTimersLocked()
	unsubs := l.unsubs
	l.unsubs = nil
	l.mu.Unlock()

	l.mutations.stop()
	l.navigations.stop()
	for _, u := range unsubs {
		u()
	}
	l.cancel()
}

func (l *Lifecycle) stopTimersLocked() {
	if l.retryTimer != nil {
		l.retryTimer.Stop()
		l.retryTimer = nil
	}
	if l.loadTimer != nil {
		l.loadTimer.Stop()
		l.loadTimer = nil
	}
}

func (l *Lifecycle) onMutation() {
	l.mutations.add()
}

func (l *Lifecycle) onNavigation(nav Navigation) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if nav.URL != "" {
		l.url = nav.URL
	}
	l.resetLocked()
	l.mu.Unlock()
	l.logger.Info("lifecycle: navigation", "kind", nav.Kind, "url", nav.URL)
	l.mutations.stop()
	l.navigations.add()
}

// resetLocked invalidates the current pass and result. A running pass keeps
// the Running state until it returns.
func (l *Lifecycle) resetLocked() {
	l.generation++
	if l.retryTimer != nil {
		l.retryTimer.Stop()
		l.retryTimer = nil
	}
	l.result = nil
	l.lastErr = nil
	l.attempt = 0
	l.hasFP = false
	if l.state != Running {
		l.state = Idle
	}
	l.updatedAt = l.cfg.Clock.Now()
}

// request asks for a pass. force resets the lifecycle first.
func (l *Lifecycle) request(reason string, force bool) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if l.state == Running {
		l.coalesced++
		if force {
			l.resetLocked()
			l.pending = true
		}
		l.mu.Unlock()
		l.logger.Debug("lifecycle: request coalesced", "reason", reason, "forced", force)
		return
	}
	if force {
		l.resetLocked()
	}
	switch l.state {
	case Idle:
		run := l.beginLocked(reason)
		l.mu.Unlock()
		l.cfg.Executor(run)
	case Retrying:
		l.coalesced++
		l.mu.Unlock()
	default:
		l.mu.Unlock()
		l.logger.Debug("lifecycle: request ignored", "reason", reason, "state", l.State())
	}
}

// refresh runs a pass when idle, or re-runs a finished one if the page
// fingerprint moved since it.
func (l *Lifecycle) refresh(reason string, mutations int) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	state := l.state
	l.mu.Unlock()

	switch state {
	case Idle:
		l.request(reason, false)
		return
	case Running, Retrying:
		l.mu.Lock()
		l.coalesced++
		l.mu.Unlock()
		return
	}

	l.cfg.Executor(func() {
		ctx, cancel := context.WithTimeout(l.ctx, l.cfg.PassTimeout)
		page, err := l.cfg.Host.Snapshot(ctx)
		cancel()
		if err != nil {
			l.logger.Warn("lifecycle: snapshot failed", "reason", reason, "error", err)
			return
		}
		fp := formdetect.FingerprintOf(page.Root)

		l.mu.Lock()
		var changed []string
		if l.hasFP {
			changed = formdetect.FingerprintChanges(l.fp, fp)
		} else {
			changed = []string{"initial"}
		}
		l.mu.Unlock()

		if len(changed) == 0 {
			return
		}
		l.logger.Info("lifecycle: content changed", "reason", reason, "changes", changed, "mutations", mutations)
		l.request(reason, true)
	})
}

// beginLocked moves to Running and returns the pass to execute.
func (l *Lifecycle) beginLocked(reason string) func() {
	l.state = Running
	l.attempt++
	l.updatedAt = l.cfg.Clock.Now()
	gen, attempt := l.generation, l.attempt
	l.logger.Debug("lifecycle: pass started", "reason", reason, "attempt", attempt, "generation", gen)
	return func() { l.run(gen, attempt) }
}

func (l *Lifecycle) run(gen uint64, attempt int) {
	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.PassTimeout)
	defer cancel()

	var (
		res   *detection.Result
		fp    formdetect.Fingerprint
		hasFP bool
		url   string
	)
	page, err := l.cfg.Host.Snapshot(ctx)
	if err == nil {
		fp, hasFP, url = formdetect.FingerprintOf(page.Root), true, page.URL
		res, err = l.detect(ctx, page)
	}
	l.finish(gen, attempt, res, err, fp, hasFP, url)
}

func (l *Lifecycle) detect(ctx context.Context, page formdetect.Page) (res *detection.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lifecycle: detector panic: %v", r)
		}
	}()
	return l.cfg.Detector.Detect(ctx, page)
}

func (l *Lifecycle) finish(gen uint64, attempt int, res *detection.Result, err error, fp formdetect.Fingerprint, hasFP bool, url string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if gen != l.generation {
		l.state = Idle
		l.attempt = 0
		l.updatedAt = l.cfg.Clock.Now()
		pending := l.pending
		l.pending = false
		var run func()
		if pending {
			run = l.beginLocked("reset")
		}
		l.mu.Unlock()
		l.logger.Debug("lifecycle: stale pass discarded", "generation", gen)
		if run != nil {
			l.cfg.Executor(run)
		}
		return
	}

	if hasFP {
		l.fp, l.hasFP = fp, true
	}
	if url != "" {
		l.url = url
	}
	l.updatedAt = l.cfg.Clock.Now()

	if err == nil {
		res.Attempt = attempt
		l.state = Succeeded
		l.result = res
		l.lastErr = nil
		out := res.Clone()
		l.mu.Unlock()

		l.logger.Info("lifecycle: pass succeeded",
			"url", out.URL, "attempt", attempt,
			"business", out.IsBusinessRegistrationForm, "score", out.ConfidenceScore)
		l.deliver(out)
		if l.cfg.AutoRecord && out.IsBusinessRegistrationForm {
			if err := l.cfg.History.Record(l.ctx, adaptive.FromResult(out, false)); err != nil {
				l.logger.Warn("lifecycle: record history", "error", err)
			}
		}
		return
	}

	l.lastErr = err
	if attempt < l.cfg.MaxAttempts {
		delay := Backoff(l.cfg.BaseDelay, attempt)
		l.state = Retrying
		l.retryTimer = l.cfg.Clock.AfterFunc(delay, func() { l.retry(gen) })
		l.mu.Unlock()
		l.logger.Warn("lifecycle: pass failed, retrying",
			"attempt", attempt, "delay", delay, "error", err)
		return
	}

	l.lastErr = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
	l.state = Failed
	fb := detection.Fallback(l.url, attempt, l.lastErr.Error(), l.cfg.Clock.Now().UTC())
	l.result = fb
	out := fb.Clone()
	l.mu.Unlock()

	l.logger.Error("lifecycle: detection failed", "url", out.URL, "attempts", attempt, "error", err)
	l.deliver(out)
}

func (l *Lifecycle) retry(gen uint64) {
	l.mu.Lock()
	if l.closed || gen != l.generation || l.state != Retrying {
		l.mu.Unlock()
		return
	}
	l.retryTimer = nil
	run := l.beginLocked("retry")
	l.mu.Unlock()
	l.cfg.Executor(run)
}

func (l *Lifecycle) deliver(res *detection.Result) {
	if l.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.DeliveryTimeout)
	defer cancel()
	if err := l.cfg.Publisher.Deliver(ctx, res); err != nil {
		l.logger.Error("lifecycle: delivery failed", "id", res.ID, "error", err)
	}
}
