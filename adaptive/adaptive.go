// Package adaptive keeps a short history of past detections keyed by URL
// pattern and turns user confirmations into a bounded confidence bonus.
//
// The history is a JSON array stored under one key of a kvstore.Store and
// capped at MaxRecords entries, oldest evicted first.
package adaptive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/internal/config"
	"github.com/hazyhaar/regdetect/kvstore"
)

const (
	DefaultKey        = "regdetect:adaptive_history"
	DefaultMaxRecords = 100
	MaxScore          = 15

	overrideRate     = 0.8
	overrideMatching = 3
)

var (
	// ErrPersistence wraps every read or write failure of the backing store.
	ErrPersistence = errors.New("adaptive: persistence")
	// ErrNoRecord is returned by Confirm when no record has the pattern.
	ErrNoRecord = errors.New("adaptive: no record for pattern")
)

// Record is one past detection.
type Record struct {
	URLPattern      string             `json:"url_pattern"`
	URLRoot         string             `json:"url_root"`
	State           string             `json:"state,omitempty"`
	FormType        detection.FormType `json:"form_type"`
	ConfidenceScore int                `json:"confidence_score"`
	UserConfirmed   bool               `json:"user_confirmed"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Assessment is the history's contribution to one pass.
type Assessment struct {
	Score       int     `json:"score"` // 0-15
	Override    bool    `json:"override"`
	SuccessRate float64 `json:"success_rate"`
	Matching    int     `json:"matching"`
}

// History is the read/write contract the engine and the command surfaces use.
type History interface {
	Assess(ctx context.Context, pattern, root string) Assessment
	Record(ctx context.Context, r Record) error
	Confirm(ctx context.Context, pattern string, confirmed bool) error
	Records(ctx context.Context) ([]Record, error)
	Clear(ctx context.Context) error
}

// Store is the kvstore-backed History.
type Store struct {
	kv     kvstore.Store
	key    string
	max    int
	logger *slog.Logger

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the storage key. Default: DefaultKey.
func WithKey(key string) Option { return func(s *Store) { s.key = key } }

// WithMaxRecords lowers the history cap. Values outside 1..DefaultMaxRecords
// fall back to DefaultMaxRecords.
func WithMaxRecords(n int) Option { return func(s *Store) { s.max = n } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Store persisting to kv.
func New(kv kvstore.Store, opts ...Option) *Store {
	s := &Store{kv: kv, key: DefaultKey, max: DefaultMaxRecords, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.max <= 0 || s.max > DefaultMaxRecords {
		s.max = DefaultMaxRecords
	}
	return s
}

func (s *Store) load(ctx context.Context) ([]Record, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrPersistence, err)
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrPersistence, s.key, err)
	}
	return recs, nil
}

func (s *Store) save(ctx context.Context, recs []Record) error {
	if len(recs) > s.max {
		recs = recs[len(recs)-s.max:]
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("%w: write: %w", ErrPersistence, err)
	}
	return nil
}

// Matches reports whether r applies to a page with the given pattern and
// root: the same pattern, or a record root that contains the pattern.
func (r Record) Matches(pattern, root string) bool {
	if pattern != "" && r.URLPattern == pattern {
		return true
	}
	if r.URLRoot == "" {
		return false
	}
	if r.URLRoot == root {
		return true
	}
	return pattern == r.URLRoot || strings.HasPrefix(pattern, r.URLRoot+"/")
}

// Lookup returns the records matching pattern or root, oldest first.
func (s *Store) Lookup(ctx context.Context, pattern, root string) ([]Record, error) {
	s.mu.Lock()
	recs, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range recs {
		if r.Matches(pattern, root) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Assess scores the matching history. A persistence failure is logged and
// yields the zero Assessment.
func (s *Store) Assess(ctx context.Context, pattern, root string) Assessment {
	matching, err := s.Lookup(ctx, pattern, root)
	if err != nil {
		s.logger.Warn("adaptive: lookup failed", "pattern", pattern, "error", err)
		return Assessment{}
	}
	return Score(matching)
}

// Score computes the Assessment of a set of matching records.
func Score(matching []Record) Assessment {
	if len(matching) == 0 {
		return Assessment{}
	}
	confirmed := 0
	for _, r := range matching {
		if r.UserConfirmed {
			confirmed++
		}
	}
	rate := float64(confirmed) / float64(len(matching))
	return Assessment{
		Score:       int(math.Round(rate * MaxScore)),
		Override:    rate > overrideRate && len(matching) >= overrideMatching,
		SuccessRate: rate,
		Matching:    len(matching),
	}
}

// Record appends r, evicting the oldest entries beyond the cap.
func (s *Store) Record(ctx context.Context, r Record) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx)
	if err != nil {
		return err
	}
	return s.save(ctx, append(recs, r))
}

// Confirm sets the user verdict on the most recent record with pattern.
func (s *Store) Confirm(ctx context.Context, pattern string, confirmed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].URLPattern == pattern {
			recs[i].UserConfirmed = confirmed
			return s.save(ctx, recs)
		}
	}
	return fmt.Errorf("%w: %s", ErrNoRecord, pattern)
}

// Records returns the whole history, oldest first.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Clear drops the history.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("%w: delete: %w", ErrPersistence, err)
	}
	return nil
}

// FromResult builds the record describing res.
func FromResult(res *detection.Result, confirmed bool) Record {
	return Record{
		URLPattern:      res.URLPattern,
		URLRoot:         res.URLRoot,
		State:           res.State,
		FormType:        res.FormType,
		ConfidenceScore: res.ConfidenceScore,
		UserConfirmed:   confirmed,
		Timestamp:       res.Timestamp,
	}
}

// Nop is the History used when adaptive learning is disabled.
type Nop struct{}

func (Nop) Assess(context.Context, string, string) Assessment { return Assessment{} }
func (Nop) Record(context.Context, Record) error                { return nil }
func (Nop) Confirm(context.Context, string, bool) error         { return nil }
func (Nop) Records(context.Context) ([]Record, error)           { return nil, nil }
func (Nop) Clear(context.Context) error                         { return nil }

// FromConfig returns Nop when cfg.Mode is "off", otherwise a Store over kv.
func FromConfig(cfg config.AdaptiveConfig, kv kvstore.Store, logger *slog.Logger) History {
	if cfg.Mode == "off" || kv == nil {
		return Nop{}
	}
	return New(kv, WithKey(cfg.Key), WithMaxRecords(cfg.MaxRecords), WithLogger(logger))
}
