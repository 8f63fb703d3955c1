// Package formdetect decides whether a parsed page is a US government
// business-registration form. One call to Engine.Detect is one detection
// pass: URL and content signals, field scanning, per-field classification,
// structural analysis and the adaptive history are merged into a
// detection.Result.
//
// Every analyzer is a capability interface injected at construction; the
// defaults are the in-tree implementations.
//
//	eng := formdetect.New(formdetect.WithHistory(hist))
//	page, err := formdetect.ParsePage(url, body)
//	res, err := eng.Detect(ctx, page)
package formdetect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/regdetect/adaptive"
	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/formdetect/internal/classifier"
	"github.com/hazyhaar/regdetect/formdetect/internal/confidence"
	"github.com/hazyhaar/regdetect/formdetect/internal/content"
	"github.com/hazyhaar/regdetect/formdetect/internal/fingerprint"
	"github.com/hazyhaar/regdetect/formdetect/internal/scanner"
	"github.com/hazyhaar/regdetect/formdetect/internal/structure"
	"github.com/hazyhaar/regdetect/formdetect/internal/taxonomy"
	"github.com/hazyhaar/regdetect/formdetect/internal/urlsignal"
	"github.com/hazyhaar/regdetect/idgen"
	"github.com/hazyhaar/regdetect/internal/config"
)

// ErrNoDocument is returned by Detect for a page without a parsed tree.
var ErrNoDocument = errors.New("formdetect: page has no document")

// Re-exported analyzer types, so that callers can implement the capability
// interfaces below.
type (
	URLSignal     = urlsignal.Signal
	ContentSignal = content.Signal
	ScanOptions   = scanner.Options
	ScanResult    = scanner.Result
	Taxonomy      = taxonomy.Taxonomy
	Fill          = classifier.Fill
	Fingerprint   = fingerprint.Fingerprint
)

// URLAnalyzer scores a page URL.
type URLAnalyzer interface {
	AnalyzeURL(rawURL string) URLSignal
}

// ContentAnalyzer scores the visible page text.
type ContentAnalyzer interface {
	AnalyzeContent(doc *goquery.Document) ContentSignal
}

// FieldScanner enumerates candidate fields.
type FieldScanner interface {
	ScanFields(root *html.Node, opts ScanOptions) ScanResult
}

// FieldClassifier assigns taxonomy categories.
type FieldClassifier interface {
	Classify(f detection.CandidateField, jurisdiction string) detection.Classification
	Business(c detection.Category) bool
}

// HistoryAdvisor scores past detections of similar URLs.
type HistoryAdvisor interface {
	Assess(ctx context.Context, pattern, root string) adaptive.Assessment
}

type urlAnalyzer struct{}

func (urlAnalyzer) AnalyzeURL(rawURL string) URLSignal { return urlsignal.Analyze(rawURL) }

type contentAnalyzer struct{}

func (contentAnalyzer) AnalyzeContent(doc *goquery.Document) ContentSignal {
	return content.Analyze(doc)
}

type fieldScanner struct{}

func (fieldScanner) ScanFields(root *html.Node, opts ScanOptions) ScanResult {
	return scanner.Scan(root, opts)
}

// Page is one snapshot handed to Detect.
type Page struct {
	URL  string
	Root *html.Node
}

// ParsePage parses an HTML document.
func ParsePage(rawURL string, r io.Reader) (Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return Page{}, fmt.Errorf("formdetect: parse %s: %w", rawURL, err)
	}
	return Page{URL: rawURL, Root: root}, nil
}

// Engine runs detection passes. It holds no per-page state and is safe for
// concurrent use when its analyzers are.
type Engine struct {
	url        URLAnalyzer
	content    ContentAnalyzer
	scanner    FieldScanner
	classifier FieldClassifier
	history    HistoryAdvisor
	tax        *Taxonomy

	budget         time.Duration
	extraSelectors map[string][]string

	ids    idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithURLAnalyzer(a URLAnalyzer) Option         { return func(e *Engine) { e.url = a } }
func WithContentAnalyzer(a ContentAnalyzer) Option { return func(e *Engine) { e.content = a } }
func WithFieldScanner(s FieldScanner) Option       { return func(e *Engine) { e.scanner = s } }
func WithFieldClassifier(c FieldClassifier) Option { return func(e *Engine) { e.classifier = c } }

// WithHistory sets the adaptive history. Default: adaptive.Nop.
func WithHistory(h HistoryAdvisor) Option { return func(e *Engine) { e.history = h } }

// WithTaxonomy classifies against t instead of the embedded taxonomy.
func WithTaxonomy(t *Taxonomy) Option { return func(e *Engine) { e.tax = t } }

// WithScanBudget sets the soft scan budget.
func WithScanBudget(d time.Duration) Option { return func(e *Engine) { e.budget = d } }

// WithExtraSelectors adds per-jurisdiction candidate selectors.
func WithExtraSelectors(m map[string][]string) Option {
	return func(e *Engine) { e.extraSelectors = m }
}

// WithIDGenerator sets the result ID generator. Default: idgen.Detection.
func WithIDGenerator(g idgen.Generator) Option { return func(e *Engine) { e.ids = g } }

// WithClock sets the timestamp source. Default: time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tax == nil {
		e.tax = taxonomy.Default()
	}
	if e.url == nil {
		e.url = urlAnalyzer{}
	}
	if e.content == nil {
		e.content = contentAnalyzer{}
	}
	if e.scanner == nil {
		e.scanner = fieldScanner{}
	}
	if e.classifier == nil {
		e.classifier = classifier.New(classifier.WithTaxonomy(e.tax), classifier.WithLogger(e.logger))
	}
	if e.history == nil {
		e.history = adaptive.Nop{}
	}
	if e.ids == nil {
		e.ids = idgen.Detection
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// FromConfig builds an Engine from the scanner and taxonomy settings of cfg.
func FromConfig(cfg *config.Config, history HistoryAdvisor, logger *slog.Logger, opts ...Option) (*Engine, error) {
	base := []Option{
		WithScanBudget(cfg.Scanner.Budget),
		WithExtraSelectors(cfg.Scanner.ExtraSelectors),
		WithHistory(history),
		WithLogger(logger),
	}
	if cfg.TaxonomyFile != "" {
		t, err := taxonomy.LoadFile(cfg.TaxonomyFile)
		if err != nil {
			return nil, fmt.Errorf("formdetect: %w", err)
		}
		base = append(base, WithTaxonomy(t))
	}
	return New(append(base, opts...)...), nil
}

// guard runs one analyzer. A panic yields the zero value and a reason.
func guard[T any](e *Engine, url, signal string, fn func() T) (out T, reason string) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			reason = fmt.Sprintf("%s analysis failed: %v", signal, r)
			e.logger.Warn("formdetect: analyzer failed", "url", url, "signal", signal, "panic", r)
		}
	}()
	return fn(), ""
}

// Detect runs one pass over page. It fails only for a cancelled context or
// a missing document; analyzer failures degrade the result instead.
func (e *Engine) Detect(ctx context.Context, page Page) (*detection.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("formdetect: %w", err)
	}
	if page.Root == nil {
		return nil, ErrNoDocument
	}

	var failed []string
	note := func(reason string) {
		if reason != "" {
			failed = append(failed, reason)
		}
	}

	urlSig, reason := guard(e, page.URL, "url", func() URLSignal { return e.url.AnalyzeURL(page.URL) })
	note(reason)
	doc := goquery.NewDocumentFromNode(page.Root)
	contentSig, reason := guard(e, page.URL, "content", func() ContentSignal { return e.content.AnalyzeContent(doc) })
	note(reason)

	hint := urlSig.State
	if hint == "" {
		hint = contentSig.State
	}

	scan, reason := guard(e, page.URL, "field scan", func() ScanResult {
		return e.scanner.ScanFields(page.Root, ScanOptions{
			Jurisdiction:   hint,
			ExtraSelectors: e.extraSelectors,
			Budget:         e.budget,
		})
	})
	note(reason)
	for _, err := range scan.Errors {
		e.logger.Debug("formdetect: scan", "url", page.URL, "error", err)
	}
	if scan.Truncated {
		e.logger.Warn("formdetect: scan truncated", "url", page.URL, "fields", len(scan.Fields))
	}

	fields := make([]detection.Field, len(scan.Fields))
	for i, f := range scan.Fields {
		cls, reason := guard(e, page.URL, "classification", func() detection.Classification {
			return e.classifier.Classify(f, hint)
		})
		if reason != "" {
			cls = detection.Classification{Category: detection.CategoryOther, Confidence: classifier.DefaultConfidence}
		}
		fields[i] = detection.Field{CandidateField: f, Classification: cls}
	}

	structSig, reason := guard(e, page.URL, "structural", func() structure.Signal { return structure.Analyze(doc, scan.Fields) })
	note(reason)
	assessment, reason := guard(e, page.URL, "adaptive", func() adaptive.Assessment {
		return e.history.Assess(ctx, urlSig.Pattern, urlSig.Root)
	})
	note(reason)

	business := func(c detection.Category) bool {
		ok, _ := guard(e, page.URL, "business category", func() bool { return e.classifier.Business(c) })
		return ok
	}
	out := confidence.Aggregate(confidence.Input{
		URL:              urlSig,
		Content:          contentSig,
		Structural:       structSig,
		Fields:           fields,
		AdaptiveScore:    assessment.Score,
		AdaptiveOverride: assessment.Override,
		Business:         business,
	})

	reasons := make([]string, 0, len(failed)+len(urlSig.Reasons)+len(contentSig.Reasons)+len(structSig.Reasons)+len(out.Reasons))
	reasons = append(reasons, failed...)
	reasons = append(reasons, urlSig.Reasons...)
	reasons = append(reasons, contentSig.Reasons...)
	reasons = append(reasons, structSig.Reasons...)
	reasons = append(reasons, out.Reasons...)

	res := &detection.Result{
		ID:                         e.ids(),
		URL:                        page.URL,
		URLPattern:                 urlSig.Pattern,
		URLRoot:                    urlSig.Root,
		State:                      out.State,
		IsBusinessRegistrationForm: out.IsBusiness,
		ConfidenceScore:            out.Score,
		ConfidenceBreakdown:        out.Breakdown,
		FormType:                   out.FormType,
		Fields:                     fields,
		Signals: detection.Signals{
			URL:        urlSig.Score,
			Content:    contentSig.Score,
			Structural: structSig.Score,
			Adaptive:   assessment.Score,
		},
		DecisionRule: out.DecisionRule,
		Reasons:      reasons,
		Fingerprint:  fingerprint.Of(page.Root).String(),
		Truncated:    scan.Truncated,
		Timestamp:    e.now().UTC(),
	}

	e.logger.Debug("formdetect: pass complete",
		"url", page.URL,
		"score", res.ConfidenceScore,
		"business", res.IsBusinessRegistrationForm,
		"rule", res.DecisionRule,
		"fields", len(fields),
		"state", res.State)
	return res, nil
}

// AutofillPlan maps the classified fields of res to profile values.
func (e *Engine) AutofillPlan(res *detection.Result, profile map[string]string) []Fill {
	return classifier.New(classifier.WithTaxonomy(e.tax), classifier.WithLogger(e.logger)).AutofillPlan(res.Fields, profile)
}

// Categories lists the taxonomy categories, "other" last.
func (e *Engine) Categories() []detection.Category { return e.tax.Names() }

// BreakdownKeys lists the confidence breakdown categories in report order.
func BreakdownKeys() []string { return slices.Clone(confidence.Keys) }

// FingerprintOf returns the structural fingerprint of a snapshot.
func FingerprintOf(root *html.Node) Fingerprint { return fingerprint.Of(root) }

// FingerprintChanges lists what differs between two fingerprints.
func FingerprintChanges(before, after Fingerprint) []string {
	return fingerprint.Changed(before, after)
}
