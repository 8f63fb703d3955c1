// Package classifier assigns each scanned field one taxonomy category by
// weighted pattern matching over a composite of its label and attributes.
package classifier

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/formdetect/internal/scanner"
	"github.com/hazyhaar/regdetect/formdetect/internal/taxonomy"
)

// ErrClassification wraps a pattern evaluation failure. The field involved
// falls back to the default classification.
var ErrClassification = errors.New("classifier: pattern evaluation failed")

// DefaultConfidence is the confidence of the "other" fallback.
const DefaultConfidence = 50

// Classifier classifies fields against one taxonomy. It is safe for
// concurrent use.
type Classifier struct {
	tax    *taxonomy.Taxonomy
	logger *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithTaxonomy replaces the embedded taxonomy.
func WithTaxonomy(t *taxonomy.Taxonomy) Option {
	return func(c *Classifier) { c.tax = t }
}

// WithLogger sets the logger used to report classification errors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a Classifier over the embedded taxonomy unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{}
	for _, o := range opts {
		o(c)
	}
	if c.tax == nil {
		c.tax = taxonomy.Default()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Taxonomy returns the taxonomy in use.
func (c *Classifier) Taxonomy() *taxonomy.Taxonomy { return c.tax }

// Business reports whether cat is a business-specific category.
func (c *Classifier) Business(cat detection.Category) bool { return c.tax.Business(cat) }

// Classify returns the best classification of f for the given jurisdiction
// hint ("" for none). It never fails: evaluation errors are logged and the
// field is classified "other".
func (c *Classifier) Classify(f detection.CandidateField, jurisdiction string) detection.Classification {
	cls, err := c.classify(f, jurisdiction)
	if err != nil {
		c.logger.Warn("classifier: field defaulted", "field", f.Name, "label", f.Label.Text, "error", err)
	}
	return cls
}

// ClassifyAll classifies every field, preserving order.
func (c *Classifier) ClassifyAll(fields []detection.CandidateField, jurisdiction string) []detection.Field {
	out := make([]detection.Field, len(fields))
	for i, f := range fields {
		out[i] = detection.Field{CandidateField: f, Classification: c.Classify(f, jurisdiction)}
	}
	return out
}

func (c *Classifier) classify(f detection.CandidateField, jurisdiction string) (cls detection.Classification, err error) {
	cls = detection.Classification{Category: detection.CategoryOther, Confidence: DefaultConfidence}
	defer func() {
		if r := recover(); r != nil {
			cls = detection.Classification{Category: detection.CategoryOther, Confidence: DefaultConfidence}
			err = fmt.Errorf("%w: %v", ErrClassification, r)
		}
	}()

	in := inputOf(f)
	best := 0
	for _, cat := range c.tax.For(jurisdiction) {
		for i := range cat.Patterns {
			p := &cat.Patterns[i]
			if p.Weight <= best || !p.Matches(in) {
				continue
			}
			best = p.Weight
			cls = detection.Classification{
				Category:       cat.Name,
				Confidence:     p.Weight,
				MatchedPattern: p.String(),
			}
		}
	}
	return cls, nil
}

func inputOf(f detection.CandidateField) taxonomy.Input {
	typ := strings.ToLower(f.Attributes["type"])
	if typ == "" {
		typ = string(f.Type)
	}
	return taxonomy.Input{
		Composite:    Composite(f),
		Autocomplete: strings.Fields(strings.ToLower(f.Attributes["autocomplete"])),
		Type:         typ,
		Options:      f.Options,
	}
}

// Composite builds the lowercase text the patterns run against: label,
// humanised name and id, placeholder and autocomplete.
func Composite(f detection.CandidateField) string {
	parts := make([]string, 0, 5)
	if f.Label.Source != detection.SourceNone && f.Label.Text != "" {
		parts = append(parts, f.Label.Text)
	}
	if h := scanner.Humanize(f.Name); h != "" {
		parts = append(parts, h)
	}
	if h := scanner.Humanize(f.ID); h != "" {
		parts = append(parts, h)
	}
	if f.Placeholder != "" {
		parts = append(parts, f.Placeholder)
	}
	if ac := f.Attributes["autocomplete"]; ac != "" && ac != "on" && ac != "off" {
		parts = append(parts, ac)
	}
	return strings.ToLower(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

// Fill maps one classified field to a profile key. Writing the value into
// the page is the host's job.
type Fill struct {
	Index    int                `json:"index"`
	Name     string             `json:"name,omitempty"`
	Category detection.Category `json:"category"`
	Key      string             `json:"key"`
	Value    string             `json:"value,omitempty"`
	Found    bool               `json:"found"`
}

// AutofillPlan maps every classified field that has an autofill key to its
// value in profile. Fields classified "other" are skipped.
func (c *Classifier) AutofillPlan(fields []detection.Field, profile map[string]string) []Fill {
	var plan []Fill
	for i, f := range fields {
		key := c.tax.Autofill(f.Classification.Category)
		if key == "" {
			continue
		}
		v, ok := profile[key]
		plan = append(plan, Fill{
			Index:    i,
			Name:     f.Name,
			Category: f.Classification.Category,
			Key:      key,
			Value:    v,
			Found:    ok,
		})
	}
	return plan
}
