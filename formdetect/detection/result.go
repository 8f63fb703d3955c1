// Package detection defines the structured types produced by formdetect.
// These are the public API contract: the lifecycle, the transport sinks and
// any host integration import this package to exchange detection results.
package detection

import (
	"maps"
	"time"

	"golang.org/x/net/html"
)

// FieldType is the kind of form control a candidate field represents.
type FieldType string

const (
	TypeText          FieldType = "text"
	TypeEmail         FieldType = "email"
	TypeTel           FieldType = "tel"
	TypeNumber        FieldType = "number"
	TypeDate          FieldType = "date"
	TypePassword      FieldType = "password"
	TypeURL           FieldType = "url"
	TypeFile          FieldType = "file"
	TypeSelect        FieldType = "select"
	TypeTextarea      FieldType = "textarea"
	TypeCheckbox      FieldType = "checkbox"
	TypeRadioGroup    FieldType = "radio_group"
	TypeCheckboxGroup FieldType = "checkbox_group"
)

// LabelSource records which step of the label resolution chain produced a label.
type LabelSource string

const (
	SourceAriaLabel      LabelSource = "aria-label"
	SourceAriaLabelledBy LabelSource = "aria-labelledby"
	SourceLabelFor       LabelSource = "label-for"
	SourceLabelAncestor  LabelSource = "label-ancestor"
	SourcePrecedingText  LabelSource = "preceding-text"
	SourcePlaceholder    LabelSource = "placeholder"
	SourceName           LabelSource = "name"
	SourceLegend         LabelSource = "legend"
	SourceHeading        LabelSource = "heading"
	SourceNone           LabelSource = "none"
)

// UnlabeledText is the label given to a field when every resolution step fails.
const UnlabeledText = "Unlabeled field"

// Label is the human-readable text resolved for a field.
type Label struct {
	Text   string      `json:"text"`
	Source LabelSource `json:"source"`
}

// Position is the field's bounding box in CSS pixels relative to the document.
type Position struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CandidateField is an interactive control considered for classification.
// Node belongs to the host DOM; it is referenced, never copied or serialised.
type CandidateField struct {
	Node        *html.Node        `json:"-"`
	Type        FieldType         `json:"type"`
	Name        string            `json:"name,omitempty"`
	ID          string            `json:"id,omitempty"`
	Label       Label             `json:"label"`
	Placeholder string            `json:"placeholder,omitempty"`
	Required    bool              `json:"required"`
	Position    Position          `json:"position"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Options     []string          `json:"options,omitempty"`
	FormIndex   int               `json:"form_index"` // -1 for controls outside any <form>
}

// Category is a semantic role from the field taxonomy.
type Category string

// CategoryOther is the default category when no pattern matches.
const CategoryOther Category = "other"

// Classification is the semantic role assigned to one field.
type Classification struct {
	Category       Category `json:"category"`
	Confidence     int      `json:"confidence"`                // 0-100
	MatchedPattern string   `json:"matched_pattern,omitempty"` // diagnostic only
}

// Field is a scanned control with its classification.
type Field struct {
	CandidateField
	Classification Classification `json:"classification"`
}

// FormType is the kind of registration form a page represents.
type FormType string

const (
	FormBusinessRegistration FormType = "business_registration"
	FormTaxRegistration      FormType = "tax_registration"
	FormLLCFormation         FormType = "llc_formation"
	FormCorporationFormation FormType = "corporation_formation"
	FormDBARegistration      FormType = "dba_registration"
	FormAnnualReport         FormType = "annual_report"
	FormLicenseApplication   FormType = "license_application"
	FormUnknown              FormType = "unknown"
)

// Signals are the four independent partial scores behind a decision.
type Signals struct {
	URL        int `json:"url"`
	Content    int `json:"content"`
	Structural int `json:"structural"`
	Adaptive   int `json:"adaptive"`
}

// Result is the outcome of one detection pass. Once handed out it is treated
// as immutable; the lifecycle hands callers deep copies.
type Result struct {
	ID                         string         `json:"id"`
	URL                        string         `json:"url"`
	URLPattern                 string         `json:"url_pattern"`
	URLRoot                    string         `json:"url_root"`
	State                      string         `json:"state,omitempty"` // two-letter code, empty when unresolved
	IsBusinessRegistrationForm bool           `json:"is_business_registration_form"`
	ConfidenceScore            int            `json:"confidence_score"`
	ConfidenceBreakdown        map[string]int `json:"confidence_breakdown"`
	FormType                   FormType       `json:"form_type"`
	Fields                     []Field        `json:"fields"`
	Signals                    Signals        `json:"signals"`
	DecisionRule               string         `json:"decision_rule,omitempty"`
	Reasons                    []string       `json:"reasons,omitempty"`
	Fingerprint                string         `json:"fingerprint,omitempty"`
	Truncated                  bool           `json:"truncated,omitempty"`
	Timestamp                  time.Time      `json:"timestamp"`
	Attempt                    int            `json:"attempt"`
	FallbackMode               bool           `json:"fallback_mode"`
	Message                    string         `json:"message,omitempty"`
}

// Clone returns a deep copy of r. Field nodes are shared: they belong to the host.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.ConfidenceBreakdown = maps.Clone(r.ConfidenceBreakdown)
	c.Reasons = append([]string(nil), r.Reasons...)
	if r.Fields != nil {
		c.Fields = make([]Field, len(r.Fields))
		for i, f := range r.Fields {
			f.Attributes = maps.Clone(f.Attributes)
			f.Options = append([]string(nil), f.Options...)
			c.Fields[i] = f
		}
	}
	return &c
}

// ClassifiedCount returns the number of fields with a category other than "other".
func (r *Result) ClassifiedCount() int {
	n := 0
	for _, f := range r.Fields {
		if f.Classification.Category != CategoryOther {
			n++
		}
	}
	return n
}

// Fallback builds the terminal degraded result returned when detection
// cannot complete after all attempts.
func Fallback(url string, attempt int, message string, at time.Time) *Result {
	return &Result{
		URL:                 url,
		ConfidenceBreakdown: map[string]int{},
		FormType:            FormUnknown,
		Fields:              []Field{},
		Timestamp:           at,
		Attempt:             attempt,
		FallbackMode:        true,
		Message:             message,
	}
}
