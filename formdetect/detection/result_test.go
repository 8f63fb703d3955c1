package detection

import (
	"testing"
	"time"
)

func TestCloneIsDeep(t *testing.T) {
	r := &Result{
		URL:                 "https://mytax.dc.gov/form/FR-500",
		ConfidenceBreakdown: map[string]int{"domain": 20},
		Reasons:             []string{"gov domain"},
		Fields: []Field{{
			CandidateField: CandidateField{
				Name:       "fein",
				Attributes: map[string]string{"name": "fein"},
				Options:    []string{"a"},
			},
			Classification: Classification{Category: "ein", Confidence: 98},
		}},
	}

	c := r.Clone()
	c.ConfidenceBreakdown["domain"] = 0
	c.Reasons[0] = "changed"
	c.Fields[0].Attributes["name"] = "x"
	c.Fields[0].Options[0] = "b"
	c.Fields[0].Classification.Confidence = 1

	if r.ConfidenceBreakdown["domain"] != 20 {
		t.Errorf("breakdown shared: got %d", r.ConfidenceBreakdown["domain"])
	}
	if r.Reasons[0] != "gov domain" {
		t.Errorf("reasons shared: got %q", r.Reasons[0])
	}
	if r.Fields[0].Attributes["name"] != "fein" {
		t.Errorf("attributes shared: got %q", r.Fields[0].Attributes["name"])
	}
	if r.Fields[0].Options[0] != "a" {
		t.Errorf("options shared: got %q", r.Fields[0].Options[0])
	}
	if r.Fields[0].Classification.Confidence != 98 {
		t.Errorf("fields shared: got %d", r.Fields[0].Classification.Confidence)
	}
}

func TestCloneNil(t *testing.T) {
	var r *Result
	if r.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestFallback(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := Fallback("https://example.com", 5, "gave up", at)
	if !r.FallbackMode {
		t.Error("FallbackMode: got false")
	}
	if r.IsBusinessRegistrationForm {
		t.Error("IsBusinessRegistrationForm: got true")
	}
	if r.Attempt != 5 || r.Message != "gave up" || !r.Timestamp.Equal(at) {
		t.Errorf("fallback fields: got attempt=%d message=%q ts=%v", r.Attempt, r.Message, r.Timestamp)
	}
	if r.Fields == nil || r.ConfidenceBreakdown == nil {
		t.Error("fallback should carry empty, non-nil collections")
	}
}

func TestClassifiedCount(t *testing.T) {
	r := &Result{Fields: []Field{
		{Classification: Classification{Category: "ein"}},
		{Classification: Classification{Category: CategoryOther}},
		{Classification: Classification{Category: "business_name"}},
	}}
	if got := r.ClassifiedCount(); got != 2 {
		t.Errorf("ClassifiedCount: got %d, want 2", got)
	}
}
