package classifier

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/formdetect/internal/taxonomy"
)

func labeled(text string) detection.CandidateField {
	return detection.CandidateField{
		Type:  detection.TypeText,
		Label: detection.Label{Text: text, Source: detection.SourceLabelFor},
	}
}

func TestClassify_Table(t *testing.T) {
	c := New()
	tests := []struct {
		field detection.CandidateField
		juris string
		want  detection.Category
		min   int
	}{
		{labeled("Business Name"), "", "business_name", 95},
		{labeled("FEIN"), "DC", "ein", 96},
		{labeled("Federal EIN"), "DC", "ein", 96},
		{labeled("Federal EIN"), "", "ein", 90},
		{labeled("Employer Identification Number (EIN)"), "", "ein", 95},
		{labeled("Doing Business As (Trade Name)"), "", "dba_name", 90},
		{labeled("Registered Agent Name"), "", "registered_agent", 95},
		{labeled("NAICS Code"), "", "naics_code", 95},
		{labeled("Email Address"), "", "email", 90},
		{labeled("Business Mailing Address"), "", "address", 85},
		{labeled("State Tax ID"), "", "state_tax_id", 90},
		{labeled("ZIP Code"), "", "zip", 90},
		{labeled("Date of Birth"), "", "date_of_birth", 95},
		{labeled("Favourite colour"), "", detection.CategoryOther, 50},
		{detection.CandidateField{Type: detection.TypeTel, Attributes: map[string]string{"type": "tel"}, Label: detection.Label{Text: "Daytime", Source: detection.SourcePrecedingText}}, "", "phone", 95},
		{detection.CandidateField{Name: "contact_email", Label: detection.Label{Text: detection.UnlabeledText, Source: detection.SourceNone}}, "", "email", 90},
		{detection.CandidateField{Attributes: map[string]string{"autocomplete": "shipping postal-code"}}, "", "zip", 95},
	}
	for _, tt := range tests {
		got := c.Classify(tt.field, tt.juris)
		if got.Category != tt.want || got.Confidence < tt.min {
			t.Errorf("Classify(%q, %q): got %s@%d (%s), want %s@>=%d",
				Composite(tt.field), tt.juris, got.Category, got.Confidence, got.MatchedPattern, tt.want, tt.min)
		}
	}
}

func TestClassify_JurisdictionOverride(t *testing.T) {
	c := New()
	for _, text := range []string{"FEIN", "Federal EIN"} {
		base := c.Classify(labeled(text), "")
		dc := c.Classify(labeled(text), "DC")
		if dc.Category != "ein" || base.Category != "ein" {
			t.Fatalf("%s: got %s / %s, want ein", text, base.Category, dc.Category)
		}
		if dc.Confidence <= base.Confidence {
			t.Errorf("%s: DC confidence %d not above base %d", text, dc.Confidence, base.Confidence)
		}
	}
}

func TestClassify_EntityTypeRadioGroup(t *testing.T) {
	f := detection.CandidateField{
		Type:    detection.TypeRadioGroup,
		Name:    "entity_type",
		Label:   detection.Label{Text: "Select Entity Type", Source: detection.SourceLegend},
		Options: []string{"LLC", "Corporation", "Sole Proprietorship", "Partnership"},
	}
	got := New().Classify(f, "")
	if got.Category != "entity_type" {
		t.Errorf("category: got %q, want entity_type", got.Category)
	}

	// Options alone are enough.
	f.Label = detection.Label{Text: "Choose one", Source: detection.SourceLegend}
	f.Name = "q7"
	got = New().Classify(f, "")
	if got.Category != "entity_type" || got.Confidence != 90 {
		t.Errorf("options only: got %s@%d", got.Category, got.Confidence)
	}
}

func TestClassify_TiesKeepTaxonomyOrder(t *testing.T) {
	tx, err := taxonomy.Load([]byte(`
categories:
  - name: first
    patterns: [{match: "shared", weight: 80}]
  - name: second
    patterns: [{match: "shared", weight: 80}]
`))
	if err != nil {
		t.Fatal(err)
	}
	got := New(WithTaxonomy(tx)).Classify(labeled("Shared"), "")
	if got.Category != "first" {
		t.Errorf("tie: got %q, want first", got.Category)
	}
}

func TestClassify_RecoversFromBrokenPattern(t *testing.T) {
	// An uncompiled regex pattern panics on evaluation.
	tx := &taxonomy.Taxonomy{Categories: []taxonomy.Category{{
		Name:     "broken",
		Patterns: []taxonomy.Pattern{{Regex: "x", Weight: 90}},
	}}}
	var buf bytes.Buffer
	c := New(WithTaxonomy(tx), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	got := c.Classify(labeled("x"), "")
	if got.Category != detection.CategoryOther || got.Confidence != DefaultConfidence {
		t.Errorf("got %s@%d, want other@50", got.Category, got.Confidence)
	}
	if !strings.Contains(buf.String(), "classifier: field defaulted") {
		t.Errorf("log: got %q", buf.String())
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New()
	f := labeled("Business Name")
	first := c.Classify(f, "DC")
	for i := 0; i < 20; i++ {
		if got := c.Classify(f, "DC"); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestComposite(t *testing.T) {
	f := detection.CandidateField{
		Name:        "bizName",
		ID:          "txt_business",
		Label:       detection.Label{Text: "Legal  Name", Source: detection.SourceLabelFor},
		Placeholder: "ACME LLC",
		Attributes:  map[string]string{"autocomplete": "organization"},
	}
	want := "legal name biz name txt business acme llc organization"
	if got := Composite(f); got != want {
		t.Errorf("Composite: got %q, want %q", got, want)
	}
}

func TestAutofillPlan(t *testing.T) {
	c := New()
	fields := c.ClassifyAll([]detection.CandidateField{
		labeled("Business Name"),
		labeled("FEIN"),
		labeled("Favourite colour"),
	}, "DC")
	plan := c.AutofillPlan(fields, map[string]string{"business.legal_name": "Acme LLC"})
	if len(plan) != 2 {
		t.Fatalf("plan: got %d entries, want 2", len(plan))
	}
	if plan[0].Key != "business.legal_name" || !plan[0].Found || plan[0].Value != "Acme LLC" {
		t.Errorf("plan[0]: got %+v", plan[0])
	}
	if plan[1].Key != "business.ein" || plan[1].Found || plan[1].Index != 1 {
		t.Errorf("plan[1]: got %+v", plan[1])
	}
}
