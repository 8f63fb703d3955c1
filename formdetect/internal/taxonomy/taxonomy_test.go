package taxonomy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

func TestDefault_Loads(t *testing.T) {
	tx := Default()
	names := tx.Names()
	if len(names) != 28 {
		t.Errorf("Names: got %d categories, want 28", len(names))
	}
	if names[len(names)-1] != detection.CategoryOther {
		t.Errorf("Names: last is %q, want other", names[len(names)-1])
	}
	for _, c := range tx.Categories {
		if c.Autofill == "" {
			t.Errorf("category %s: empty autofill key", c.Name)
		}
		if len(c.Patterns) == 0 {
			t.Errorf("category %s: no patterns", c.Name)
		}
	}
}

func TestBusinessAndAutofill(t *testing.T) {
	tx := Default()
	if !tx.Business("ein") || !tx.Business("entity_type") {
		t.Error("Business: ein and entity_type should be business categories")
	}
	if tx.Business("email") || tx.Business(detection.CategoryOther) {
		t.Error("Business: email and other should not be business categories")
	}
	if got := Autofill("ein"); got != "business.ein" {
		t.Errorf("Autofill(ein): got %q", got)
	}
	if got := Autofill(detection.CategoryOther); got != "" {
		t.Errorf("Autofill(other): got %q", got)
	}
}

func TestFor_AppliesOverrides(t *testing.T) {
	tx := Default()
	weight := func(cats []Category, name detection.Category, in Input) int {
		best := 0
		for _, c := range cats {
			if c.Name != name {
				continue
			}
			for i := range c.Patterns {
				if c.Patterns[i].Matches(in) && c.Patterns[i].Weight > best {
					best = c.Patterns[i].Weight
				}
			}
		}
		return best
	}
	in := Input{Composite: "fein fein"}
	if got := weight(tx.For(""), "ein", in); got != 85 {
		t.Errorf("base fein weight: got %d, want 85", got)
	}
	if got := weight(tx.For("dc"), "ein", in); got != 98 {
		t.Errorf("DC fein weight: got %d, want 98", got)
	}
	if got := weight(tx.For("ZZ"), "ein", in); got != 85 {
		t.Errorf("unknown jurisdiction fein weight: got %d, want 85", got)
	}
	// Overrides must not leak into the base set.
	if n := len(tx.For("")[0].Patterns); n != 5 {
		t.Errorf("base ein patterns: got %d, want 5", n)
	}
}

func TestLoad_Replace(t *testing.T) {
	doc := `
categories:
  - name: state
    autofill: address.state
    patterns:
      - {regex: '\bstate\b', weight: 75}
jurisdictions:
  NY:
    - category: state
      replace: true
      patterns:
        - {match: "county", weight: 60}
`
	tx, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ny := tx.For("NY")[0].Patterns
	if len(ny) != 1 || ny[0].Match != "county" {
		t.Errorf("NY patterns: got %+v", ny)
	}
	if len(tx.For("")[0].Patterns) != 1 || tx.For("")[0].Patterns[0].Regex == "" {
		t.Errorf("base patterns changed: got %+v", tx.For("")[0].Patterns)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", `categories: []`, "no categories"},
		{"two matchers", `categories: [{name: a, patterns: [{match: x, regex: y, weight: 10}]}]`, "exactly one matcher"},
		{"weight", `categories: [{name: a, patterns: [{match: x, weight: 200}]}]`, "out of range"},
		{"regex", `categories: [{name: a, patterns: [{regex: "(", weight: 10}]}]`, "category a"},
		{"duplicate", `categories: [{name: a, patterns: []}, {name: a, patterns: []}]`, "duplicate"},
		{"other", `categories: [{name: other, patterns: []}]`, "invalid name"},
		{"unknown override", "categories: [{name: a, patterns: []}]\njurisdictions: {DC: [{category: b, patterns: []}]}", "unknown category"},
	}
	for _, tt := range tests {
		_, err := Load([]byte(tt.doc))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %v, want error containing %q", tt.name, err, tt.want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tax.yaml")
	if err := os.WriteFile(path, embedded, 0o644); err != nil {
		t.Fatal(err)
	}
	tx, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(tx.Categories) != len(Default().Categories) {
		t.Errorf("categories: got %d", len(tx.Categories))
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile(missing): want error")
	}
}

func TestPatternMatches(t *testing.T) {
	tests := []struct {
		p    Pattern
		in   Input
		want bool
	}{
		{Pattern{Match: "business name"}, Input{Composite: "legal business name"}, true},
		{Pattern{Autocomplete: "email"}, Input{Autocomplete: []string{"work", "email"}}, true},
		{Pattern{Autocomplete: "email"}, Input{Autocomplete: []string{"username"}}, false},
		{Pattern{Type: "tel"}, Input{Type: "tel"}, true},
		{Pattern{Option: `\bllc\b`}, Input{Options: []string{"Sole", "LLC"}}, true},
		{Pattern{Option: `\bllc\b`}, Input{}, false},
	}
	for _, tt := range tests {
		ps := []Pattern{tt.p}
		ps[0].Weight = 50
		if err := compilePatterns(ps); err != nil {
			t.Fatalf("compile %s: %v", tt.p.String(), err)
		}
		if got := ps[0].Matches(tt.in); got != tt.want {
			t.Errorf("%s on %+v: got %v, want %v", ps[0].String(), tt.in, got, tt.want)
		}
	}
}
