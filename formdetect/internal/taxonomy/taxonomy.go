// Package taxonomy holds the declarative field taxonomy: ordered categories,
// their weighted matching patterns, autofill keys and per-jurisdiction
// overrides. A taxonomy is loaded and compiled once, then shared read-only.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

//go:embed taxonomy.yaml
var embedded []byte

// Pattern is one weighted matcher. Exactly one of Match, Regex, Autocomplete,
// Type or Option is set.
type Pattern struct {
	Match        string `yaml:"match,omitempty"`        // substring of the composite text
	Regex        string `yaml:"regex,omitempty"`        // regexp over the composite text
	Autocomplete string `yaml:"autocomplete,omitempty"` // exact autocomplete token
	Type         string `yaml:"type,omitempty"`         // exact input type
	Option       string `yaml:"option,omitempty"`       // regexp over option labels
	Weight       int    `yaml:"weight"`

	re *regexp.Regexp
}

// Category is one semantic role.
type Category struct {
	Name     detection.Category `yaml:"name"`
	Business bool               `yaml:"business"`
	Autofill string             `yaml:"autofill"`
	Patterns []Pattern          `yaml:"patterns"`
}

// Override adds patterns to (or, with Replace, substitutes the patterns of)
// one category for one jurisdiction.
type Override struct {
	Category detection.Category `yaml:"category"`
	Replace  bool               `yaml:"replace"`
	Patterns []Pattern          `yaml:"patterns"`
}

// Taxonomy is a compiled taxonomy.
type Taxonomy struct {
	Categories    []Category            `yaml:"categories"`
	Jurisdictions map[string][]Override `yaml:"jurisdictions"`

	byName    map[detection.Category]int
	effective map[string][]Category
}

var loadDefault = sync.OnceValues(func() (*Taxonomy, error) {
	return Load(embedded)
})

// Default returns the embedded taxonomy. It panics if the embedded document
// is invalid, which the package tests rule out.
func Default() *Taxonomy {
	t, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return t
}

// Autofill returns the profile key of c in the embedded taxonomy.
func Autofill(c detection.Category) string {
	return Default().Autofill(c)
}

// LoadFile reads and compiles a taxonomy document from disk.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read %s: %w", path, err)
	}
	return Load(data)
}

// Load parses and compiles a taxonomy document.
func Load(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("taxonomy: parse: %w", err)
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy: no categories")
	}

	t.byName = make(map[detection.Category]int, len(t.Categories))
	for i := range t.Categories {
		c := &t.Categories[i]
		if c.Name == "" || c.Name == detection.CategoryOther {
			return nil, fmt.Errorf("taxonomy: category %d: invalid name %q", i, c.Name)
		}
		if _, dup := t.byName[c.Name]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate category %q", c.Name)
		}
		t.byName[c.Name] = i
		if err := compilePatterns(c.Patterns); err != nil {
			return nil, fmt.Errorf("taxonomy: category %s: %w", c.Name, err)
		}
	}

	t.effective = make(map[string][]Category, len(t.Jurisdictions))
	for code, overrides := range t.Jurisdictions {
		cats := make([]Category, len(t.Categories))
		copy(cats, t.Categories)
		for _, o := range overrides {
			i, ok := t.byName[o.Category]
			if !ok {
				return nil, fmt.Errorf("taxonomy: jurisdiction %s: unknown category %q", code, o.Category)
			}
			if err := compilePatterns(o.Patterns); err != nil {
				return nil, fmt.Errorf("taxonomy: jurisdiction %s/%s: %w", code, o.Category, err)
			}
			if o.Replace {
				cats[i].Patterns = o.Patterns
			} else {
				cats[i].Patterns = append(append([]Pattern(nil), cats[i].Patterns...), o.Patterns...)
			}
		}
		t.effective[strings.ToUpper(code)] = cats
	}
	return &t, nil
}

func compilePatterns(ps []Pattern) error {
	for i := range ps {
		p := &ps[i]
		set := 0
		for _, s := range []string{p.Match, p.Regex, p.Autocomplete, p.Type, p.Option} {
			if s != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("pattern %d: want exactly one matcher, got %d", i, set)
		}
		if p.Weight < 1 || p.Weight > 100 {
			return fmt.Errorf("pattern %d: weight %d out of range 1-100", i, p.Weight)
		}
		p.Match = strings.ToLower(p.Match)
		p.Autocomplete = strings.ToLower(p.Autocomplete)
		p.Type = strings.ToLower(p.Type)
		expr := p.Regex
		if expr == "" {
			expr = p.Option
		}
		if expr != "" {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return fmt.Errorf("pattern %d: %w", i, err)
			}
			p.re = re
		}
	}
	return nil
}

// For returns the categories in definition order with the overrides of
// jurisdiction applied. An unknown or empty jurisdiction yields the base set.
func (t *Taxonomy) For(jurisdiction string) []Category {
	if cats, ok := t.effective[strings.ToUpper(jurisdiction)]; ok {
		return cats
	}
	return t.Categories
}

// Names lists every category name, "other" last.
func (t *Taxonomy) Names() []detection.Category {
	out := make([]detection.Category, 0, len(t.Categories)+1)
	for _, c := range t.Categories {
		out = append(out, c.Name)
	}
	return append(out, detection.CategoryOther)
}

// Business reports whether c is a business-specific category.
func (t *Taxonomy) Business(c detection.Category) bool {
	i, ok := t.byName[c]
	return ok && t.Categories[i].Business
}

// Autofill returns the profile key for c, or "" when c has none.
func (t *Taxonomy) Autofill(c detection.Category) string {
	if i, ok := t.byName[c]; ok {
		return t.Categories[i].Autofill
	}
	return ""
}

// Input is what a pattern is evaluated against.
type Input struct {
	Composite    string   // lowercase label, name, id, placeholder and autocomplete
	Autocomplete []string // lowercase autocomplete tokens
	Type         string   // lowercase input type
	Options      []string
}

// Matches reports whether p matches in.
func (p *Pattern) Matches(in Input) bool {
	switch {
	case p.Match != "":
		return strings.Contains(in.Composite, p.Match)
	case p.Regex != "":
		return p.re.MatchString(in.Composite)
	case p.Autocomplete != "":
		for _, tok := range in.Autocomplete {
			if tok == p.Autocomplete {
				return true
			}
		}
		return false
	case p.Type != "":
		return in.Type == p.Type
	case p.Option != "":
		for _, o := range in.Options {
			if p.re.MatchString(o) {
				return true
			}
		}
	}
	return false
}

// String describes p for diagnostics.
func (p *Pattern) String() string {
	switch {
	case p.Match != "":
		return "match:" + p.Match
	case p.Regex != "":
		return "regex:" + p.Regex
	case p.Autocomplete != "":
		return "autocomplete:" + p.Autocomplete
	case p.Type != "":
		return "type:" + p.Type
	case p.Option != "":
		return "option:" + p.Option
	}
	return ""
}
