// Package scanner enumerates the visible interactive controls of a parsed
// page, resolves a human-readable label for each, and merges radio and
// checkbox sets into group fields.
//
// The scan is synchronous and bounded by a soft wall-clock budget: when the
// budget runs out the fields found so far are returned with Truncated set.
// A malformed element is skipped and recorded; it never aborts the scan.
package scanner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

var (
	// ErrScan wraps per-element failures recorded in Result.Errors.
	ErrScan = errors.New("scanner: malformed element")
	// ErrBudgetExceeded is recorded when the scan budget truncates the scan.
	ErrBudgetExceeded = errors.New("scanner: scan budget exceeded")
)

// DefaultBudget is the soft wall-clock budget of one scan.
const DefaultBudget = 2500 * time.Millisecond

const controlSelector = "input, select, textarea"

// Attributes copied onto CandidateField.Attributes when present.
var keptAttributes = []string{
	"type", "name", "id", "autocomplete", "maxlength", "pattern",
	"inputmode", "aria-describedby", "role",
}

// Options tunes a scan.
type Options struct {
	// Jurisdiction is an optional two-letter hint selecting ExtraSelectors.
	Jurisdiction string
	// ExtraSelectors maps a jurisdiction code to additional CSS selectors
	// for custom controls (e.g. `[role="combobox"]`).
	ExtraSelectors map[string][]string
	// Budget is the soft wall-clock budget. Zero means DefaultBudget.
	Budget time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Result is the outcome of one scan.
type Result struct {
	Fields     []detection.CandidateField
	Truncated  bool
	Errors     []error
	FormCount  int
	InputCount int // controls examined, visible or not
}

type candidate struct {
	node      *html.Node
	formIndex int
}

type groupKey struct {
	formIndex int
	kind      detection.FieldType
	name      string
}

type scan struct {
	opts     Options
	ix       index
	view     *viewport
	scanned  map[*html.Node]bool
	groups   map[groupKey][]*html.Node
	ordinal  int
	deadline time.Time
	res      Result
}

// Scan enumerates the candidate fields under root. Fields are returned in
// document order: controls inside forms first, then orphaned controls.
func Scan(root *html.Node, opts Options) Result {
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &scan{
		opts:     opts,
		ix:       buildIndex(root),
		scanned:  make(map[*html.Node]bool),
		groups:   make(map[groupKey][]*html.Node),
		deadline: opts.Now().Add(opts.Budget),
		res:      Result{Fields: []detection.CandidateField{}},
	}

	view, err := parseViewport(root)
	if err != nil {
		s.res.Errors = append(s.res.Errors, fmt.Errorf("%w: %v", ErrScan, err))
	}
	s.view = view

	doc := goquery.NewDocumentFromNode(root)
	cands := s.collect(doc)
	s.indexGroups(cands)

	for i, c := range cands {
		if opts.Now().After(s.deadline) {
			s.res.Truncated = true
			s.res.Errors = append(s.res.Errors,
				fmt.Errorf("%w: %s budget, stopped at %d of %d controls", ErrBudgetExceeded, opts.Budget, i, len(cands)))
			break
		}
		if s.scanned[c.node] {
			continue
		}
		s.visitSafe(c)
	}
	return s.res
}

// collect lists candidate controls: the in-form pass first, then the orphan
// pass over everything not claimed by a form.
func (s *scan) collect(doc *goquery.Document) []candidate {
	sel := controlSelector
	for _, extra := range s.opts.ExtraSelectors[strings.ToUpper(s.opts.Jurisdiction)] {
		if _, err := cascadia.Compile(extra); err != nil {
			s.res.Errors = append(s.res.Errors, fmt.Errorf("%w: selector %q: %v", ErrScan, extra, err))
			continue
		}
		sel += ", " + extra
	}

	var out []candidate
	claimed := make(map[*html.Node]bool)
	formIndexByID := make(map[string]int)

	forms := doc.Find("form")
	s.res.FormCount = forms.Length()
	forms.Each(func(i int, f *goquery.Selection) {
		if id, ok := f.Attr("id"); ok && id != "" {
			formIndexByID[id] = i
		}
		f.Find(sel).Each(func(_ int, c *goquery.Selection) {
			n := c.Get(0)
			if !claimed[n] {
				claimed[n] = true
				out = append(out, candidate{node: n, formIndex: i})
			}
		})
	})

	doc.Find(sel).Each(func(_ int, c *goquery.Selection) {
		n := c.Get(0)
		if claimed[n] {
			return
		}
		claimed[n] = true
		idx := -1
		if fid := attr(n, "form"); fid != "" {
			if i, ok := formIndexByID[fid]; ok {
				idx = i
			}
		}
		out = append(out, candidate{node: n, formIndex: idx})
	})
	return out
}

func (s *scan) indexGroups(cands []candidate) {
	for _, c := range cands {
		t := inputType(c.node)
		if t != "radio" && t != "checkbox" {
			continue
		}
		name := attr(c.node, "name")
		if name == "" {
			continue
		}
		k := groupKey{formIndex: c.formIndex, name: name, kind: detection.TypeRadioGroup}
		if t == "checkbox" {
			k.kind = detection.TypeCheckboxGroup
		}
		s.groups[k] = append(s.groups[k], c.node)
	}
}

// visitSafe isolates per-element failures.
func (s *scan) visitSafe(c candidate) {
	defer func() {
		if r := recover(); r != nil {
			s.res.Errors = append(s.res.Errors, fmt.Errorf("%w: %s: %v", ErrScan, describe(c.node), r))
		}
	}()
	if err := s.visit(c); err != nil {
		s.res.Errors = append(s.res.Errors, fmt.Errorf("%w: %s: %v", ErrScan, describe(c.node), err))
	}
}

func (s *scan) visit(c candidate) error {
	n := c.node
	s.scanned[n] = true
	s.res.InputCount++

	ft, ok := fieldType(n)
	if !ok {
		return nil
	}

	if ft == detection.TypeCheckbox || ft == detection.TypeRadioGroup {
		kind := detection.TypeRadioGroup
		if ft == detection.TypeCheckbox {
			kind = detection.TypeCheckboxGroup
		}
		members := s.groups[groupKey{formIndex: c.formIndex, name: attr(n, "name"), kind: kind}]
		if kind == detection.TypeRadioGroup || len(members) >= 2 {
			return s.visitGroup(c, kind, members)
		}
	}

	if hidden(n) {
		return nil
	}
	pos, err := s.position(n, ft)
	if err != nil {
		return err
	}
	if !s.visible(pos) {
		return nil
	}

	label, marked := s.resolveLabel(n)
	f := s.newField(n, ft, c.formIndex, label, pos)
	f.Required = f.Required || marked
	if ft == detection.TypeSelect {
		f.Options = selectOptions(n)
	}
	s.res.Fields = append(s.res.Fields, f)
	return nil
}

// visitGroup emits one field for a radio set (or a checkbox set of two or
// more) sharing a name within one form. Lone unnamed radios form a group of one.
func (s *scan) visitGroup(c candidate, kind detection.FieldType, members []*html.Node) error {
	if len(members) == 0 {
		members = []*html.Node{c.node}
	}
	for _, m := range members {
		s.scanned[m] = true
	}
	s.res.InputCount += len(members) - 1

	var first *html.Node
	var pos detection.Position
	var opts []string
	required := false
	for _, m := range members {
		if hidden(m) {
			continue
		}
		p, err := s.position(m, kind)
		if err != nil {
			s.res.Errors = append(s.res.Errors, fmt.Errorf("%w: %s: %v", ErrScan, describe(m), err))
			continue
		}
		if !s.visible(p) {
			continue
		}
		if first == nil {
			first, pos = m, p
		}
		if o := s.optionLabel(m); o != "" {
			opts = append(opts, o)
		}
		required = required || isRequired(m)
	}
	if first == nil {
		return nil
	}

	label, marked := groupLabel(first, attr(first, "name"))
	f := s.newField(first, kind, c.formIndex, label, pos)
	f.Required = required || marked
	f.Options = opts
	s.res.Fields = append(s.res.Fields, f)
	return nil
}

func (s *scan) newField(n *html.Node, ft detection.FieldType, formIndex int, label detection.Label, pos detection.Position) detection.CandidateField {
	f := detection.CandidateField{
		Node:        n,
		Type:        ft,
		Name:        attr(n, "name"),
		ID:          attr(n, "id"),
		Label:       label,
		Placeholder: strings.TrimSpace(attr(n, "placeholder")),
		Required:    isRequired(n),
		Position:    pos,
		FormIndex:   formIndex,
	}
	for _, k := range keptAttributes {
		if v, ok := attrOK(n, k); ok {
			if f.Attributes == nil {
				f.Attributes = make(map[string]string, len(keptAttributes))
			}
			f.Attributes[k] = v
		}
	}
	return f
}

func (s *scan) position(n *html.Node, ft detection.FieldType) (detection.Position, error) {
	p, ok, err := stampedBox(n)
	if err != nil {
		return p, err
	}
	if ok {
		return p, nil
	}
	p = syntheticBox(s.ordinal, ft)
	s.ordinal++
	return p, nil
}

func (s *scan) visible(p detection.Position) bool {
	return p.Width > 0 && p.Height > 0 && s.view.intersects(p)
}

func inputType(n *html.Node) string {
	if n.DataAtom != atom.Input {
		return ""
	}
	t := strings.ToLower(strings.TrimSpace(attr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}

// fieldType maps a control to its FieldType; ok is false for controls that
// never carry user data (hidden, submit, button, reset, image).
func fieldType(n *html.Node) (detection.FieldType, bool) {
	switch n.DataAtom {
	case atom.Select:
		return detection.TypeSelect, true
	case atom.Textarea:
		return detection.TypeTextarea, true
	case atom.Input:
	default:
		return detection.TypeText, n.Type == html.ElementNode
	}
	switch inputType(n) {
	case "hidden", "submit", "button", "reset", "image":
		return "", false
	case "email":
		return detection.TypeEmail, true
	case "tel":
		return detection.TypeTel, true
	case "number":
		return detection.TypeNumber, true
	case "date", "datetime-local", "month", "week":
		return detection.TypeDate, true
	case "password":
		return detection.TypePassword, true
	case "url":
		return detection.TypeURL, true
	case "file":
		return detection.TypeFile, true
	case "checkbox":
		return detection.TypeCheckbox, true
	case "radio":
		return detection.TypeRadioGroup, true
	}
	return detection.TypeText, true
}

func isRequired(n *html.Node) bool {
	return hasAttr(n, "required") || strings.EqualFold(attr(n, "aria-required"), "true")
}

func selectOptions(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Option {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			if t := strings.Join(strings.Fields(b.String()), " "); t != "" {
				out = append(out, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func describe(n *html.Node) string {
	var b strings.Builder
	b.WriteString(n.Data)
	if id := attr(n, "id"); id != "" {
		b.WriteString("#" + id)
	}
	if name := attr(n, "name"); name != "" {
		b.WriteString("[name=" + name + "]")
	}
	return b.String()
}
