package scanner

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return root
}

func fieldByName(t *testing.T, res Result, name string) detection.CandidateField {
	t.Helper()
	for _, f := range res.Fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("no field named %q in %d fields", name, len(res.Fields))
	return detection.CandidateField{}
}

func TestScan_EntityTypeRadioGroup(t *testing.T) {
	root := parse(t, `<form>
<fieldset><legend>Select Entity Type</legend>
<label><input type="radio" name="entity_type" value="llc"> LLC</label>
<label><input type="radio" name="entity_type" value="corp"> Corporation</label>
<label><input type="radio" name="entity_type" value="sole"> Sole Proprietorship</label>
<label><input type="radio" name="entity_type" value="partnership"> Partnership</label>
</fieldset></form>`)

	res := Scan(root, Options{})
	if len(res.Fields) != 1 {
		t.Fatalf("fields: got %d, want 1", len(res.Fields))
	}
	f := res.Fields[0]
	if f.Type != detection.TypeRadioGroup {
		t.Errorf("type: got %q, want radio_group", f.Type)
	}
	if f.Label.Text != "Select Entity Type" || f.Label.Source != detection.SourceLegend {
		t.Errorf("label: got %+v", f.Label)
	}
	want := []string{"LLC", "Corporation", "Sole Proprietorship", "Partnership"}
	if strings.Join(f.Options, "|") != strings.Join(want, "|") {
		t.Errorf("options: got %v, want %v", f.Options, want)
	}
	if res.InputCount != 4 {
		t.Errorf("InputCount: got %d, want 4", res.InputCount)
	}
}

func TestScan_LabelChain(t *testing.T) {
	root := parse(t, `<body><form>
<input name="a1" aria-label="Business Name">
<span id="lb">Federal EIN</span><input name="a2" aria-labelledby="lb">
<label for="x3">Doing Business As *</label><input id="x3" name="a3">
<label>Email address: <input type="email" name="a4"></label>
<div><span>Phone</span><input type="tel" name="a5"></div>
<div><input name="a6" placeholder="ZIP code"></div>
<div><input name="mailing_address_line1"></div>
<div><input></div>
</form></body>`)

	res := Scan(root, Options{})
	tests := []struct {
		name   string
		text   string
		source detection.LabelSource
	}{
		{"a1", "Business Name", detection.SourceAriaLabel},
		{"a2", "Federal EIN", detection.SourceAriaLabelledBy},
		{"a3", "Doing Business As", detection.SourceLabelFor},
		{"a4", "Email address", detection.SourceLabelAncestor},
		{"a5", "Phone", detection.SourcePrecedingText},
		{"a6", "ZIP code", detection.SourcePlaceholder},
		{"mailing_address_line1", "Mailing Address Line1", detection.SourceName},
		{"", detection.UnlabeledText, detection.SourceNone},
	}
	for _, tt := range tests {
		f := fieldByName(t, res, tt.name)
		if f.Label.Text != tt.text || f.Label.Source != tt.source {
			t.Errorf("%s: got %q/%s, want %q/%s", tt.name, f.Label.Text, f.Label.Source, tt.text, tt.source)
		}
	}
	if !fieldByName(t, res, "a3").Required {
		t.Error("a3: asterisk label should mark the field required")
	}
	if got := fieldByName(t, res, "a4").Type; got != detection.TypeEmail {
		t.Errorf("a4 type: got %q", got)
	}
}

func TestScan_SkipsHiddenAndNonDataControls(t *testing.T) {
	root := parse(t, `<form>
<input type="hidden" name="csrf">
<input type="submit" value="Go">
<input name="gone" style="display: none">
<div hidden><input name="inhidden"></div>
<div style="opacity:0"><input name="transparent"></div>
<input name="stamped" data-regdetect-hidden="1">
<input name="zero" data-regdetect-box="0,0,0,20">
<input name="shown">
</form>`)

	res := Scan(root, Options{})
	if len(res.Fields) != 1 || res.Fields[0].Name != "shown" {
		names := make([]string, 0, len(res.Fields))
		for _, f := range res.Fields {
			names = append(names, f.Name)
		}
		t.Errorf("fields: got %v, want [shown]", names)
	}
	if res.FormCount != 1 {
		t.Errorf("FormCount: got %d", res.FormCount)
	}
}

func TestScan_Viewport(t *testing.T) {
	root := parse(t, `<html data-regdetect-viewport="1000,800,0,0"><body><form>
<input name="top" data-regdetect-box="10,10,200,30">
<input name="near" data-regdetect-box="850,10,200,30">
<input name="far" data-regdetect-box="3000,10,200,30">
</form></body></html>`)

	res := Scan(root, Options{})
	var names []string
	for _, f := range res.Fields {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "top,near" {
		t.Errorf("fields: got %v, want [top near]", names)
	}
	if got := res.Fields[0].Position; got.Top != 10 || got.Width != 200 {
		t.Errorf("position: got %+v", got)
	}
}

func TestScan_MalformedBoxIsSkipped(t *testing.T) {
	root := parse(t, `<form>
<input name="bad" data-regdetect-box="a,b">
<input name="good">
</form>`)

	res := Scan(root, Options{})
	if len(res.Fields) != 1 || res.Fields[0].Name != "good" {
		t.Fatalf("fields: got %d", len(res.Fields))
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], ErrScan) {
		t.Errorf("errors: got %v, want one ErrScan", res.Errors)
	}
}

func TestScan_FormPassThenOrphans(t *testing.T) {
	root := parse(t, `<body>
<input name="orphan_before">
<form id="f1"><input name="in_form"></form>
<input name="linked" form="f1">
<select name="state"><option>-- choose --</option><option>DC</option><option>VA</option></select>
</body>`)

	res := Scan(root, Options{})
	var got []string
	for _, f := range res.Fields {
		got = append(got, f.Name)
	}
	if strings.Join(got, ",") != "in_form,orphan_before,linked,state" {
		t.Errorf("order: got %v", got)
	}
	if f := fieldByName(t, res, "orphan_before"); f.FormIndex != -1 {
		t.Errorf("orphan FormIndex: got %d", f.FormIndex)
	}
	if f := fieldByName(t, res, "linked"); f.FormIndex != 0 {
		t.Errorf("form= FormIndex: got %d", f.FormIndex)
	}
	sel := fieldByName(t, res, "state")
	if sel.Type != detection.TypeSelect || len(sel.Options) != 3 {
		t.Errorf("select: got %q %v", sel.Type, sel.Options)
	}
}

func TestScan_CheckboxGroups(t *testing.T) {
	root := parse(t, `<form>
<h3>Business activities</h3>
<input type="checkbox" name="act" value="retail"> Retail
<input type="checkbox" name="act" value="food"> Food service
<label><input type="checkbox" name="agree" required> I agree</label>
</form>`)

	res := Scan(root, Options{})
	if len(res.Fields) != 2 {
		t.Fatalf("fields: got %d, want 2", len(res.Fields))
	}
	g := res.Fields[0]
	if g.Type != detection.TypeCheckboxGroup || g.Label.Text != "Business activities" || g.Label.Source != detection.SourceHeading {
		t.Errorf("group: got %q %+v", g.Type, g.Label)
	}
	if strings.Join(g.Options, "|") != "Retail|Food service" {
		t.Errorf("group options: got %v", g.Options)
	}
	single := res.Fields[1]
	if single.Type != detection.TypeCheckbox || !single.Required || single.Label.Text != "I agree" {
		t.Errorf("single checkbox: got %q required=%v %+v", single.Type, single.Required, single.Label)
	}
}

func TestScan_BudgetTruncates(t *testing.T) {
	var b strings.Builder
	b.WriteString("<form>")
	for i := 0; i < 10; i++ {
		b.WriteString(`<input name="f">`)
	}
	b.WriteString("</form>")

	now := time.Unix(0, 0)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	res := Scan(parse(t, b.String()), Options{Budget: 3500 * time.Millisecond, Now: clock})
	if !res.Truncated {
		t.Fatal("Truncated: got false")
	}
	if len(res.Fields) == 0 || len(res.Fields) >= 10 {
		t.Errorf("partial fields: got %d", len(res.Fields))
	}
	if !errors.Is(res.Errors[len(res.Errors)-1], ErrBudgetExceeded) {
		t.Errorf("errors: got %v", res.Errors)
	}
}

func TestScan_ExtraSelectors(t *testing.T) {
	root := parse(t, `<form><div role="combobox" aria-label="Entity Type"></div><input name="x"></form>`)
	opts := Options{
		Jurisdiction:   "dc",
		ExtraSelectors: map[string][]string{"DC": {`[role="combobox"]`, `[[broken`}},
	}
	res := Scan(root, opts)
	if len(res.Fields) != 2 || res.Fields[0].Label.Text != "Entity Type" {
		t.Fatalf("fields: got %+v", res.Fields)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], ErrScan) {
		t.Errorf("errors: got %v", res.Errors)
	}

	res = Scan(root, Options{ExtraSelectors: opts.ExtraSelectors})
	if len(res.Fields) != 1 {
		t.Errorf("without hint: got %d fields, want 1", len(res.Fields))
	}
}

func TestScan_Empty(t *testing.T) {
	res := Scan(parse(t, `<p>No forms here</p>`), Options{})
	if res.Fields == nil || len(res.Fields) != 0 || res.FormCount != 0 || res.InputCount != 0 {
		t.Errorf("empty scan: got %+v", res)
	}
}

func TestHumanize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"business_name", "Business Name"},
		{"entityType", "Entity Type"},
		{"txtFEIN", "Txt FEIN"},
		{"owner[0][first_name]", "Owner 0 First Name"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Humanize(tt.in); got != tt.want {
			t.Errorf("Humanize(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanLabel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Business   Name * : ", "Business Name"},
		{"EIN (required)", "EIN"},
		{"*Email:", "Email"},
	}
	for _, tt := range tests {
		if got := cleanLabel(tt.in); got != tt.want {
			t.Errorf("cleanLabel(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}
