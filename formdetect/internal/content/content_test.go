package content

import (
	"slices"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

func parse(t *testing.T, src string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

const dcPage = `<html><head>
<title>Combined Business Tax Registration | MyTax.DC.gov</title>
<meta name="description" content="Tax registration for new businesses in the District of Columbia">
</head><body>
<h1>Combined Business Tax Registration (FR-500)</h1>
<p>Office of Tax and Revenue, Washington, DC. Use this form to register your business entity for sales tax and withholding.</p>
<script>var x = "articles of incorporation";</script>
<form><label for="bn">Business Name</label><input id="bn" name="business_name"></form>
</body></html>`

func TestAnalyze_RegistrationPage(t *testing.T) {
	sig := Analyze(parse(t, dcPage))

	if sig.State != "DC" {
		t.Errorf("State: got %q, want DC", sig.State)
	}
	if sig.Score < 50 {
		t.Errorf("Score: got %d, want >= 50 (reasons %v)", sig.Score, sig.Reasons)
	}
	if !slices.Contains(sig.Terms, "combined business tax registration") {
		t.Errorf("Terms: missing combined registration term in %v", sig.Terms)
	}
	if len(sig.FormTypeHints) == 0 || sig.FormTypeHints[0] != detection.FormTaxRegistration {
		t.Errorf("FormTypeHints: got %v, want tax_registration first", sig.FormTypeHints)
	}
	if sig.Title == "" || len(sig.Headings) != 1 {
		t.Errorf("title/headings: got %q %v", sig.Title, sig.Headings)
	}
}

func TestAnalyze_IgnoresScriptText(t *testing.T) {
	sig := Analyze(parse(t, dcPage))
	if slices.Contains(sig.Terms, "articles of incorporation") {
		t.Error("script content counted as visible text")
	}
}

func TestAnalyze_Blog(t *testing.T) {
	sig := Analyze(parse(t, `<html><head><title>My travel blog</title></head>
<body><h1>Ten beaches to visit</h1><p>Sun, sand and a good book.</p></body></html>`))
	if sig.Score != 0 {
		t.Errorf("Score: got %d, want 0 (reasons %v)", sig.Score, sig.Reasons)
	}
	if sig.State != "" {
		t.Errorf("State: got %q, want empty", sig.State)
	}
	if len(sig.FormTypeHints) != 0 {
		t.Errorf("FormTypeHints: got %v", sig.FormTypeHints)
	}
}

func TestAnalyze_ScoreBounded(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><head><title>Business Registration - Register a Business LLC</title>")
	b.WriteString(`<meta name="keywords" content="business registration, llc"></head><body>`)
	for _, tm := range terms {
		b.WriteString("<h2>Business registration: " + tm.text + "</h2><p>" + tm.text + "</p>")
	}
	b.WriteString("</body></html>")

	sig := Analyze(parse(t, b.String()))
	if sig.Score < 0 || sig.Score > 100 {
		t.Errorf("Score: got %d, want within [0,100]", sig.Score)
	}
	if sig.TermPoints != maxTermPoints {
		t.Errorf("TermPoints: got %d, want capped at %d", sig.TermPoints, maxTermPoints)
	}
}

func TestVisibleText_DropsHidden(t *testing.T) {
	doc := parse(t, `<body><p>shown</p><p hidden>secret1</p>
<div style="display: none">secret2</div><span data-regdetect-hidden="1">secret3</span>
<noscript>secret4</noscript><p>a &amp; b</p></body>`)
	got := VisibleText(doc)
	for _, s := range []string{"secret1", "secret2", "secret3", "secret4"} {
		if strings.Contains(got, s) {
			t.Errorf("VisibleText: %q leaked into %q", s, got)
		}
	}
	if !strings.Contains(got, "shown") || !strings.Contains(got, "a & b") {
		t.Errorf("VisibleText: got %q", got)
	}
	if doc.Find("[hidden]").Length() != 1 {
		t.Error("VisibleText modified the document")
	}
}

func TestProximity(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"register your llc today", 10},
		{"register an llc or a corporation online", 20},
		{"register one two three four five six seven eight nine llc", 0},
		{"nothing relevant", 0},
	}
	for _, tt := range tests {
		if got := proximity(tt.text); got != tt.want {
			t.Errorf("proximity(%q): got %d, want %d", tt.text, got, tt.want)
		}
	}
}
