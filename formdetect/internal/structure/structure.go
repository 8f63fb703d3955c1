// Package structure scores how much a page looks like a data-entry form from
// its markup alone: forms, field counts, submit controls, multi-step wizards,
// payment, captcha and upload heuristics.
package structure

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

// Signal is the structural score with the evidence behind it.
type Signal struct {
	Score      int
	FormCount  int
	FieldCount int
	MultiStep  bool
	Reasons    []string
}

var (
	stepText     = regexp.MustCompile(`(?i)\bstep\s+\d+\s+(of|/)\s+\d+\b|\bpage\s+\d+\s+of\s+\d+\b`)
	stepClass    = regexp.MustCompile(`(?i)\b(wizard|stepper|steps?|progress(-?bar)?|multi-?step)\b`)
	paymentAttr  = regexp.MustCompile(`(?i)\b(cc-number|cc-exp|cc-csc|card-?number|credit-?card|cvv|cvc|payment)\b`)
	captchaClass = regexp.MustCompile(`(?i)\b(g-recaptcha|h-captcha|cf-turnstile|captcha)\b`)
	submitText   = regexp.MustCompile(`(?i)\b(submit|continue|next|register|apply|file|save)\b`)
)

// AnalyzeNode is Analyze over a parsed document root.
func AnalyzeNode(root *html.Node, fields []detection.CandidateField) Signal {
	return Analyze(goquery.NewDocumentFromNode(root), fields)
}

// Analyze scores doc given the visible fields found by the scanner.
func Analyze(doc *goquery.Document, fields []detection.CandidateField) Signal {
	sig := Signal{
		FormCount:  doc.Find("form").Length(),
		FieldCount: len(fields),
	}
	inputs := doc.Find("input, select, textarea").Length()
	if sig.FormCount == 0 && inputs == 0 {
		sig.Reasons = append(sig.Reasons, "no forms and no inputs")
		return sig
	}

	score := 0
	add := func(n int, reason string) {
		score += n
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("%s %+d", reason, n))
	}

	if sig.FormCount > 0 {
		add(30, "form present")
	}
	if sig.FieldCount >= 3 {
		add(15, "3+ visible fields")
	}
	if sig.FieldCount >= 8 {
		add(10, "8+ visible fields")
	}
	if hasSubmit(doc) {
		add(10, "submit control")
	}
	for _, f := range fields {
		if f.Required {
			add(5, "required fields")
			break
		}
	}
	if doc.Find("fieldset").Length() > 0 {
		add(5, "fieldsets")
	}
	if multiStep(doc) {
		sig.MultiStep = true
		add(10, "multi-step indicators")
	}
	if hasPayment(doc) {
		add(5, "payment fields")
	}
	if hasCaptcha(doc) {
		add(5, "captcha")
	}
	if doc.Find(`input[type="file"]`).Length() > 0 {
		add(5, "file upload")
	}

	sig.Score = min(score, 100)
	return sig
}

func hasSubmit(doc *goquery.Document) bool {
	if doc.Find(`input[type="submit"], input[type="image"], button[type="submit"]`).Length() > 0 {
		return true
	}
	found := false
	// A <button> inside a form submits unless typed otherwise.
	doc.Find("form button, [role=button]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ := strings.ToLower(s.AttrOr("type", ""))
		if goquery.NodeName(s) == "button" && (typ == "" || typ == "submit") {
			found = true
		} else if submitText.MatchString(s.Text()) {
			found = true
		}
		return !found
	})
	return found
}

func multiStep(doc *goquery.Document) bool {
	if doc.Find(`progress, [role="progressbar"], [aria-current="step"]`).Length() > 0 {
		return true
	}
	if stepText.MatchString(doc.Find("body").Text()) {
		return true
	}
	found := false
	doc.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = stepClass.MatchString(s.AttrOr("class", ""))
		return !found
	})
	return found
}

func hasPayment(doc *goquery.Document) bool {
	found := false
	doc.Find("input, select").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, a := range []string{"autocomplete", "name", "id"} {
			if paymentAttr.MatchString(s.AttrOr(a, "")) {
				found = true
				break
			}
		}
		return !found
	})
	return found
}

func hasCaptcha(doc *goquery.Document) bool {
	if doc.Find(`iframe[src*="recaptcha"], iframe[src*="hcaptcha"], iframe[src*="turnstile"]`).Length() > 0 {
		return true
	}
	found := false
	doc.Find("[class], [id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = captchaClass.MatchString(s.AttrOr("class", "")) || captchaClass.MatchString(s.AttrOr("id", ""))
		return !found
	})
	return found
}
