// Package content scores the visible text of a page for business-registration
// terminology: weighted keywords, term proximity, title, heading and meta bonuses.
package content

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/regdetect/formdetect/detection"
	"github.com/hazyhaar/regdetect/formdetect/internal/jurisdiction"
)

const (
	maxTermPoints   = 60
	proximityWindow = 8
	proximityBonus  = 10
	maxProximity    = 20
	titleBonus      = 15
	headingBonus    = 8
	maxHeadingBonus = 16
	metaBonus       = 5
	bothMultiplier  = 1.2
)

// Signal is the outcome of analysing one document.
type Signal struct {
	Score         int
	TermPoints    int
	Terms         []string
	State         string
	Title         string
	Headings      []string
	FormTypeHints []detection.FormType
	Reasons       []string
}

type term struct {
	text   string
	weight int
	re     *regexp.Regexp
}

var terms = compileTerms([]term{
	{text: "combined business tax registration", weight: 15},
	{text: "business registration", weight: 10},
	{text: "business tax registration", weight: 10},
	{text: "register a business", weight: 10},
	{text: "register your business", weight: 10},
	{text: "articles of organization", weight: 10},
	{text: "articles of incorporation", weight: 10},
	{text: "certificate of formation", weight: 10},
	{text: "tax registration", weight: 8},
	{text: "registered agent", weight: 8},
	{text: "secretary of state", weight: 8},
	{text: "division of corporations", weight: 8},
	{text: "business license", weight: 8},
	{text: "limited liability company", weight: 6},
	{text: "employer identification number", weight: 6},
	{text: "doing business as", weight: 6},
	{text: "annual report", weight: 6},
	{text: "business entity", weight: 6},
	{text: "department of revenue", weight: 6},
	{text: "office of tax and revenue", weight: 6},
	{text: "fein", weight: 5},
	{text: "trade name", weight: 5},
	{text: "entity type", weight: 5},
	{text: "ein", weight: 4},
	{text: "llc", weight: 4},
	{text: "corporation", weight: 4},
	{text: "sole proprietor", weight: 4},
	{text: "sales tax", weight: 4},
	{text: "naics", weight: 4},
	{text: "partnership", weight: 3},
	{text: "withholding", weight: 3},
})

// Single-word vocabularies for the proximity bonus.
var (
	registrationWords = set("register", "registration", "registering", "formation", "form",
		"file", "filing", "incorporate", "incorporation", "organize", "organization",
		"apply", "application")
	entityWords = set("llc", "corporation", "corp", "partnership", "proprietorship",
		"nonprofit", "business", "entity", "company", "dba")
)

var (
	titlePattern = regexp.MustCompile(`\b(business|tax|entity|llc|corporations?|company)\b.*\b(registration|register|formation|application|filing|license)\b` +
		`|\b(register|registration|formation)\b.*\b(business|entity|llc|corporation|company)\b` +
		`|\barticles of (organization|incorporation)\b`)
	metaPattern = regexp.MustCompile(`\b(business registration|register a business|tax registration|llc|incorporation|secretary of state|business license)\b`)
)

// Hints are evaluated in this order; it is also the form type precedence.
var formTypeHints = []struct {
	formType detection.FormType
	re       *regexp.Regexp
}{
	{detection.FormTaxRegistration, regexp.MustCompile(`\b(tax registration|sales tax|withholding|department of revenue|office of tax and revenue)\b`)},
	{detection.FormLLCFormation, regexp.MustCompile(`\b(articles of organization|limited liability company|llc formation|form an llc)\b`)},
	{detection.FormCorporationFormation, regexp.MustCompile(`\b(articles of incorporation|incorporate|certificate of incorporation)\b`)},
	{detection.FormDBARegistration, regexp.MustCompile(`\b(doing business as|trade name|fictitious name|assumed name|dba registration)\b`)},
	{detection.FormAnnualReport, regexp.MustCompile(`\b(annual report|annual statement)\b`)},
	{detection.FormLicenseApplication, regexp.MustCompile(`\b(business license|license application|apply for a license)\b`)},
	{detection.FormBusinessRegistration, regexp.MustCompile(`\b(business registration|register a business|register your business|new business)\b`)},
}

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

func compileTerms(ts []term) []term {
	for i := range ts {
		ts[i].re = regexp.MustCompile(`\b` + regexp.QuoteMeta(ts[i].text) + `\b`)
	}
	return ts
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// AnalyzeNode is Analyze over a parsed document root.
func AnalyzeNode(root *html.Node) Signal {
	return Analyze(goquery.NewDocumentFromNode(root))
}

// Analyze scores doc. The document is not modified.
func Analyze(doc *goquery.Document) Signal {
	var sig Signal

	sig.Title = normalize(doc.Find("title").First().Text())
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if h := normalize(s.Text()); h != "" {
			sig.Headings = append(sig.Headings, h)
		}
	})

	text := strings.ToLower(VisibleText(doc))
	title := strings.ToLower(sig.Title)
	all := title + " " + text

	for _, t := range terms {
		if t.re.MatchString(all) {
			sig.TermPoints += t.weight
			sig.Terms = append(sig.Terms, t.text)
		}
	}
	if sig.TermPoints > maxTermPoints {
		sig.TermPoints = maxTermPoints
	}
	score := float64(sig.TermPoints)
	if sig.TermPoints > 0 {
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("%d registration terms %+d", len(sig.Terms), sig.TermPoints))
	}

	if p := proximity(all); p > 0 {
		score += float64(p)
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("term proximity %+d", p))
	}

	titleHit := titlePattern.MatchString(title)
	if titleHit {
		score += titleBonus
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("title %+d", titleBonus))
	}

	headingPts := 0
	for _, h := range sig.Headings {
		if titlePattern.MatchString(strings.ToLower(h)) {
			headingPts += headingBonus
		}
	}
	headingPts = min(headingPts, maxHeadingBonus)
	if headingPts > 0 {
		score += float64(headingPts)
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("headings %+d", headingPts))
	}

	if metaMatches(doc) {
		score += metaBonus
		sig.Reasons = append(sig.Reasons, fmt.Sprintf("meta %+d", metaBonus))
	}

	if titleHit && headingPts > 0 {
		score *= bothMultiplier
		sig.Reasons = append(sig.Reasons, "title and heading x1.2")
	}
	sig.Score = int(math.Min(math.Round(score), 100))

	sig.State = jurisdiction.FromText(sig.Title + " " + strings.Join(sig.Headings, " "))
	if sig.State == "" {
		sig.State = jurisdiction.FromText(text)
	}
	if sig.State != "" {
		sig.Reasons = append(sig.Reasons, "jurisdiction "+sig.State+" from content")
	}

	for _, h := range formTypeHints {
		if h.re.MatchString(all) {
			sig.FormTypeHints = append(sig.FormTypeHints, h.formType)
		}
	}
	return sig
}

// VisibleText returns the whitespace-normalised text a user would read: script,
// style, noscript, template and hidden subtrees are dropped before stripping markup.
func VisibleText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		body = doc.Selection
	}
	clone := body.Clone()
	clone.Find(`script, style, noscript, template, [hidden], [aria-hidden="true"], [type="hidden"]`).Remove()
	clone.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style := strings.ReplaceAll(strings.ToLower(s.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			s.Remove()
		}
	})
	clone.Find("[" + detection.AttrHidden + "]").Remove()

	markup, err := goquery.OuterHtml(clone)
	if err != nil {
		return normalize(clone.Text())
	}
	return normalize(html.UnescapeString(textPolicy.Sanitize(markup)))
}

func metaMatches(doc *goquery.Document) bool {
	hit := false
	doc.Find(`meta[name="description"], meta[name="keywords"], meta[property="og:title"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if metaPattern.MatchString(strings.ToLower(s.AttrOr("content", ""))) {
			hit = true
		}
		return !hit
	})
	return hit
}

// proximity awards a bonus per distinct (registration word, entity word) pair
// found within proximityWindow words of each other.
func proximity(text string) int {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	pairs := make(map[string]bool)
	for i, w := range words {
		if !registrationWords[w] {
			continue
		}
		lo, hi := max(0, i-proximityWindow), min(len(words)-1, i+proximityWindow)
		for j := lo; j <= hi; j++ {
			if j != i && entityWords[words[j]] {
				pairs[w+"+"+words[j]] = true
			}
		}
		if len(pairs)*proximityBonus >= maxProximity {
			break
		}
	}
	return min(len(pairs)*proximityBonus, maxProximity)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
