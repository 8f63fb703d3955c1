// Package urlsignal scores a page URL for government and business-registration
// signals and derives the URL pattern, root and jurisdiction used downstream.
package urlsignal

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hazyhaar/regdetect/formdetect/internal/jurisdiction"
)

const (
	MaxDomainPoints  = 20
	MaxPatternPoints = 15
	stateBonus       = 20
)

// Signal is the outcome of analysing one URL.
type Signal struct {
	Score         int      // 0-100
	DomainPoints  int      // 0-MaxDomainPoints
	PatternPoints int      // 0-MaxPatternPoints
	Government    bool
	State         string
	Pattern       string
	Root          string
	Reasons       []string
}

type domainRule struct {
	re     *regexp.Regexp
	points int
	gov    bool
	reason string
}

// Evaluated in order; the first match sets the domain points.
var domainRules = []domainRule{
	{regexp.MustCompile(`(^|\.)gov$`), 20, true, "government .gov domain"},
	{regexp.MustCompile(`(^|\.)state\.[a-z]{2}\.us$`), 18, true, "state.xx.us domain"},
	{regexp.MustCompile(`(^|\.)[a-z]{2}\.us$`), 18, true, "xx.us domain"},
	{regexp.MustCompile(`(^|\.)(sunbiz\.org|myflorida\.com|bizfile\.[a-z.]+)$`), 18, true, "state business portal"},
	{regexp.MustCompile(`(^|\.)us$`), 8, false, ".us domain"},
	{regexp.MustCompile(`(^|\.)org$`), 2, false, ".org domain"},
}

var (
	strongTerms = []string{
		"register", "registration", "business", "entity", "formation", "incorporat",
		"llc", "corporation", "fein", "sos", "dba", "annual-report", "annualreport",
		"new-business", "newbusiness",
	}
	weakTerms = []string{
		"license", "tax", "ein", "filing", "file", "apply", "application", "form",
		"corp", "account", "permit", "onestop", "one-stop",
	}
	negativeTerms = []string{"blog", "news", "article", "shop", "cart", "login", "signin", "careers"}

	tokenSplit = regexp.MustCompile(`[/\-_.?=&+]+`)
	idSegment  = regexp.MustCompile(`^(\d+|[0-9a-f]{16,}|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

// Analyze scores rawURL. It never fails: an unparsable URL yields a zero signal.
func Analyze(rawURL string) Signal {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Signal{Reasons: []string{"unparsable url"}}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	sig := Signal{
		Root:    host,
		Pattern: Pattern(u),
	}

	for _, r := range domainRules {
		if r.re.MatchString(host) {
			sig.DomainPoints = r.points
			sig.Government = r.gov
			sig.Reasons = append(sig.Reasons, r.reason)
			break
		}
	}

	sig.PatternPoints = patternPoints(u, &sig.Reasons)

	sig.State = jurisdiction.FromHost(host)
	if sig.State == "" {
		sig.State = jurisdiction.FromPath(u.Path, u.Query())
	}
	if sig.State != "" {
		sig.Reasons = append(sig.Reasons, "jurisdiction "+sig.State+" from url")
	}

	score := 2*sig.DomainPoints + 2*sig.PatternPoints
	if sig.State != "" {
		score += stateBonus
	}
	sig.Score = clamp(score, 0, 100)
	return sig
}

// tokenMatches reports whether tok is term, or starts with it for terms
// longer than three letters.
func tokenMatches(tok, term string) bool {
	return tok == term || (len(term) > 3 && strings.HasPrefix(tok, term))
}

// hasTerm reports whether term occurs in tokens. A hyphenated term must match
// consecutive tokens.
func hasTerm(tokens []string, term string) bool {
	parts := strings.Split(term, "-")
	for i := 0; i+len(parts) <= len(tokens); i++ {
		ok := true
		for j, p := range parts {
			if !tokenMatches(tokens[i+j], p) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func patternPoints(u *url.URL, reasons *[]string) int {
	text := strings.ToLower(u.Path + "?" + u.RawQuery)
	tokens := tokenSplit.Split(text, -1)

	pts := 0
	seen := make(map[string]bool)
	hit := func(term string, n int) {
		if seen[term] {
			return
		}
		seen[term] = true
		pts += n
		*reasons = append(*reasons, fmt.Sprintf("url term %q %+d", term, n))
	}

	for _, term := range strongTerms {
		if hasTerm(tokens, term) {
			hit(term, 5)
		}
	}
	for _, term := range weakTerms {
		if hasTerm(tokens, term) {
			hit(term, 3)
		}
	}
	if pts > MaxPatternPoints {
		pts = MaxPatternPoints
	}
	for _, term := range negativeTerms {
		for _, tok := range tokens {
			if tok == term {
				pts -= 5
				*reasons = append(*reasons, fmt.Sprintf("url term %q -5", term))
				break
			}
		}
	}
	return clamp(pts, 0, MaxPatternPoints)
}

// Pattern normalises u into the key used by adaptive history: host without
// "www.", path with identifier-like segments replaced by "*", no query.
func Pattern(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segs := strings.Split(strings.Trim(strings.ToLower(u.Path), "/"), "/")
	out := segs[:0]
	for _, s := range segs {
		if s == "" {
			continue
		}
		if idSegment.MatchString(s) {
			s = "*"
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return host
	}
	return host + "/" + strings.Join(out, "/")
}

// PatternOf is Pattern for a raw URL string; it returns "" when unparsable.
func PatternOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return Pattern(u)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
