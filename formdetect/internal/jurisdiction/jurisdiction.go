// Package jurisdiction maps US state and District of Columbia identifiers
// found in hosts, paths and page text to two-letter codes.
package jurisdiction

import (
	"regexp"
	"sort"
	"strings"
)

var names = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "DC": "District of Columbia",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho", "IL": "Illinois",
	"IN": "Indiana", "IA": "Iowa", "KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana",
	"ME": "Maine", "MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma", "OR": "Oregon",
	"PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina", "SD": "South Dakota",
	"TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont", "VA": "Virginia",
	"WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
}

// Portals whose host carries no state label.
var knownHosts = map[string]string{
	"sunbiz.org":             "FL",
	"dos.myflorida.com":      "FL",
	"corp.delaware.gov":      "DE",
	"icis.corp.delaware.gov": "DE",
	"egov.sos.state.or.us":   "OR",
}

// Two-letter path segments that are more often words or locales than states.
var ambiguousSegments = map[string]bool{
	"in": true, "me": true, "or": true, "ok": true, "hi": true,
	"id": true, "co": true, "de": true, "la": true, "pa": true,
}

var (
	compactNames []compactName
	textPattern  *regexp.Regexp
	textAliases  = map[string]string{
		"washington, d.c": "DC",
		"washington d.c":  "DC",
		"washington, dc":  "DC",
		"washington dc":   "DC",
	}
)

type compactName struct {
	compact string
	code    string
}

func init() {
	for code, name := range names {
		compactNames = append(compactNames, compactName{
			compact: strings.ToLower(strings.ReplaceAll(name, " ", "")),
			code:    code,
		})
	}
	// Longest first so that "westvirginia" wins over "virginia"
	// and "arkansas" over "kansas".
	sort.Slice(compactNames, func(i, j int) bool {
		if len(compactNames[i].compact) != len(compactNames[j].compact) {
			return len(compactNames[i].compact) > len(compactNames[j].compact)
		}
		return compactNames[i].compact < compactNames[j].compact
	})

	var alts []string
	for alias := range textAliases {
		alts = append(alts, regexp.QuoteMeta(alias))
	}
	for _, name := range names {
		alts = append(alts, regexp.QuoteMeta(strings.ToLower(name)))
	}
	sort.Slice(alts, func(i, j int) bool {
		if len(alts[i]) != len(alts[j]) {
			return len(alts[i]) > len(alts[j])
		}
		return alts[i] < alts[j]
	})
	textPattern = regexp.MustCompile(`\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// Valid reports whether code is a known two-letter code (case-insensitive).
func Valid(code string) bool {
	_, ok := names[strings.ToUpper(code)]
	return ok
}

// Name returns the full name for code, or "" when unknown.
func Name(code string) string {
	return names[strings.ToUpper(code)]
}

// Codes returns all codes in alphabetical order.
func Codes() []string {
	out := make([]string, 0, len(names))
	for c := range names {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// FromHost extracts a code from a hostname such as "mytax.dc.gov",
// "sos.state.tx.us" or "sos.texas.gov". Returns "" when none is found.
func FromHost(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if code, ok := knownHosts[host]; ok {
		return code
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}
	tld := labels[len(labels)-1]
	if tld != "gov" && tld != "us" {
		return ""
	}

	// Rightmost state label before the TLD: "x.sos.ca.gov", "sos.state.tx.us".
	for i := len(labels) - 2; i >= 0; i-- {
		if len(labels[i]) == 2 && Valid(labels[i]) {
			return strings.ToUpper(labels[i])
		}
	}

	compact := strings.ReplaceAll(strings.Join(labels[:len(labels)-1], ""), "-", "")
	for _, cn := range compactNames {
		if strings.Contains(compact, cn.compact) {
			return cn.code
		}
	}
	return ""
}

// FromPath extracts a code from a "/xx/" path segment or a state/jurisdiction
// query parameter value.
func FromPath(path string, query map[string][]string) string {
	for _, key := range []string{"state", "jurisdiction", "st"} {
		for _, v := range query[key] {
			if len(v) == 2 && Valid(v) {
				return strings.ToUpper(v)
			}
		}
	}
	for _, seg := range strings.Split(strings.ToLower(path), "/") {
		if len(seg) == 2 && !ambiguousSegments[seg] && Valid(seg) {
			return strings.ToUpper(seg)
		}
	}
	return ""
}

// FromText returns the code of the earliest state name mentioned in text.
func FromText(text string) string {
	m := textPattern.FindString(strings.ToLower(text))
	if m == "" {
		return ""
	}
	if code, ok := textAliases[m]; ok {
		return code
	}
	for code, name := range names {
		if strings.ToLower(name) == m {
			return code
		}
	}
	return ""
}
