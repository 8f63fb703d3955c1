package browserhost

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var shellMarkers = [][]byte{
	[]byte(`<div id="root"></div>`),
	[]byte(`<div id="app"></div>`),
	[]byte(`<div id="__next"></div>`),
	[]byte("<noscript>you need to enable javascript"),
	[]byte("<noscript>enable javascript"),
}

// IsSufficient reports whether a fetched document can be analysed without
// a browser: it renders form controls, or carries enough visible text
// relative to markup and no client-side application shell.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, m := range shellMarkers {
		if bytes.Contains(lower, m) {
			return false
		}
	}

	text, markup, controls := measure(body)
	if controls > 0 {
		return true
	}
	total := text + markup
	if total == 0 || text < 200 {
		return false
	}
	return float64(text)/float64(total) >= 0.10
}

// measure counts non-space text bytes outside script and style, markup bytes,
// and form controls.
func measure(body []byte) (text, markup, controls int) {
	z := html.NewTokenizer(bytes.NewReader(body))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return text, markup, controls
		case html.TextToken:
			raw := z.Raw()
			if skip > 0 {
				markup += len(raw)
				continue
			}
			text += len(strings.Join(strings.Fields(string(raw)), ""))
		case html.StartTagToken, html.SelfClosingTagToken:
			markup += len(z.Raw())
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style:
				if tt == html.StartTagToken {
					skip++
				}
			case atom.Input, atom.Select, atom.Textarea:
				if skip == 0 {
					controls++
				}
			}
		case html.EndTagToken:
			markup += len(z.Raw())
			name, _ := z.TagName()
			if a := atom.Lookup(name); (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
		default:
			markup += len(z.Raw())
		}
	}
}
