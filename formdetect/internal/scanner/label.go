package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

const (
	maxLabelRunes  = 120
	precedingDepth = 3
)

// resolveLabel runs the label chain for a single control. The second return
// value reports whether the winning text carried a required marker.
func (s *scan) resolveLabel(n *html.Node) (detection.Label, bool) {
	if v := attr(n, "aria-label"); strings.TrimSpace(v) != "" {
		return mkLabel(v, detection.SourceAriaLabel)
	}
	if ids := strings.Fields(attr(n, "aria-labelledby")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if t, ok := s.ix.byID[id]; ok {
				if txt := text(t); txt != "" {
					parts = append(parts, txt)
				}
			}
		}
		if len(parts) > 0 {
			return mkLabel(strings.Join(parts, " "), detection.SourceAriaLabelledBy)
		}
	}
	if id := attr(n, "id"); id != "" {
		if l, ok := s.ix.labelFor[id]; ok {
			if txt := text(l); txt != "" {
				return mkLabel(txt, detection.SourceLabelFor)
			}
		}
	}
	if l := closest(n, atom.Label); l != nil {
		if txt := text(l); txt != "" {
			return mkLabel(txt, detection.SourceLabelAncestor)
		}
	}
	if txt := precedingText(n); txt != "" {
		return mkLabel(txt, detection.SourcePrecedingText)
	}
	if v := attr(n, "placeholder"); strings.TrimSpace(v) != "" {
		return mkLabel(v, detection.SourcePlaceholder)
	}
	if v := attr(n, "name"); v != "" {
		if h := Humanize(v); h != "" {
			return detection.Label{Text: h, Source: detection.SourceName}, false
		}
	}
	return detection.Label{Text: detection.UnlabeledText, Source: detection.SourceNone}, false
}

// groupLabel labels a radio or checkbox group from its enclosing legend, the
// nearest preceding heading, or its humanised name.
func groupLabel(first *html.Node, name string) (detection.Label, bool) {
	if fs := closest(first, atom.Fieldset); fs != nil {
		for c := fs.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Legend {
				if txt := text(c); txt != "" {
					return mkLabel(txt, detection.SourceLegend)
				}
			}
		}
	}
	if h := precedingHeading(first); h != nil {
		if txt := text(h); txt != "" {
			return mkLabel(txt, detection.SourceHeading)
		}
	}
	if h := Humanize(name); h != "" {
		return detection.Label{Text: h, Source: detection.SourceName}, false
	}
	return detection.Label{Text: detection.UnlabeledText, Source: detection.SourceNone}, false
}

// optionLabel names one radio or checkbox inside a group.
func (s *scan) optionLabel(n *html.Node) string {
	if v := strings.TrimSpace(attr(n, "aria-label")); v != "" {
		return v
	}
	if id := attr(n, "id"); id != "" {
		if l, ok := s.ix.labelFor[id]; ok {
			if txt := text(l); txt != "" {
				return cleanLabel(txt)
			}
		}
	}
	if l := closest(n, atom.Label); l != nil {
		if txt := text(l); txt != "" {
			return cleanLabel(txt)
		}
	}
	for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
		if isControl(sib) || (sib.Type == html.ElementNode && containsControl(sib)) {
			break
		}
		var txt string
		if sib.Type == html.TextNode {
			txt = strings.Join(strings.Fields(sib.Data), " ")
		} else if sib.Type == html.ElementNode {
			txt = text(sib)
		}
		if txt != "" {
			return cleanLabel(txt)
		}
	}
	return attr(n, "value")
}

// precedingText walks previous siblings of n, then of its ancestors, and
// returns the first text not belonging to another control.
func precedingText(n *html.Node) string {
	cur := n
	for depth := 0; depth < precedingDepth && cur != nil; depth++ {
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			switch sib.Type {
			case html.TextNode:
				if txt := strings.Join(strings.Fields(sib.Data), " "); txt != "" {
					return txt
				}
			case html.ElementNode:
				if containsControl(sib) {
					return ""
				}
				switch sib.DataAtom {
				case atom.Script, atom.Style, atom.Template, atom.Br, atom.Hr, atom.Img:
					continue
				}
				if txt := text(sib); txt != "" {
					return txt
				}
			}
		}
		cur = cur.Parent
		if cur == nil || cur.Type != html.ElementNode {
			return ""
		}
		switch cur.DataAtom {
		case atom.Form, atom.Body, atom.Fieldset, atom.Html:
			return ""
		}
	}
	return ""
}

// precedingHeading returns the closest h1-h6 (or role=heading) element
// before n in document order.
func precedingHeading(n *html.Node) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if h := lastHeading(sib); h != nil {
				return h
			}
		}
		if cur.Parent != nil && cur.Parent.Type == html.ElementNode && cur.Parent.DataAtom == atom.Body {
			break
		}
	}
	return nil
}

func lastHeading(n *html.Node) *html.Node {
	if n.Type != html.ElementNode {
		return nil
	}
	if isHeading(n) {
		return n
	}
	for c := n.LastChild; c != nil; c = c.PrevSibling {
		if h := lastHeading(c); h != nil {
			return h
		}
	}
	return nil
}

func isHeading(n *html.Node) bool {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return attr(n, "role") == "heading"
}

func mkLabel(raw string, src detection.LabelSource) (detection.Label, bool) {
	return detection.Label{Text: cleanLabel(raw), Source: src}, strings.Contains(raw, "*")
}

// cleanLabel normalises whitespace, drops required markers and trailing
// colons, and bounds the length.
func cleanLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "(required)", "")
	s = strings.TrimFunc(s, func(r rune) bool {
		return r == '*' || r == ':' || unicode.IsSpace(r)
	})
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxLabelRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxLabelRunes]))
	}
	return s
}

// Humanize turns an identifier such as "business_name", "entityType" or
// "owner[0][first_name]" into space-separated title-cased words.
func Humanize(id string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	rs := []rune(id)
	for i, r := range rs {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && len(cur) > 0 &&
			(unicode.IsLower(cur[len(cur)-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
