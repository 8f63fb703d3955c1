// Package fingerprint summarises the parts of a page that decide whether a
// detection pass is stale: the number of forms, the number of controls and
// the title. Text edits elsewhere in the page do not change it.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fingerprint is the structural summary of one snapshot.
type Fingerprint struct {
	Forms  int
	Inputs int
	Title  string
}

// Of walks root once and counts forms, controls and the first <title>.
func Of(root *html.Node) Fingerprint {
	var fp Fingerprint
	titleSeen := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Form:
				fp.Forms++
			case atom.Input, atom.Select, atom.Textarea:
				fp.Inputs++
			case atom.Title:
				if !titleSeen {
					titleSeen = true
					fp.Title = titleText(n)
				}
				return
			case atom.Script, atom.Style, atom.Template:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return fp
}

// String returns a short stable hash of fp.
func (fp Fingerprint) String() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%d:%s", fp.Forms, fp.Inputs, fp.Title)))
	return fmt.Sprintf("%x", h[:8])
}

// Changed reports which parts differ between two fingerprints, or nil.
func Changed(before, after Fingerprint) []string {
	var parts []string
	if before.Forms != after.Forms {
		parts = append(parts, fmt.Sprintf("forms %d->%d", before.Forms, after.Forms))
	}
	if before.Inputs != after.Inputs {
		parts = append(parts, fmt.Sprintf("inputs %d->%d", before.Inputs, after.Inputs))
	}
	if before.Title != after.Title {
		parts = append(parts, "title")
	}
	return parts
}

func titleText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
