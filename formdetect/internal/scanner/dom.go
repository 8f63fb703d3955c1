package scanner

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attrOK(n, key)
	return ok
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findElement(c, a); f != nil {
			return f
		}
	}
	return nil
}

func closest(n *html.Node, a atom.Atom) *html.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.DataAtom == a {
			return cur
		}
	}
	return nil
}

func isControl(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Input, atom.Select, atom.Textarea, atom.Button:
		return true
	}
	return false
}

func containsControl(n *html.Node) bool {
	if isControl(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if containsControl(c) {
			return true
		}
	}
	return false
}

// text returns the whitespace-normalised text of n, skipping nested controls,
// option lists and non-rendered content.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if isControl(n) {
				return
			}
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Option, atom.Datalist:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// index maps ids to elements and label[for] targets to their labels.
type index struct {
	byID     map[string]*html.Node
	labelFor map[string]*html.Node
}

func buildIndex(root *html.Node) index {
	ix := index{byID: make(map[string]*html.Node), labelFor: make(map[string]*html.Node)}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := attr(n, "id"); id != "" {
				if _, dup := ix.byID[id]; !dup {
					ix.byID[id] = n
				}
			}
			if n.DataAtom == atom.Label {
				if f := attr(n, "for"); f != "" {
					if _, dup := ix.labelFor[f]; !dup {
						ix.labelFor[f] = n
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return ix
}
