package scanner

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/regdetect/formdetect/detection"
)

// Tolerance added on every side of the viewport before the intersection test.
const viewportTolerance = 100

// Synthesised geometry for trees that carry no host-stamped boxes.
const (
	syntheticRow    = 48
	syntheticWidth  = 200
	syntheticHeight = 32
	syntheticToggle = 16
)

// viewport is the visible window in document coordinates. A nil *viewport
// means the tree carries no layout information and every box is in view.
type viewport struct {
	width, height, scrollX, scrollY float64
}

func parseViewport(root *html.Node) (*viewport, error) {
	h := findElement(root, atom.Html)
	if h == nil {
		return nil, nil
	}
	raw, ok := attrOK(h, detection.AttrViewport)
	if !ok {
		return nil, nil
	}
	v, err := parseFloats(raw, 4)
	if err != nil {
		return nil, fmt.Errorf("viewport %q: %w", raw, err)
	}
	return &viewport{width: v[0], height: v[1], scrollX: v[2], scrollY: v[3]}, nil
}

func (v *viewport) intersects(p detection.Position) bool {
	if v == nil {
		return true
	}
	left := v.scrollX - viewportTolerance
	top := v.scrollY - viewportTolerance
	right := v.scrollX + v.width + viewportTolerance
	bottom := v.scrollY + v.height + viewportTolerance
	return p.Left < right && p.Left+p.Width > left && p.Top < bottom && p.Top+p.Height > top
}

// stampedBox returns the host-stamped box of n. ok is false when n has none.
func stampedBox(n *html.Node) (p detection.Position, ok bool, err error) {
	raw, ok := attrOK(n, detection.AttrBox)
	if !ok {
		return p, false, nil
	}
	v, err := parseFloats(raw, 4)
	if err != nil {
		return p, true, fmt.Errorf("box %q: %w", raw, err)
	}
	if v[2] < 0 || v[3] < 0 {
		return p, true, fmt.Errorf("box %q: negative size", raw)
	}
	return detection.Position{Top: v[0], Left: v[1], Width: v[2], Height: v[3]}, true, nil
}

func syntheticBox(ordinal int, t detection.FieldType) detection.Position {
	p := detection.Position{
		Top:    float64(ordinal * syntheticRow),
		Width:  syntheticWidth,
		Height: syntheticHeight,
	}
	if t == detection.TypeCheckbox || t == detection.TypeRadioGroup || t == detection.TypeCheckboxGroup {
		p.Width, p.Height = syntheticToggle, syntheticToggle
	}
	return p
}

// hidden reports whether n or one of its ancestors is hidden by the host stamp,
// the hidden attribute, an inline style or an inert container.
func hidden(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		switch cur.DataAtom {
		case atom.Template, atom.Noscript, atom.Script, atom.Style, atom.Head:
			return true
		}
		if v, ok := attrOK(cur, detection.AttrHidden); ok && v != "0" {
			return true
		}
		if hasAttr(cur, "hidden") {
			return true
		}
		if styleHides(attr(cur, "style")) {
			return true
		}
	}
	return false
}

func styleHides(style string) bool {
	if style == "" {
		return false
	}
	for _, decl := range strings.Split(strings.ToLower(style), ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.TrimSpace(prop)
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		switch prop {
		case "display":
			if val == "none" {
				return true
			}
		case "visibility":
			if val == "hidden" || val == "collapse" {
				return true
			}
		case "opacity":
			if f, err := strconv.ParseFloat(val, 64); err == nil && f <= 0 {
				return true
			}
		}
	}
	return false
}

func parseFloats(raw string, n int) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
