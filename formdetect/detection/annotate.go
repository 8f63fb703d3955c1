package detection

// Attributes a rendering host stamps onto the DOM before serialising it, so
// that the scanner can apply layout-aware visibility rules to a static tree.
const (
	// AttrBox holds "top,left,width,height" in CSS pixels, document-relative.
	AttrBox = "data-regdetect-box"
	// AttrHidden is "1" when the computed style hides the element
	// (display:none, visibility:hidden or opacity:0).
	AttrHidden = "data-regdetect-hidden"
	// AttrViewport, set on <html>, holds "width,height,scrollX,scrollY".
	AttrViewport = "data-regdetect-viewport"
)
