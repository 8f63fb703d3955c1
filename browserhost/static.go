// Package browserhost provides the pages a detection lifecycle watches: a static
// document, a document fetched over HTTP, or a live tab in a headless
// Chrome driven through rod.
package browserhost

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hazyhaar/regdetect/formdetect"
	"github.com/hazyhaar/regdetect/lifecycle"
)

// Static serves a fixed document. Update and Navigate replace it and notify
// subscribers, as a live page would.
type Static struct {
	*listeners

	mu   sync.Mutex
	url  string
	html []byte
}

var _ lifecycle.Host = (*Static)(nil)

// NewStatic creates a host serving html as the page at url.
func NewStatic(url string, html []byte) *Static {
	return &Static{listeners: newListeners(), url: url, html: bytes.Clone(html)}
}

// OpenFile reads an HTML file. url is the address the document is reported
// under; empty means a file:// URL.
func OpenFile(path, url string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("browserhost: %w", err)
	}
	if url == "" {
		url = "file://" + path
	}
	return NewStatic(url, b), nil
}

func (s *Static) Snapshot(ctx context.Context) (formdetect.Page, error) {
	if err := ctx.Err(); err != nil {
		return formdetect.Page{}, err
	}
	s.mu.Lock()
	url, html := s.url, s.html
	s.mu.Unlock()
	return formdetect.ParsePage(url, bytes.NewReader(html))
}

// Update replaces the document and reports one mutation.
func (s *Static) Update(html []byte) {
	s.mu.Lock()
	s.html = bytes.Clone(html)
	s.mu.Unlock()
	s.mutated()
}

// Navigate replaces URL and document and reports a navigation of kind.
func (s *Static) Navigate(kind, url string, html []byte) {
	s.mu.Lock()
	s.url = url
	s.html = bytes.Clone(html)
	s.mu.Unlock()
	s.navigated(lifecycle.Navigation{Kind: kind, URL: url})
	if kind == lifecycle.NavFull {
		s.loaded()
	}
}
