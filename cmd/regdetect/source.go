package main

import (
	"context"
	"errors"
	"strings"

	"github.com/hazyhaar/regdetect/browserhost"
	"github.com/hazyhaar/regdetect/lifecycle"
)

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// openHost returns the page behind target: a file, an HTTP fetch, or a
// browser tab when useBrowser is set. pageURL overrides the URL a file is
// reported under.
func (a *app) openHost(ctx context.Context, target, pageURL string, useBrowser bool) (lifecycle.Host, func() error, error) {
	if !isURL(target) {
		h, err := browserhost.OpenFile(target, pageURL)
		if err != nil {
			return nil, nil, err
		}
		return h, func() error { return nil }, nil
	}
	if !useBrowser {
		return browserhost.NewFetched(target, browserhost.WithLogger(a.logger)), func() error { return nil }, nil
	}

	b, err := browserhost.Launch(ctx, a.cfg.Browser, a.logger)
	if err != nil {
		return nil, nil, err
	}
	tab, err := b.Open(ctx, target)
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return tab, func() error { return errors.Join(tab.Close(), b.Close()) }, nil
}
