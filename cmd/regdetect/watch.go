package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/regdetect/lifecycle"
	"github.com/hazyhaar/regdetect/transport"
)

// startLifecycle wires host, engine, history and sinks into a running
// lifecycle. Stdout sinks write to out. The returned function stops
// everything.
func (a *app) startLifecycle(ctx context.Context, target, pageURL string, useBrowser bool, out io.Writer) (*lifecycle.Lifecycle, func(), error) {
	history, closeHistory, err := a.openHistory()
	if err != nil {
		return nil, nil, err
	}
	eng, err := a.engine(history)
	if err != nil {
		closeHistory()
		return nil, nil, err
	}
	router, err := transport.FromConfig(a.cfg.Transport.Sinks, out, a.logger)
	if err != nil {
		closeHistory()
		return nil, nil, err
	}
	h, closeHost, err := a.openHost(ctx, target, pageURL, useBrowser)
	if err != nil {
		router.Close()
		closeHistory()
		return nil, nil, err
	}

	lc := lifecycle.FromConfig(a.cfg.Lifecycle, a.cfg.Adaptive)
	lc.Host = h
	lc.Detector = eng
	lc.Publisher = router
	lc.History = history
	lc.Logger = a.logger
	l := lifecycle.New(lc)
	if err := l.Start(ctx); err != nil {
		closeHost()
		router.Close()
		closeHistory()
		return nil, nil, err
	}

	stop := func() {
		l.Close()
		if err := closeHost(); err != nil {
			a.logger.Warn("regdetect: close host", "error", err)
		}
		router.Close()
		closeHistory()
	}
	return l, stop, nil
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		listen     string
		pageURL    string
		useBrowser bool
	)
	cmd := &cobra.Command{
		Use:   "watch <url|file>",
		Short: "Watch a page and re-detect on load, mutation and navigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, stop, err := a.startLifecycle(ctx, args[0], pageURL, useBrowser, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer stop()

			if listen == "" {
				listen = a.cfg.Transport.Listen
			}
			if listen != "" {
				srv := &http.Server{
					Addr:              listen,
					Handler:           transport.NewHandler(transport.NewCommands(l, version, a.logger), a.logger),
					ReadHeaderTimeout: 10 * time.Second,
					WriteTimeout:      60 * time.Second,
					IdleTimeout:       60 * time.Second,
				}
				go func() {
					a.logger.Info("regdetect: http listening", "addr", listen)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("regdetect: http server", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						a.logger.Error("regdetect: http shutdown", "error", err)
					}
				}()
			}

			<-ctx.Done()
			a.logger.Info("regdetect: shutting down", "status", l.Status().State)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "serve the HTTP command surface on this address (e.g. :8080)")
	f.StringVar(&pageURL, "url", "", "URL the HTML file was served from")
	f.BoolVar(&useBrowser, "browser", true, "render live URLs in headless Chrome")
	return cmd
}
