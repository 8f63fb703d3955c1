package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/regdetect/transport"
)

func newMCPCmd(a *app) *cobra.Command {
	var (
		pageURL    string
		useBrowser bool
	)
	cmd := &cobra.Command{
		Use:   "mcp <url|file>",
		Short: "Watch a page and serve the detection tools over MCP stdio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// stdout carries the MCP protocol; stdout sinks go to stderr.
			l, stop, err := a.startLifecycle(ctx, args[0], pageURL, useBrowser, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer stop()

			srv := mcp.NewServer(&mcp.Implementation{Name: "regdetect", Version: version}, nil)
			transport.RegisterMCP(srv, transport.NewCommands(l, version, a.logger))
			return srv.Run(ctx, &mcp.StdioTransport{})
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "URL the HTML file was served from")
	cmd.Flags().BoolVar(&useBrowser, "browser", true, "render live URLs in headless Chrome")
	return cmd
}
