// Command regdetect detects US government business-registration forms.
//
// Usage:
//
//	regdetect detect page.html --url https://mytax.dc.gov/form/FR-500
//	regdetect detect https://sos.example.gov/register --browser
//	regdetect watch https://sos.example.gov/register --listen :8080
//	regdetect mcp https://sos.example.gov/register
//	regdetect history list
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "regdetect: %v\n", err)
		os.Exit(1)
	}
}
