// cmd/sitewatch/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/law-makers/sitewatch/internal/cli"
)

func main() {
	// Cancelled on Ctrl+C or SIGTERM; the scheduler finishes the check in
	// flight, flushes state and returns.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx)
}
