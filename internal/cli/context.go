// Package cli provides the command-line interface for sitewatch.
package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/law-makers/sitewatch/internal/app"
	"github.com/law-makers/sitewatch/internal/config"
)

// closeTimeout bounds the final state flush when a command ends.
const closeTimeout = 15 * time.Second

// withApp loads the configuration, builds the Application for one command,
// runs fn and closes the Application afterwards, even when fn fails.
func withApp(cmd *cobra.Command, opts app.Options, fn func(ctx context.Context, a *app.Application) error) (err error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.LogOut == nil {
		opts.LogOut = cmd.ErrOrStderr()
	}
	if opts.ConsoleOut == nil {
		opts.ConsoleOut = cmd.OutOrStdout()
	}

	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, a)
}

// quiet reports whether --quiet was given.
func quiet(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("quiet")
	return f != nil && f.Value.String() == "true"
}

// stderrIsTerminal reports whether interactive output such as progress bars
// should be drawn.
func stderrIsTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.ErrOrStderr().(*os.File)
	return ok && isTerminal(f)
}
