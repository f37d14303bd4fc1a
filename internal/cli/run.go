package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/law-makers/sitewatch/internal/app"
	"github.com/law-makers/sitewatch/internal/monitor"
)

var runStartupSweep bool

var runCmd = &cobra.Command{
	Use:   "run [site-id...]",
	Short: "Watch the configured sites until interrupted",
	Long: `Checks every configured site (or only the given ones) at a random interval
between its min_check_interval_minutes and max_check_interval_minutes, and
notifies on every change. Stops cleanly on Ctrl+C or SIGTERM.`,
	Example: `  # Watch every configured site
  sitewatch run

  # Watch one site, waiting a full interval before its first check
  sitewatch run example-product --startup-sweep=false

  # Use another configuration and debug logging
  sitewatch run --config prod.yaml -v`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runStartupSweep, "startup-sweep", true, "Check every site once immediately on start (overrides startup_sweep)")
}

func runRun(cmd *cobra.Command, args []string) error {
	return withApp(cmd, app.Options{}, func(ctx context.Context, a *app.Application) error {
		sites, err := a.Config.SelectSites(args)
		if err != nil {
			return err
		}

		opts := monitor.Options{SkipStartupSweep: !a.Config.StartupSweep}
		if cmd.Flags().Changed("startup-sweep") {
			opts.SkipStartupSweep = !runStartupSweep
		}

		if err := a.NewScheduler(sites, opts).Run(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("Monitoring could not start")
			return err
		}
		return nil
	})
}
