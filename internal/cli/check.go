package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/law-makers/sitewatch/internal/app"
	"github.com/law-makers/sitewatch/internal/monitor"
	"github.com/law-makers/sitewatch/internal/ui"
	"github.com/law-makers/sitewatch/internal/utils/output"
	urlutil "github.com/law-makers/sitewatch/internal/utils/url"
	"github.com/law-makers/sitewatch/pkg/models"
)

var (
	checkDryRun   bool
	checkNoNotify bool
	checkOutput   string
	checkFormat   string
)

var checkCmd = &cobra.Command{
	Use:   "check [site-id...]",
	Short: "Check sites once and print what changed",
	Long: `Runs a single sweep over every configured site (or only the given ones),
ignoring their schedules, then prints a summary.

With --dry-run the stored state is read but never written, so the next
'sitewatch run' still sees the same baseline.`,
	Example: `  # Check everything once
  sitewatch check

  # Preview one site without touching state or sending email
  sitewatch check example-product --dry-run --no-notify

  # Export the results
  sitewatch check --output results.csv
  sitewatch check --format json`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "Keep state changes in memory only")
	checkCmd.Flags().BoolVar(&checkNoNotify, "no-notify", false, "Do not send notifications")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "", "Also save results to a file (.json or .csv)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "table", "Output format: table, json or csv")
}

func runCheck(cmd *cobra.Command, args []string) error {
	switch checkFormat {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("invalid format: %s (must be table, json or csv)", checkFormat)
	}

	opts := app.Options{DryRun: checkDryRun, NoNotify: checkNoNotify}
	// Keep machine-readable stdout free of banners.
	if checkFormat != "table" {
		opts.ConsoleOut = cmd.ErrOrStderr()
	}

	return withApp(cmd, opts, func(ctx context.Context, a *app.Application) error {
		sites, err := a.Config.SelectSites(args)
		if err != nil {
			return err
		}

		var bar *progressbar.ProgressBar
		if len(sites) > 1 && !quiet(cmd) && stderrIsTerminal(cmd) {
			bar = progressbar.NewOptions(len(sites),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Checking sites"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)
		}

		checkedAt := time.Now()
		scheduler := a.NewScheduler(sites, monitor.Options{
			OnResult: func(r monitor.Result) {
				if bar != nil {
					bar.Describe(r.Site.Name)
					bar.Add(1)
				}
			},
		})
		results, err := scheduler.SweepOnce(ctx, true)
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return err
		}

		reports := buildReports(results, checkedAt)

		if checkOutput != "" {
			if err := output.Save(reports, checkOutput); err != nil {
				return fmt.Errorf("failed to save results: %w", err)
			}
			a.Logger.Info().Str("file", checkOutput).Msg("Results saved")
		}

		out := cmd.OutOrStdout()
		if checkFormat == "table" {
			printCheckTable(out, reports, ui.ColorEnabled(out))
			if checkDryRun {
				fmt.Fprintln(out, ui.Paint(ui.ColorEnabled(out), ui.ColorDim, "Dry run: stored state was not modified."))
			}
		} else if err := output.Write(out, checkFormat, reports); err != nil {
			return err
		}

		if failed := countFailed(results); failed > 0 {
			return fmt.Errorf("%d of %d site checks failed", failed, len(results))
		}
		return nil
	})
}

func buildReports(results []monitor.Result, checkedAt time.Time) []output.CheckReport {
	reports := make([]output.CheckReport, 0, len(results))
	for _, r := range results {
		rep := output.CheckReport{
			SiteID:     r.Site.ID,
			SiteName:   r.Site.Name,
			URL:        r.Site.URL,
			Outcome:    string(r.Outcome.Kind),
			Content:    r.Outcome.Content,
			Notified:   r.Notified,
			DurationMS: r.Duration.Milliseconds(),
			CheckedAt:  checkedAt,
			NextCheck:  r.NextCheck,
		}
		if r.Outcome.Change != nil {
			rep.Previous = r.Outcome.Change.OldContent
		}
		if r.Outcome.Err != nil {
			rep.Outcome = "error"
			rep.Error = r.Outcome.Err.Error()
		} else if r.NotifyErr != nil {
			rep.Error = "notify: " + r.NotifyErr.Error()
		}
		reports = append(reports, rep)
	}
	return reports
}

func countFailed(results []monitor.Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome.Err != nil {
			n++
		}
	}
	return n
}

func printCheckTable(w io.Writer, reports []output.CheckReport, color bool) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No sites checked.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SITE\tOUTCOME\tCONTENT\tTIME")
	for _, r := range reports {
		content := r.Content
		if r.Error != "" && r.Outcome == "error" {
			content = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\n",
			r.SiteID,
			paintOutcome(color, r.Outcome),
			urlutil.ShortenURL(singleLine(content), 60),
			r.DurationMS,
		)
	}
	tw.Flush()

	for _, r := range reports {
		if r.Outcome == string(models.Changed) {
			fmt.Fprintf(w, "\n%s %s\n  - %s\n  + %s\n",
				ui.Paint(color, ui.ColorBold, r.SiteName),
				ui.Paint(color, ui.ColorDim, r.URL),
				ui.Paint(color, ui.ColorRed, r.Previous),
				ui.Paint(color, ui.ColorGreen, r.Content))
		}
	}
}

// paintOutcome colors an outcome cell. Every cell gets the same escape
// length so tabwriter columns stay aligned.
func paintOutcome(color bool, outcome string) string {
	switch outcome {
	case string(models.Changed):
		return ui.Paint(color, ui.ColorYellow, outcome)
	case string(models.InitialObservation):
		return ui.Paint(color, ui.ColorCyan, outcome)
	case "error":
		return ui.Paint(color, ui.ColorRed, outcome)
	default:
		return ui.Paint(color, ui.ColorGreen, outcome)
	}
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
