package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/law-makers/sitewatch/internal/app"
	"github.com/law-makers/sitewatch/internal/ui"
	urlutil "github.com/law-makers/sitewatch/internal/utils/url"
)

var stateResetAll bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset stored site content",
	Long: `Sitewatch remembers the last content it observed for every site so that a
restart does not report everything as new. These commands show and clear
that memory.`,
	Example: `  # List stored state
  sitewatch state list

  # Show the full stored content of one site
  sitewatch state show example-product

  # Forget a site so its next check is a fresh first observation
  sitewatch state reset example-product`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sites with stored state",
	Args:  cobra.NoArgs,
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <site-id>",
	Short: "Show the stored content of a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <site-id>...",
	Short: "Forget the stored content of sites",
	RunE:  runStateReset,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)

	stateResetCmd.Flags().BoolVar(&stateResetAll, "all", false, "Reset every stored site")
}

func runStateList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, app.Options{NoNotify: true}, func(ctx context.Context, a *app.Application) error {
		ids, err := a.Store.Sites(ctx)
		if err != nil {
			return fmt.Errorf("failed to list state: %w", err)
		}

		out := cmd.OutOrStdout()
		color := ui.ColorEnabled(out)

		stored := make(map[string]bool, len(ids))
		for _, id := range ids {
			stored[id] = true
		}
		// configured sites first, in config order, then orphans
		order := make([]string, 0, len(ids)+len(a.Config.Sites))
		for _, s := range a.Config.Sites {
			order = append(order, s.ID)
		}
		for _, id := range ids {
			if _, ok := a.Config.Site(id); !ok {
				order = append(order, id)
			}
		}

		if len(order) == 0 {
			fmt.Fprintln(out, "No sites configured and no stored state.")
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SITE\tLAST CHECK\tCONTENT")
		for _, id := range order {
			label := id
			if _, ok := a.Config.Site(id); !ok {
				label += ui.Paint(color, ui.ColorDim, " (not configured)")
			}
			if !stored[id] {
				fmt.Fprintf(tw, "%s\t%s\t\n", label, ui.Paint(color, ui.ColorDim, "never"))
				continue
			}

			st := a.Store.Load(ctx, id)
			last := "-"
			if st.LastCheckedAt != nil {
				last = st.LastCheckedAt.Local().Format(time.DateTime)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", label, last, urlutil.ShortenURL(singleLine(st.ContentOr("")), 60))
		}
		return tw.Flush()
	})
}

func runStateShow(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withApp(cmd, app.Options{NoNotify: true}, func(ctx context.Context, a *app.Application) error {
		st := a.Store.Load(ctx, id)
		if !st.Checked() {
			return fmt.Errorf("no stored state for %q", id)
		}

		out := cmd.OutOrStdout()
		color := ui.ColorEnabled(out)
		if site, ok := a.Config.Site(id); ok {
			fmt.Fprintf(out, "%s %s\n", ui.Paint(color, ui.ColorBold, site.Name), ui.Paint(color, ui.ColorDim, site.URL))
			fmt.Fprintf(out, "Selector:   %s\n", site.Selector)
		} else {
			fmt.Fprintf(out, "%s %s\n", ui.Paint(color, ui.ColorBold, id), ui.Paint(color, ui.ColorDim, "(not configured)"))
		}
		if st.LastCheckedAt != nil {
			fmt.Fprintf(out, "Last check: %s\n", st.LastCheckedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintf(out, "\n%s\n", *st.Content)
		return nil
	})
}

func runStateReset(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !stateResetAll {
		return fmt.Errorf("name at least one site or pass --all")
	}

	return withApp(cmd, app.Options{NoNotify: true}, func(ctx context.Context, a *app.Application) error {
		ids := args
		if stateResetAll {
			var err error
			if ids, err = a.Store.Sites(ctx); err != nil {
				return fmt.Errorf("failed to list state: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		color := ui.ColorEnabled(out)
		for _, id := range ids {
			if err := a.Store.Reset(ctx, id); err != nil {
				return fmt.Errorf("failed to reset %s: %w", id, err)
			}
			fmt.Fprintf(out, "%s Reset %s\n", ui.Paint(color, ui.ColorGreen, "✓"), id)
		}
		if len(ids) == 0 {
			fmt.Fprintln(out, "Nothing to reset.")
		}
		return nil
	})
}
