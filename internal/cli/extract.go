package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/sitewatch/internal/app"
	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/extract"
	"github.com/law-makers/sitewatch/internal/utils/headers"
	urlutil "github.com/law-makers/sitewatch/internal/utils/url"
)

var (
	extractSelector string
	extractHeaders  []string
)

var extractCmd = &cobra.Command{
	Use:   "extract <url|site-id>",
	Short: "Fetch a page and print what a selector sees",
	Long: `Fetches one page and prints the content sitewatch would observe for it,
without reading or writing any state. Use it to try out selectors before
adding a site.

When the argument is the ID of a configured site, its URL, selector and
headers are used; --selector and -H override them.`,
	Example: `  # Try a CSS selector
  sitewatch extract https://example.com/product --selector ".availability"

  # Match the first element whose class list matches a pattern
  sitewatch extract https://example.com --selector "regex:^badge( |$)"

  # Re-check a configured site with an extra header
  sitewatch extract example-product -H "Accept-Language: en"`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractSelector, "selector", "s", "", "CSS selector, or regex:<pattern> over class names")
	extractCmd.Flags().StringArrayVarP(&extractHeaders, "header", "H", []string{}, "Custom headers (e.g., -H \"User-Agent: Bot\")")
}

func runExtract(cmd *cobra.Command, args []string) error {
	extra, err := headers.ParseHeadersStrict(extractHeaders)
	if err != nil {
		return err
	}

	return withApp(cmd, app.Options{DryRun: true, NoNotify: true}, func(ctx context.Context, a *app.Application) error {
		site, err := extractTarget(a.Config, args[0])
		if err != nil {
			return err
		}
		site.Headers = headers.Merge(site.Headers, extra)

		content, err := a.Checker.Observe(ctx, site)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", site.URL, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), content)
		return nil
	})
}

// extractTarget resolves target to a configured site or an ad-hoc one
// built from the flags.
func extractTarget(cfg *config.Config, target string) (config.Site, error) {
	site, known := cfg.Site(target)
	if !known {
		if err := urlutil.ValidateURL(target); err != nil {
			return config.Site{}, fmt.Errorf("%q is neither a configured site nor a URL: %w", target, err)
		}
		if extractSelector == "" {
			return config.Site{}, fmt.Errorf("--selector is required for a URL")
		}
		site = config.Site{ID: "extract", Name: urlutil.Host(target), URL: target}
	}

	if extractSelector != "" {
		sel, err := extract.ParseSelector(extractSelector)
		if err != nil {
			return config.Site{}, err
		}
		site.Selector = sel
	}
	return site, nil
}
