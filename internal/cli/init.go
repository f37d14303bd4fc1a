package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/ui"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example configuration file",
	Example: `  # Create ./sitewatch.yaml
  sitewatch init

  # Overwrite an existing file
  sitewatch init config/sitewatch.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultConfigFiles[0]
	if len(args) == 1 {
		path = args[0]
	}

	if err := config.WriteExample(path, initForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return err
	}

	out := cmd.OutOrStdout()
	color := ui.ColorEnabled(out)
	fmt.Fprintf(out, "%s Wrote %s\n", ui.Paint(color, ui.ColorGreen, "✓"), path)
	fmt.Fprintln(out, "Edit the sites list, then run:")
	fmt.Fprintln(out, ui.Paint(color, ui.ColorCyan, "  sitewatch check --dry-run"))
	return nil
}
