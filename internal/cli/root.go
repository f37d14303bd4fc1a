// internal/cli/root.go
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/ui"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitewatch",
	Short: "Watch web pages and get notified when they change",
	Long: `Sitewatch periodically fetches the pages listed in its configuration,
extracts one element from each with a CSS selector (or a regex over class
names) and reports every change on the console and by email.

Each site is checked at a random interval between its minimum and maximum,
and the last observed content is kept on disk so restarts do not re-alert.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with ctx, which is cancelled on SIGINT or
// SIGTERM. Any command error exits with status 1.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.Paint(ui.ColorEnabled(os.Stderr), ui.ColorRed, "Error: ")+err.Error())
		os.Exit(1)
	}
}

func init() {
	config.RegisterFlags(rootCmd)

	rootCmd.Flags().BoolP("help", "h", false, "Help for sitewatch")
	rootCmd.Flags().Bool("version", false, "Version for sitewatch")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		newHelpPrinter(cmd.OutOrStdout()).help(cmd)
	})
	rootCmd.SetUsageFunc(func(cmd *cobra.Command) error {
		newHelpPrinter(cmd.ErrOrStderr()).usage(cmd)
		return nil
	})
}

// helpPrinter renders colorized help, falling back to plain text when the
// writer is not a terminal.
type helpPrinter struct {
	w     io.Writer
	color bool
}

func newHelpPrinter(w io.Writer) *helpPrinter {
	return &helpPrinter{w: w, color: ui.ColorEnabled(w)}
}

func (p *helpPrinter) paint(color, s string) string {
	return ui.Paint(p.color, color, s)
}

func (p *helpPrinter) section(title string) {
	fmt.Fprintf(p.w, "\n%s\n", p.paint(ui.ColorBold+ui.ColorWhite, title))
}

func (p *helpPrinter) help(cmd *cobra.Command) {
	fmt.Fprintf(p.w, "\n%s\n", p.paint(ui.ColorBold+ui.ColorCyan, strings.ToUpper(cmd.Name())))
	if cmd.Short != "" {
		fmt.Fprintln(p.w, cmd.Short)
	}
	if cmd.Long != "" && cmd.Long != cmd.Short {
		fmt.Fprintf(p.w, "\n%s\n", wrapText(cmd.Long, 80))
	}

	p.usageLines(cmd)

	if cmd.HasExample() {
		p.section("Examples")
		p.examples(cmd.Example)
	}

	p.commands(cmd)

	if cmd.HasAvailableLocalFlags() {
		p.section("Flags")
		p.flags(cmd.LocalFlags().FlagUsages())
	}
	if cmd.HasAvailableInheritedFlags() {
		p.section("Global Flags")
		p.flags(cmd.InheritedFlags().FlagUsages())
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(p.w, "\n%s\n", p.paint(ui.ColorDim,
			fmt.Sprintf("Use \"%s <command> --help\" for more information about a command.", cmd.CommandPath())))
	}
	fmt.Fprintln(p.w)
}

func (p *helpPrinter) usage(cmd *cobra.Command) {
	p.usageLines(cmd)
	p.commands(cmd)
	if cmd.HasAvailableLocalFlags() {
		p.section("Flags")
		p.flags(cmd.LocalFlags().FlagUsages())
	}
	fmt.Fprintf(p.w, "\n%s\n", p.paint(ui.ColorDim,
		fmt.Sprintf("Use \"%s --help\" for more information.", cmd.CommandPath())))
}

func (p *helpPrinter) usageLines(cmd *cobra.Command) {
	p.section("Usage")
	if cmd.Runnable() {
		fmt.Fprintf(p.w, "  %s\n", p.paint(ui.ColorCyan, cmd.UseLine()))
	}
	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(p.w, "  %s %s %s\n",
			p.paint(ui.ColorCyan, cmd.CommandPath()),
			p.paint(ui.ColorYellow, "<command>"),
			p.paint(ui.ColorDim, "[flags]"))
	}
}

// examples prints comment lines dimmed and command lines with a "$ " prompt.
func (p *helpPrinter) examples(example string) {
	lastWasCommand := false
	for _, line := range strings.Split(example, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if lastWasCommand {
				fmt.Fprintln(p.w)
			}
			fmt.Fprintf(p.w, "  %s\n", p.paint(ui.ColorDim, trimmed))
			lastWasCommand = false
			continue
		}
		fmt.Fprintf(p.w, "  %s\n", p.paint(ui.ColorGreen, "$ "+strings.TrimPrefix(trimmed, "$ ")))
		lastWasCommand = true
	}
}

func (p *helpPrinter) commands(cmd *cobra.Command) {
	if !cmd.HasAvailableSubCommands() {
		return
	}
	p.section("Commands")

	var available []*cobra.Command
	width := 0
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() && c.Name() != "help" {
			available = append(available, c)
			width = max(width, len(c.Name()))
		}
	}
	for _, c := range available {
		fmt.Fprintf(p.w, "  %s%s%s\n",
			p.paint(ui.ColorCyan, c.Name()),
			strings.Repeat(" ", width-len(c.Name())+2),
			p.paint(ui.ColorDim, c.Short))
	}
}

// flags re-aligns pflag's usage block and colors flag names.
func (p *helpPrinter) flags(usages string) {
	lines := strings.Split(usages, "\n")

	width := 28
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		if strings.HasPrefix(trimmed, "-") {
			name, _, _ := strings.Cut(trimmed, "  ")
			width = max(width, len(strings.TrimSpace(name)))
		}
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		trimmed := strings.TrimLeft(line, " ")
		if !strings.HasPrefix(trimmed, "-") {
			// continuation of the previous description
			fmt.Fprintf(p.w, "%s%s\n", strings.Repeat(" ", width+4), p.paint(ui.ColorDim, trimmed))
			continue
		}

		name, desc, ok := strings.Cut(trimmed, "  ")
		if !ok {
			fmt.Fprintf(p.w, "  %s\n", p.paint(ui.ColorGreen, trimmed))
			continue
		}
		name = strings.TrimSpace(name)
		fmt.Fprintf(p.w, "  %s%s%s\n",
			p.paint(ui.ColorGreen, name),
			strings.Repeat(" ", width-len(name)+2),
			p.paint(ui.ColorDim, strings.TrimSpace(desc)))
	}
}

// wrapText wraps text at the specified width while preserving paragraphs
// and list items.
func wrapText(text string, width int) string {
	var paragraphs []string

	for _, para := range strings.Split(text, "\n\n") {
		var lines []string
		var current strings.Builder

		flush := func() {
			if current.Len() > 0 {
				lines = append(lines, current.String())
				current.Reset()
			}
		}

		for _, line := range strings.Split(para, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") {
				flush()
				lines = append(lines, trimmed)
				continue
			}
			for _, word := range strings.Fields(trimmed) {
				switch {
				case current.Len() == 0:
					current.WriteString(word)
				case current.Len()+1+len(word) <= width:
					current.WriteString(" ")
					current.WriteString(word)
				default:
					flush()
					current.WriteString(word)
				}
			}
		}
		flush()

		if len(lines) > 0 {
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
		}
	}

	return strings.Join(paragraphs, "\n\n")
}
