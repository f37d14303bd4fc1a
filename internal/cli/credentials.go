package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/law-makers/sitewatch/internal/auth"
	"github.com/law-makers/sitewatch/internal/config"
	"github.com/law-makers/sitewatch/internal/ui"
)

// credentialStore is swapped in tests.
var credentialStore = func() *auth.Store { return auth.NewStore("") }

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the stored SMTP password",
	Long: `Stores the SMTP password in the OS keyring so it does not have to live in
the configuration file. Where no keyring is available (CI, containers) the
password is kept in a private file under ~/.sitewatch/credentials.

The username defaults to email.smtp_username from the configuration. A
password in the configuration file or in SITEWATCH_SMTP_PASSWORD takes
precedence over the stored one.`,
	Example: `  # Prompt for the password of the configured SMTP user
  sitewatch credentials set

  # Read it from a pipe
  echo "$SMTP_PASS" | sitewatch credentials set alerts@example.com

  # Remove it
  sitewatch credentials delete alerts@example.com`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set [username]",
	Short: "Store the SMTP password",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCredentialsSet,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete [username]",
	Short: "Remove the stored SMTP password",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCredentialsDelete,
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
}

func credentialUser(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := config.Load(cmd)
	if err != nil {
		return "", err
	}
	if cfg.Email.SMTPUsername == "" {
		return "", fmt.Errorf("no username given and email.smtp_username is not configured")
	}
	return cfg.Email.SMTPUsername, nil
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	username, err := credentialUser(cmd, args)
	if err != nil {
		return err
	}

	password, err := readPassword(cmd, fmt.Sprintf("SMTP password for %s: ", username))
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	store := credentialStore()
	if err := store.SetPassword(username, password); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Stored password for %s (%s)\n",
		ui.Paint(ui.ColorEnabled(out), ui.ColorGreen, "✓"), username, store.Backend())
	return nil
}

func runCredentialsDelete(cmd *cobra.Command, args []string) error {
	username, err := credentialUser(cmd, args)
	if err != nil {
		return err
	}
	if err := credentialStore().DeletePassword(username); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Removed password for %s\n", ui.Paint(ui.ColorEnabled(out), ui.ColorGreen, "✓"), username)
	return nil
}

// readPassword prompts without echo on a terminal, otherwise reads the
// first line of stdin.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
