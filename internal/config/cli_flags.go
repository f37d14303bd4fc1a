package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress all output except errors")
	cmd.PersistentFlags().Bool("json", false, "Log in JSON format")
	cmd.PersistentFlags().String("proxy", "", "HTTP/SOCKS5 proxies, comma separated (e.g., http://localhost:8080)")
	cmd.PersistentFlags().String("timeout", "", "Per-request fetch timeout (e.g., 30s)")
	cmd.PersistentFlags().String("user-agent", "", "Default User-Agent for fetches")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (YAML or JSON)")
	cmd.PersistentFlags().String("data-dir", "", "Directory for persisted site state")
	cmd.PersistentFlags().String("log-file", "", "Also write logs to this file, rotated")
}
