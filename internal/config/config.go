package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel      string `validate:"oneof=debug info warn error"`
	JSONLog       bool
	LogFile       string
	LogMaxSizeMB  int `validate:"min=0"`
	LogMaxBackups int `validate:"min=0"`

	// HTTP fetching
	HTTPTimeout  time.Duration `validate:"gt=0"`
	UserAgent    string
	Proxies      []string
	MaxBodyBytes int64 `validate:"gt=0"`

	// State
	DataDir      string `validate:"required"`
	StateBackend string `validate:"oneof=file sqlite"`
	SQLitePath   string

	// Scheduling
	StartupSweep bool

	Email EmailConfig
	Sites []Site `validate:"dive"`

	// ConfigPath is the file the configuration was read from, if any.
	ConfigPath string `validate:"-"`
	// Warnings are non-fatal problems found while loading.
	Warnings []string `validate:"-"`
}

// EmailConfig configures SMTP notifications
type EmailConfig struct {
	Enabled      bool
	SMTPServer   string `validate:"required_if=Enabled true"`
	SMTPPort     int    `validate:"min=1,max=65535"`
	SMTPUsername string
	SMTPPassword string
	Sender       string   `validate:"required_if=Enabled true,omitempty,email"`
	Recipients   []string `validate:"dive,email"`
	UseTLS       bool
	UseSSL       bool
	MaxPerMinute int `validate:"min=0"`
}

// Default returns a Config holding only default values and no sites.
func Default() *Config {
	cfg, _ := fromFileConfig(defaultFileConfig())
	cfg.finalize()
	return cfg
}

// LoadFile builds a Config from defaults, the file at path and the environment.
func LoadFile(path string) (*Config, error) {
	cfg, err := loadBase(path)
	if err != nil {
		return nil, err
	}
	cfg.finalize()
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load builds a Config by combining defaults, the config file, environment variables, and CLI flags.
// Caller should pass the executing *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	flagPath := ""
	if cmd != nil {
		if f := cmd.Flags().Lookup("config"); f != nil {
			flagPath = f.Value.String()
		}
	}

	cfg, err := loadBase(FindConfigPath(flagPath, "."))
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg, cmd); err != nil {
		return nil, err
	}
	cfg.finalize()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadBase reads path (when set) over the defaults and applies the environment.
func loadBase(path string) (*Config, error) {
	fc := defaultFileConfig()
	if path != "" {
		var err error
		if fc, err = readFile(path); err != nil {
			return nil, err
		}
	}

	cfg, err := fromFileConfig(fc)
	if err != nil {
		return nil, err
	}
	cfg.ConfigPath = path
	if path == "" {
		cfg.Warnings = append(cfg.Warnings, "no configuration file found; run 'sitewatch init' to create one")
	}

	applyEnv(cfg)
	return cfg, nil
}

func fromFileConfig(fc fileConfig) (*Config, error) {
	recipients := fc.Email.Recipients
	if len(recipients) == 0 {
		recipients = fc.Email.Recipient
	}

	cfg := &Config{
		LogLevel:      strings.ToLower(fc.LogLevel),
		JSONLog:       fc.JSONLog,
		LogFile:       fc.LogFile,
		LogMaxSizeMB:  fc.LogMaxSizeMB,
		LogMaxBackups: fc.LogMaxBackups,
		HTTPTimeout:   time.Duration(fc.HTTPTimeout),
		UserAgent:     fc.UserAgent,
		Proxies:       dedupe(fc.Proxies),
		MaxBodyBytes:  fc.MaxBodyBytes,
		DataDir:       fc.DataDir,
		StateBackend:  strings.ToLower(fc.StateBackend),
		SQLitePath:    fc.SQLitePath,
		StartupSweep:  fc.StartupSweep,
		Email: EmailConfig{
			Enabled:      fc.Email.Enabled,
			SMTPServer:   fc.Email.SMTPServer,
			SMTPPort:     fc.Email.SMTPPort,
			SMTPUsername: fc.Email.SMTPUsername,
			SMTPPassword: fc.Email.SMTPPassword,
			Sender:       fc.Email.Sender,
			Recipients:   dedupe(recipients),
			UseTLS:       fc.Email.UseTLS,
			UseSSL:       fc.Email.UseSSL,
			MaxPerMinute: fc.Email.MaxPerMinute,
		},
	}

	if cfg.Email.UseSSL && cfg.Email.UseTLS {
		cfg.Warnings = append(cfg.Warnings, "email: use_ssl and use_tls are both set; implicit TLS (use_ssl) is used")
	}

	var errs []error
	for _, fs := range fc.Sites {
		site, warning, err := resolveSite(fs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if warning != "" {
			cfg.Warnings = append(cfg.Warnings, warning)
		}
		cfg.Sites = append(cfg.Sites, site)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return cfg, nil
}

// Override from environment variables (simple helpers)
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvUserAgent); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
}

func applyFlags(cfg *Config, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if f := cmd.Flags().Lookup("user-agent"); f != nil {
		if s := f.Value.String(); s != "" {
			cfg.UserAgent = s
		}
	}
	if f := cmd.Flags().Lookup("proxy"); f != nil {
		if s := f.Value.String(); s != "" {
			cfg.Proxies = dedupe(strings.Split(s, ","))
		}
	}
	if f := cmd.Flags().Lookup("timeout"); f != nil {
		if s := f.Value.String(); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("invalid --timeout %q: %w", s, err)
			}
			cfg.HTTPTimeout = d
		}
	}
	if f := cmd.Flags().Lookup("data-dir"); f != nil {
		if s := f.Value.String(); s != "" {
			cfg.DataDir = s
		}
	}
	if f := cmd.Flags().Lookup("log-file"); f != nil {
		if s := f.Value.String(); s != "" {
			cfg.LogFile = s
		}
	}
	if f := cmd.Flags().Lookup("json"); f != nil {
		if f.Value.String() == "true" {
			cfg.JSONLog = true
		}
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil {
		if f.Value.String() == "true" {
			cfg.LogLevel = "debug"
		}
	}
	if f := cmd.Flags().Lookup("quiet"); f != nil {
		if f.Value.String() == "true" {
			cfg.LogLevel = "error"
		}
	}
	return nil
}

// finalize fills values derived from other settings.
func (c *Config) finalize() {
	if c.StateBackend == BackendSQLite && c.SQLitePath == "" {
		c.SQLitePath = filepath.Join(c.DataDir, DefaultSQLiteFile)
	}
}

// Site returns the configured site with the given ID.
func (c *Config) Site(id string) (Site, bool) {
	for _, s := range c.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return Site{}, false
}

// SelectSites returns the sites named by ids in configured order, or all
// sites when ids is empty.
func (c *Config) SelectSites(ids []string) ([]Site, error) {
	if len(ids) == 0 {
		return c.Sites, nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.Site(id); !ok {
			return nil, fmt.Errorf("unknown site %q", id)
		}
		wanted[id] = true
	}

	selected := make([]Site, 0, len(ids))
	for _, s := range c.Sites {
		if wanted[s.ID] {
			selected = append(selected, s)
		}
	}
	return selected, nil
}
