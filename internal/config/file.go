package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
			*s = nil
			return nil
		}
		*s = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (s *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			*s = nil
		} else {
			*s = StringList{single}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected a string or a list of strings")
	}
	*s = list
	return nil
}

// Duration accepts a Go duration string ("30s") or a number of seconds.
type Duration time.Duration

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(secs * float64(time.Second))), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return Duration(d), nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", value.Line)
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	parsed, err := parseDuration(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// fileConfig is the on-disk configuration layout.
type fileConfig struct {
	LogLevel      string     `yaml:"log_level" json:"log_level"`
	JSONLog       bool       `yaml:"json_log" json:"json_log"`
	LogFile       string     `yaml:"log_file" json:"log_file"`
	LogMaxSizeMB  int        `yaml:"log_max_size_mb" json:"log_max_size_mb"`
	LogMaxBackups int        `yaml:"log_max_backups" json:"log_max_backups"`
	HTTPTimeout   Duration   `yaml:"http_timeout" json:"http_timeout"`
	UserAgent     string     `yaml:"user_agent" json:"user_agent"`
	Proxies       StringList `yaml:"proxies" json:"proxies"`
	MaxBodyBytes  int64      `yaml:"max_body_bytes" json:"max_body_bytes"`
	DataDir       string     `yaml:"data_dir" json:"data_dir"`
	StateBackend  string     `yaml:"state_backend" json:"state_backend"`
	SQLitePath    string     `yaml:"sqlite_path" json:"sqlite_path"`
	StartupSweep  bool       `yaml:"startup_sweep" json:"startup_sweep"`
	Email         fileEmail  `yaml:"email" json:"email"`
	Sites         []fileSite `yaml:"sites" json:"sites"`
}

type fileEmail struct {
	Enabled      bool       `yaml:"enabled" json:"enabled"`
	SMTPServer   string     `yaml:"smtp_server" json:"smtp_server"`
	SMTPPort     int        `yaml:"smtp_port" json:"smtp_port"`
	SMTPUsername string     `yaml:"smtp_username" json:"smtp_username"`
	SMTPPassword string     `yaml:"smtp_password" json:"smtp_password"`
	Sender       string     `yaml:"sender" json:"sender"`
	Recipients   StringList `yaml:"recipients" json:"recipients"`
	Recipient    StringList `yaml:"recipient" json:"recipient"`
	UseTLS       bool       `yaml:"use_tls" json:"use_tls"`
	UseSSL       bool       `yaml:"use_ssl" json:"use_ssl"`
	MaxPerMinute int        `yaml:"max_per_minute" json:"max_per_minute"`
}

type fileSite struct {
	ID            string            `yaml:"id" json:"id"`
	Name          string            `yaml:"name" json:"name"`
	URL           string            `yaml:"url" json:"url"`
	Selector      string            `yaml:"selector" json:"selector"`
	CSSSelector   string            `yaml:"css_selector" json:"css_selector"`
	Headers       map[string]string `yaml:"headers" json:"headers"`
	MinInterval   *float64          `yaml:"min_check_interval_minutes" json:"min_check_interval_minutes"`
	MaxInterval   *float64          `yaml:"max_check_interval_minutes" json:"max_check_interval_minutes"`
	CheckInterval *float64          `yaml:"check_interval_minutes" json:"check_interval_minutes"`
	Recipients    StringList        `yaml:"recipients" json:"recipients"`
}

// defaultFileConfig is what a file is decoded on top of; absent keys keep these values.
func defaultFileConfig() fileConfig {
	return fileConfig{
		LogLevel:      DefaultLogLevel,
		JSONLog:       DefaultJSONLog,
		LogMaxSizeMB:  DefaultLogMaxSizeMB,
		LogMaxBackups: DefaultLogMaxBackups,
		HTTPTimeout:   Duration(DefaultHTTPTimeout),
		UserAgent:     DefaultUserAgent,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		DataDir:       DefaultDataDir,
		StateBackend:  DefaultStateBackend,
		StartupSweep:  DefaultStartupSweep,
		Email: fileEmail{
			SMTPPort:     DefaultSMTPPort,
			UseTLS:       DefaultUseTLS,
			MaxPerMinute: DefaultMailsPerMinute,
		},
	}
}

// readFile decodes path on top of the defaults. Files ending in .json are
// decoded as JSON, everything else as YAML.
func readFile(path string) (fileConfig, error) {
	fc := defaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &fc); err != nil {
			return fc, fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
		}
		return fc, nil
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to unmarshal YAML from '%s': %w", path, err)
	}
	return fc, nil
}

// FindConfigPath resolves the configuration file: explicit flag value,
// then SITEWATCH_CONFIG, then the first of DefaultConfigFiles present in dir.
// An explicit path is returned even if missing so the caller reports it.
func FindConfigPath(flagValue, dir string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	for _, name := range DefaultConfigFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
