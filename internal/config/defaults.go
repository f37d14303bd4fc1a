package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel           = "info"
	DefaultJSONLog            = false
	DefaultLogMaxSizeMB       = 10
	DefaultLogMaxBackups      = 3
	DefaultUserAgent          = "Sitewatch/1.0 (https://github.com/law-makers/sitewatch)"
	DefaultHTTPTimeout        = 30 * time.Second
	DefaultMaxBodyBytes       = 10 * 1024 * 1024 // 10MB
	DefaultDataDir            = "monitor_data"
	DefaultStateBackend       = BackendFile
	DefaultSQLiteFile         = "state.db"
	DefaultStartupSweep       = true
	DefaultMinIntervalMinutes = 5.0
	DefaultSMTPPort           = 587
	DefaultUseTLS             = true
	DefaultMailsPerMinute     = 0
)

// State backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Environment variables
const (
	EnvConfig    = "SITEWATCH_CONFIG"
	EnvUserAgent = "SITEWATCH_USER_AGENT"
	EnvDataDir   = "SITEWATCH_DATA_DIR"
)

// DefaultConfigFiles are searched in the working directory, in order,
// when neither --config nor SITEWATCH_CONFIG is set.
var DefaultConfigFiles = []string{"sitewatch.yaml", "config.json"}
