// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ftables. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth    AuthConfig    `toml:"auth"`
	Service ServiceConfig `toml:"service"`
	Import  ImportConfig  `toml:"import"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`

	// DefaultTable is the table ID used when no --table flag is given.
	DefaultTable string `toml:"default_table"`
}

// AuthConfig locates the persisted credential and the client-secret document
// and selects how interactive consent is obtained.
type AuthConfig struct {
	CredentialFile   string   `toml:"credential_file"`
	ClientSecretFile string   `toml:"client_secret_file"`
	Consent          string   `toml:"consent"`
	Scopes           []string `toml:"scopes"`
}

// ServiceConfig holds the remote table service endpoints.
type ServiceConfig struct {
	BaseURL   string `toml:"base_url"`
	UploadURL string `toml:"upload_url"`
	ViewURL   string `toml:"view_url"`
}

// ImportConfig controls resumable row imports. chunk_size must be a multiple
// of 256 KiB per the resumable upload protocol.
type ImportConfig struct {
	ChunkSize     string `toml:"chunk_size"`
	ResumeUploads bool   `toml:"resume_uploads"`
	RecordHistory bool   `toml:"record_history"`
	HistoryFile   string `toml:"history_file"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior. A timeout of "0" leaves the
// transport default in place, which for net/http means no timeout.
type NetworkConfig struct {
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath     string // --config
	Table          string // --table
	CredentialFile string // --credentials
}

// Resolved is the effective configuration after the override chain has been
// applied and every derived value (paths, sizes, durations) has been computed
// exactly once.
type Resolved struct {
	Config

	ConfigPath     string
	Table          string
	ChunkSizeBytes int64
	Timeout        time.Duration // 0 = inherit transport default
}
