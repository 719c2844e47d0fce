package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// Every derived value is computed here, once.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	r := &Resolved{Config: *cfg, ConfigPath: cfgPath, Table: cfg.DefaultTable}

	if env.Table != "" {
		r.Table = env.Table
	}

	if cli.Table != "" {
		r.Table = cli.Table
	}

	if env.CredentialFile != "" {
		r.Auth.CredentialFile = env.CredentialFile
	}

	if cli.CredentialFile != "" {
		r.Auth.CredentialFile = cli.CredentialFile
	}

	fillDerivedPaths(r)

	if r.ChunkSizeBytes, err = ParseSize(r.Import.ChunkSize); err != nil {
		return nil, fmt.Errorf("chunk_size: %w", err)
	}

	if r.Timeout, err = parseTimeout(r.Network.Timeout); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}

	return r, nil
}

// fillDerivedPaths replaces empty path settings with platform defaults and
// expands a leading "~/".
func fillDerivedPaths(r *Resolved) {
	if r.Auth.CredentialFile == "" {
		r.Auth.CredentialFile = DefaultCredentialPath()
	}

	if r.Auth.ClientSecretFile == "" {
		r.Auth.ClientSecretFile = DefaultClientSecretPath()
	}

	if r.Import.HistoryFile == "" {
		r.Import.HistoryFile = DefaultHistoryPath()
	}

	r.Auth.CredentialFile = expandTilde(r.Auth.CredentialFile)
	r.Auth.ClientSecretFile = expandTilde(r.Auth.ClientSecretFile)
	r.Import.HistoryFile = expandTilde(r.Import.HistoryFile)
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}

	return time.ParseDuration(s)
}
