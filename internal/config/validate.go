package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation constants.
const (
	chunkAlignBytes = 256 * 1024 // resumable upload granularity
	minTimeout      = 1 * time.Second
)

// Validate checks all configuration values and returns all errors found.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateService(&cfg.Service)...)
	errs = append(errs, validateImport(&cfg.Import)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	switch a.Consent {
	case ConsentManual, ConsentLoopback:
	default:
		errs = append(errs, fmt.Errorf("consent: must be %q or %q, got %q",
			ConsentManual, ConsentLoopback, a.Consent))
	}

	if len(a.Scopes) == 0 {
		errs = append(errs, errors.New("scopes: at least one scope is required"))
	}

	return errs
}

func validateService(s *ServiceConfig) []error {
	var errs []error

	for _, f := range []struct{ key, val string }{
		{"base_url", s.BaseURL},
		{"upload_url", s.UploadURL},
		{"view_url", s.ViewURL},
	} {
		u, err := url.Parse(f.val)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: must be an absolute URL, got %q", f.key, f.val))
		}
	}

	return errs
}

func validateImport(i *ImportConfig) []error {
	n, err := ParseSize(i.ChunkSize)
	if err != nil {
		return []error{fmt.Errorf("chunk_size: %w", err)}
	}

	if n <= 0 || n%chunkAlignBytes != 0 {
		return []error{fmt.Errorf("chunk_size: must be a positive multiple of 256KiB, got %q", i.ChunkSize)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := parseTimeout(n.Timeout)
	if err != nil {
		return []error{fmt.Errorf("timeout: invalid duration %q: %w", n.Timeout, err)}
	}

	if d != 0 && d < minTimeout {
		return []error{fmt.Errorf("timeout: must be 0 or >= %s, got %s", minTimeout, d)}
	}

	return nil
}
