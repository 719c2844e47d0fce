package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "FTABLES_CONFIG"
	EnvTable       = "FTABLES_TABLE"
	EnvCredentials = "FTABLES_CREDENTIALS"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath     string // FTABLES_CONFIG: override config file path
	Table          string // FTABLES_TABLE: active table ID
	CredentialFile string // FTABLES_CREDENTIALS: persisted credential path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv(EnvConfig),
		Table:          os.Getenv(EnvTable),
		CredentialFile: os.Getenv(EnvCredentials),
	}
}
