package config

// Default values for configuration options. These represent "layer 0" of the
// override chain.
const (
	defaultConsent      = ConsentManual
	defaultBaseURL      = "https://www.googleapis.com/fusiontables/v2"
	defaultUploadURL    = "https://www.googleapis.com/upload/fusiontables/v2"
	defaultViewURL      = "https://fusiontables.google.com/DataSource"
	defaultChunkSize    = "8MiB"
	defaultLogLevel     = "info"
	defaultLogFormat    = "auto"
	defaultTimeout      = "0"
	defaultScope        = "https://www.googleapis.com/auth/fusiontables"
	historyFileName     = "history.db"
	credentialSubdir    = "credentials"
	uploadSessionSubdir = "uploads"
	credentialFileName  = "ftables.creds"
	clientSecretName    = "client_secrets.json"
)

// Consent modes.
const (
	ConsentManual   = "manual"
	ConsentLoopback = "loopback"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields retain defaults.
// Path fields stay empty here; Resolve derives them from the platform
// directories.
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			Consent: defaultConsent,
			Scopes:  []string{defaultScope},
		},
		Service: ServiceConfig{
			BaseURL:   defaultBaseURL,
			UploadURL: defaultUploadURL,
			ViewURL:   defaultViewURL,
		},
		Import: ImportConfig{
			ChunkSize:     defaultChunkSize,
			ResumeUploads: true,
			RecordHistory: true,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			Timeout: defaultTimeout,
		},
	}
}
