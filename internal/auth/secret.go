package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// secretFilePerms restricts the client-secret copy to the owner.
const secretFilePerms = 0o600

// ClientSecret is the application identity document required to start
// consent. It is the JSON file downloaded from the cloud console, with
// either an "installed" or a "web" top-level key.
type ClientSecret struct {
	raw []byte
	cfg *oauth2.Config
}

// ParseClientSecret decodes a client-secret document. Besides the plain JSON
// object it accepts the object wrapped in a JSON string, which is what older
// tooling wrote when it stored the document as text.
func ParseClientSecret(data []byte) (*ClientSecret, error) {
	normalized, err := normalizeSecret(data)
	if err != nil {
		return nil, err
	}

	cfg, err := google.ConfigFromJSON(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSecretInvalid, err)
	}

	return &ClientSecret{raw: normalized, cfg: cfg}, nil
}

// LoadClientSecret reads and parses the client-secret document at path.
func LoadClientSecret(path string) (*ClientSecret, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: reading client secret %s: %w", path, err)
	}

	s, err := ParseClientSecret(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}

// ClientID returns the OAuth2 client identifier.
func (s *ClientSecret) ClientID() string {
	return s.cfg.ClientID
}

// Config returns a fresh oauth2.Config for the given scopes. Callers may
// modify the result (e.g. RedirectURL) without affecting the secret.
func (s *ClientSecret) Config(scopes ...string) *oauth2.Config {
	cfg := *s.cfg
	cfg.Scopes = append([]string(nil), scopes...)

	return &cfg
}

// normalizeSecret returns the document as a JSON object. A JSON string whose
// content is itself an object is unwrapped.
func normalizeSecret(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)

	var probe any
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("%w: not JSON: %w", ErrSecretInvalid, err)
	}

	switch v := probe.(type) {
	case map[string]any:
		return trimmed, nil
	case string:
		return normalizeSecret([]byte(v))
	default:
		return nil, fmt.Errorf("%w: expected a JSON object, got %T", ErrSecretInvalid, v)
	}
}

// importClientSecret copies the document at src into dst. Structured input
// is stored as a normalized JSON object; anything else is stored verbatim so
// the parse error surfaces with the operator's own bytes on the next read.
func importClientSecret(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("auth: reading %s: %w", src, err)
	}

	if normalized, nerr := normalizeSecret(data); nerr == nil {
		data = normalized
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return fmt.Errorf("auth: creating %s: %w", filepath.Dir(dst), err)
	}

	if err := os.WriteFile(dst, data, secretFilePerms); err != nil {
		return fmt.Errorf("auth: writing client secret: %w", err)
	}

	return nil
}
