//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternadata/ftables-go/testutil"
)

// realHomeDir is HOME before setupIsolation overrides it.
var realHomeDir string

// testCredentialDir is the module's .testdata/. The credential, client
// secret and optional config.toml are read from here, never from
// production dirs.
var testCredentialDir string

// Paths inside the isolated tree.
var (
	isolatedCredPath   string
	isolatedConfigPath string
)

// setupIsolation points HOME and XDG directories at a temp tree, copies the
// test credential and client secret into the default locations, and
// verifies isolation. The returned cleanup copies a refreshed credential
// back to .testdata/ and removes the tree.
func setupIsolation() func() {
	home, err := os.UserHomeDir()
	if err != nil {
		fatal("cannot determine home dir: %v", err)
	}

	realHomeDir = home
	testCredentialDir = testutil.FindTestCredentialDir(testutil.FindModuleRoot(".."))

	for _, v := range []string{"FTABLES_CONFIG", "FTABLES_TABLE", "FTABLES_CREDENTIALS"} {
		os.Unsetenv(v)
	}

	tempRoot, err := os.MkdirTemp("", "ftables-e2e-isolation-*")
	if err != nil {
		fatal("creating isolation temp dir: %v", err)
	}

	tempHome := filepath.Join(tempRoot, "home")
	tempConfig := filepath.Join(tempRoot, "config")
	tempData := filepath.Join(tempRoot, "data")

	for _, d := range []string{tempHome, tempConfig, tempData} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			fatal("creating dir %s: %v", d, err)
		}
	}

	os.Setenv("HOME", tempHome)
	os.Setenv("XDG_CONFIG_HOME", tempConfig)
	os.Setenv("XDG_DATA_HOME", tempData)

	isolatedCredPath = filepath.Join(tempData, "ftables", "credentials", "ftables.creds")
	isolatedConfigPath = filepath.Join(tempConfig, "ftables", "config.toml")

	testutil.CopyFile(filepath.Join(testCredentialDir, "ftables.creds"), isolatedCredPath, 0o600)
	testutil.CopyFile(
		filepath.Join(testCredentialDir, "client_secrets.json"),
		filepath.Join(tempConfig, "ftables", "client_secrets.json"),
		0o600,
	)

	// A config.toml in .testdata/ can point the suite at another endpoint.
	if _, err := os.Stat(filepath.Join(testCredentialDir, "config.toml")); err == nil {
		testutil.CopyFile(filepath.Join(testCredentialDir, "config.toml"), isolatedConfigPath, 0o600)
	}

	verifyIsolation(tempRoot)

	fmt.Fprintf(os.Stderr, "E2E isolation: HOME=%s XDG_DATA_HOME=%s\n", tempHome, tempData)

	return func() {
		data, err := os.ReadFile(isolatedCredPath)
		if err == nil {
			if err := os.WriteFile(filepath.Join(testCredentialDir, "ftables.creds"), data, 0o600); err != nil {
				fmt.Fprintf(os.Stderr, "WARNING: cannot write refreshed credential back: %v\n", err)
			}
		}

		os.RemoveAll(tempRoot)
	}
}

// verifyIsolation exits before any test runs if a production path could
// leak into the suite.
func verifyIsolation(tempRoot string) {
	for _, v := range []string{"FTABLES_CONFIG", "FTABLES_CREDENTIALS"} {
		if os.Getenv(v) != "" {
			fatal("isolation check failed: %s is set", v)
		}
	}

	for _, v := range []string{"HOME", "XDG_DATA_HOME", "XDG_CONFIG_HOME"} {
		if !strings.HasPrefix(os.Getenv(v), tempRoot) {
			fatal("isolation check failed: %s not overridden to temp dir", v)
		}
	}

	if homeDir, _ := os.UserHomeDir(); !strings.HasPrefix(homeDir, tempRoot) {
		fatal("isolation check failed: UserHomeDir() returns %s", homeDir)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}

func TestIsolation_HomeOverridden(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.NotEqual(t, realHomeDir, home)
}

func TestIsolation_CredentialInPlace(t *testing.T) {
	info, err := os.Stat(isolatedCredPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
