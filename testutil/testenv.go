// Package testutil provides shared helpers for tests that run against a
// live table service. It depends only on stdlib so that E2E tests, which
// exercise the built binary rather than internal packages, can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowedTablesEnv lists the table IDs live tests may modify.
const AllowedTablesEnv = "FTABLES_ALLOWED_TEST_TABLES"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// A missing file is not an error. Existing env vars take precedence.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ValidateAllowlist exits the process unless the table named by tableEnvVar
// is listed in FTABLES_ALLOWED_TEST_TABLES, and returns that table ID.
func ValidateAllowlist(tableEnvVar string) string {
	allowlist := os.Getenv(AllowedTablesEnv)
	if allowlist == "" {
		fatalf("%s not set\nSet it in .env or as an environment variable.", AllowedTablesEnv)
	}

	table := os.Getenv(tableEnvVar)
	if table == "" {
		fatalf("%s not set", tableEnvVar)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == table {
			return table
		}
	}

	fatalf("%s=%q is not in %s=%q", tableEnvVar, table, AllowedTablesEnv, allowlist)

	return ""
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// FindTestCredentialDir locates .testdata/ relative to the module root and
// exits if it does not exist.
func FindTestCredentialDir(moduleRoot string) string {
	dir := filepath.Join(moduleRoot, ".testdata")

	if _, err := os.Stat(dir); err != nil {
		fatalf(".testdata/ directory not found at %s\nRun: go run ./cmd/integration-bootstrap", dir)
	}

	return dir
}

// CopyFile copies src to dst with the given permissions, exiting on failure.
func CopyFile(src, dst string, perm os.FileMode) {
	data, err := os.ReadFile(src)
	if err != nil {
		fatalf("cannot read %s: %v\nRun: go run ./cmd/integration-bootstrap", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		fatalf("creating %s: %v", filepath.Dir(dst), err)
	}

	if err := os.WriteFile(dst, data, perm); err != nil {
		fatalf("writing %s: %v", dst, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
