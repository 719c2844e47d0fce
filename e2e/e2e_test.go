//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternadata/ftables-go/testutil"
)

var (
	binaryPath  string
	sourceTable string
)

func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))
	sourceTable = testutil.ValidateAllowlist("FTABLES_TEST_TABLE")

	tmpDir, err := os.MkdirTemp("", "ftables-e2e-*")
	if err != nil {
		fatal("creating temp dir: %v", err)
	}

	binaryPath = filepath.Join(tmpDir, "ftables")

	build := exec.Command("go", "build", "-o", binaryPath, ".")
	build.Dir = root
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr

	if err := build.Run(); err != nil {
		fatal("building binary: %v", err)
	}

	cleanup := setupIsolation()
	code := m.Run()

	cleanup()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("ftables %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout.String(), stderr.String())
	}

	return stdout.String(), stderr.String()
}

// TestE2E_RoundTrip copies the allowlisted table and works on the copy, so
// the source table is never modified.
func TestE2E_RoundTrip(t *testing.T) {
	column := fmt.Sprintf("e2e_%d", time.Now().UnixNano())

	var copyID string

	t.Run("copy", func(t *testing.T) {
		stdout, _ := runCLI(t, "--table", sourceTable, "copy")
		copyID = strings.TrimSpace(stdout)
		require.NotEmpty(t, copyID)
		require.NotEqual(t, sourceTable, copyID)
	})

	require.NotEmpty(t, copyID, "copy failed, skipping the rest")

	t.Run("columns", func(t *testing.T) {
		stdout, _ := runCLI(t, "--table", copyID, "--json", "columns")

		var cols []map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &cols))
		assert.NotEmpty(t, cols)
	})

	t.Run("insert_columns", func(t *testing.T) {
		stdout, _ := runCLI(t, "--table", copyID, "insert-columns", column)
		assert.Contains(t, stdout, "inserted")
	})

	csvPath := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(column+"\n1\n2\n3\n"), 0o600))

	t.Run("verify_columns", func(t *testing.T) {
		stdout, _ := runCLI(t, "--table", copyID, "verify-columns", csvPath)
		assert.Contains(t, stdout, "present")
	})

	var runID string

	t.Run("import", func(t *testing.T) {
		stdout, _ := runCLI(t, "--table", copyID, "--json", "import", csvPath)

		var report struct {
			RunID string `json:"run_id"`
			Rows  int64  `json:"rows"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &report))
		assert.Equal(t, int64(3), report.Rows)

		runID = report.RunID
	})

	t.Run("query", func(t *testing.T) {
		stdout, _ := runCLI(t, "--table", copyID, "--json", "query", column)

		var res struct {
			Rows [][]any `json:"rows"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &res))
		assert.GreaterOrEqual(t, len(res.Rows), 3)
	})

	t.Run("history", func(t *testing.T) {
		require.NotEmpty(t, runID)

		stdout, _ := runCLI(t, "--json", "history", "--run", runID)

		var entries []map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, "succeeded", entries[0]["status"])
	})
}
