package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/eternadata/ftables-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath  string
	flagTable       string
	flagCredentials string
	flagJSON        bool
	flagVerbose     bool
	flagQuiet       bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Resolved

// tableCommands lists, by CommandPath(), the commands that operate on the
// active table and therefore fail early when none is configured.
var tableCommands = map[string]bool{
	"ftables columns":        true,
	"ftables insert-columns": true,
	"ftables verify-columns": true,
	"ftables copy":           true,
	"ftables query":          true,
	"ftables import":         true,
}

// newRootCmd builds the root command with every subcommand registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ftables",
		Short:   "Remote table service client",
		Long:    "Manage columns, run queries, and import delimited files into remote tables.",
		Version: version,
		// Errors are printed once, by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}

			if tableCommands[cmd.CommandPath()] && resolvedCfg.Table == "" {
				return fmt.Errorf("no table selected: pass --table, set %s, or set default_table in %s",
					config.EnvTable, resolvedCfg.ConfigPath)
			}

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "config file path")
	pf.StringVarP(&flagTable, "table", "t", "", "table ID to operate on")
	pf.StringVar(&flagCredentials, "credentials", "", "persisted credential file")
	pf.BoolVar(&flagJSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors and suppress status output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newColumnsCmd(),
		newInsertColumnsCmd(),
		newVerifyColumnsCmd(),
		newCopyCmd(),
		newTablesCmd(),
		newQueryCmd(),
		newImportCmd(),
		newHistoryCmd(),
	)

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores it in resolvedCfg.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath:     flagConfigPath,
		CredentialFile: flagCredentials,
	}

	if cmd.Flags().Changed("table") {
		cli.Table = flagTable
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates the logger for a command. The config file sets the
// baseline level; --verbose and --quiet override it.
func buildLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = resolvedCfg.Logging.LogFormat
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
