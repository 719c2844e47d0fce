package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/eternadata/ftables-go/internal/auth"
	"github.com/eternadata/ftables-go/internal/config"
	"github.com/eternadata/ftables-go/internal/fusion"
	"github.com/eternadata/ftables-go/internal/history"
	"github.com/eternadata/ftables-go/internal/uploadsession"
)

// cliContext carries what every command needs: the resolved config, a
// logger, and the command's output streams.
type cliContext struct {
	cfg    *config.Resolved
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
}

func newCLIContext(cmd *cobra.Command) *cliContext {
	return &cliContext{
		cfg:    resolvedCfg,
		logger: buildLogger(cmd.ErrOrStderr()),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
}

// Statusf prints a status message to stderr unless --quiet is set.
func (cc *cliContext) Statusf(format string, args ...any) {
	statusf(cc.errOut, flagQuiet, format, args...)
}

// newAuthManager builds the credential manager from [auth]. Prompts and
// authorization URLs always go to stderr, even with --quiet.
func (cc *cliContext) newAuthManager() *auth.Manager {
	prompter := auth.NewPrompter(os.Stdin, cc.errOut)

	var consent auth.Consent = &auth.ManualConsent{Prompter: prompter, Logger: cc.logger}
	if cc.cfg.Auth.Consent == config.ConsentLoopback {
		consent = &auth.LoopbackConsent{Prompter: prompter, OpenURL: openBrowser, Logger: cc.logger}
	}

	return auth.NewManager(auth.Config{
		CredentialPath:   cc.cfg.Auth.CredentialFile,
		ClientSecretPath: cc.cfg.Auth.ClientSecretFile,
		Scopes:           cc.cfg.Auth.Scopes,
		Consent:          consent,
		Prompter:         prompter,
		Logger:           cc.logger,
	})
}

// session is an authorized connection to the table service bound to the
// configured table.
type session struct {
	auth   *auth.Manager
	exec   *fusion.Executor
	client *fusion.TableClient
}

// newSession makes sure a credential is available before any request is
// built, so consent happens up front rather than mid-import.
func (cc *cliContext) newSession(ctx context.Context) (*session, error) {
	mgr := cc.newAuthManager()

	if _, err := mgr.EnsureCredential(ctx); err != nil {
		return nil, err
	}

	base := &http.Client{Timeout: cc.cfg.Timeout}

	opts := fusion.Options{
		HTTPClient: mgr.AuthorizedClient(ctx, base),
		BaseURL:    cc.cfg.Service.BaseURL,
		UploadURL:  cc.cfg.Service.UploadURL,
		UserAgent:  cc.cfg.Network.UserAgent,
		ChunkSize:  cc.cfg.ChunkSizeBytes,
		Progress:   cc.progress,
		Logger:     cc.logger,
	}

	if cc.cfg.Import.ResumeUploads {
		if dir := config.UploadSessionDir(); dir != "" {
			opts.Sessions = uploadsession.NewStore(dir, cc.logger)
		}
	}

	executor := fusion.NewExecutor(opts)

	return &session{
		auth:   mgr,
		exec:   executor,
		client: fusion.NewTableClient(executor, cc.cfg.Table, fusion.WithViewURL(cc.cfg.Service.ViewURL)),
	}, nil
}

// openLedger opens the import history database.
func (cc *cliContext) openLedger(ctx context.Context) (*history.Ledger, error) {
	ledger, err := history.Open(ctx, cc.cfg.Import.HistoryFile, cc.logger)
	if err != nil {
		return nil, fmt.Errorf("opening import history: %w", err)
	}

	return ledger, nil
}

// progress renders upload progress on one status line.
func (cc *cliContext) progress(operation string, percent int) {
	cc.Statusf("\r%s: %3d%%", operation, percent)

	if percent == 100 {
		cc.Statusf("\n")
	}
}

// openBrowser launches the platform URL handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	return cmd.Start()
}
