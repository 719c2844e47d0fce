package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"

	"github.com/eternadata/ftables-go/internal/credstore"
)

// DefaultScope grants read/write access to the table service.
const DefaultScope = "https://www.googleapis.com/auth/fusiontables"

// credentialDirName is the directory, under the user config dir, that holds
// derived credential and client-secret paths.
const credentialDirName = ".credentials"

// Store persists one credential. Satisfied by *credstore.File.
type Store interface {
	Load() (*credstore.Record, error)
	Save(rec *credstore.Record) error
	Delete() error
}

// Consent runs an interactive authorization and returns the granted token.
type Consent interface {
	Obtain(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// Config configures a Manager. Empty paths are derived from the process
// name once, in NewManager.
type Config struct {
	CredentialPath   string
	ClientSecretPath string
	Scopes           []string

	// Store overrides the file store at CredentialPath.
	Store Store

	// Consent defaults to ManualConsent on Prompter.
	Consent Consent

	// Prompter defaults to stdin/stderr.
	Prompter *Prompter

	// HTTPClient is used for token exchange and refresh. Nil means
	// http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Manager produces a valid Credential with as little operator interaction
// as possible. EnsureCredential and token acquisition are serialized, so a
// Manager may be shared by concurrent requests.
type Manager struct {
	credentialPath   string
	clientSecretPath string
	scopes           []string

	store      Store
	consent    Consent
	prompter   *Prompter
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	current *Credential
	secret  *ClientSecret
}

// NewManager resolves every default once and returns a Manager. No I/O
// happens until EnsureCredential.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	credPath, secretPath := cfg.CredentialPath, cfg.ClientSecretPath
	if credPath == "" || secretPath == "" {
		derivedCred, derivedSecret := derivePaths(processName())
		if credPath == "" {
			credPath = derivedCred
		}

		if secretPath == "" {
			secretPath = derivedSecret
		}
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}

	prompter := cfg.Prompter
	if prompter == nil {
		prompter = NewPrompter(os.Stdin, os.Stderr)
	}

	store := cfg.Store
	if store == nil {
		store = credstore.NewFile(credPath)
	}

	consent := cfg.Consent
	if consent == nil {
		consent = &ManualConsent{Prompter: prompter, Logger: logger}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Manager{
		credentialPath:   credPath,
		clientSecretPath: secretPath,
		scopes:           scopes,
		store:            store,
		consent:          consent,
		prompter:         prompter,
		httpClient:       httpClient,
		logger:           logger,
	}
}

// processName is the executable's base name without extension.
func processName() string {
	name := filepath.Base(os.Args[0])

	return strings.TrimSuffix(name, filepath.Ext(name))
}

// derivePaths places the credential and client secret for app under the
// user config directory.
func derivePaths(app string) (credPath, secretPath string) {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}

	dir := filepath.Join(base, app, credentialDirName)

	return filepath.Join(dir, app+".creds"), filepath.Join(dir, app+".client_secrets.json")
}

// CredentialPath returns where the credential is persisted.
func (m *Manager) CredentialPath() string {
	return m.credentialPath
}

// ClientSecretPath returns where the client-secret document is expected.
func (m *Manager) ClientSecretPath() string {
	return m.clientSecretPath
}

// Current returns the held credential, or nil.
func (m *Manager) Current() *Credential {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

// EnsureCredential returns a valid credential. When one is already held it
// returns immediately without I/O. Otherwise it walks the acquisition
// states until it reaches flowValid or a non-recoverable error.
func (m *Manager) EnsureCredential(ctx context.Context) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.ensureLocked(ctx)
}

func (m *Manager) ensureLocked(ctx context.Context) (*Credential, error) {
	run := &flowRun{}
	st := flowUninitialized

	for st != flowValid {
		next, err := m.step(ctx, st, run)
		if err != nil {
			return nil, err
		}

		m.logger.Debug("credential flow transition",
			slog.String("from", st.String()),
			slog.String("to", next.String()),
		)

		st = next
	}

	return m.current, nil
}

// Logout forgets the held credential and removes the persisted copy.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil

	if err := m.store.Delete(); err != nil {
		return err
	}

	m.logger.Info("removed persisted credential", slog.String("path", m.credentialPath))

	return nil
}

// loadSecret reads and caches the client secret.
func (m *Manager) loadSecret() (*ClientSecret, error) {
	if m.secret != nil {
		return m.secret, nil
	}

	s, err := LoadClientSecret(m.clientSecretPath)
	if err != nil {
		return nil, err
	}

	m.secret = s

	return s, nil
}

// persist saves c, logging instead of failing: the credential is usable for
// this process even when the disk write fails.
func (m *Manager) persist(c *Credential) {
	if err := m.store.Save(c.record()); err != nil {
		m.logger.Warn("failed to persist credential",
			slog.String("path", m.credentialPath),
			slog.String("error", err.Error()),
		)

		return
	}

	m.logger.Debug("persisted credential",
		slog.String("path", m.credentialPath),
		slog.Time("expiry", c.Expiry()),
	)
}

// token returns an access token for the transport, refreshing and
// persisting a replacement credential when the held one has expired.
func (m *Manager) token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.ensureLocked(ctx)
	if err != nil {
		return nil, err
	}

	if cred.token.Valid() {
		return cred.Token(), nil
	}

	secret, err := m.loadSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialUnavailable, err)
	}

	src := secret.Config(m.scopes...).TokenSource(m.exchangeContext(ctx), cred.Token())

	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			m.current = cred.invalidated()
			m.persist(m.current)
			m.logger.Warn("credential rejected by token endpoint", slog.String("error", err.Error()))

			return nil, fmt.Errorf("%w: refresh rejected: %w", ErrCredentialUnavailable, err)
		}

		return nil, fmt.Errorf("auth: refreshing credential: %w", err)
	}

	m.current = cred.refreshed(tok)
	m.persist(m.current)

	m.logger.Info("credential refreshed", slog.Time("expiry", tok.Expiry))

	return m.current.Token(), nil
}

// reject records that the service refused the access token access. A
// credential with a refresh token is force-expired so the next token call
// refreshes it; one without is marked invalid so the next EnsureCredential
// runs consent. Rejections of a token no longer held are ignored.
func (m *Manager) reject(access string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred := m.current
	if cred == nil || cred.token == nil || cred.token.AccessToken != access {
		return
	}

	if cred.token.RefreshToken != "" {
		m.current = cred.expired()
	} else {
		m.current = cred.invalidated()
	}

	m.persist(m.current)

	m.logger.Warn("access token rejected by service",
		slog.Bool("refreshable", !m.current.Invalid()),
	)
}

// exchangeContext makes the oauth2 package use m.httpClient.
func (m *Manager) exchangeContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	_, err := os.Stat(path)

	return !errors.Is(err, fs.ErrNotExist)
}
