package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// flowState enumerates the credential acquisition states.
type flowState int

const (
	flowUninitialized flowState = iota
	flowStorageUnconfigured
	flowSecretsUnconfigured
	flowSecretsMissing
	flowLoading
	flowConsentRequired
	flowValid
)

func (s flowState) String() string {
	switch s {
	case flowUninitialized:
		return "uninitialized"
	case flowStorageUnconfigured:
		return "storage_unconfigured"
	case flowSecretsUnconfigured:
		return "secrets_unconfigured"
	case flowSecretsMissing:
		return "secrets_missing"
	case flowLoading:
		return "loading"
	case flowConsentRequired:
		return "consent_required"
	case flowValid:
		return "valid"
	default:
		return fmt.Sprintf("flowState(%d)", int(s))
	}
}

// flowRun is per-call bookkeeping that bounds the loop: storage is read at
// most once and consent runs at most once per EnsureCredential call.
type flowRun struct {
	loaded    bool
	consented bool
}

// step performs one transition.
func (m *Manager) step(ctx context.Context, st flowState, run *flowRun) (flowState, error) {
	switch st {
	case flowUninitialized:
		if c := m.current; c.Valid() && c.covers(m.scopes) {
			return flowValid, nil
		}

		if run.consented {
			return 0, fmt.Errorf("%w: consent produced an unusable credential", ErrCredentialUnavailable)
		}

		return flowStorageUnconfigured, nil

	case flowStorageUnconfigured:
		return flowSecretsUnconfigured, ensureDir(m.credentialPath)

	case flowSecretsUnconfigured:
		return flowSecretsMissing, ensureDir(m.clientSecretPath)

	case flowSecretsMissing:
		if fileExists(m.clientSecretPath) {
			return flowLoading, nil
		}

		return flowSecretsMissing, m.askForSecret()

	case flowLoading:
		return m.load(run), nil

	case flowConsentRequired:
		if err := m.runConsent(ctx); err != nil {
			return 0, err
		}

		run.consented = true

		return flowUninitialized, nil

	default:
		return flowValid, nil
	}
}

// load reads the persisted credential once per run. Missing and corrupt
// files both mean "absent".
func (m *Manager) load(run *flowRun) flowState {
	if run.loaded {
		return flowConsentRequired
	}

	run.loaded = true

	rec, err := m.store.Load()
	if err != nil {
		m.logger.Debug("stored credential unusable, treating as absent",
			slog.String("path", m.credentialPath),
			slog.String("error", err.Error()),
		)

		return flowConsentRequired
	}

	if rec == nil {
		return flowConsentRequired
	}

	m.current = credentialFromRecord(rec)
	m.logger.Debug("loaded stored credential",
		slog.String("path", m.credentialPath),
		slog.Time("expiry", m.current.Expiry()),
		slog.Bool("invalid", m.current.Invalid()),
	)

	return flowUninitialized
}

// askForSecret prompts for an existing client-secret document and copies it
// into place. A path that does not exist simply leads to another prompt.
func (m *Manager) askForSecret() error {
	m.logger.Info("client secret not found", slog.String("path", m.clientSecretPath))
	m.prompter.Printf("Please set up a client secret (%s).\n", m.clientSecretPath)

	src, err := m.prompter.Ask("Enter the name of the file containing your client secret: ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: no client secret supplied", ErrCredentialUnavailable)
		}

		return fmt.Errorf("auth: reading client secret path: %w", err)
	}

	if src == "" || !fileExists(src) {
		return nil
	}

	if err := importClientSecret(src, m.clientSecretPath); err != nil {
		return err
	}

	m.logger.Info("client secret installed", slog.String("path", m.clientSecretPath))

	return nil
}

// runConsent performs the interactive flow and stores the result.
func (m *Manager) runConsent(ctx context.Context) error {
	secret, err := m.loadSecret()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialUnavailable, err)
	}

	m.logger.Info("starting consent flow", slog.Any("scopes", m.scopes))

	tok, err := m.consent.Obtain(m.exchangeContext(ctx), secret.Config(m.scopes...))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConsentFailed, err)
	}

	m.current = newCredential(tok, secret.ClientID(), m.scopes)
	m.persist(m.current)

	m.logger.Info("consent granted", slog.Time("expiry", tok.Expiry))

	return nil
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("auth: creating %s: %w", filepath.Dir(path), err)
	}

	return nil
}
