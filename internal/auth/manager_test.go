package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/eternadata/ftables-go/internal/credstore"
)

type managerFixture struct {
	mgr     *Manager
	store   *memStore
	consent *fakeConsent
	dir     string
}

func newFixture(t *testing.T, withSecret bool, prompter *Prompter) *managerFixture {
	t.Helper()

	dir := t.TempDir()
	secretPath := filepath.Join(dir, "secrets", "client_secrets.json")

	if withSecret {
		require.NoError(t, os.MkdirAll(filepath.Dir(secretPath), 0o700))
		require.NoError(t, os.WriteFile(secretPath, []byte(secretJSON("http://127.0.0.1:1/token")), 0o600))
	}

	if prompter == nil {
		prompter, _ = answers()
	}

	store := &memStore{}
	consent := &fakeConsent{tok: freshToken("consented")}

	mgr := NewManager(Config{
		CredentialPath:   filepath.Join(dir, "creds", "ftables.creds"),
		ClientSecretPath: secretPath,
		Store:            store,
		Consent:          consent,
		Prompter:         prompter,
		Logger:           testLogger(),
	})

	return &managerFixture{mgr: mgr, store: store, consent: consent, dir: dir}
}

func TestEnsureCredential_SecondCallDoesNoIO(t *testing.T) {
	f := newFixture(t, true, nil)
	ctx := context.Background()

	first, err := f.mgr.EnsureCredential(ctx)
	require.NoError(t, err)

	loads, saves, consents := f.store.loads.Load(), f.store.saves.Load(), f.consent.calls.Load()

	second, err := f.mgr.EnsureCredential(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, loads, f.store.loads.Load())
	assert.Equal(t, saves, f.store.saves.Load())
	assert.Equal(t, consents, f.consent.calls.Load())
}

func TestEnsureCredential_UsesStoredCredential(t *testing.T) {
	f := newFixture(t, true, nil)
	f.store.rec = &credstore.Record{
		Token:  freshToken("stored"),
		Scopes: []string{DefaultScope},
	}

	cred, err := f.mgr.EnsureCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "stored", cred.Token().AccessToken)
	assert.Equal(t, int32(0), f.consent.calls.Load())
	assert.Equal(t, int32(1), f.store.loads.Load())
}

func TestEnsureCredential_ConsentWhenAbsent(t *testing.T) {
	f := newFixture(t, true, nil)

	cred, err := f.mgr.EnsureCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "consented", cred.Token().AccessToken)
	assert.Equal(t, int32(1), f.consent.calls.Load())
	require.NotNil(t, f.store.rec, "consented credential must be persisted")
	assert.Equal(t, "consented", f.store.rec.Token.AccessToken)
	assert.Equal(t, "cid.apps.googleusercontent.com", f.store.rec.ClientID)
	assert.Equal(t, []string{DefaultScope}, f.consent.cfg.Scopes)
}

func TestEnsureCredential_CorruptStoreTreatedAsAbsent(t *testing.T) {
	f := newFixture(t, true, nil)
	f.store.loadErr = credstore.ErrCorrupt

	cred, err := f.mgr.EnsureCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "consented", cred.Token().AccessToken)
	assert.Equal(t, int32(1), f.consent.calls.Load())
}

func TestEnsureCredential_ReconsentsForUnusableStoredCredential(t *testing.T) {
	tests := map[string]*credstore.Record{
		"flagged invalid": {Token: freshToken("old"), Scopes: []string{DefaultScope}, Invalid: true},
		"expired without refresh": {
			Token:  &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)},
			Scopes: []string{DefaultScope},
		},
		"narrower scope": {Token: freshToken("old"), Scopes: []string{"https://www.googleapis.com/auth/fusiontables.readonly"}},
	}

	for name, rec := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, true, nil)
			f.store.rec = rec

			cred, err := f.mgr.EnsureCredential(context.Background())
			require.NoError(t, err)

			assert.Equal(t, "consented", cred.Token().AccessToken)
			assert.Equal(t, int32(1), f.store.loads.Load(), "storage is read once per call")
			assert.Equal(t, int32(1), f.consent.calls.Load())
		})
	}
}

func TestEnsureCredential_ConsentFailurePropagates(t *testing.T) {
	f := newFixture(t, true, nil)
	f.consent.err = errBoom

	_, err := f.mgr.EnsureCredential(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConsentFailed)
	assert.ErrorIs(t, err, errBoom)
	assert.Nil(t, f.store.rec)
}

func TestEnsureCredential_ConsentReturnsUnusableToken(t *testing.T) {
	f := newFixture(t, true, nil)
	f.consent.tok = &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(-time.Minute)}

	_, err := f.mgr.EnsureCredential(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialUnavailable)
	assert.Equal(t, int32(1), f.consent.calls.Load())
}

func TestEnsureCredential_PromptsForMissingSecret(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "downloaded.json")
	require.NoError(t, os.WriteFile(src, []byte(secretJSON("http://127.0.0.1:1/token")), 0o600))

	prompter, out := answers(filepath.Join(srcDir, "typo.json"), src)
	f := newFixture(t, false, prompter)

	cred, err := f.mgr.EnsureCredential(context.Background())
	require.NoError(t, err)
	assert.True(t, cred.Valid())

	assert.Equal(t, 2, countOccurrences(out.String(), "Enter the name of the file"),
		"a nonexistent path leads to another prompt")

	installed, err := LoadClientSecret(f.mgr.ClientSecretPath())
	require.NoError(t, err)
	assert.Equal(t, "cid.apps.googleusercontent.com", installed.ClientID())
}

func TestEnsureCredential_MissingSecretAndNoInput(t *testing.T) {
	f := newFixture(t, false, nil)

	_, err := f.mgr.EnsureCredential(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialUnavailable)
	assert.Equal(t, int32(0), f.consent.calls.Load())
}

func TestEnsureCredential_MalformedSecret(t *testing.T) {
	f := newFixture(t, false, nil)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.mgr.ClientSecretPath()), 0o700))
	require.NoError(t, os.WriteFile(f.mgr.ClientSecretPath(), []byte("not a secret"), 0o600))

	_, err := f.mgr.EnsureCredential(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialUnavailable)
	assert.ErrorIs(t, err, ErrSecretInvalid)
}

func TestStep_Transitions(t *testing.T) {
	f := newFixture(t, true, nil)
	ctx := context.Background()

	tests := []struct {
		from flowState
		want flowState
	}{
		{flowUninitialized, flowStorageUnconfigured},
		{flowStorageUnconfigured, flowSecretsUnconfigured},
		{flowSecretsUnconfigured, flowSecretsMissing},
		{flowSecretsMissing, flowLoading},
		{flowLoading, flowConsentRequired},
	}

	run := &flowRun{}
	for _, tt := range tests {
		got, err := f.mgr.step(ctx, tt.from, run)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "from %s", tt.from)
	}

	got, err := f.mgr.step(ctx, flowLoading, run)
	require.NoError(t, err)
	assert.Equal(t, flowConsentRequired, got, "second load in one run goes straight to consent")

	got, err = f.mgr.step(ctx, flowConsentRequired, run)
	require.NoError(t, err)
	assert.Equal(t, flowUninitialized, got)

	got, err = f.mgr.step(ctx, flowUninitialized, run)
	require.NoError(t, err)
	assert.Equal(t, flowValid, got)
}

func TestFlowState_String(t *testing.T) {
	assert.Equal(t, "consent_required", flowConsentRequired.String())
	assert.Equal(t, "flowState(42)", flowState(42).String())
}

func TestNewManager_DerivesPathsFromProcessName(t *testing.T) {
	mgr := NewManager(Config{Logger: testLogger()})

	name := processName()
	assert.Equal(t, name+".creds", filepath.Base(mgr.CredentialPath()))
	assert.Equal(t, name+".client_secrets.json", filepath.Base(mgr.ClientSecretPath()))
	assert.Equal(t, credentialDirName, filepath.Base(filepath.Dir(mgr.CredentialPath())))
}

func TestLogout(t *testing.T) {
	f := newFixture(t, true, nil)

	_, err := f.mgr.EnsureCredential(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.mgr.Logout())

	assert.Nil(t, f.mgr.Current())
	assert.Nil(t, f.store.rec)
}

func countOccurrences(s, sub string) int {
	n := 0

	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}

	return n
}
