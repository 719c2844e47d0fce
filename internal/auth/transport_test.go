package auth

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/eternadata/ftables-go/internal/credstore"
)

// resourceServer records the Authorization header of each request.
func resourceServer(t *testing.T) (*httptest.Server, chan string) {
	t.Helper()

	seen := make(chan string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"kind":"ok"}`)
	}))
	t.Cleanup(srv.Close)

	return srv, seen
}

func expiredRecord() *credstore.Record {
	return &credstore.Record{
		Token: &oauth2.Token{
			AccessToken:  "stale",
			RefreshToken: "keep-me",
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(-time.Hour),
		},
		ClientID: "cid.apps.googleusercontent.com",
		Scopes:   []string{DefaultScope},
	}
}

func managerWithTokenServer(t *testing.T, ts *tokenServer, store *memStore) (*Manager, *fakeConsent) {
	t.Helper()

	dir := t.TempDir()
	consent := &fakeConsent{tok: freshToken("reconsented")}

	mgr := NewManager(Config{
		CredentialPath:   filepath.Join(dir, "ftables.creds"),
		ClientSecretPath: writeSecret(t, dir, ts.URL+"/token"),
		Store:            store,
		Consent:          consent,
		Logger:           testLogger(),
	})

	return mgr, consent
}

func TestAuthorizedClient_RefreshesAndPersists(t *testing.T) {
	var gotRefresh string

	ts := newTokenServer(t, func(form url.Values) (int, any) {
		gotRefresh = form.Get("refresh_token")

		return http.StatusOK, map[string]any{
			"access_token": "renewed",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
	})

	store := &memStore{rec: expiredRecord()}
	mgr, consent := managerWithTokenServer(t, ts, store)
	api, seen := resourceServer(t)

	client := mgr.AuthorizedClient(context.Background(), &http.Client{Timeout: 5 * time.Second})
	assert.Equal(t, 5*time.Second, client.Timeout)

	for range 2 {
		resp, err := client.Get(api.URL)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "Bearer renewed", <-seen)
	}

	assert.Equal(t, int32(1), ts.calls.Load(), "token reused until expiry")
	assert.Equal(t, "refresh_token", <-ts.grants)
	assert.Equal(t, "keep-me", gotRefresh)
	assert.Equal(t, int32(0), consent.calls.Load())

	require.NotNil(t, store.rec)
	assert.Equal(t, "renewed", store.rec.Token.AccessToken)
	assert.Equal(t, "keep-me", store.rec.Token.RefreshToken, "refresh token survives a refresh that omits it")
}

func TestAuthorizedClient_InvalidGrant(t *testing.T) {
	ts := newTokenServer(t, func(url.Values) (int, any) {
		return http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Token has been expired or revoked.",
		}
	})

	store := &memStore{rec: expiredRecord()}
	mgr, _ := managerWithTokenServer(t, ts, store)
	api, _ := resourceServer(t)

	client := mgr.AuthorizedClient(context.Background(), nil)

	_, err := client.Get(api.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialUnavailable)

	require.NotNil(t, mgr.Current())
	assert.True(t, mgr.Current().Invalid())
	assert.True(t, store.rec.Invalid, "rejection is persisted")
}

func TestAuthorizedClient_ReconsentsAfterRejection(t *testing.T) {
	ts := newTokenServer(t, func(url.Values) (int, any) {
		return http.StatusOK, okToken("unused")
	})

	store := &memStore{rec: expiredRecord()}
	store.rec.Invalid = true

	mgr, consent := managerWithTokenServer(t, ts, store)
	api, seen := resourceServer(t)

	resp, err := mgr.AuthorizedClient(context.Background(), nil).Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer reconsented", <-seen)
	assert.Equal(t, int32(1), consent.calls.Load())
	assert.Equal(t, int32(0), ts.calls.Load())
}

// revokingServer answers 401 to the bearer token revoked and records every
// Authorization header.
func revokingServer(t *testing.T, revoked string) (*httptest.Server, chan string) {
	t.Helper()

	seen := make(chan string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		seen <- auth

		if auth == "Bearer "+revoked {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		io.WriteString(w, `{"kind":"ok"}`)
	}))
	t.Cleanup(srv.Close)

	return srv, seen
}

func liveRecord(access, refresh string) *credstore.Record {
	return &credstore.Record{
		Token: &oauth2.Token{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Hour),
		},
		ClientID: "cid.apps.googleusercontent.com",
		Scopes:   []string{DefaultScope},
	}
}

func TestAuthorizedClient_ServiceRejectionForcesRefresh(t *testing.T) {
	ts := newTokenServer(t, func(url.Values) (int, any) {
		return http.StatusOK, okToken("renewed")
	})

	store := &memStore{rec: liveRecord("revoked", "keep-me")}
	mgr, consent := managerWithTokenServer(t, ts, store)
	api, seen := revokingServer(t, "revoked")

	client := mgr.AuthorizedClient(context.Background(), nil)

	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer revoked", <-seen)
	assert.Equal(t, int32(0), ts.calls.Load())

	resp, err = client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer renewed", <-seen, "rejected token is not sent again")
	assert.Equal(t, int32(1), ts.calls.Load())
	assert.Equal(t, "refresh_token", <-ts.grants)
	assert.Equal(t, int32(0), consent.calls.Load())

	require.NotNil(t, store.rec)
	assert.Equal(t, "renewed", store.rec.Token.AccessToken)
	assert.False(t, store.rec.Invalid)
}

func TestAuthorizedClient_ServiceRejectionWithoutRefreshToken(t *testing.T) {
	ts := newTokenServer(t, func(url.Values) (int, any) {
		return http.StatusOK, okToken("unused")
	})

	store := &memStore{rec: liveRecord("revoked", "")}
	mgr, consent := managerWithTokenServer(t, ts, store)
	api, seen := revokingServer(t, "revoked")

	client := mgr.AuthorizedClient(context.Background(), nil)

	resp, err := client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer revoked", <-seen)
	require.NotNil(t, mgr.Current())
	assert.True(t, mgr.Current().Invalid())
	assert.True(t, store.rec.Invalid, "rejection is persisted")

	resp, err = client.Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer reconsented", <-seen)
	assert.Equal(t, int32(1), consent.calls.Load())
	assert.Equal(t, int32(0), ts.calls.Load())
}

func TestManagerReject_IgnoresStaleToken(t *testing.T) {
	ts := newTokenServer(t, func(url.Values) (int, any) {
		return http.StatusOK, okToken("unused")
	})

	store := &memStore{rec: liveRecord("current", "r")}
	mgr, _ := managerWithTokenServer(t, ts, store)

	_, err := mgr.EnsureCredential(context.Background())
	require.NoError(t, err)

	mgr.reject("older")

	assert.True(t, mgr.Current().token.Valid())
	assert.Equal(t, int32(0), store.saves.Load())
}

func TestDiagnosticTransport_RedactsAndPreservesBodies(t *testing.T) {
	payload := strings.Repeat("r", maxLoggedBody+100)

	var gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, payload)
	}))
	defer srv.Close()

	var logs bytes.Buffer

	rt := &diagnosticTransport{
		base:   http.DefaultTransport,
		logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, strings.NewReader("name=col"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer super-secret")

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, payload, string(body), "full response body is still readable")
	assert.Equal(t, "name=col", gotBody)
	assert.NotContains(t, logs.String(), "super-secret")
	assert.Contains(t, logs.String(), "REDACTED")
	assert.Contains(t, logs.String(), "name=col")
}

func TestDiagnosticTransport_SilentAboveDebug(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	var logs bytes.Buffer

	rt := &diagnosticTransport{
		base:   http.DefaultTransport,
		logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, logs.String())
}
