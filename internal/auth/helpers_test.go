package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/eternadata/ftables-go/internal/credstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// memStore is an in-memory Store that counts calls.
type memStore struct {
	rec     *credstore.Record
	loadErr error
	loads   atomic.Int32
	saves   atomic.Int32
}

func (s *memStore) Load() (*credstore.Record, error) {
	s.loads.Add(1)
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	return s.rec, nil
}

func (s *memStore) Save(rec *credstore.Record) error {
	s.saves.Add(1)
	s.rec = rec

	return nil
}

func (s *memStore) Delete() error {
	s.rec = nil
	return nil
}

// fakeConsent returns a fixed token and counts invocations.
type fakeConsent struct {
	tok   *oauth2.Token
	err   error
	calls atomic.Int32
	cfg   *oauth2.Config
}

func (c *fakeConsent) Obtain(_ context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	c.calls.Add(1)
	c.cfg = cfg

	if c.err != nil {
		return nil, c.err
	}

	return c.tok, nil
}

func secretJSON(tokenURL string) string {
	return fmt.Sprintf(`{"installed":{
		"client_id":"cid.apps.googleusercontent.com",
		"client_secret":"shh",
		"auth_uri":"https://accounts.example.com/o/oauth2/auth",
		"token_uri":%q,
		"redirect_uris":["http://localhost"]
	}}`, tokenURL)
}

// writeSecret writes a client secret into dir and returns its path.
func writeSecret(t *testing.T, dir, tokenURL string) string {
	t.Helper()

	path := filepath.Join(dir, "client_secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(secretJSON(tokenURL)), 0o600))

	return path
}

func freshToken(access string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: "refresh-" + access,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
}

// tokenServer is a fake OAuth2 token endpoint.
type tokenServer struct {
	*httptest.Server
	calls  atomic.Int32
	grants chan string
}

func newTokenServer(t *testing.T, handler func(form url.Values) (int, any)) *tokenServer {
	t.Helper()

	ts := &tokenServer{grants: make(chan string, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)

		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		ts.grants <- r.PostForm.Get("grant_type")

		status, body := handler(r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)

	return ts
}

func okToken(access string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + access,
	}
}

var errBoom = errors.New("boom")

// answers builds a Prompter fed with the given lines.
func answers(lines ...string) (*Prompter, *strings.Builder) {
	out := &strings.Builder{}
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")

	if len(lines) == 0 {
		in = strings.NewReader("")
	}

	return NewPrompter(in, out), out
}
