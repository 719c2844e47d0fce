package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// manualRedirectURL replaces a missing or out-of-band redirect URI.
const manualRedirectURL = "http://localhost"

// ManualConsent prints the authorization URL and reads back the code. The
// operator may paste either the bare code or the whole URL the browser was
// redirected to. No local listener is needed, so it works over SSH.
type ManualConsent struct {
	Prompter *Prompter
	Logger   *slog.Logger
}

// Obtain runs the authorization code + PKCE flow with manual code entry.
func (c *ManualConsent) Obtain(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	cfg = copyConfig(cfg)
	if !isLoopback(cfg.RedirectURL) {
		cfg.RedirectURL = manualRedirectURL
	}

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	c.Prompter.Printf("Go to the following link in your browser:\n\n    %s\n\n", authURL)

	answer, err := c.Prompter.Ask("Enter verification code: ")
	if err != nil {
		return nil, fmt.Errorf("reading verification code: %w", err)
	}

	code, err := extractCode(answer, state)
	if err != nil {
		return nil, err
	}

	return exchange(ctx, cfg, code, verifier, logger(c.Logger))
}

// extractCode accepts a bare code or a redirect URL carrying ?code=...&state=...
func extractCode(answer, state string) (string, error) {
	if answer == "" {
		return "", errors.New("empty verification code")
	}

	u, err := url.Parse(answer)
	if err != nil || u.Scheme == "" {
		return answer, nil
	}

	q := u.Query()
	if errParam := q.Get("error"); errParam != "" {
		return "", fmt.Errorf("authorization failed: %s: %s", errParam, q.Get("error_description"))
	}

	if got := q.Get("state"); got != "" && got != state {
		return "", errors.New("OAuth2 state mismatch (possible CSRF)")
	}

	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL carries no authorization code")
	}

	return code, nil
}

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// LoopbackConsent receives the authorization code on a localhost listener.
// OpenURL launches the browser; when it fails the URL is printed instead.
type LoopbackConsent struct {
	Prompter *Prompter
	OpenURL  func(string) error
	Logger   *slog.Logger
}

// Obtain runs the authorization code + PKCE flow with a loopback redirect.
func (c *LoopbackConsent) Obtain(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	log := logger(c.Logger)
	cfg = copyConfig(cfg)

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, log)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, log)

	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d/", port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	if c.OpenURL == nil || c.OpenURL(authURL) != nil {
		c.Prompter.Printf("Open this URL in your browser:\n%s\n", authURL)
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	return exchange(ctx, cfg, code, verifier, log)
}

// startCallbackServer binds to 127.0.0.1:0 and serves mux.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	log *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, errors.New("listener address is not TCP")
	}

	log.Info("consent callback listening", slog.Int("port", tcpAddr.Port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, tcpAddr.Port, nil
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	var res callbackResult

	q := r.URL.Query()

	switch {
	case q.Get("state") != state:
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		res.err = errors.New("OAuth2 state mismatch (possible CSRF)")
	case q.Get("error") != "":
		http.Error(w, "Authorization failed: "+q.Get("error"), http.StatusBadRequest)
		res.err = fmt.Errorf("authorization failed: %s: %s", q.Get("error"), q.Get("error_description"))
	case q.Get("code") == "":
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		res.err = errors.New("callback missing authorization code")
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h1>Authorization complete</h1>"+
			"<p>You can close this window and return to the terminal.</p></body></html>")
		res.code = q.Get("code")
	}

	select {
	case resultCh <- res:
	default:
	}
}

func shutdownCallbackServer(srv *http.Server, log *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("consent canceled: %w", ctx.Err())
	}
}

// exchange trades the authorization code for a token.
func exchange(ctx context.Context, cfg *oauth2.Config, code, verifier string, log *slog.Logger) (*oauth2.Token, error) {
	log.Info("received authorization code, exchanging for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	return tok, nil
}

// generateState produces a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

func copyConfig(cfg *oauth2.Config) *oauth2.Config {
	c := *cfg
	c.Scopes = append([]string(nil), cfg.Scopes...)

	return &c
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}

	return l
}

// isLoopback reports whether redirect points at this machine.
func isLoopback(redirect string) bool {
	u, err := url.Parse(redirect)
	if err != nil {
		return false
	}

	host := u.Hostname()

	return host == "localhost" || strings.HasPrefix(host, "127.")
}
