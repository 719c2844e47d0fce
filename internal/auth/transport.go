package auth

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// maxLoggedBody caps how much of a request or response body is captured for
// diagnostic logging.
const maxLoggedBody = 16 * 1024

// AuthorizedTransport wraps base so every request carries the current
// credential's Authorization header. Expired tokens are refreshed and the
// replacement credential persisted. A 401 from the service marks the token
// it rejected as spent, so the next request refreshes or re-consents. ctx
// bounds token acquisition and must outlive the transport.
func (m *Manager) AuthorizedTransport(ctx context.Context, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}

	return &oauth2.Transport{
		Source: &managedSource{ctx: ctx, m: m},
		Base: &rejectionTransport{
			base: &diagnosticTransport{base: base, logger: m.logger},
			m:    m,
		},
	}
}

// AuthorizedClient returns an *http.Client using AuthorizedTransport. The
// timeout of base, if any, is preserved.
func (m *Manager) AuthorizedClient(ctx context.Context, base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}

	return &http.Client{
		Transport: m.AuthorizedTransport(ctx, base.Transport),
		Timeout:   base.Timeout,
	}
}

// managedSource adapts Manager to oauth2.TokenSource.
type managedSource struct {
	ctx context.Context //nolint:containedctx // oauth2.TokenSource has no ctx parameter
	m   *Manager
}

func (s *managedSource) Token() (*oauth2.Token, error) {
	return s.m.token(s.ctx)
}

// rejectionTransport reports 401 responses to the Manager. It sits inside
// oauth2.Transport so it sees the Authorization header actually sent.
type rejectionTransport struct {
	base http.RoundTripper
	m    *Manager
}

func (t *rejectionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if access := bearerToken(req.Header.Get("Authorization")); access != "" {
			t.m.reject(access)
		}
	}

	return resp, nil
}

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) string {
	_, tok, ok := strings.Cut(header, " ")
	if !ok {
		return ""
	}

	return strings.TrimSpace(tok)
}

// diagnosticTransport logs each request/response pair at debug level. It
// restores every body it reads, so the round trip is unchanged. The
// Authorization header is never logged.
type diagnosticTransport struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *diagnosticTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if !t.logger.Enabled(ctx, slog.LevelDebug) {
		return t.base.RoundTrip(req)
	}

	t.logger.LogAttrs(ctx, slog.LevelDebug, "request",
		slog.String("method", req.Method),
		slog.String("url", req.URL.Redacted()),
		slog.Any("headers", redactHeaders(req.Header)),
		slog.String("body", peekRequestBody(req)),
	)

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.LogAttrs(ctx, slog.LevelDebug, "response error",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	var body string
	resp.Body, body = captureBody(resp.Body)

	t.logger.LogAttrs(ctx, slog.LevelDebug, "response",
		slog.String("status", resp.Status),
		slog.String("body", body),
	)

	return resp, nil
}

func redactHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out.Get("Authorization") != "" {
		out.Set("Authorization", "REDACTED")
	}

	return out
}

// peekRequestBody returns the leading bytes of a replayable request body.
// Bodies without GetBody (streams) are not read.
func peekRequestBody(req *http.Request) string {
	if req.Body == nil || req.GetBody == nil {
		return ""
	}

	rc, err := req.GetBody()
	if err != nil {
		return ""
	}
	defer rc.Close()

	b, _ := io.ReadAll(io.LimitReader(rc, maxLoggedBody)) //nolint:errcheck // best-effort diagnostics

	return string(b)
}

// captureBody reads up to maxLoggedBody bytes and returns a body that yields
// the full original stream.
func captureBody(rc io.ReadCloser) (io.ReadCloser, string) {
	if rc == nil {
		return rc, ""
	}

	head, _ := io.ReadAll(io.LimitReader(rc, maxLoggedBody)) //nolint:errcheck // remainder still streamed below

	return struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), rc), rc}, string(head)
}
