// Package auth obtains and maintains the OAuth2 credential used against the
// remote table service. A Manager drives an explicit state machine that
// reuses a held or persisted credential and falls back to interactive
// consent, and hands out an http.RoundTripper that authorizes every request.
package auth

import "errors"

// Sentinel errors. Use errors.Is to check.
var (
	// ErrCredentialUnavailable means no usable credential could be produced:
	// no client secret was supplied, the stored credential was rejected, or
	// the consent flow did not complete.
	ErrCredentialUnavailable = errors.New("auth: credential unavailable")

	// ErrConsentFailed means the interactive or remote consent exchange was
	// rejected.
	ErrConsentFailed = errors.New("auth: consent failed")

	// ErrSecretInvalid means the client-secret document is not well-formed.
	ErrSecretInvalid = errors.New("auth: invalid client secret")
)
