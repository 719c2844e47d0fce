package auth

import (
	"slices"
	"time"

	"golang.org/x/oauth2"

	"github.com/eternadata/ftables-go/internal/credstore"
)

// Credential is the authorization artifact for the table service. Values
// are immutable: a refresh or a rejection produces a new Credential.
type Credential struct {
	token    *oauth2.Token
	clientID string
	scopes   []string
	invalid  bool
}

func newCredential(tok *oauth2.Token, clientID string, scopes []string) *Credential {
	if tok != nil {
		t := *tok
		tok = &t
	}

	return &Credential{
		token:    tok,
		clientID: clientID,
		scopes:   slices.Clone(scopes),
	}
}

func credentialFromRecord(rec *credstore.Record) *Credential {
	return &Credential{
		token:    rec.Token,
		clientID: rec.ClientID,
		scopes:   slices.Clone(rec.Scopes),
		invalid:  rec.Invalid,
	}
}

func (c *Credential) record() *credstore.Record {
	return &credstore.Record{
		Token:    c.Token(),
		ClientID: c.clientID,
		Scopes:   slices.Clone(c.scopes),
		Invalid:  c.invalid,
	}
}

// Token returns a copy of the underlying OAuth2 token.
func (c *Credential) Token() *oauth2.Token {
	if c.token == nil {
		return nil
	}

	t := *c.token

	return &t
}

// Expiry is when the access token stops being accepted. Zero means unknown.
func (c *Credential) Expiry() time.Time {
	if c.token == nil {
		return time.Time{}
	}

	return c.token.Expiry
}

// Scopes returns the scopes the credential was granted for.
func (c *Credential) Scopes() []string {
	return slices.Clone(c.scopes)
}

// Invalid reports whether the service has rejected this credential.
func (c *Credential) Invalid() bool {
	return c.invalid
}

// Valid reports whether the credential can authorize requests, either
// directly or after a silent refresh.
func (c *Credential) Valid() bool {
	if c == nil || c.invalid || c.token == nil {
		return false
	}

	return c.token.RefreshToken != "" || c.token.Valid()
}

// covers reports whether every requested scope was granted.
func (c *Credential) covers(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(c.scopes, s) {
			return false
		}
	}

	return true
}

// refreshed returns a new Credential carrying tok.
func (c *Credential) refreshed(tok *oauth2.Token) *Credential {
	n := newCredential(tok, c.clientID, c.scopes)
	if n.token.RefreshToken == "" && c.token != nil {
		n.token.RefreshToken = c.token.RefreshToken
	}

	return n
}

// invalidated returns a copy flagged as rejected.
func (c *Credential) invalidated() *Credential {
	n := newCredential(c.Token(), c.clientID, c.scopes)
	n.invalid = true

	return n
}

// expired returns a copy whose access token is already past its expiry.
func (c *Credential) expired() *Credential {
	n := newCredential(c.Token(), c.clientID, c.scopes)
	n.token.Expiry = time.Now().Add(-time.Minute)

	return n
}
