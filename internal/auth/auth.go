// Package auth authenticates bearer tokens for the admin API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Scopes granted to tokens.
const (
	ScopeAll         = "*"
	ScopeDashboardRO = "dashboard:ro"
	ScopeDashboardRW = "dashboard:rw"
	ScopeMediaRW     = "media:rw"
	ScopeEventsRO    = "events:ro"
)

// implied lists scopes a granted scope carries with it.
var implied = map[string][]string{
	ScopeDashboardRW: {ScopeDashboardRO},
}

// KnownScope reports whether s is a scope the API checks for.
func KnownScope(s string) bool {
	switch s {
	case ScopeAll, ScopeDashboardRO, ScopeDashboardRW, ScopeMediaRW, ScopeEventsRO:
		return true
	}
	return false
}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Principal is the authenticated caller.
type Principal struct {
	Token  string
	Scopes map[string]struct{}
}

// Admin is the principal behind the API key or an open keyring.
func Admin(token string) Principal {
	return Principal{Token: token, Scopes: map[string]struct{}{ScopeAll: {}}}
}

// Can reports whether p holds any of required. No requirement always passes.
func (p Principal) Can(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := p.Scopes[ScopeAll]; ok {
		return true
	}
	for _, s := range required {
		if _, ok := p.Scopes[s]; ok {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Keyring holds the configured credentials.
type Keyring struct {
	apiKey string
	tokens []Principal
}

// NewKeyring builds a keyring. Tokens with an empty secret are ignored.
func NewKeyring(apiKey string, tokens []TokenConfig) *Keyring {
	k := &Keyring{apiKey: apiKey}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		k.tokens = append(k.tokens, Principal{Token: t.Token, Scopes: expandScopes(t.Scopes)})
	}
	return k
}

// Open reports whether no credentials are configured, in which case every
// caller is admin.
func (k *Keyring) Open() bool {
	return k.apiKey == "" && len(k.tokens) == 0
}

// Authenticate resolves a presented token. The API key maps to admin.
func (k *Keyring) Authenticate(presented string) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	if secretEqual(presented, k.apiKey) {
		return Admin(presented), true
	}
	for _, p := range k.tokens {
		if secretEqual(presented, p.Token) {
			return p, true
		}
	}
	return Principal{}, false
}

// Resolve authenticates r. Open keyrings return admin without looking at the
// request.
func (k *Keyring) Resolve(r *http.Request) (Principal, error) {
	if k.Open() {
		return Admin(""), nil
	}
	token, err := ExtractBearerToken(r)
	if err != nil {
		return Principal{}, err
	}
	p, ok := k.Authenticate(token)
	if !ok {
		return Principal{}, errors.New("invalid API key")
	}
	return p, nil
}

func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", errors.New("invalid Authorization header format")
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", errors.New("missing API key")
	}
	return token, nil
}

func secretEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func expandScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out[s] = struct{}{}
		for _, extra := range implied[s] {
			out[extra] = struct{}{}
		}
	}
	return out
}
