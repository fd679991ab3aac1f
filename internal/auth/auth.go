// Package auth checks bearer tokens presented to the control API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scopes understood by the control API. A write scope implies the
// matching read scope.
const (
	ScopeAll            = "*"
	ScopeProceduresRead = "procedures:ro"
	ScopeProceduresCall = "procedures:rw"
	ScopeEventsRead     = "events:ro"
)

var knownScopes = map[string]bool{
	ScopeAll:            true,
	ScopeProceduresRead: true,
	ScopeProceduresCall: true,
	ScopeEventsRead:     true,
}

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// Validate reports an empty token or an unknown scope.
func (t TokenConfig) Validate() error {
	if strings.TrimSpace(t.Token) == "" {
		return errors.New("token is empty")
	}
	if len(t.Scopes) == 0 {
		return errors.New("token has no scopes")
	}
	for _, s := range t.Scopes {
		if !knownScopes[strings.TrimSpace(s)] {
			return fmt.Errorf("unknown scope %q", s)
		}
	}
	return nil
}

type Principal struct {
	Scopes map[string]struct{}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Verifier matches presented tokens against a fixed set. A verifier
// without tokens is disabled and every request passes.
type Verifier struct {
	tokens []TokenConfig
}

func NewVerifier(tokens []TokenConfig) *Verifier {
	return &Verifier{tokens: tokens}
}

// Enabled reports whether any token is configured.
func (v *Verifier) Enabled() bool { return v != nil && len(v.tokens) > 0 }

// Authenticate returns the principal of the matching token.
func (v *Verifier) Authenticate(presented string) (Principal, bool) {
	if !v.Enabled() {
		return Principal{}, false
	}
	for _, t := range v.tokens {
		if constantTimeEqual(presented, t.Token) {
			return Principal{Scopes: normalizeScopes(t.Scopes)}, true
		}
	}
	return Principal{}, false
}

func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("invalid Authorization header format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func normalizeScopes(scopes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(scopes)+1)
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}
	if _, ok := out[ScopeProceduresCall]; ok {
		out[ScopeProceduresRead] = struct{}{}
	}
	return out
}

// HasAnyScope reports whether p holds one of required, or the wildcard.
func HasAnyScope(p Principal, required ...string) bool {
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
