package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mattjoyce/pqd/internal/auth"
	"github.com/mattjoyce/pqd/internal/journal"
	"github.com/mattjoyce/pqd/internal/registry"
)

func TestTokenScopes(t *testing.T) {
	j := journal.New(16)
	a := &fakeApplier{j: j}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	s := New(Config{
		Listen: "127.0.0.1:0",
		Tokens: []auth.TokenConfig{
			{Token: "reader", Scopes: []string{auth.ScopeProceduresRead}},
			{Token: "caller", Scopes: []string{auth.ScopeProceduresCall}},
			{Token: "watcher", Scopes: []string{auth.ScopeEventsRead}},
		},
	}, registry.MustNew(registry.RevisionChecked), a, inlineRunner{}, j, logger)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{name: "healthz is open", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "openapi is open", method: http.MethodGet, path: "/openapi.json", want: http.StatusOK},
		{name: "no token", method: http.MethodGet, path: "/procedures", want: http.StatusUnauthorized},
		{name: "bad token", method: http.MethodGet, path: "/procedures", token: "guess", want: http.StatusUnauthorized},
		{name: "reader lists", method: http.MethodGet, path: "/procedures", token: "reader", want: http.StatusOK},
		{name: "reader cannot call", method: http.MethodPost, path: "/procedures/setPQMode", body: `{"args":[1]}`, token: "reader", want: http.StatusForbidden},
		{name: "caller calls", method: http.MethodPost, path: "/procedures/setPQMode", body: `{"args":[1]}`, token: "caller", want: http.StatusOK},
		{name: "caller lists", method: http.MethodGet, path: "/procedures", token: "caller", want: http.StatusOK},
		{name: "watcher reads outcomes", method: http.MethodGet, path: "/outcomes", token: "watcher", want: http.StatusOK},
		{name: "watcher cannot list", method: http.MethodGet, path: "/procedures", token: "watcher", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	assert.Len(t, a.calls, 1, "only the authorized call reaches the applier")
}
