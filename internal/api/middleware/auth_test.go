package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kperson/fire-sync/internal/crypto"
	"github.com/kperson/fire-sync/internal/identity"
	"github.com/kperson/fire-sync/internal/relay"
	"github.com/kperson/fire-sync/internal/store"
)

func authRequest(t *testing.T, s store.Store, namespace, token string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetNamespaceFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/group/g1", nil)
	if namespace != "" {
		req.Header.Set(NamespaceHeader, namespace)
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	NewAuthMiddleware(s, nil, zerolog.Nop()).RequireNamespace(next).ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireNamespace(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, relay.TokenPath("locked", "secret"), true))

	tests := []struct {
		name      string
		namespace string
		token     string
		want      int
	}{
		{"missing namespace", "", "", http.StatusForbidden},
		{"invalid namespace", "a.b", "", http.StatusForbidden},
		{"open namespace without token", "open", "", http.StatusNoContent},
		{"open namespace with unknown token", "open", "nope", http.StatusForbidden},
		{"locked namespace without token", "locked", "", http.StatusForbidden},
		{"locked namespace with wrong token", "locked", "nope", http.StatusForbidden},
		{"locked namespace with invalid token key", "locked", "sec.ret", http.StatusForbidden},
		{"locked namespace with token", "locked", "secret", http.StatusNoContent},
		{"token from another namespace", "open", "secret", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, seen := authRequest(t, s, tt.namespace, tt.token)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, tt.namespace, seen)
			} else {
				assert.Empty(t, seen)
				assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestRequireNamespaceReopensAfterLastToken(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, relay.TokenPath("acme", "t1"), true))

	rec, _ := authRequest(t, s, "acme", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, s.Remove(ctx, relay.TokenPath("acme", "t1")))
	rec, _ = authRequest(t, s, "acme", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type unavailableStore struct {
	store.Store
}

func (unavailableStore) Exists(ctx context.Context, path string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestRequireNamespaceStoreFailure(t *testing.T) {
	rec, seen := authRequest(t, unavailableStore{store.NewMemoryStore()}, "acme", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, seen)
}

func TestRequireNamespaceOrMember(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, relay.TokenPath("acme", "secret"), true))

	key, err := crypto.GenerateSigningKey()
	require.NoError(t, err)
	issuer, err := identity.NewJWTIssuer(key, "fire-sync", time.Hour)
	require.NoError(t, err)
	alice, err := issuer.IssueToken(ctx, "acme", "alice")
	require.NoError(t, err)

	serve := func(verifier identity.Verifier, memberID, namespace, token, authorization string) (int, string) {
		var seen string
		r := chi.NewRouter()
		r.With(NewAuthMiddleware(s, verifier, zerolog.Nop()).RequireNamespaceOrMember).
			Get("/member/{memberId}/messages", func(w http.ResponseWriter, r *http.Request) {
				seen = GetNamespaceFromContext(r.Context())
				w.WriteHeader(http.StatusNoContent)
			})

		req := httptest.NewRequest(http.MethodGet, "/member/"+memberID+"/messages", nil)
		if namespace != "" {
			req.Header.Set(NamespaceHeader, namespace)
		}
		if token != "" {
			req.Header.Set(TokenHeader, token)
		}
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code, seen
	}

	tests := []struct {
		name          string
		verifier      identity.Verifier
		memberID      string
		namespace     string
		token         string
		authorization string
		want          int
	}{
		{"own credential", issuer, "alice", "acme", "", "Bearer " + alice, http.StatusNoContent},
		{"lowercase scheme", issuer, "alice", "acme", "", "bearer " + alice, http.StatusNoContent},
		{"another member's inbox", issuer, "bob", "acme", "", "Bearer " + alice, http.StatusForbidden},
		{"another namespace", issuer, "alice", "other", "", "Bearer " + alice, http.StatusForbidden},
		{"missing namespace", issuer, "alice", "", "", "Bearer " + alice, http.StatusForbidden},
		{"garbage credential", issuer, "alice", "acme", "", "Bearer not.a.token", http.StatusForbidden},
		{"member credentials disabled", nil, "alice", "acme", "", "Bearer " + alice, http.StatusForbidden},
		{"namespace token", issuer, "bob", "acme", "secret", "", http.StatusNoContent},
		{"no credentials", issuer, "alice", "acme", "", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, seen := serve(tt.verifier, tt.memberID, tt.namespace, tt.token, tt.authorization)
			assert.Equal(t, tt.want, code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "acme", seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/group/../tokens", nil)
	rec := httptest.NewRecorder()
	ValidateRequest(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/group", strings.NewReader(`{"groupId":"g"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	ValidateRequest(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
