package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kperson/fire-sync/internal/identity"
	"github.com/kperson/fire-sync/internal/metrics"
	"github.com/kperson/fire-sync/internal/relay"
	"github.com/kperson/fire-sync/internal/store"
)

type contextKey string

const NamespaceContextKey contextKey = "namespace"

const (
	NamespaceHeader = "X-Namespace"
	TokenHeader     = "X-Token"
)

// AuthMiddleware admits requests to a namespace based on the tokens
// registered under it.
//
// A namespace with no registered tokens is open: requests without a token
// are admitted. Registering the first token closes it.
type AuthMiddleware struct {
	store    store.Store
	verifier identity.Verifier
	logger   zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware. verifier checks member
// credentials; when nil they are never accepted.
func NewAuthMiddleware(s store.Store, verifier identity.Verifier, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{store: s, verifier: verifier, logger: logger}
}

// RequireNamespace checks the namespace and token headers against the
// store on every request and binds the namespace to the request context.
func (m *AuthMiddleware) RequireNamespace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		namespace := r.Header.Get(NamespaceHeader)
		if namespace == "" {
			m.deny(w, "missing_namespace")
			return
		}
		if store.ValidateKey(namespace) != nil {
			m.deny(w, "invalid_namespace")
			return
		}

		if token := r.Header.Get(TokenHeader); token != "" {
			if store.ValidateKey(token) != nil {
				m.deny(w, "unknown_token")
				return
			}
			ok, err := m.store.Exists(r.Context(), relay.TokenPath(namespace, token))
			if err != nil {
				m.storeFailure(w, r, namespace, err)
				return
			}
			if !ok {
				m.deny(w, "unknown_token")
				return
			}
		} else {
			protected, err := m.store.Exists(r.Context(), relay.TokensPath(namespace))
			if err != nil {
				m.storeFailure(w, r, namespace, err)
				return
			}
			if protected {
				m.deny(w, "token_required")
				return
			}
		}

		ctx := context.WithValue(r.Context(), NamespaceContextKey, namespace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireNamespaceOrMember also admits a member reading its own inbox with
// "Authorization: Bearer <credential>", where the credential was issued for
// the namespace header and the memberId route parameter. Requests without
// a bearer credential go through RequireNamespace.
func (m *AuthMiddleware) RequireNamespaceOrMember(next http.Handler) http.Handler {
	gate := m.RequireNamespace(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			gate.ServeHTTP(w, r)
			return
		}

		namespace := r.Header.Get(NamespaceHeader)
		if namespace == "" {
			m.deny(w, "missing_namespace")
			return
		}
		if store.ValidateKey(namespace) != nil {
			m.deny(w, "invalid_namespace")
			return
		}
		if m.verifier == nil {
			m.deny(w, "member_credential_unsupported")
			return
		}
		claims, err := m.verifier.Verify(namespace, token)
		if err != nil {
			m.deny(w, "invalid_member_credential")
			return
		}
		if claims.Subject == "" || claims.Subject != chi.URLParam(r, "memberId") {
			m.logger.Warn().
				Str("type", "security").
				Str("namespace", namespace).
				Str("subject", claims.Subject).
				Str("path", r.URL.Path).
				Msg("member credential used for another member")
			m.deny(w, "wrong_member")
			return
		}

		ctx := context.WithValue(r.Context(), NamespaceContextKey, namespace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

func (m *AuthMiddleware) deny(w http.ResponseWriter, reason string) {
	metrics.AuthDenied.WithLabelValues(reason).Inc()
	jsonError(w, http.StatusForbidden, "Unauthorized")
}

func (m *AuthMiddleware) storeFailure(w http.ResponseWriter, r *http.Request, namespace string, err error) {
	m.logger.Error().
		Err(err).
		Str("namespace", namespace).
		Str("path", r.URL.Path).
		Msg("token lookup failed")
	jsonError(w, http.StatusInternalServerError, "store unavailable")
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetNamespaceFromContext retrieves the admitted namespace from the request context.
func GetNamespaceFromContext(ctx context.Context) string {
	ns, _ := ctx.Value(NamespaceContextKey).(string)
	return ns
}
