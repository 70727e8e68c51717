package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kperson/fire-sync/internal/api/middleware"
	"github.com/kperson/fire-sync/internal/identity"
	"github.com/kperson/fire-sync/internal/relay"
	"github.com/kperson/fire-sync/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.Store
	relay  *relay.Relay
	issuer identity.Issuer
	redis  *redis.Client
	logger zerolog.Logger
}

// NewHandler creates a new Handler. s must publish creation events so that
// posted messages reach the relay; redisClient may be nil.
func NewHandler(s store.Store, rl *relay.Relay, issuer identity.Issuer, redisClient *redis.Client, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  s,
		relay:  rl,
		issuer: issuer,
		redis:  redisClient,
		logger: logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// storeError maps a failed store operation to a response. Invalid keys
// are the caller's fault; anything else is logged as a server error.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, store.ErrInvalidKey) || errors.Is(err, store.ErrInvalidPath) {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error().
		Err(err).
		Str("op", op).
		Str("namespace", namespace(r)).
		Str("path", r.URL.Path).
		Msg("store operation failed")
	h.Error(w, http.StatusInternalServerError, "store operation failed")
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	h.Error(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

// requireKey rejects a missing or malformed id that is about to become a
// store key.
func (h *Handler) requireKey(w http.ResponseWriter, field, value string) bool {
	if value == "" {
		h.Error(w, http.StatusBadRequest, field+" is required")
		return false
	}
	if err := store.ValidateKey(value); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid "+field+": "+err.Error())
		return false
	}
	return true
}

func namespace(r *http.Request) string {
	return middleware.GetNamespaceFromContext(r.Context())
}
