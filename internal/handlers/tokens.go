package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kperson/fire-sync/internal/relay"
)

// TokenRequest registers an access token for the namespace.
type TokenRequest struct {
	Token string `json:"token"`
}

// TokenResponse echoes the affected token.
type TokenResponse struct {
	Token string `json:"token"`
}

// CreateToken registers a token. Once a namespace has a token, every
// request to it must carry one.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.requireKey(w, "token", req.Token) {
		return
	}

	if err := h.store.Set(r.Context(), relay.TokenPath(namespace(r), req.Token), true); err != nil {
		h.storeError(w, r, "create token", err)
		return
	}

	h.JSON(w, http.StatusOK, TokenResponse{Token: req.Token})
}

// DeleteToken revokes a token. Revoking the last one reopens the namespace.
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "tokenId")
	if !h.requireKey(w, "token", token) {
		return
	}

	if err := h.store.Remove(r.Context(), relay.TokenPath(namespace(r), token)); err != nil {
		h.storeError(w, r, "delete token", err)
		return
	}

	h.JSON(w, http.StatusOK, TokenResponse{Token: token})
}
