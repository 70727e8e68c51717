package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kperson/fire-sync/internal/relay"
	"github.com/kperson/fire-sync/internal/store"
)

// StateRequest writes payload at path inside a group's state tree. For
// push, a caller-chosen ID replaces the generated key.
type StateRequest struct {
	Path    string  `json:"path"`
	Payload any     `json:"payload"`
	ID      *string `json:"id,omitempty"`
}

// StateResponse echoes a state write.
type StateResponse struct {
	GroupID string `json:"groupId"`
	Payload any    `json:"payload"`
	Path    string `json:"path"`
	ID      string `json:"id,omitempty"`
}

// StateReadResponse returns the subtree found at path.
type StateReadResponse struct {
	GroupID string `json:"groupId"`
	Path    string `json:"path"`
	State   any    `json:"state"`
}

// SetState overwrites the state subtree at path. A null payload removes it.
func (h *Handler) SetState(w http.ResponseWriter, r *http.Request) {
	groupID, req, ok := h.stateRequest(w, r)
	if !ok {
		return
	}

	if err := h.store.Set(r.Context(), relay.GroupStatePath(namespace(r), groupID, req.Path), req.Payload); err != nil {
		h.storeError(w, r, "set state", err)
		return
	}

	h.JSON(w, http.StatusOK, StateResponse{GroupID: groupID, Payload: req.Payload, Path: req.Path})
}

// PushState appends payload under path, at req.ID if given or at a new
// time-ordered key otherwise.
func (h *Handler) PushState(w http.ResponseWriter, r *http.Request) {
	groupID, req, ok := h.stateRequest(w, r)
	if !ok {
		return
	}
	path := relay.GroupStatePath(namespace(r), groupID, req.Path)

	var id string
	if req.ID != nil {
		id = *req.ID
		if !h.requireKey(w, "id", id) {
			return
		}
		if err := h.store.Set(r.Context(), store.Join(path, id), req.Payload); err != nil {
			h.storeError(w, r, "push state", err)
			return
		}
	} else {
		var err error
		id, err = h.store.Push(r.Context(), path, req.Payload)
		if err != nil {
			h.storeError(w, r, "push state", err)
			return
		}
	}

	h.JSON(w, http.StatusOK, StateResponse{GroupID: groupID, Payload: req.Payload, Path: req.Path, ID: id})
}

// GetState reads the state subtree named by the path query parameter.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	if !h.requireKey(w, "groupId", groupID) {
		return
	}
	sub := r.URL.Query().Get("path")
	if !h.validStatePath(w, sub) {
		return
	}

	state, err := h.store.Get(r.Context(), relay.GroupStatePath(namespace(r), groupID, sub))
	if err != nil {
		h.storeError(w, r, "get state", err)
		return
	}

	h.JSON(w, http.StatusOK, StateReadResponse{GroupID: groupID, Path: sub, State: state})
}

func (h *Handler) stateRequest(w http.ResponseWriter, r *http.Request) (string, StateRequest, bool) {
	var req StateRequest
	groupID := chi.URLParam(r, "groupId")
	if !h.requireKey(w, "groupId", groupID) {
		return "", req, false
	}
	if !h.decode(w, r, &req) {
		return "", req, false
	}
	if !h.validStatePath(w, req.Path) {
		return "", req, false
	}
	return groupID, req, true
}

// validStatePath checks the caller-supplied sub-path segment by segment.
// An empty path addresses the whole state tree.
func (h *Handler) validStatePath(w http.ResponseWriter, sub string) bool {
	for _, seg := range store.Split(sub) {
		if err := store.ValidateKey(seg); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid path: "+err.Error())
			return false
		}
	}
	return true
}
