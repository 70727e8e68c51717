package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kperson/fire-sync/internal/relay"
	"github.com/kperson/fire-sync/internal/store"
)

// PostMemberMessageResponse represents the direct message response.
type PostMemberMessageResponse struct {
	Message  any    `json:"message"`
	MemberID string `json:"memberId"`
	ID       string `json:"id"`
}

// MemberTokenResponse carries a freshly minted member credential.
type MemberTokenResponse struct {
	Token string `json:"token"`
}

// MemberMessagesResponse lists a member's inbox keyed by message id.
type MemberMessagesResponse struct {
	MemberID string         `json:"memberId"`
	Messages map[string]any `json:"messages"`
}

// MemberMessageRef echoes the inbox entry a request affected.
type MemberMessageRef struct {
	MemberID  string `json:"memberId"`
	MessageID string `json:"messageId"`
}

// PostMemberMessage queues a message for a single member.
func (h *Handler) PostMemberMessage(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")
	if !h.requireKey(w, "memberId", memberID) {
		return
	}
	var req PostMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Message == nil {
		h.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	id, err := h.store.Push(r.Context(), relay.MemberQueuePath(namespace(r), memberID), req.Message)
	if err != nil {
		h.storeError(w, r, "post member message", err)
		return
	}

	h.JSON(w, http.StatusOK, PostMemberMessageResponse{
		Message:  req.Message,
		MemberID: memberID,
		ID:       id,
	})
}

// IssueMemberToken mints a credential for the member.
func (h *Handler) IssueMemberToken(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")
	if !h.requireKey(w, "memberId", memberID) {
		return
	}

	token, err := h.issuer.IssueToken(r.Context(), namespace(r), memberID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("namespace", namespace(r)).
			Str("member_id", memberID).
			Msg("token issue failed")
		h.Error(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	h.JSON(w, http.StatusOK, MemberTokenResponse{Token: token})
}

// GetMemberMessages returns every message in the member's inbox.
func (h *Handler) GetMemberMessages(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")
	if !h.requireKey(w, "memberId", memberID) {
		return
	}

	raw, err := h.store.Get(r.Context(), relay.MemberMessagesPath(namespace(r), memberID))
	if err != nil {
		h.storeError(w, r, "get member messages", err)
		return
	}
	messages, _ := raw.(map[string]any)
	if messages == nil {
		messages = map[string]any{}
	}

	h.JSON(w, http.StatusOK, MemberMessagesResponse{MemberID: memberID, Messages: messages})
}

// DeleteMemberMessage removes one message from the member's inbox.
func (h *Handler) DeleteMemberMessage(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")
	messageID := chi.URLParam(r, "messageId")
	if !h.requireKey(w, "memberId", memberID) || !h.requireKey(w, "messageId", messageID) {
		return
	}

	path := store.Join(relay.MemberMessagesPath(namespace(r), memberID), messageID)
	if err := h.store.Remove(r.Context(), path); err != nil {
		h.storeError(w, r, "delete member message", err)
		return
	}

	h.JSON(w, http.StatusOK, MemberMessageRef{MemberID: memberID, MessageID: messageID})
}
