package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kperson/fire-sync/internal/models"
	"github.com/kperson/fire-sync/internal/relay"
)

// CreateGroupRequest represents the group creation request.
type CreateGroupRequest struct {
	GroupID string `json:"groupId"`
}

// GroupRef echoes the group a request affected.
type GroupRef struct {
	GroupID string `json:"groupId"`
}

// NotFoundResponse reports a missing resource along with the ids looked up.
type NotFoundResponse struct {
	Message string            `json:"message"`
	Context map[string]string `json:"context"`
}

// AddMemberRequest represents the add member request.
type AddMemberRequest struct {
	MemberID string `json:"memberId"`
}

// AddMemberResponse represents the add member response.
type AddMemberResponse struct {
	GroupID   string `json:"groupId"`
	MemberID  string `json:"memberId"`
	CreatedAt int64  `json:"createdAt"`
}

// MemberRef echoes the group membership a request affected.
type MemberRef struct {
	GroupID  string `json:"groupId"`
	MemberID string `json:"memberId"`
}

// PostMessageRequest carries an arbitrary JSON message.
type PostMessageRequest struct {
	Message any `json:"message"`
}

// PostGroupMessageResponse represents the post group message response.
type PostGroupMessageResponse struct {
	Message any    `json:"message"`
	ID      string `json:"id"`
}

// CreateGroup creates, or resets, a group with no members.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.requireKey(w, "groupId", req.GroupID) {
		return
	}

	group := models.Group{GroupID: req.GroupID, Members: map[string]models.Member{}}
	if err := h.store.Set(r.Context(), relay.GroupPath(namespace(r), req.GroupID), group); err != nil {
		h.storeError(w, r, "create group", err)
		return
	}

	h.JSON(w, http.StatusOK, group)
}

// GetGroup returns a group and its members.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	if !h.requireKey(w, "groupId", groupID) {
		return
	}

	group, err := h.relay.FetchGroup(r.Context(), namespace(r), groupID)
	if err != nil {
		h.storeError(w, r, "fetch group", err)
		return
	}
	if group == nil {
		h.JSON(w, http.StatusNotFound, NotFoundResponse{
			Message: "group not found",
			Context: map[string]string{"groupId": groupID},
		})
		return
	}

	h.JSON(w, http.StatusOK, group)
}

// DeleteGroup removes a group with its members, pending messages and state.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	if !h.requireKey(w, "groupId", groupID) {
		return
	}

	if err := h.store.Remove(r.Context(), relay.GroupPath(namespace(r), groupID)); err != nil {
		h.storeError(w, r, "delete group", err)
		return
	}

	h.JSON(w, http.StatusOK, GroupRef{GroupID: groupID})
}

// AddMember adds a member to a group. Adding an existing member resets
// its createdAt.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	if !h.requireKey(w, "groupId", groupID) {
		return
	}
	var req AddMemberRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.requireKey(w, "memberId", req.MemberID) {
		return
	}

	member := models.Member{CreatedAt: h.relay.Now()}
	if err := h.store.Set(r.Context(), relay.GroupMemberPath(namespace(r), groupID, req.MemberID), member); err != nil {
		h.storeError(w, r, "add member", err)
		return
	}

	h.JSON(w, http.StatusOK, AddMemberResponse{
		GroupID:   groupID,
		MemberID:  req.MemberID,
		CreatedAt: member.CreatedAt,
	})
}

// RemoveMember removes a member from a group. Messages already delivered
// to the member stay in its inbox.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	memberID := chi.URLParam(r, "memberId")
	if !h.requireKey(w, "groupId", groupID) || !h.requireKey(w, "memberId", memberID) {
		return
	}

	if err := h.store.Remove(r.Context(), relay.GroupMemberPath(namespace(r), groupID, memberID)); err != nil {
		h.storeError(w, r, "remove member", err)
		return
	}

	h.JSON(w, http.StatusOK, MemberRef{GroupID: groupID, MemberID: memberID})
}

// PostGroupMessage queues a message on the group. Fan-out to members
// happens after the response.
func (h *Handler) PostGroupMessage(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	if !h.requireKey(w, "groupId", groupID) {
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

	id, err := h.store.Push(r.Context(), relay.GroupMessagesPath(namespace(r), groupID), req.Message)
	if err != nil {
		h.storeError(w, r, "post group message", err)
		return
	}

	h.JSON(w, http.StatusOK, PostGroupMessageResponse{Message: req.Message, ID: id})
}

