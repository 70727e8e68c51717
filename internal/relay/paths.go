package relay

import "github.com/kperson/fire-sync/internal/store"

// Trigger patterns for the two pipelines.
const (
	GroupMessagePattern = "{namespace}/groups/{groupId}/messages/{messageId}"
	MemberQueuePattern  = "{namespace}/members/{memberId}/queue/{messageId}"
)

func TokensPath(ns string) string {
	return store.Join(ns, "tokens")
}

func TokenPath(ns, token string) string {
	return store.Join(ns, "tokens", token)
}

func GroupPath(ns, groupID string) string {
	return store.Join(ns, "groups", groupID)
}

func GroupMemberPath(ns, groupID, memberID string) string {
	return store.Join(ns, "groups", groupID, "members", memberID)
}

func GroupMessagesPath(ns, groupID string) string {
	return store.Join(ns, "groups", groupID, "messages")
}

// GroupStatePath appends the caller's sub-path to the group's state tree.
func GroupStatePath(ns, groupID, sub string) string {
	return store.Join(ns, "groups", groupID, "state", sub)
}

func MemberQueuePath(ns, memberID string) string {
	return store.Join(ns, "members", memberID, "queue")
}

func MemberMessagesPath(ns, memberID string) string {
	return store.Join(ns, "members", memberID, "messages")
}
