package models

// Message is a copy of a posted message in a member's inbox.
type Message struct {
	Message   any    `json:"message"`
	CreatedAt int64  `json:"createdAt"`          // Unix seconds
	GroupID   string `json:"groupId,omitempty"` // Empty for direct messages
}
