package models

// Group is a named set of members that group messages fan out to.
type Group struct {
	GroupID string            `json:"groupId"`
	Members map[string]Member `json:"members"`
}

// Member records when a member joined a group.
type Member struct {
	CreatedAt int64 `json:"createdAt"` // Unix seconds
}

// MemberIDs returns the ids of all members in no particular order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for id := range g.Members {
		ids = append(ids, id)
	}
	return ids
}
