package models

// Role is the closed set of membership roles inside a group.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// Member is one entry in a group's member list. The list holds at most one
// entry per user; the invariant is enforced at the mutation boundary.
type Member struct {
	User     string `json:"user"`
	Role     Role   `json:"role"`
	JoinedTS int64  `json:"joined_ts"`
}

// Group is the group record as the core reads it. Group lifecycle is owned
// externally; the core only consults membership and touches LastActivity.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Creator   string   `json:"creator"`
	Members   []Member `json:"members"`
	IsPrivate bool     `json:"is_private,omitempty"`
	// MaxMembers caps the member list; 0 means the configured default.
	MaxMembers   int   `json:"max_members,omitempty"`
	CreatedTS    int64 `json:"created_ts,omitempty"`
	LastActivity int64 `json:"last_activity,omitempty"`
}

// MemberEntry returns the member record for userID, if present.
func (g *Group) MemberEntry(userID string) (Member, bool) {
	for _, m := range g.Members {
		if m.User == userID {
			return m, true
		}
	}
	return Member{}, false
}
