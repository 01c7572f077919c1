package membership

import (
	"errors"
	"time"

	"groupchat/pkg/logger"
	"groupchat/pkg/models"
	"groupchat/pkg/store"
	"groupchat/pkg/utils"
)

var (
	// ErrGroupFull is returned when adding a member would exceed the
	// group's member cap.
	ErrGroupFull = errors.New("group is full")
	// ErrAlreadyMember is returned for a duplicate member-list entry.
	ErrAlreadyMember = errors.New("user is already a member")
	// ErrGroupExists is returned when provisioning a group id twice.
	ErrGroupExists = errors.New("group already exists")
	// ErrNotFound is returned when the group record is absent.
	ErrNotFound = store.ErrNotFound
)

// Authority answers membership questions for the messaging core. The core
// only consults it; it never mutates membership through this interface.
type Authority interface {
	IsMember(groupID, userID string) bool
	RoleOf(groupID, userID string) (models.Role, bool)
	IsOwner(groupID, userID string) bool
}

// ActivityRecorder receives best-effort lastActivity touches on accepted
// messages. Failures are logged by the caller, never fatal.
type ActivityRecorder interface {
	TouchActivity(groupID string, ts int64) error
}

// StoreAuthority is the default Authority, backed by group records in the
// local store. Deployments fronted by a separate membership service can
// swap in their own implementation.
type StoreAuthority struct {
	// DefaultMaxMembers applies when a group record carries no cap.
	DefaultMaxMembers int
}

func NewStoreAuthority(defaultMax int) *StoreAuthority {
	if defaultMax <= 0 {
		defaultMax = 100
	}
	return &StoreAuthority{DefaultMaxMembers: defaultMax}
}

func (a *StoreAuthority) IsMember(groupID, userID string) bool {
	g, err := store.GetGroup(groupID)
	if err != nil {
		return false
	}
	_, ok := g.MemberEntry(userID)
	return ok
}

func (a *StoreAuthority) RoleOf(groupID, userID string) (models.Role, bool) {
	g, err := store.GetGroup(groupID)
	if err != nil {
		return "", false
	}
	m, ok := g.MemberEntry(userID)
	if !ok {
		return "", false
	}
	return m.Role, true
}

func (a *StoreAuthority) IsOwner(groupID, userID string) bool {
	g, err := store.GetGroup(groupID)
	if err != nil {
		return false
	}
	return g.Creator == userID
}

func (a *StoreAuthority) TouchActivity(groupID string, ts int64) error {
	_, err := store.UpdateGroup(groupID, func(g *models.Group) error {
		if ts > g.LastActivity {
			g.LastActivity = ts
		}
		return nil
	})
	return err
}

// CreateGroup provisions a group record. The creator is seeded as an admin
// member. This is the integration seam for the external group service; it
// is reachable only through backend-role endpoints.
func (a *StoreAuthority) CreateGroup(g models.Group) (models.Group, error) {
	if g.ID == "" {
		g.ID = utils.GenGroupID()
	}
	if _, err := store.GetGroup(g.ID); err == nil {
		return g, ErrGroupExists
	}
	now := time.Now().UTC().UnixNano()
	if g.MaxMembers <= 0 {
		g.MaxMembers = a.DefaultMaxMembers
	}
	g.CreatedTS = now
	g.LastActivity = now
	if g.Creator != "" {
		if _, ok := g.MemberEntry(g.Creator); !ok {
			g.Members = append(g.Members, models.Member{User: g.Creator, Role: models.RoleAdmin, JoinedTS: now})
		}
	}
	if err := store.SaveGroup(g); err != nil {
		return g, err
	}
	logger.Info("group_provisioned", "group", g.ID, "creator", g.Creator)
	return g, nil
}

// AddMember appends a member entry, enforcing the one-entry-per-user
// invariant and the member cap at the mutation boundary.
func (a *StoreAuthority) AddMember(groupID, userID string, role models.Role) error {
	if !role.Valid() {
		role = models.RoleMember
	}
	_, err := store.UpdateGroup(groupID, func(g *models.Group) error {
		if _, ok := g.MemberEntry(userID); ok {
			return ErrAlreadyMember
		}
		max := g.MaxMembers
		if max <= 0 {
			max = a.DefaultMaxMembers
		}
		if len(g.Members) >= max {
			return ErrGroupFull
		}
		g.Members = append(g.Members, models.Member{User: userID, Role: role, JoinedTS: time.Now().UTC().UnixNano()})
		g.LastActivity = time.Now().UTC().UnixNano()
		return nil
	})
	return err
}

// RemoveMember drops a member entry; absent entries are a no-op.
func (a *StoreAuthority) RemoveMember(groupID, userID string) error {
	_, err := store.UpdateGroup(groupID, func(g *models.Group) error {
		kept := g.Members[:0]
		for _, m := range g.Members {
			if m.User != userID {
				kept = append(kept, m)
			}
		}
		g.Members = kept
		g.LastActivity = time.Now().UTC().UnixNano()
		return nil
	})
	return err
}
