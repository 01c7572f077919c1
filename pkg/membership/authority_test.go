package membership

import (
	"errors"
	"testing"

	"groupchat/pkg/models"
	"groupchat/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestCreateGroupSeedsCreatorAsAdmin(t *testing.T) {
	openTestStore(t)
	a := NewStoreAuthority(0)

	g, err := a.CreateGroup(models.Group{Name: "general", Creator: "alice"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.ID == "" {
		t.Fatalf("expected generated group id")
	}
	if g.MaxMembers != 100 {
		t.Fatalf("expected default cap, got %d", g.MaxMembers)
	}
	role, ok := a.RoleOf(g.ID, "alice")
	if !ok || role != models.RoleAdmin {
		t.Fatalf("creator should be admin member, got role=%q ok=%v", role, ok)
	}
	if !a.IsOwner(g.ID, "alice") {
		t.Fatalf("creator should be owner")
	}
	if a.IsMember(g.ID, "bob") {
		t.Fatalf("bob is not a member yet")
	}
}

func TestAddMemberDuplicateAndCap(t *testing.T) {
	openTestStore(t)
	a := NewStoreAuthority(0)
	g, err := a.CreateGroup(models.Group{Name: "small", Creator: "alice", MaxMembers: 2})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if err := a.AddMember(g.ID, "bob", models.RoleMember); err != nil {
		t.Fatalf("AddMember bob: %v", err)
	}
	if err := a.AddMember(g.ID, "bob", models.RoleMember); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	// cap of 2 is reached (alice + bob)
	if err := a.AddMember(g.ID, "carol", models.RoleMember); !errors.Is(err, ErrGroupFull) {
		t.Fatalf("expected ErrGroupFull, got %v", err)
	}

	// membership is unchanged after the failed adds
	grp, err := store.GetGroup(g.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if len(grp.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(grp.Members))
	}
}

func TestAddMemberUnknownGroup(t *testing.T) {
	openTestStore(t)
	a := NewStoreAuthority(0)
	if err := a.AddMember("missing", "bob", models.RoleMember); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMemberInvalidRoleDefaultsToMember(t *testing.T) {
	openTestStore(t)
	a := NewStoreAuthority(0)
	g, _ := a.CreateGroup(models.Group{Name: "g", Creator: "alice"})
	if err := a.AddMember(g.ID, "bob", "owner"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	role, ok := a.RoleOf(g.ID, "bob")
	if !ok || role != models.RoleMember {
		t.Fatalf("expected member role fallback, got %q", role)
	}
}

func TestRemoveMemberIsIdempotent(t *testing.T) {
	openTestStore(t)
	a := NewStoreAuthority(0)
	g, _ := a.CreateGroup(models.Group{Name: "g", Creator: "alice"})
	_ = a.AddMember(g.ID, "bob", models.RoleModerator)

	if err := a.RemoveMember(g.ID, "bob"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if a.IsMember(g.ID, "bob") {
		t.Fatalf("bob should be gone")
	}
	if err := a.RemoveMember(g.ID, "bob"); err != nil {
		t.Fatalf("second RemoveMember should be a no-op: %v", err)
	}
}

func TestTouchActivityOnlyAdvances(t *testing.T) {
	openTestStore(t)
	a := NewStoreAuthority(0)
	g, _ := a.CreateGroup(models.Group{Name: "g", Creator: "alice"})

	if err := a.TouchActivity(g.ID, g.LastActivity+100); err != nil {
		t.Fatalf("TouchActivity: %v", err)
	}
	grp, _ := store.GetGroup(g.ID)
	want := g.LastActivity + 100
	if grp.LastActivity != want {
		t.Fatalf("lastActivity not advanced: got %d want %d", grp.LastActivity, want)
	}
	// stale touches never move the clock backwards
	if err := a.TouchActivity(g.ID, g.LastActivity); err != nil {
		t.Fatalf("TouchActivity stale: %v", err)
	}
	grp, _ = store.GetGroup(g.ID)
	if grp.LastActivity != want {
		t.Fatalf("stale touch rewound lastActivity to %d", grp.LastActivity)
	}
}
