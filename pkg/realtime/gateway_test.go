package realtime

import (
	"encoding/json"
	"testing"

	"groupchat/pkg/models"
)

// staticAuthority answers membership from a fixed group→users table.
type staticAuthority struct {
	members map[string][]string
}

func (a *staticAuthority) IsMember(groupID, userID string) bool {
	for _, u := range a.members[groupID] {
		if u == userID {
			return true
		}
	}
	return false
}

func (a *staticAuthority) RoleOf(groupID, userID string) (models.Role, bool) {
	if a.IsMember(groupID, userID) {
		return models.RoleMember, true
	}
	return "", false
}

func (a *staticAuthority) IsOwner(groupID, userID string) bool { return false }

func frame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(map[string]any{"event": event, "data": json.RawMessage(data)})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return raw
}

func newTestGateway(t *testing.T) (*Gateway, *Registry) {
	t.Helper()
	reg := NewRegistry()
	relay := NewRelay(reg, 16, 1)
	relay.Start()
	t.Cleanup(relay.Stop)

	authority := &staticAuthority{members: map[string][]string{
		"g1": {"alice", "bob"},
	}}
	g := NewGateway(reg, relay, nil, authority, func(string, string) bool { return true }, 4)
	return g, reg
}

func TestDispatchJoinGatedOnMembership(t *testing.T) {
	g, reg := newTestGateway(t)

	outsider := newSession("carol", 4)
	reg.Add(outsider)
	g.dispatch(outsider, frame(t, "join-group", map[string]string{"groupId": "g1"}))
	if reg.InRoom(outsider.ID, "g1") {
		t.Fatalf("non-member joined the room")
	}
	f := recvFrame(t, outsider)
	if f.Event != models.EventError {
		t.Fatalf("expected error frame, got %q", f.Event)
	}

	member := newSession("alice", 4)
	reg.Add(member)
	g.dispatch(member, frame(t, "join-group", map[string]string{"groupId": "g1"}))
	if !reg.InRoom(member.ID, "g1") {
		t.Fatalf("member failed to join")
	}
	expectSilence(t, member)
}

func TestDispatchLeave(t *testing.T) {
	g, reg := newTestGateway(t)

	s := newSession("alice", 4)
	reg.Add(s)
	g.dispatch(s, frame(t, "join-group", map[string]string{"groupId": "g1"}))
	g.dispatch(s, frame(t, "leave-group", map[string]string{"groupId": "g1"}))
	if reg.InRoom(s.ID, "g1") {
		t.Fatalf("session still in room after leave")
	}
}

func TestDispatchRejectsMalformedAndUnknown(t *testing.T) {
	g, reg := newTestGateway(t)

	s := newSession("alice", 4)
	reg.Add(s)

	g.dispatch(s, []byte("{not json"))
	if f := recvFrame(t, s); f.Event != models.EventError {
		t.Fatalf("expected error frame for malformed input, got %q", f.Event)
	}

	g.dispatch(s, frame(t, "self-destruct", map[string]string{}))
	if f := recvFrame(t, s); f.Event != models.EventError {
		t.Fatalf("expected error frame for unknown event, got %q", f.Event)
	}

	// join without a group id
	g.dispatch(s, frame(t, "join-group", map[string]string{}))
	if f := recvFrame(t, s); f.Event != models.EventError {
		t.Fatalf("expected error frame for missing groupId, got %q", f.Event)
	}
}

func TestDispatchTypingRelaysToRoom(t *testing.T) {
	g, reg := newTestGateway(t)

	typist := newSession("alice", 4)
	listener := newSession("bob", 4)
	reg.Add(typist)
	reg.Add(listener)
	g.dispatch(typist, frame(t, "join-group", map[string]string{"groupId": "g1"}))
	g.dispatch(listener, frame(t, "join-group", map[string]string{"groupId": "g1"}))

	g.dispatch(typist, frame(t, "typing", map[string]string{"groupId": "g1", "username": "Alice"}))
	f := recvFrame(t, listener)
	if f.Event != models.EventUserTyping {
		t.Fatalf("expected user-typing, got %q", f.Event)
	}
	var p models.TypingPayload
	if err := json.Unmarshal(f.Data, &p); err != nil || p.UserID != "alice" {
		t.Fatalf("bad typing payload: %s", f.Data)
	}
	expectSilence(t, typist)

	g.dispatch(typist, frame(t, "stop-typing", map[string]string{"groupId": "g1"}))
	if f := recvFrame(t, listener); f.Event != models.EventUserStopTyping {
		t.Fatalf("expected user-stop-typing, got %q", f.Event)
	}
}

func TestDispatchTypingIgnoredOutsideRoom(t *testing.T) {
	g, reg := newTestGateway(t)

	typist := newSession("alice", 4)
	listener := newSession("bob", 4)
	reg.Add(typist)
	reg.Add(listener)
	// only the listener joins; the typist never subscribed to g1
	g.dispatch(listener, frame(t, "join-group", map[string]string{"groupId": "g1"}))

	g.dispatch(typist, frame(t, "typing", map[string]string{"groupId": "g1"}))
	expectSilence(t, listener)
}
