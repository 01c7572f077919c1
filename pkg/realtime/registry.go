package realtime

import (
	"sync"

	"groupchat/pkg/logger"
	"groupchat/pkg/metrics"
)

// Registry tracks live sessions and their room subscriptions. It knows
// nothing about membership; the gateway gates joins before they reach
// here.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // session ID -> session
	rooms    map[string]map[string]*Session // group ID -> session ID -> session
	joined   map[string]map[string]struct{} // session ID -> group IDs
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		joined:   make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.joined[s.ID] = make(map[string]struct{})
	r.mu.Unlock()
	metrics.IncSessions()
	logger.Debug("session_added", "session", s.ID, "user", s.User)
}

// Remove drops a session from every room it joined and closes its
// outbound buffer. Safe to call for unknown sessions.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	for group := range r.joined[sessionID] {
		r.dropFromRoom(group, sessionID)
	}
	delete(r.joined, sessionID)
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	s.close()
	metrics.DecSessions()
	logger.Debug("session_removed", "session", sessionID, "user", s.User)
}

// Join subscribes a session to a room. Idempotent.
func (r *Registry) Join(sessionID, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	room := r.rooms[groupID]
	if room == nil {
		room = make(map[string]*Session)
		r.rooms[groupID] = room
	}
	room[sessionID] = s
	r.joined[sessionID][groupID] = struct{}{}
}

// Leave unsubscribes a session from a room. Idempotent.
func (r *Registry) Leave(sessionID, groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	r.dropFromRoom(groupID, sessionID)
	delete(r.joined[sessionID], groupID)
}

func (r *Registry) dropFromRoom(groupID, sessionID string) {
	room := r.rooms[groupID]
	if room == nil {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.rooms, groupID)
	}
}

// InRoom reports whether a session currently subscribes to a room.
func (r *Registry) InRoom(sessionID, groupID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups, ok := r.joined[sessionID]
	if !ok {
		return false
	}
	_, in := groups[groupID]
	return in
}

// MembersOf returns a snapshot of the sessions subscribed to a room.
func (r *Registry) MembersOf(groupID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[groupID]
	if len(room) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(room))
	for _, s := range room {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
