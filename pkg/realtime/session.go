package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Session is one live websocket connection. A user may hold any number of
// sessions; each gets its own outbound buffer so one slow client cannot
// stall the others.
type Session struct {
	ID   string
	User string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newSession(user string, sendBuffer int) *Session {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Session{
		ID:   uuid.NewString(),
		User: user,
		send: make(chan []byte, sendBuffer),
	}
}

// trySend offers a frame to the session's outbound buffer without
// blocking. A full buffer means the client is too slow; a closed session
// means it disconnected while a fan-out snapshot still held it. Either
// way the frame is dropped.
func (s *Session) trySend(b []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

// Outbound returns the channel the connection writer drains.
func (s *Session) Outbound() <-chan []byte { return s.send }

// close marks the session dead and closes the outbound channel so the
// connection writer exits. Serialized against trySend: relay workers may
// still hold this session in a room snapshot taken before removal.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}
