package models

// Realtime event kinds fanned out to room subscribers. Authoritative state
// is always the store; these frames are best-effort, at-most-once.
const (
	EventNewMessage      = "new-message"
	EventMessageEdited   = "message-edited"
	EventReactionChanged = "reaction-changed"
	EventMessagePinned   = "message-pinned"
	EventMessageDeleted  = "message-deleted"
	EventUserTyping      = "user-typing"
	EventUserStopTyping  = "user-stop-typing"
	EventError           = "error"
)

// TypingPayload is the body of user-typing / user-stop-typing events.
type TypingPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}
