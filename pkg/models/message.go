package models

// MessageType is the closed set of message kinds a group accepts.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
	TypeEmoji MessageType = "emoji"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeEmoji:
		return true
	}
	return false
}

// Attachment describes a media item carried by a message. The bytes
// themselves live in an external object store; only the descriptor is kept.
type Attachment struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Reaction is one (user, emoji) pair. A message never holds two reactions
// with the same user and emoji.
type Reaction struct {
	User      string `json:"user"`
	Emoji     string `json:"emoji"`
	CreatedTS int64  `json:"created_ts,omitempty"`
}

// ReplyPreview is the resolved view of a reply target. ReplyTo is a weak
// reference: when the target message was deleted, Available is false and
// the preview fields are empty rather than the lookup failing.
type ReplyPreview struct {
	ID        string `json:"id"`
	Sender    string `json:"sender,omitempty"`
	Content   string `json:"content,omitempty"`
	Available bool   `json:"available"`
}

type Message struct {
	ID     string `json:"id"`
	Group  string `json:"group"`
	Sender string `json:"sender"`
	// Content is required even for attachment messages, capped by the
	// validation rules.
	Content     string       `json:"content"`
	Type        MessageType  `json:"message_type"`
	Attachments []Attachment `json:"attachments,omitempty"`
	IsEdited    bool         `json:"is_edited,omitempty"`
	EditedTS    int64        `json:"edited_ts,omitempty"`
	IsPinned    bool         `json:"is_pinned,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	// ReplyTo holds the referenced message id; Reply is filled at
	// read/ingest time and never persisted as authoritative state.
	ReplyTo  string        `json:"reply_to,omitempty"`
	Reply    *ReplyPreview `json:"reply,omitempty"`
	Mentions []string      `json:"mentions,omitempty"`
	// Creation timestamp (ns); assigned by the store on append, immutable.
	CreatedTS int64 `json:"created_ts"`
	// Last mutation timestamp (ns).
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// HasReaction reports whether the (user, emoji) pair is present.
func (m *Message) HasReaction(user, emoji string) bool {
	for _, r := range m.Reactions {
		if r.User == user && r.Emoji == emoji {
			return true
		}
	}
	return false
}
