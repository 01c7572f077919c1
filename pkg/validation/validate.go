package validation

import (
	"fmt"
	"unicode/utf8"

	"groupchat/pkg/models"
)

// Rules carries the tunable message limits. Defaults mirror the wire
// contract: content capped at 2000 units, closed message-type enum.
type Rules struct {
	MaxContent     int
	MaxEmoji       int
	MaxMentions    int
	MaxAttachments int
}

var rules = Defaults()

func Defaults() Rules {
	return Rules{MaxContent: 2000, MaxEmoji: 64, MaxMentions: 50, MaxAttachments: 10}
}

// SetRules installs limits from config; zero fields keep their defaults.
func SetRules(r Rules) {
	d := Defaults()
	if r.MaxContent <= 0 {
		r.MaxContent = d.MaxContent
	}
	if r.MaxEmoji <= 0 {
		r.MaxEmoji = d.MaxEmoji
	}
	if r.MaxMentions <= 0 {
		r.MaxMentions = d.MaxMentions
	}
	if r.MaxAttachments <= 0 {
		r.MaxAttachments = d.MaxAttachments
	}
	rules = r
}

// MaxContent exposes the active content cap for validation at other edges.
func MaxContent() int { return rules.MaxContent }

// ValidateMessage checks an inbound message against the active rules.
func ValidateMessage(m models.Message) error {
	if err := ValidateContent(m.Content); err != nil {
		return err
	}
	if !m.Type.Valid() {
		return fmt.Errorf("invalid message type: %q", m.Type)
	}
	if len(m.Mentions) > rules.MaxMentions {
		return fmt.Errorf("too many mentions: %d > %d", len(m.Mentions), rules.MaxMentions)
	}
	if len(m.Attachments) > rules.MaxAttachments {
		return fmt.Errorf("too many attachments: %d > %d", len(m.Attachments), rules.MaxAttachments)
	}
	return nil
}

// ValidateContent checks presence and length of message content.
func ValidateContent(content string) error {
	if content == "" {
		return fmt.Errorf("content is required")
	}
	if n := utf8.RuneCountInString(content); n > rules.MaxContent {
		return fmt.Errorf("content too long: %d > %d", n, rules.MaxContent)
	}
	return nil
}

// ValidateEmoji checks a reaction emoji value.
func ValidateEmoji(emoji string) error {
	if emoji == "" {
		return fmt.Errorf("emoji is required")
	}
	if n := utf8.RuneCountInString(emoji); n > rules.MaxEmoji {
		return fmt.Errorf("emoji too long: %d > %d", n, rules.MaxEmoji)
	}
	return nil
}
