package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groupchat/pkg/logger"
	"groupchat/pkg/membership"
	"groupchat/pkg/metrics"
	"groupchat/pkg/models"
	"groupchat/pkg/store"
	"groupchat/pkg/validation"
)

// Publisher receives room-scoped events after a mutation has been made
// durable. Delivery is best effort; a nil Publisher disables fan-out.
type Publisher interface {
	Publish(groupID, event string, payload any)
}

// Service is the single ingestion path for message mutations. Every edge
// (HTTP, websocket) routes writes through here so that authorization,
// validation, persistence and fan-out always happen in that order.
type Service struct {
	members  membership.Authority
	activity membership.ActivityRecorder
	pub      Publisher
}

func NewService(members membership.Authority, activity membership.ActivityRecorder, pub Publisher) *Service {
	return &Service{members: members, activity: activity, pub: pub}
}

// SubmitInput carries a new message from either edge.
type SubmitInput struct {
	Group       string
	Sender      string
	Content     string
	Type        models.MessageType
	ReplyTo     string
	Mentions    []string
	Attachments []models.Attachment
}

// DeletedPayload is the fan-out body for message removals; the message
// itself is gone so only identifiers travel.
type DeletedPayload struct {
	ID    string `json:"id"`
	Group string `json:"group"`
}

// Submit validates, authorizes and persists a new message, then fans it
// out to the group. The returned message carries its resolved reply
// preview.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if _, err := store.GetGroup(in.Group); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, fmt.Errorf("%w: group %s", ErrNotFound, in.Group)
		}
		return models.Message{}, err
	}
	if !s.members.IsMember(in.Group, in.Sender) {
		return models.Message{}, fmt.Errorf("%w: %s is not a member of %s", ErrForbidden, in.Sender, in.Group)
	}
	if in.Type == "" {
		in.Type = models.TypeText
	}
	m := models.Message{
		Group:       in.Group,
		Sender:      in.Sender,
		Content:     in.Content,
		Type:        in.Type,
		ReplyTo:     in.ReplyTo,
		Mentions:    in.Mentions,
		Attachments: in.Attachments,
	}
	if err := validation.ValidateMessage(m); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if in.ReplyTo != "" {
		target, err := store.GetMessage(in.ReplyTo)
		if err == nil && target.Group != in.Group {
			return models.Message{}, fmt.Errorf("%w: reply target is in another group", ErrInvalidArgument)
		}
	}
	if err := store.Append(&m); err != nil {
		return models.Message{}, err
	}
	metrics.IncMessagesStored()
	s.touch(in.Group, m.CreatedTS)
	m.Reply = s.resolveReply(m.ReplyTo)
	s.publish(in.Group, models.EventNewMessage, m)
	return m, nil
}

// History returns one page of a group's messages in chronological order,
// plus a hint that older pages remain.
func (s *Service) History(ctx context.Context, userID, groupID string, page, limit int) ([]models.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if _, err := store.GetGroup(groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		return nil, false, err
	}
	if !s.members.IsMember(groupID, userID) {
		return nil, false, fmt.Errorf("%w: %s is not a member of %s", ErrForbidden, userID, groupID)
	}
	msgs, hasMore, err := store.ListPage(groupID, page, limit)
	if err != nil {
		return nil, false, err
	}
	for i := range msgs {
		msgs[i].Reply = s.resolveReply(msgs[i].ReplyTo)
	}
	return msgs, hasMore, nil
}

// Get fetches a single message, gated on the caller's membership in the
// message's group.
func (s *Service) Get(ctx context.Context, userID, msgID string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	m, err := store.GetMessage(msgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, fmt.Errorf("%w: message %s", ErrNotFound, msgID)
		}
		return models.Message{}, err
	}
	if !s.members.IsMember(m.Group, userID) {
		return models.Message{}, fmt.Errorf("%w: %s is not a member of %s", ErrForbidden, userID, m.Group)
	}
	m.Reply = s.resolveReply(m.ReplyTo)
	return m, nil
}

// Edit replaces a message's content. Only the original sender may edit;
// the edited flag and timestamp are set atomically with the content.
func (s *Service) Edit(ctx context.Context, userID, msgID, content string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	m, err := store.UpdateMessage(msgID, func(m *models.Message) error {
		if m.Sender != userID {
			return fmt.Errorf("%w: only the sender can edit", ErrForbidden)
		}
		if err := validation.ValidateContent(content); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		m.Content = content
		m.IsEdited = true
		m.EditedTS = time.Now().UTC().UnixNano()
		return nil
	})
	if err != nil {
		return models.Message{}, s.mapStoreErr(err, msgID)
	}
	m.Reply = s.resolveReply(m.ReplyTo)
	s.publish(m.Group, models.EventMessageEdited, m)
	return m, nil
}

// AddReaction records a (user, emoji) reaction. The pair is unique per
// message; duplicates are rejected without touching stored state.
func (s *Service) AddReaction(ctx context.Context, userID, msgID, emoji string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	if err := validation.ValidateEmoji(emoji); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	m, err := store.UpdateMessage(msgID, func(m *models.Message) error {
		if m.HasReaction(userID, emoji) {
			return fmt.Errorf("%w: reaction already recorded", ErrConflict)
		}
		m.Reactions = append(m.Reactions, models.Reaction{
			User:      userID,
			Emoji:     emoji,
			CreatedTS: time.Now().UTC().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return models.Message{}, s.mapStoreErr(err, msgID)
	}
	m.Reply = s.resolveReply(m.ReplyTo)
	s.publish(m.Group, models.EventReactionChanged, m)
	return m, nil
}

// RemoveReaction drops the caller's (user, emoji) reaction if present.
// Removing an absent reaction succeeds without change.
func (s *Service) RemoveReaction(ctx context.Context, userID, msgID, emoji string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	changed := false
	m, err := store.UpdateMessage(msgID, func(m *models.Message) error {
		kept := m.Reactions[:0]
		for _, r := range m.Reactions {
			if r.User == userID && r.Emoji == emoji {
				changed = true
				continue
			}
			kept = append(kept, r)
		}
		m.Reactions = kept
		return nil
	})
	if err != nil {
		return models.Message{}, s.mapStoreErr(err, msgID)
	}
	m.Reply = s.resolveReply(m.ReplyTo)
	if changed {
		s.publish(m.Group, models.EventReactionChanged, m)
	}
	return m, nil
}

// TogglePin flips a message's pinned flag. Restricted to group admins and
// the group creator.
func (s *Service) TogglePin(ctx context.Context, userID, msgID string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	cur, err := store.GetMessage(msgID)
	if err != nil {
		return models.Message{}, s.mapStoreErr(err, msgID)
	}
	if !s.canModerate(cur.Group, userID) {
		return models.Message{}, fmt.Errorf("%w: only admins or the group creator can pin", ErrForbidden)
	}
	m, err := store.UpdateMessage(msgID, func(m *models.Message) error {
		m.IsPinned = !m.IsPinned
		return nil
	})
	if err != nil {
		return models.Message{}, s.mapStoreErr(err, msgID)
	}
	m.Reply = s.resolveReply(m.ReplyTo)
	s.publish(m.Group, models.EventMessagePinned, m)
	return m, nil
}

// Delete removes a message permanently. Allowed for the sender, group
// admins and the group creator. Reply references to the deleted message
// are left dangling and resolve as unavailable.
func (s *Service) Delete(ctx context.Context, userID, msgID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := store.GetMessage(msgID)
	if err != nil {
		return s.mapStoreErr(err, msgID)
	}
	if m.Sender != userID && !s.canModerate(m.Group, userID) {
		return fmt.Errorf("%w: not allowed to delete this message", ErrForbidden)
	}
	if err := store.DeleteMessage(msgID); err != nil {
		return s.mapStoreErr(err, msgID)
	}
	s.publish(m.Group, models.EventMessageDeleted, DeletedPayload{ID: msgID, Group: m.Group})
	return nil
}

func (s *Service) canModerate(groupID, userID string) bool {
	if role, ok := s.members.RoleOf(groupID, userID); ok && role == models.RoleAdmin {
		return true
	}
	return s.members.IsOwner(groupID, userID)
}

// resolveReply builds the preview for a reply target. A dangling target
// yields a preview marked unavailable rather than an error.
func (s *Service) resolveReply(replyTo string) *models.ReplyPreview {
	if replyTo == "" {
		return nil
	}
	target, err := store.GetMessage(replyTo)
	if err != nil {
		return &models.ReplyPreview{ID: replyTo, Available: false}
	}
	return &models.ReplyPreview{
		ID:        target.ID,
		Sender:    target.Sender,
		Content:   target.Content,
		Available: true,
	}
}

func (s *Service) touch(groupID string, ts int64) {
	if s.activity == nil {
		return
	}
	if err := s.activity.TouchActivity(groupID, ts); err != nil {
		logger.Warn("activity_touch_failed", "group", groupID, "error", err)
	}
}

func (s *Service) publish(groupID, event string, payload any) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(groupID, event, payload)
}

func (s *Service) mapStoreErr(err error, msgID string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: message %s", ErrNotFound, msgID)
	}
	return err
}
