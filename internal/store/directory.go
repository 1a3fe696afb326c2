package store

import (
	"context"
	"errors"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/pkg/protocol"
)

// SetConversations replaces the directory.
func (s *Store) SetConversations(list []protocol.Conversation) {
	convs := make([]protocol.Conversation, len(list))
	for i, c := range list {
		convs[i] = c.Clone()
	}

	s.mu.Lock()
	s.conversations = convs
	s.mu.Unlock()

	s.publish(chat.Change{Kind: chat.ChangeConversations})
}

// Conversations returns a copy of the directory in display order.
func (s *Store) Conversations() []protocol.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]protocol.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// Conversation looks up one conversation by id.
func (s *Store) Conversation(id string) (protocol.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.conversationIndex(id); i >= 0 {
		return s.conversations[i].Clone(), true
	}
	return protocol.Conversation{}, false
}

// UpsertConversation replaces c in place when known, otherwise puts it first.
func (s *Store) UpsertConversation(c protocol.Conversation) {
	c = c.Clone()

	s.mu.Lock()
	if i := s.conversationIndex(c.ID); i >= 0 {
		s.conversations[i] = c
	} else {
		s.conversations = append([]protocol.Conversation{c}, s.conversations...)
	}
	s.mu.Unlock()

	s.publish(chat.Change{Kind: chat.ChangeConversations, ConversationID: c.ID})
}

// ActiveConversation returns the id of the open conversation, or "".
func (s *Store) ActiveConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActiveConversation switches the open conversation. The previous room is
// left when it differs from id, then id is joined. An empty id only leaves.
// Setting the current id again re-joins it, which restores room membership
// after a reconnect.
//
// Command failures are returned but the selection is changed regardless.
func (s *Store) SetActiveConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	prev := s.active
	s.active = id
	s.mu.Unlock()

	if prev != id {
		s.publish(chat.Change{Kind: chat.ChangeActive, ConversationID: id})
	}

	var errs []error
	if prev != "" && prev != id {
		if err := s.sender.Send(ctx, protocol.CommandLeaveRoom, prev); err != nil {
			errs = append(errs, err)
		}
	}
	if id != "" {
		if err := s.sender.Send(ctx, protocol.CommandJoinRoom, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnreadCount returns the global unread counter.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// SetUnreadCount replaces the global unread counter. Negative values floor at 0.
func (s *Store) SetUnreadCount(n int) {
	s.mu.Lock()
	s.unread = max(n, 0)
	s.mu.Unlock()

	s.publish(chat.Change{Kind: chat.ChangeUnread})
}

// GetOtherParticipant returns the member of a direct conversation who is not
// currentUserID. It returns nil for group conversations or when no other
// member is found.
func GetOtherParticipant(conv protocol.Conversation, currentUserID string) *protocol.Participant {
	if conv.Kind != protocol.ConversationDirect {
		return nil
	}
	for _, p := range conv.Participants {
		if p.UserID != currentUserID {
			return &p
		}
	}
	return nil
}

// conversationIndex returns the position of id in the directory or -1.
// Caller holds s.mu.
func (s *Store) conversationIndex(id string) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// bumpConversation moves the conversation of msg to the front and refreshes
// its preview. Caller holds s.mu.
func (s *Store) bumpConversation(msg protocol.Message, countUnread bool) bool {
	i := s.conversationIndex(msg.ConversationID)
	if i < 0 {
		return false
	}
	c := s.conversations[i]
	c.LastMessage = protocol.PreviewOf(msg)
	c.LastMessageAt = msg.CreatedAt
	if countUnread {
		c.UnreadCount++
	}

	copy(s.conversations[1:i+1], s.conversations[:i])
	s.conversations[0] = c
	return true
}

// decrementUnread lowers both counters by n, flooring at 0. Caller holds s.mu.
func (s *Store) decrementUnread(convID string, n int) {
	s.unread = max(s.unread-n, 0)
	if i := s.conversationIndex(convID); i >= 0 {
		s.conversations[i].UnreadCount = max(s.conversations[i].UnreadCount-n, 0)
	}
}
