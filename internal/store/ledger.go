package store

import (
	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/pkg/protocol"
)

// SetMessages replaces the ledger of convID, keeping the supplied order.
func (s *Store) SetMessages(convID string, msgs []protocol.Message) {
	list := make([]protocol.Message, len(msgs))
	for i, m := range msgs {
		list[i] = m.Clone()
	}

	s.mu.Lock()
	s.messages[convID] = list
	s.mu.Unlock()

	s.publish(chat.Change{Kind: chat.ChangeMessages, ConversationID: convID})
}

// Messages returns a copy of the ledger of convID.
func (s *Store) Messages(convID string) []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.messages[convID]
	out := make([]protocol.Message, len(list))
	for i, m := range list {
		out[i] = m.Clone()
	}
	return out
}

// AddMessage appends msg unless a message with the same id is already
// present, and reports whether it was added.
//
// A new message also moves its conversation to the front of the directory
// and refreshes the preview. When it was not written by currentUserID both
// unread counters go up, in the active conversation too; marking it read
// takes them back down.
func (s *Store) AddMessage(msg protocol.Message, currentUserID string) bool {
	msg = msg.Clone()
	convID := msg.ConversationID

	s.mu.Lock()
	if messageIndex(s.messages[convID], msg.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[convID] = append(s.messages[convID], msg)

	countUnread := msg.SenderID != currentUserID
	if countUnread {
		s.unread++
	}
	s.bumpConversation(msg, countUnread)
	s.mu.Unlock()

	changes := []chat.Change{
		{Kind: chat.ChangeMessages, ConversationID: convID},
		{Kind: chat.ChangeConversations, ConversationID: convID},
	}
	if countUnread {
		changes = append(changes, chat.Change{Kind: chat.ChangeUnread, ConversationID: convID})
	}
	s.publish(changes...)
	return true
}

// UpdateMessage replaces the stored message with the same id. An edit for
// an unknown message is ignored.
func (s *Store) UpdateMessage(msg protocol.Message) bool {
	msg = msg.Clone()
	convID := msg.ConversationID

	s.mu.Lock()
	list := s.messages[convID]
	i := messageIndex(list, msg.ID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Debug("edit for unknown message", "conversation", convID, "message", msg.ID)
		return false
	}
	list[i] = msg
	s.mu.Unlock()

	s.publish(chat.Change{Kind: chat.ChangeMessages, ConversationID: convID})
	return true
}

// RemoveMessage drops msgID from the ledger of convID.
func (s *Store) RemoveMessage(convID, msgID string) bool {
	s.mu.Lock()
	list := s.messages[convID]
	i := messageIndex(list, msgID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages[convID] = append(list[:i:i], list[i+1:]...)
	s.mu.Unlock()

	s.publish(chat.Change{Kind: chat.ChangeMessages, ConversationID: convID})
	return true
}

func messageIndex(list []protocol.Message, id string) int {
	for i, m := range list {
		if m.ID == id {
			return i
		}
	}
	return -1
}
