package store

import (
	"fmt"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/pkg/protocol"
)

// SetTyping applies a typing event: the user is added when typing and absent,
// removed otherwise. Events are taken as they come, without debouncing.
func (s *Store) SetTyping(ev protocol.TypingChanged) {
	convID := ev.ConversationID

	s.mu.Lock()
	users := s.typing[convID]
	i := typingIndex(users, ev.UserID)
	changed := false
	switch {
	case ev.IsTyping && i < 0:
		s.typing[convID] = append(users, ev.User())
		changed = true
	case !ev.IsTyping && i >= 0:
		s.typing[convID] = append(users[:i:i], users[i+1:]...)
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.publish(chat.Change{Kind: chat.ChangeTyping, ConversationID: convID, UserID: ev.UserID})
	}
}

// TypingUsers returns who is typing in convID, in arrival order.
func (s *Store) TypingUsers(convID string) []protocol.TypingUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.TypingUser(nil), s.typing[convID]...)
}

// TypingText renders the typing indicator line.
func TypingText(users []protocol.TypingUser) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", users[0].Name())
	case 2:
		return fmt.Sprintf("%s and %s are typing...", users[0].Name(), users[1].Name())
	default:
		return fmt.Sprintf("%d people are typing...", len(users))
	}
}

func typingIndex(users []protocol.TypingUser, userID string) int {
	for i, u := range users {
		if u.UserID == userID {
			return i
		}
	}
	return -1
}
