package store

import (
	"context"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/pkg/protocol"
)

// UnreadIDs returns the ids of messages in convID written by someone else
// that currentUserID has no receipt on.
func (s *Store) UnreadIDs(convID, currentUserID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadIDs(convID, currentUserID)
}

func (s *Store) unreadIDs(convID, currentUserID string) []string {
	var ids []string
	for _, m := range s.messages[convID] {
		if m.SenderID != currentUserID && !m.ReadByUser(currentUserID) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// MarkVisibleRead sends mark_read for every unread message in convID and
// returns how many were marked.
//
// The counters are decremented and the user's own receipt is recorded before
// the command goes out, so a second call marks nothing. Nothing is rolled
// back if the command is lost.
func (s *Store) MarkVisibleRead(ctx context.Context, convID, currentUserID string) (int, error) {
	s.mu.Lock()
	ids := s.unreadIDs(convID, currentUserID)
	if len(ids) == 0 {
		s.mu.Unlock()
		return 0, nil
	}

	receipt := protocol.ReadReceipt{UserID: currentUserID, ReadAt: s.now()}
	list := s.messages[convID]
	for _, id := range ids {
		i := messageIndex(list, id)
		list[i].ReadBy = append(list[i].ReadBy, receipt)
	}
	s.decrementUnread(convID, len(ids))
	s.mu.Unlock()

	s.publish(
		chat.Change{Kind: chat.ChangeMessages, ConversationID: convID},
		chat.Change{Kind: chat.ChangeUnread, ConversationID: convID},
	)

	err := s.sender.Send(ctx, protocol.CommandMarkRead, protocol.MarkRead{
		ConversationID: convID,
		MessageIDs:     ids,
	})
	if err != nil {
		s.log.Debug("mark_read not delivered", "conversation", convID, "count", len(ids), "error", err)
	}
	return len(ids), err
}

// ApplyReadReceipt records that ev.UserID read ev.MessageIDs. Receipts already
// present are left alone, so replays are harmless.
func (s *Store) ApplyReadReceipt(ev protocol.MessagesRead) {
	convID := ev.ConversationID

	s.mu.Lock()
	list := s.messages[convID]
	changed := false
	for _, id := range ev.MessageIDs {
		i := messageIndex(list, id)
		if i < 0 || list[i].ReadByUser(ev.UserID) {
			continue
		}
		list[i].ReadBy = append(list[i].ReadBy, protocol.ReadReceipt{UserID: ev.UserID, ReadAt: ev.ReadAt})
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.publish(chat.Change{Kind: chat.ChangeMessages, ConversationID: convID, UserID: ev.UserID})
	}
}
