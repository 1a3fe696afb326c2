package store

import (
	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/pkg/protocol"
)

// SetPresence records the latest status of p.UserID, replacing any earlier one.
func (s *Store) SetPresence(p protocol.Presence) {
	s.mu.Lock()
	s.presence[p.UserID] = p
	s.mu.Unlock()

	s.publish(chat.Change{Kind: chat.ChangePresence, UserID: p.UserID})
}

// Presence returns the last status seen for userID. ok is false when nothing
// has been reported, which is not the same as offline.
func (s *Store) Presence(userID string) (p protocol.Presence, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok = s.presence[userID]
	return p, ok
}

// PresenceOrOffline returns the last status seen for userID, or offline.
func (s *Store) PresenceOrOffline(userID string) protocol.Presence {
	if p, ok := s.Presence(userID); ok {
		return p
	}
	return protocol.Presence{UserID: userID, Status: protocol.StatusOffline}
}
