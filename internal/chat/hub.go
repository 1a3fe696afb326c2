package chat

import (
	"sync"
)

// ChangeKind names the part of the model that changed.
type ChangeKind int

const (
	ChangeConversations ChangeKind = iota
	ChangeActive
	ChangeMessages
	ChangeTyping
	ChangePresence
	ChangeUnread
	ChangeReset
)

// String returns the string representation of ChangeKind
func (k ChangeKind) String() string {
	switch k {
	case ChangeConversations:
		return "conversations"
	case ChangeActive:
		return "active"
	case ChangeMessages:
		return "messages"
	case ChangeTyping:
		return "typing"
	case ChangePresence:
		return "presence"
	case ChangeUnread:
		return "unread"
	case ChangeReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Change is a notification that the model was mutated. Subscribers re-read
// the store; the change itself carries no state.
type Change struct {
	Kind           ChangeKind
	ConversationID string
	UserID         string
}

type subscriber struct {
	ch chan Change
}

// Hub fans change notifications out to subscribers.
// Delivery is best effort: a subscriber whose buffer is full misses the
// notification rather than blocking the publisher.
type Hub struct {
	subscribers map[*subscriber]bool
	mu          sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]bool),
	}
}

// Subscribe registers a subscriber with the given buffer size and returns its
// channel and a cancel func that unregisters and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Change, buffer)}

	h.mu.Lock()
	h.subscribers[sub] = true
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers c to every subscriber without blocking.
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.ch <- c:
		default:
		}
	}
}

// SubscriberCount returns number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
