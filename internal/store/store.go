// Package store holds the client-side chat model: the conversation directory,
// per-conversation message ledgers, typing and presence tables and unread
// counters. All mutation happens under one mutex; subscribers are notified
// through a chat.Hub after the lock is released.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/logger"
	"github.com/omochice/chatsync/pkg/protocol"
)

// Sender issues commands on the stream. session.Session satisfies it.
type Sender interface {
	Send(ctx context.Context, name protocol.EventName, payload any) error
}

// Store is the shared chat model.
type Store struct {
	sender Sender
	hub    *chat.Hub
	log    *slog.Logger
	now    func() time.Time

	mu            sync.RWMutex
	conversations []protocol.Conversation
	active        string
	messages      map[string][]protocol.Message
	typing        map[string][]protocol.TypingUser
	presence      map[string]protocol.Presence
	unread        int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock overrides the clock used for locally recorded receipts.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store issuing commands through sender.
func New(sender Sender, opts ...Option) *Store {
	s := &Store{
		sender:   sender,
		hub:      chat.NewHub(),
		log:      logger.L(),
		now:      time.Now,
		messages: make(map[string][]protocol.Message),
		typing:   make(map[string][]protocol.TypingUser),
		presence: make(map[string]protocol.Presence),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers for change notifications. Call cancel to unregister.
func (s *Store) Subscribe(buffer int) (<-chan chat.Change, func()) {
	return s.hub.Subscribe(buffer)
}

// Reset clears every table and the active selection. Used on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.conversations = nil
	s.active = ""
	s.messages = make(map[string][]protocol.Message)
	s.typing = make(map[string][]protocol.TypingUser)
	s.presence = make(map[string]protocol.Presence)
	s.unread = 0
	s.mu.Unlock()

	s.publish(chat.Change{Kind: chat.ChangeReset})
}

func (s *Store) publish(changes ...chat.Change) {
	for _, c := range changes {
		s.hub.Publish(c)
	}
}
