// Package client wires the stream session, the chat store, the REST API and
// the composers into one object a UI drives.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/omochice/chatsync/internal/api"
	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/composer"
	"github.com/omochice/chatsync/internal/config"
	"github.com/omochice/chatsync/internal/logger"
	"github.com/omochice/chatsync/internal/metrics"
	"github.com/omochice/chatsync/internal/session"
	"github.com/omochice/chatsync/internal/store"
	"github.com/omochice/chatsync/internal/transport/ws"
	"github.com/omochice/chatsync/pkg/protocol"
)

// Client is the chat client core.
type Client struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	dialer  session.Dialer
	apiOpts []api.Option

	session *session.Session
	store   *store.Store
	api     *api.Client

	mu     sync.RWMutex
	userID string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d session.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithAPIOptions passes extra options to the REST client.
func WithAPIOptions(opts ...api.Option) Option {
	return func(c *Client) { c.apiOpts = append(c.apiOpts, opts...) }
}

// WithCurrentUser sets the id of the signed-in user.
func WithCurrentUser(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// New builds a Client from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	codec, err := protocol.CodecByName(cfg.Session.Codec)
	if err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg, log: logger.L()}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = ws.Dialer{Binary: codec.Binary(), Timeout: cfg.Session.DialTimeout.Duration()}
	}

	c.session = session.New(cfg.Server.StreamURL, c.dialer, codec,
		session.WithReconnect(cfg.Session.ReconnectAttempts, cfg.Session.ReconnectDelay.Duration()),
		session.WithLogger(c.log.With("component", "session")),
		session.WithMetrics(c.metrics),
	)
	c.api = api.New(cfg.Server.APIURL,
		append([]api.Option{api.WithTimeout(cfg.Session.RequestTimeout.Duration())}, c.apiOpts...)...)
	c.store = store.New(c.session, store.WithLogger(c.log.With("component", "store")))
	return c, nil
}

// Store exposes the chat model for rendering.
func (c *Client) Store() *store.Store {
	return c.store
}

// Subscribe registers for model change notifications.
func (c *Client) Subscribe(buffer int) (<-chan chat.Change, func()) {
	return c.store.Subscribe(buffer)
}

// CurrentUser returns the id of the signed-in user.
func (c *Client) CurrentUser() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// SetCurrentUser replaces the id of the signed-in user.
func (c *Client) SetCurrentUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// Connect opens the stream with credential and uses it for REST calls too.
func (c *Client) Connect(ctx context.Context, credential string) error {
	c.api.SetToken(credential)
	if err := c.session.Connect(ctx, credential); err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	return nil
}

// Disconnect closes the stream. The model is kept.
func (c *Client) Disconnect() {
	c.session.Disconnect()
}

// Logout closes the stream and clears the model and the credential.
func (c *Client) Logout() {
	c.session.Disconnect()
	c.store.Reset()
	c.api.SetToken("")
}

// Connected reports whether the stream is up.
func (c *Client) Connected() bool {
	return c.session.Connected()
}

// Sync replaces the directory and the unread total with the server's view.
func (c *Client) Sync(ctx context.Context) error {
	convs, err := c.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	unread, err := c.api.UnreadCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unread count: %w", err)
	}

	c.store.SetConversations(convs)
	c.store.SetUnreadCount(unread)
	return nil
}

// Open makes convID the active conversation: joins its room, loads its
// history and marks what is visible as read. A join that cannot be sent
// while offline does not prevent loading the history.
func (c *Client) Open(ctx context.Context, convID string) error {
	if err := c.store.SetActiveConversation(ctx, convID); err != nil {
		c.log.Debug("room change not delivered", "conversation", convID, "error", err)
	}

	msgs, err := c.api.Messages(ctx, convID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	for i := range msgs {
		msgs[i] = c.resolve(msgs[i])
	}
	c.store.SetMessages(convID, msgs)

	c.markRead(ctx, convID)
	return nil
}

// Close leaves the active conversation.
func (c *Client) Close(ctx context.Context) error {
	return c.store.SetActiveConversation(ctx, "")
}

// SearchUsers finds users to start a conversation with.
func (c *Client) SearchUsers(ctx context.Context, q string) ([]protocol.User, error) {
	return c.api.SearchUsers(ctx, q)
}

// CreateConversation creates a conversation and puts it at the top of the
// directory.
func (c *Client) CreateConversation(ctx context.Context, req api.CreateConversationRequest) (protocol.Conversation, error) {
	conv, err := c.api.CreateConversation(ctx, req)
	if err != nil {
		return protocol.Conversation{}, err
	}
	c.store.UpsertConversation(conv)
	return conv, nil
}

// Composer returns a composer sending to convID.
func (c *Client) Composer(convID string, opts ...composer.Option) *composer.Composer {
	base := []composer.Option{
		composer.WithTypingTimeout(c.cfg.Composer.TypingTimeout.Duration()),
		composer.WithMaxFileSize(c.cfg.Composer.MaxUploadSize.Int64()),
		composer.WithLogger(c.log.With("component", "composer", "conversation", convID)),
	}
	return composer.New(convID, c.session, c.api, append(base, opts...)...)
}

// Run applies stream events to the model, one at a time in delivery order,
// until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	events := c.session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			c.dispatch(ctx, ev)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, ev protocol.Event) {
	me := c.CurrentUser()

	switch ev.Name {
	case protocol.EventConnect:
		// Room membership does not survive a reconnect.
		if active := c.store.ActiveConversation(); active != "" {
			if err := c.store.SetActiveConversation(ctx, active); err != nil {
				c.log.Warn("failed to rejoin conversation", "conversation", active, "error", err)
			}
		}
	case protocol.EventDisconnect, protocol.EventConnectError:
		c.log.Debug("stream state changed", "event", ev.Name, "error", ev.Err)
	case protocol.EventMessageCreated:
		msg := c.resolve(*ev.Message)
		if !c.store.AddMessage(msg, me) {
			return
		}
		if msg.ConversationID == c.store.ActiveConversation() && msg.SenderID != me {
			c.markRead(ctx, msg.ConversationID)
		}
	case protocol.EventMessageEdited:
		c.store.UpdateMessage(c.resolve(*ev.Message))
	case protocol.EventMessageDeleted:
		c.store.RemoveMessage(ev.Deleted.ConversationID, ev.Deleted.MessageID)
	case protocol.EventTyping:
		if ev.Typing.UserID == me {
			return
		}
		c.store.SetTyping(*ev.Typing)
	case protocol.EventPresence:
		c.store.SetPresence(*ev.Presence)
	case protocol.EventMessagesRead:
		c.store.ApplyReadReceipt(*ev.Read)
	case protocol.EventChatError:
		// Logged by the session; nothing in the model depends on it.
	default:
		c.log.Debug("unhandled event", "event", ev.Name)
	}
}

func (c *Client) markRead(ctx context.Context, convID string) {
	n, err := c.store.MarkVisibleRead(ctx, convID, c.CurrentUser())
	if err != nil && !errors.Is(err, session.ErrNotConnected) {
		c.log.Warn("failed to mark messages read", "conversation", convID, "error", err)
		return
	}
	if n > 0 {
		c.log.Debug("marked read", "conversation", convID, "count", n)
	}
}

func (c *Client) resolve(m protocol.Message) protocol.Message {
	return m.ResolveAttachments(c.cfg.Server.MediaURL)
}
