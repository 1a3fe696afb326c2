// Package session owns the single persistent connection to the messaging
// server.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/logger"
	"github.com/omochice/chatsync/internal/metrics"
	"github.com/omochice/chatsync/pkg/protocol"
)

// ErrNotConnected is returned by Send while there is no live connection.
// The command is dropped, not queued.
var ErrNotConnected = errors.New("not connected to server")

var errDisconnected = errors.New("disconnected while dialing")

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	defaultEventBuffer       = 64
)

// Dialer opens a frame connection to url authenticated with credential.
type Dialer interface {
	Dial(ctx context.Context, url, credential string) (chat.Conn, error)
}

// Session owns one connection and turns inbound frames into events on a
// single channel. It holds no business state beyond the connection handle
// and the connected flag.
type Session struct {
	url      string
	dialer   Dialer
	codec    protocol.Codec
	log      *slog.Logger
	metrics  *metrics.Metrics
	attempts int
	delay    time.Duration
	events   chan protocol.Event

	mu         sync.RWMutex
	conn       chat.Conn
	connected  bool
	busy       bool
	credential string
	stop       chan struct{}
	wg         sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithReconnect sets the number of automatic reconnection attempts and the
// base delay; attempt n waits n*delay.
func WithReconnect(attempts int, delay time.Duration) Option {
	return func(s *Session) {
		s.attempts = attempts
		s.delay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(s *Session) { s.events = make(chan protocol.Event, n) }
}

// New creates a disconnected Session.
func New(url string, dialer Dialer, codec protocol.Codec, opts ...Option) *Session {
	s := &Session{
		url:      url,
		dialer:   dialer,
		codec:    codec,
		log:      logger.L(),
		attempts: defaultReconnectAttempts,
		delay:    defaultReconnectDelay,
		events:   make(chan protocol.Event, defaultEventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the inbound event channel. It is never closed.
func (s *Session) Events() <-chan protocol.Event {
	return s.events
}

// Connected reports whether a live connection exists.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Connect dials the server. It is a no-op while connected or while a dial or
// reconnection is already in progress.
func (s *Session) Connect(ctx context.Context, credential string) error {
	s.mu.Lock()
	if s.connected || s.busy {
		s.mu.Unlock()
		return nil
	}
	s.busy = true
	s.credential = credential
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, s.url, credential)

	s.mu.Lock()
	if err != nil {
		s.busy = false
		s.mu.Unlock()
		s.log.Warn("connection error", "url", s.url, "error", err)
		s.notify(protocol.Event{Name: protocol.EventConnectError, Err: err})
		return err
	}
	select {
	case <-stop:
		s.mu.Unlock()
		conn.Close()
		return errDisconnected
	default:
	}
	s.attach(conn, stop)
	s.mu.Unlock()

	s.log.Info("connected", "remote", conn.RemoteAddr())
	s.notify(protocol.Event{Name: protocol.EventConnect})
	return nil
}

// attach installs conn as the live connection. Caller holds s.mu.
func (s *Session) attach(conn chat.Conn, stop chan struct{}) {
	s.conn = conn
	s.connected = true
	s.busy = false
	s.metrics.SetConnected(true)

	s.wg.Add(1)
	go s.readLoop(conn, stop)
}

// Disconnect tears the connection down and cancels any reconnection. It does
// not touch application state held elsewhere.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.stop != nil {
		select {
		case <-s.stop:
		default:
			close(s.stop)
		}
	}
	conn := s.conn
	wasConnected := s.connected
	s.conn = nil
	s.connected = false
	s.busy = false
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()

	s.metrics.SetConnected(false)
	if wasConnected {
		s.notify(protocol.Event{Name: protocol.EventDisconnect})
	}
}

// Send encodes and writes one command. While disconnected the command is
// dropped and ErrNotConnected returned.
func (s *Session) Send(ctx context.Context, name protocol.EventName, payload any) error {
	s.mu.RLock()
	conn := s.conn
	connected := s.connected
	s.mu.RUnlock()

	if !connected || conn == nil {
		s.metrics.CommandDropped(string(name))
		s.log.Debug("command dropped", "command", name, "reason", "not connected")
		return ErrNotConnected
	}

	f, err := protocol.NewFrame(name, payload)
	if err != nil {
		return err
	}
	data, err := s.codec.Encode(f)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := conn.Write(ctx, data); err != nil {
		s.metrics.CommandDropped(string(name))
		return fmt.Errorf("failed to send %s: %w", name, err)
	}

	s.metrics.CommandSent(string(name))
	return nil
}

// readLoop continuously receives frames until the connection fails. An
// unexpected failure hands over to reconnect.
func (s *Session) readLoop(conn chat.Conn, stop chan struct{}) {
	defer s.wg.Done()

	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if s.lost(conn, err, stop) {
				s.reconnect(stop)
			}
			return
		}

		f, err := s.codec.Decode(data)
		if err != nil {
			s.log.Warn("failed to decode frame", "error", err)
			continue
		}
		ev, err := protocol.ParseEvent(f)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownEvent) {
				s.log.Debug("ignoring event", "event", f.Event)
			} else {
				s.log.Warn("failed to parse event", "event", f.Event, "error", err)
			}
			continue
		}
		if ev.Name == protocol.EventChatError {
			s.log.Warn("chat error", "event", ev.Error.Event, "message", ev.Error.Message)
		}

		s.metrics.EventReceived(string(ev.Name))
		select {
		case s.events <- ev:
		case <-stop:
			return
		}
	}
}

// lost marks the session down and reports it. It returns false when the
// session was stopped before the event could be delivered.
func (s *Session) lost(conn chat.Conn, err error, stop chan struct{}) bool {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.connected = false
		s.busy = true
	}
	s.mu.Unlock()
	conn.Close()

	s.metrics.SetConnected(false)
	s.log.Warn("connection lost", "remote", conn.RemoteAddr(), "error", err)
	return s.deliver(protocol.Event{Name: protocol.EventDisconnect, Err: err}, stop)
}

// reconnect dials up to s.attempts times with linear backoff. Once
// exhausted the session stays down until Connect is called again.
func (s *Session) reconnect(stop chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.mu.RLock()
	credential := s.credential
	s.mu.RUnlock()

	for attempt := 1; attempt <= s.attempts; attempt++ {
		timer := time.NewTimer(time.Duration(attempt) * s.delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.metrics.Reconnecting()
		s.log.Info("reconnecting", "attempt", attempt, "of", s.attempts)

		conn, err := s.dialer.Dial(ctx, s.url, credential)
		if err != nil {
			s.log.Warn("connection error", "attempt", attempt, "error", err)
			if !s.deliver(protocol.Event{Name: protocol.EventConnectError, Err: err}, stop) {
				return
			}
			continue
		}

		s.mu.Lock()
		select {
		case <-stop:
			s.mu.Unlock()
			conn.Close()
			return
		default:
		}
		s.attach(conn, stop)
		s.mu.Unlock()

		s.log.Info("reconnected", "remote", conn.RemoteAddr(), "attempt", attempt)
		s.deliver(protocol.Event{Name: protocol.EventConnect}, stop)
		return
	}

	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
	s.log.Warn("reconnection attempts exhausted", "attempts", s.attempts)
}

// deliver blocks until ev is consumed or stop is closed, and reports whether
// ev was delivered. Only the read goroutine uses it.
func (s *Session) deliver(ev protocol.Event, stop chan struct{}) bool {
	select {
	case s.events <- ev:
		return true
	case <-stop:
		return false
	}
}

// notify delivers a lifecycle event raised by a Connect or Disconnect caller
// without blocking.
func (s *Session) notify(ev protocol.Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug("lifecycle event dropped", "event", ev.Name)
	}
}
