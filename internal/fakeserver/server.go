// Package fakeserver is an in-process messaging server used to exercise the
// stream session and the client end to end.
package fakeserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/omochice/chatsync/internal/logger"
	"github.com/omochice/chatsync/pkg/protocol"
)

type peer struct {
	id   string
	conn net.Conn
	wmu  sync.Mutex
}

func (p *peer) write(op gobwas.OpCode, data []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return wsutil.WriteServerMessage(p.conn, op, data)
}

// Write lets control-frame replies from the read path share the lock.
func (p *peer) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.conn.Write(b)
}

func (p *peer) Read(b []byte) (int, error) {
	return p.conn.Read(b)
}

// Server accepts websocket connections, records every frame clients send and
// lets tests push frames to all connected clients.
type Server struct {
	codec    protocol.Codec
	token    string
	listener net.Listener
	server   *http.Server
	log      *slog.Logger

	mu       sync.RWMutex
	peers    map[*peer]bool
	received chan protocol.Frame
	accepted atomic.Int64
	refusing atomic.Bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithToken makes the server reject handshakes without "Bearer <token>".
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// New creates a server speaking codec.
func New(codec protocol.Codec, opts ...Option) *Server {
	s := &Server{
		codec:    codec,
		log:      logger.L(),
		peers:    make(map[*peer]bool),
		received: make(chan protocol.Frame, 256),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on a loopback port and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	s.server = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Warn("fake server stopped", "error", err)
		}
	}()
	return nil
}

// Stop closes every connection and the listener.
func (s *Server) Stop() {
	close(s.quit)
	s.DropConnections()
	if s.server != nil {
		s.server.Shutdown(context.Background())
	}
	s.wg.Wait()
}

// URL returns the ws:// address clients dial.
func (s *Server) URL() string {
	if s.listener == nil {
		return ""
	}
	return "ws://" + s.listener.Addr().String() + "/"
}

// Received returns frames sent by clients, in arrival order.
func (s *Server) Received() <-chan protocol.Frame {
	return s.received
}

// ConnCount returns number of connected clients.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Accepted returns how many handshakes have succeeded so far.
func (s *Server) Accepted() int {
	return int(s.accepted.Load())
}

// Refuse makes subsequent handshakes fail with 503 while on is true.
func (s *Server) Refuse(on bool) {
	s.refusing.Store(on)
}

// Push encodes a frame and writes it to every connected client.
func (s *Server) Push(name protocol.EventName, payload any) error {
	f, err := protocol.NewFrame(name, payload)
	if err != nil {
		return err
	}
	data, err := s.codec.Encode(f)
	if err != nil {
		return err
	}
	op := gobwas.OpText
	if s.codec.Binary() {
		op = gobwas.OpBinary
	}

	s.mu.RLock()
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	for _, p := range peers {
		if err := p.write(op, data); err != nil {
			return fmt.Errorf("failed to push to %s: %w", p.id, err)
		}
	}
	return nil
}

// DropConnections closes every client socket without a close frame,
// simulating a network loss.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.peers {
		p.conn.Close()
		delete(s.peers, p)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.refusing.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if s.token != "" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, _, _, err := gobwas.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn("failed to accept websocket connection", "error", err)
		return
	}

	p := &peer{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.peers[p] = true
	s.mu.Unlock()
	s.accepted.Add(1)

	s.wg.Add(1)
	go s.readLoop(p)
}

func (s *Server) readLoop(p *peer) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		p.conn.Close()
	}()

	for {
		data, _, err := wsutil.ReadClientData(p)
		if err != nil {
			return
		}
		f, err := s.codec.Decode(data)
		if err != nil {
			s.log.Warn("failed to decode client frame", "peer", p.id, "error", err)
			continue
		}
		select {
		case s.received <- f:
		case <-s.quit:
			return
		}
	}
}
