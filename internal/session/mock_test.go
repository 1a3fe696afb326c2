package session_test

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/omochice/chatsync/internal/chat"
)

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		done:       make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, io.EOF
	case data := <-m.readCh:
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) GetWritten() [][]byte {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	return m.written
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)

// mockDialer hands out queued connections; an empty queue fails the dial.
type mockDialer struct {
	mu          sync.Mutex
	conns       []*mockConn
	dials       int
	credentials []string
}

var errDialRefused = errors.New("connection refused")

func (d *mockDialer) queue(c ...*mockConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, c...)
}

func (d *mockDialer) Dial(ctx context.Context, url, credential string) (chat.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.credentials = append(d.credentials, credential)
	if len(d.conns) == 0 {
		return nil, errDialRefused
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *mockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
