// Package ws provides the websocket transport for the stream session.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	gobwas "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/chatsync/internal/chat"
)

// Conn adapts a client-side gobwas websocket to chat.Conn.
type Conn struct {
	conn       net.Conn
	reader     io.Reader
	op         gobwas.OpCode
	wmu        sync.Mutex
	remoteAddr string
}

// NewConn wraps an established client connection. br holds bytes read past
// the handshake and may be nil. binary selects binary over text frames.
func NewConn(conn net.Conn, br *bufio.Reader, binary bool) *Conn {
	c := &Conn{conn: conn, reader: conn, op: gobwas.OpText, remoteAddr: conn.RemoteAddr().String()}
	if br != nil {
		c.reader = br
	}
	if binary {
		c.op = gobwas.OpBinary
	}
	return c
}

// lockedWriter serialises control-frame replies from the read path with
// data writes.
type lockedWriter struct{ c *Conn }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}

type readWriter struct {
	io.Reader
	io.Writer
}

// Read implements chat.Conn.
// Reads one data frame; pings are answered and a close frame yields io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	data, _, err := wsutil.ReadServerData(readWriter{Reader: c.reader, Writer: lockedWriter{c}})
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return wsutil.WriteClientMessage(c.conn, c.op, data)
}

// Close implements chat.Conn.
// Sends a normal-closure frame before closing the socket.
func (c *Conn) Close() error {
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteClientMessage(c.conn, gobwas.OpClose, gobwas.NewCloseFrameBody(gobwas.StatusNormalClosure, ""))
	c.wmu.Unlock()
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Dialer opens authenticated websocket connections.
type Dialer struct {
	// Binary selects binary frames, matching a binary codec.
	Binary  bool
	Timeout time.Duration
}

// Dial connects to url presenting credential as a bearer token.
func (d Dialer) Dial(ctx context.Context, url, credential string) (chat.Conn, error) {
	h := http.Header{}
	if credential != "" {
		h.Set("Authorization", "Bearer "+credential)
	}
	dialer := gobwas.Dialer{
		Header:  gobwas.HandshakeHeaderHTTP(h),
		Timeout: d.Timeout,
	}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn, br, d.Binary), nil
}
