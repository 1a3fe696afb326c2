// Package chat holds the plumbing shared by the session and the store: the
// transport-agnostic frame connection and the change broadcaster.
package chat

import "context"

// Conn abstracts a bidirectional frame connection to the messaging server.
// This interface isolates transport details from the session.
type Conn interface {
	// Read reads a single message frame.
	// Returns io.EOF when connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
