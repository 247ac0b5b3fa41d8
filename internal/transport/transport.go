// Package transport provides the persistent realtime channel to the chat backend.
//
// A Conn carries JSON event frames in both directions; a Dialer opens one for an
// authenticated identity. Reconnection policy lives with the caller.
package transport

import (
	"context"
	"errors"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("transport: connection closed")

// Conn is one established realtime session.
type Conn interface {
	// ReadEvent blocks until the next inbound frame. Only one reader may call it.
	ReadEvent() (models.Event, error)
	// WriteEvent queues a frame without blocking on the network.
	WriteEvent(event models.Event) error
	Close() error
}

// Dialer opens a Conn parameterized by the user identity.
type Dialer interface {
	Dial(ctx context.Context, id auth.Identity) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, id auth.Identity) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, id auth.Identity) (Conn, error) {
	return f(ctx, id)
}
