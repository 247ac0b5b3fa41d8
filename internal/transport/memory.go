package transport

import (
	"sync"

	"chat-sync/internal/models"
)

// MemoryConn is an in-process Conn. Two of them joined by Pipe behave like both ends of a socket.
type MemoryConn struct {
	in   chan models.Event
	peer *MemoryConn
	done chan struct{}
	once sync.Once
}

// Pipe returns two connected ends.
func Pipe() (*MemoryConn, *MemoryConn) {
	a := &MemoryConn{in: make(chan models.Event, sendQueueSize), done: make(chan struct{})}
	b := &MemoryConn{in: make(chan models.Event, sendQueueSize), done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

// ReadEvent returns the next frame written by the peer.
func (c *MemoryConn) ReadEvent() (models.Event, error) {
	select {
	case event := <-c.in:
		return event, nil
	case <-c.done:
		return models.Event{}, ErrClosed
	case <-c.peer.done:
		// drain what the peer wrote before hanging up
		select {
		case event := <-c.in:
			return event, nil
		default:
		}
		return models.Event{}, ErrClosed
	}
}

// WriteEvent delivers a frame to the peer.
func (c *MemoryConn) WriteEvent(event models.Event) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.peer.done:
		return ErrClosed
	default:
	}
	select {
	case c.peer.in <- event:
		return nil
	case <-c.done:
		return ErrClosed
	case <-c.peer.done:
		return ErrClosed
	}
}

// Close hangs up both directions.
func (c *MemoryConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Closed reports whether this end was closed.
func (c *MemoryConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
