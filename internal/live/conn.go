// Package live tracks which users hold an open push channel and delivers
// freshly stored notifications over it.
package live

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrSlowConsumer = errors.New("live: connection buffer full")
	ErrConnClosed   = errors.New("live: connection closed")
	ErrUnknownConn  = errors.New("live: unknown connection")
	ErrNotOpener    = errors.New("live: connection opened by another user")
)

const (
	EventConnected    = "connected"
	EventNotification = "notification"
)

// Event is one server-sent event.
type Event struct {
	Name string
	Data any
}

// Conn is a push handle to one client.
type Conn interface {
	ID() string
	Send(ctx context.Context, ev Event) error
	Close() error
}

// StreamConn buffers events for an SSE response. Send never blocks: a
// client that stops reading gets ErrSlowConsumer.
type StreamConn struct {
	id     string
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewStreamConn(buffer int) *StreamConn {
	if buffer < 1 {
		buffer = 1
	}
	return &StreamConn{
		id:     uuid.NewString(),
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

func (c *StreamConn) ID() string {
	return c.id
}

func (c *StreamConn) Send(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.events <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Events is drained by the goroutine writing the HTTP response.
func (c *StreamConn) Events() <-chan Event {
	return c.events
}

// Done is closed once the connection is closed.
func (c *StreamConn) Done() <-chan struct{} {
	return c.done
}

func (c *StreamConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}
