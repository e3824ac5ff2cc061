package channel

import (
	"context"
	"errors"
)

// ErrClosed is returned once either side has torn the channel down.
var ErrClosed = errors.New("channel closed")

// Conn is one duplex, message-typed channel instance. Conns are not reused
// across recording sessions.
type Conn interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Dialer opens a fresh Conn for each session.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
