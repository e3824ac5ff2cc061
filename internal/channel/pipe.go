package channel

import (
	"context"
	"sync"
)

type pipeConn struct {
	in        <-chan []byte
	out       chan<- []byte
	done      chan struct{}
	closeOnce *sync.Once
}

// Pipe returns two connected in-process Conns. Messages are encoded on Send
// and decoded on Receive so both ends hold independent copies of the payload.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, 1)
	ba := make(chan []byte, 1)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &pipeConn{in: ba, out: ab, done: done, closeOnce: once}
	b := &pipeConn{in: ab, out: ba, done: done, closeOnce: once}
	return a, b
}

func (p *pipeConn) Send(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Receive(ctx context.Context) (Message, error) {
	select {
	case data := <-p.in:
		return Decode(data)
	case <-p.done:
		// Drain a message that raced with Close.
		select {
		case data := <-p.in:
			return Decode(data)
		default:
		}
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
