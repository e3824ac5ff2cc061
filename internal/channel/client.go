package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/loqalabs/loqa-mic/internal/fault"
)

// ConnectionLost is surfaced when the channel drops before a terminal response.
const ConnectionLost = "Connection lost. Please try again."

// Client sends uploads over a Conn, one at a time.
type Client struct {
	conn     Conn
	mu       sync.Mutex
	inflight bool
}

func NewClient(conn Conn) *Client {
	return &Client{conn: conn}
}

// Upload sends req and waits for its terminal response. A failure response is
// returned as a *fault.Error carrying the relay's reason, status and details.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (UploadSuccess, error) {
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return UploadSuccess{}, fault.New(fault.Transport, "an upload is already in flight on this channel")
	}
	c.inflight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inflight = false
		c.mu.Unlock()
	}()

	if err := c.conn.Send(ctx, RequestMessage(req)); err != nil {
		return UploadSuccess{}, transportFault(err)
	}

	for {
		msg, err := c.conn.Receive(ctx)
		if err != nil {
			return UploadSuccess{}, transportFault(err)
		}
		switch msg.Type {
		case KindUploadSuccess:
			return *msg.Success, nil
		case KindUploadFailure:
			return UploadSuccess{}, failureFault(*msg.Failure)
		default:
			// Requests never travel relay to capture; ignore strays.
		}
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func transportFault(err error) error {
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.Transport, "upload cancelled", err)
	}
	return fault.Wrap(fault.Transport, ConnectionLost, err)
}

func failureFault(f UploadFailure) *fault.Error {
	kind := fault.Kind(f.Kind)
	if kind == "" {
		kind = fault.Transport
	}
	return &fault.Error{
		Kind:       kind,
		Message:    f.Reason,
		StatusCode: f.StatusCode,
		Details:    f.Details,
	}
}
