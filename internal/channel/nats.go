package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects are <prefix>.<session>.up (capture to relay) and
// <prefix>.<session>.down (relay to capture). An empty message on either
// subject announces that the sender closed its end.

// pingHeader marks a liveness request on an up subject. The listener answers
// it directly; with no listener NATS reports no responders.
const pingHeader = "Loqa-Channel-Ping"

// natsLiveness is how often a waiting dialer checks that a relay still
// listens on its up subject.
var natsLiveness = 2 * time.Second

// errNoRelay is reported when nothing listens on the channel's up subject.
var errNoRelay = fmt.Errorf("%w: no relay is listening", ErrClosed)

type natsConn struct {
	nc          *nats.Conn
	sendSubject string
	sub         *nats.Subscription
	in          chan []byte
	peerClosed  chan struct{}
	closeCh     chan struct{}
	peerOnce    sync.Once
	closeOnce   sync.Once
	onClose     func()
	// liveness is zero on the relay side, which never pings.
	liveness    time.Duration
}

func newNATSConn(nc *nats.Conn, sendSubject string) *natsConn {
	return &natsConn{
		nc:          nc,
		sendSubject: sendSubject,
		in:          make(chan []byte, 16),
		peerClosed:  make(chan struct{}),
		closeCh:     make(chan struct{}),
	}
}

// DialNATS opens a per-session channel on an established NATS connection.
func DialNATS(ctx context.Context, nc *nats.Conn, prefix string) (Conn, error) {
	id := uuid.NewString()
	c := newNATSConn(nc, subject(prefix, id, "up"))
	sub, err := nc.Subscribe(subject(prefix, id, "down"), func(msg *nats.Msg) {
		c.deliver(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe channel replies: %w", err)
	}
	if err := nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush channel subscription: %w", err)
	}
	c.sub = sub
	c.liveness = natsLiveness
	if !c.peerAlive(ctx) {
		_ = sub.Unsubscribe()
		return nil, errNoRelay
	}
	return c, nil
}

// peerAlive pings the up subject. Only a definite no-responders answer counts
// as dead; a slow or lost ping does not.
func (c *natsConn) peerAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, natsLiveness)
	defer cancel()
	msg := nats.NewMsg(c.sendSubject)
	msg.Header.Set(pingHeader, "1")
	_, err := c.nc.RequestMsgWithContext(ctx, msg)
	return !errors.Is(err, nats.ErrNoResponders)
}

// NATSDialer dials a new NATS-backed Conn per session.
func NATSDialer(nc *nats.Conn, prefix string) Dialer {
	return DialerFunc(func(ctx context.Context) (Conn, error) {
		return DialNATS(ctx, nc, prefix)
	})
}

func subject(prefix, id, dir string) string {
	return prefix + "." + id + "." + dir
}

func (c *natsConn) deliver(data []byte) {
	if len(data) == 0 {
		c.peerOnce.Do(func() { close(c.peerClosed) })
		return
	}
	buf := append([]byte(nil), data...)
	select {
	case c.in <- buf:
	default:
		// A conforming peer never has more than one message outstanding.
	}
}

func (c *natsConn) Send(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closeCh:
		return ErrClosed
	case <-c.peerClosed:
		return ErrClosed
	default:
	}
	if err := c.nc.Publish(c.sendSubject, data); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush channel message: %w", err)
	}
	return nil
}

func (c *natsConn) Receive(ctx context.Context) (Message, error) {
	var tick <-chan time.Time
	if c.liveness > 0 {
		ticker := time.NewTicker(c.liveness)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case data := <-c.in:
			return Decode(data)
		case <-c.peerClosed:
			select {
			case data := <-c.in:
				return Decode(data)
			default:
			}
			return Message{}, ErrClosed
		case <-c.closeCh:
			return Message{}, ErrClosed
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-tick:
			if !c.peerAlive(ctx) {
				return Message{}, errNoRelay
			}
		}
	}
}

func (c *natsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if !c.nc.IsClosed() {
			_ = c.nc.Publish(c.sendSubject, nil)
		}
		if c.sub != nil {
			_ = c.sub.Unsubscribe()
		}
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

// NATSListener accepts channels opened with DialNATS.
type NATSListener struct {
	nc        *nats.Conn
	prefix    string
	sub       *nats.Subscription
	conns     map[string]*natsConn
	accepted  chan *natsConn
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	logger    *slog.Logger
}

func ListenNATS(nc *nats.Conn, prefix string, logger *slog.Logger) (*NATSListener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &NATSListener{
		nc:       nc,
		prefix:   prefix,
		conns:    make(map[string]*natsConn),
		accepted: make(chan *natsConn, 16),
		closeCh:  make(chan struct{}),
		logger:   logger,
	}
	sub, err := nc.Subscribe(prefix+".*.up", l.dispatch)
	if err != nil {
		return nil, fmt.Errorf("subscribe channel uploads: %w", err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush channel subscription: %w", err)
	}
	l.sub = sub
	return l, nil
}

func (l *NATSListener) dispatch(msg *nats.Msg) {
	if msg.Header.Get(pingHeader) != "" {
		_ = msg.Respond(nil)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(msg.Subject, l.prefix+"."), ".up")
	if id == "" || strings.Contains(id, ".") {
		return
	}

	l.mu.Lock()
	conn, ok := l.conns[id]
	if !ok {
		if len(msg.Data) == 0 {
			l.mu.Unlock()
			return
		}
		conn = newNATSConn(l.nc, subject(l.prefix, id, "down"))
		conn.onClose = func() {
			l.mu.Lock()
			delete(l.conns, id)
			l.mu.Unlock()
		}
		l.conns[id] = conn
	}
	l.mu.Unlock()

	conn.deliver(msg.Data)
	if ok {
		return
	}
	select {
	case l.accepted <- conn:
	case <-l.closeCh:
		_ = conn.Close()
	default:
		l.logger.Warn("channel accept queue full, dropping session", slog.String("session_id", id))
		_ = conn.Close()
	}
}

func (l *NATSListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-l.accepted:
		return conn, nil
	case <-l.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *NATSListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		if l.sub != nil {
			_ = l.sub.Unsubscribe()
		}
	})
	return nil
}
