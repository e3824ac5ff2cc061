package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsConn struct {
	conn      *websocket.Conn
	frames    chan frameOrError
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

type frameOrError struct {
	data []byte
	err  error
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn:    conn,
		frames:  make(chan frameOrError, 4),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// DialWebSocket opens a channel to a relay endpoint such as ws://host:8080/channel.
func DialWebSocket(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial channel %s: status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial channel %s: %w", url, err)
	}
	return newWSConn(conn), nil
}

// WebSocketDialer dials a new websocket Conn per session.
func WebSocketDialer(url string) Dialer {
	return DialerFunc(func(ctx context.Context) (Conn, error) {
		return DialWebSocket(ctx, url)
	})
}

func (c *wsConn) Send(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.closeCh:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) (Message, error) {
	select {
	case item, ok := <-c.frames:
		if !ok {
			return Message{}, ErrClosed
		}
		if item.err != nil {
			return Message{}, item.err
		}
		return Decode(item.data)
	case <-c.closeCh:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) readLoop() {
	defer close(c.frames)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			case c.frames <- frameOrError{err: fmt.Errorf("%w: %v", ErrClosed, err)}:
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		select {
		case <-c.closeCh:
			return
		case c.frames <- frameOrError{data: data}:
		}
	}
}

// WebSocketHandler upgrades requests and hands each resulting Conn to handle.
// The Conn is closed when handle returns.
type WebSocketHandler struct {
	upgrader  websocket.Upgrader
	readLimit int64
	handle    func(ctx context.Context, conn Conn)
	logger    *slog.Logger
}

func NewWebSocketHandler(maxMessageBytes int, handle func(ctx context.Context, conn Conn), logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		readLimit: int64(maxMessageBytes),
		handle:    handle,
		logger:    logger,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("channel upgrade failed", slog.String("error", err.Error()))
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}
	conn := newWSConn(ws)
	defer conn.Close()
	h.handle(r.Context(), conn)
}
