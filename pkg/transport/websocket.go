package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// wsConn adapts a *websocket.Conn to [Transport]. It backs both the client
// and server flavours; only Connect differs.
type wsConn struct {
	mu        sync.Mutex // guards conn replacement on Connect
	conn      *websocket.Conn
	connected atomic.Bool
	closeOnce sync.Once
}

func (w *wsConn) Send(ctx context.Context, msg Message) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil || !w.connected.Load() {
		return ErrClosed
	}
	typ := websocket.MessageBinary
	if msg.Kind == KindText {
		typ = websocket.MessageText
	}
	if err := conn.Write(ctx, typ, msg.Data); err != nil {
		w.connected.Store(false)
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (w *wsConn) Recv(ctx context.Context) (Message, error) {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil || !w.connected.Load() {
		return Message{}, ErrClosed
	}
	typ, data, err := conn.Read(ctx)
	if err != nil {
		w.connected.Store(false)
		return Message{}, fmt.Errorf("transport: read: %w", err)
	}
	kind := KindBinary
	if typ == websocket.MessageText {
		kind = KindText
	}
	return Message{Kind: kind, Data: data}, nil
}

func (w *wsConn) Disconnect() error {
	w.closeOnce.Do(func() {
		w.connected.Store(false)
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "session ended")
		}
	})
	return nil
}

func (w *wsConn) IsConnected() bool { return w.connected.Load() }

// Client dials an outbound WebSocket, typically to the external voice bot.
type Client struct {
	wsConn
	url string
}

// NewClient returns an unconnected client for url (ws:// or wss://).
func NewClient(url string) *Client {
	return &Client{url: url}
}

// Connect dials the configured URL.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.url, err)
	}
	// Telephony audio frames arrive faster than the default limit assumptions;
	// remove the read limit so large TTS chunks pass through.
	conn.SetReadLimit(-1)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	return nil
}

// Server wraps a WebSocket connection that has already been accepted from a
// telephony provider.
type Server struct {
	wsConn
}

// NewServer returns a transport over the accepted conn.
func NewServer(conn *websocket.Conn) *Server {
	conn.SetReadLimit(-1)
	s := &Server{}
	s.conn = conn
	s.connected.Store(true)
	return s
}

// Connect is a no-op: the peer is already connected.
func (s *Server) Connect(context.Context) error { return nil }
