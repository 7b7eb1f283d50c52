// Package mock provides an in-memory Transport for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Transport is a channel-backed transport. Messages pushed with Inject are
// returned from Recv; messages passed to Send are collected for inspection.
type Transport struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	inbox     chan transport.Message
	sent      []transport.Message
}

// New returns a mock transport with room for buffered inbound messages.
func New() *Transport {
	return &Transport{inbox: make(chan transport.Message, 64)}
}

func (t *Transport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	t.connected = true
	return nil
}

func (t *Transport) Send(_ context.Context, msg transport.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *Transport) Recv(ctx context.Context) (transport.Message, error) {
	select {
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	case msg, ok := <-t.inbox:
		if !ok {
			return transport.Message{}, transport.ErrClosed
		}
		return msg, nil
	}
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.connected = false
	close(t.inbox)
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Inject queues a message for Recv.
func (t *Transport) Inject(msg transport.Message) {
	t.inbox <- msg
}

// Sent returns a copy of every message passed to Send so far.
func (t *Transport) Sent() []transport.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.Message, len(t.sent))
	copy(out, t.sent)
	return out
}
