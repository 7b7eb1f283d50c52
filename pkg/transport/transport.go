// Package transport provides the WebSocket client and server transports used
// on both sides of the bridge.
//
// A transport is purely I/O: it imposes no framing above the WebSocket message
// boundary and preserves the binary/text distinction, which several provider
// protocols rely on (binary frames carry audio, text frames carry JSON
// control messages). Both flavours implement [Transport].
package transport

import (
	"context"
	"errors"
)

// Kind distinguishes binary from text WebSocket messages.
type Kind int

const (
	KindBinary Kind = iota
	KindText
)

// Message is one WebSocket message with its binary/text distinction intact.
type Message struct {
	Kind Kind
	Data []byte
}

// Binary wraps raw bytes as a binary message.
func Binary(data []byte) Message { return Message{Kind: KindBinary, Data: data} }

// Text wraps a payload as a text message.
func Text(data []byte) Message { return Message{Kind: KindText, Data: data} }

// ErrClosed is returned by Send and Recv after the transport disconnects.
var ErrClosed = errors.New("transport: connection closed")

// Transport is the shared abstraction over the provider-side (accepted) and
// bot-side (dialled) WebSocket connections.
//
// Send and Recv are safe to call from different goroutines, matching the
// bridge's one-reader one-writer model per connection. Disconnect is
// idempotent.
type Transport interface {
	// Connect establishes the connection. Server transports wrap an already
	// accepted peer and return nil immediately.
	Connect(ctx context.Context) error

	// Send writes one message to the peer.
	Send(ctx context.Context, msg Message) error

	// Recv blocks until the next message arrives. It returns [ErrClosed]
	// (possibly wrapped) once the peer disconnects.
	Recv(ctx context.Context) (Message, error)

	// Disconnect closes the connection. Safe to call multiple times.
	Disconnect() error

	// IsConnected reports whether the connection is currently usable.
	IsConnected() bool
}
