// Package mock provides an in-memory tts.Provider for tests. Synthesized text
// is recorded and turned into deterministic audio chunks.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/provider/tts"
)

// Provider implements tts.Provider. By default every Synthesize call emits
// one chunk whose audio is the text's bytes, which lets tests assert exactly
// which sentences were spoken and in what order.
type Provider struct {
	mu         sync.Mutex
	streams    []*Stream
	sampleRate int

	// ConnectErr, when set, makes Connect fail.
	ConnectErr error
	// Silent suppresses automatic chunk emission; tests then emit by hand.
	Silent bool
}

// New creates a mock provider announcing the given output sample rate.
func New(sampleRate int) *Provider {
	return &Provider{sampleRate: sampleRate}
}

// Connect implements tts.Provider.
func (p *Provider) Connect(_ context.Context) (tts.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	s := &Stream{
		rate:   p.sampleRate,
		silent: p.Silent,
		chunks: make(chan tts.Chunk, 64),
	}
	p.streams = append(p.streams, s)
	return s, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int { return p.sampleRate }

// Streams returns every stream opened so far.
func (p *Provider) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Stream, len(p.streams))
	copy(out, p.streams)
	return out
}

// Stream implements tts.Stream.
type Stream struct {
	mu      sync.Mutex
	rate    int
	silent  bool
	texts   []string
	flushes int
	closed  bool
	chunks  chan tts.Chunk
}

// Synthesize records the text and, unless the provider is Silent, emits one
// chunk carrying the text's bytes as audio.
func (s *Stream) Synthesize(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock tts: stream is closed")
	}
	s.texts = append(s.texts, text)
	if !s.silent {
		s.chunks <- tts.Chunk{Audio: []byte(text), SampleRate: s.rate}
	}
	return nil
}

// Flush records the flush call.
func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock tts: stream is closed")
	}
	s.flushes++
	return nil
}

// Chunks implements tts.Stream.
func (s *Stream) Chunks() <-chan tts.Chunk { return s.chunks }

// Close marks the stream closed and closes the chunks channel.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.chunks)
	}
	return nil
}

// Emit delivers a chunk by hand. It is a no-op on a closed stream.
func (s *Stream) Emit(c tts.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.chunks <- c
}

// Texts returns every synthesised text in order.
func (s *Stream) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// Flushes returns how many times Flush was called.
func (s *Stream) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
