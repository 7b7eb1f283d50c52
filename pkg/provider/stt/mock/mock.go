// Package mock provides an in-memory stt.Provider for tests. Audio sent to a
// stream is recorded, and tests inject recognition results by hand.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
)

// Provider implements stt.Provider. Every StartStream call returns a new
// Stream, retrievable afterwards via Streams.
type Provider struct {
	mu         sync.Mutex
	streams    []*Stream
	sampleRate int
	codec      audio.Codec

	// StartErr, when set, makes StartStream fail.
	StartErr error
}

// New creates a mock provider that announces the given ingest format.
func New(sampleRate int, codec audio.Codec) *Provider {
	return &Provider{sampleRate: sampleRate, codec: codec}
}

// StartStream opens a new mock stream.
func (p *Provider) StartStream(_ context.Context, _ stt.Config) (stt.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Stream{results: make(chan stt.Result, 64)}
	p.streams = append(p.streams, s)
	return s, nil
}

// SampleRate implements stt.Provider.
func (p *Provider) SampleRate() int { return p.sampleRate }

// Codec implements stt.Provider.
func (p *Provider) Codec() audio.Codec { return p.codec }

// Streams returns every stream opened so far.
func (p *Provider) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Stream, len(p.streams))
	copy(out, p.streams)
	return out
}

// Stream implements stt.Stream.
type Stream struct {
	mu      sync.Mutex
	audio   [][]byte
	closed  bool
	results chan stt.Result
}

// SendAudio records the chunk.
func (s *Stream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: stream is closed")
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.audio = append(s.audio, cp)
	return nil
}

// Results implements stt.Stream.
func (s *Stream) Results() <-chan stt.Result { return s.results }

// Close marks the stream closed and closes the results channel.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return nil
}

// Emit delivers a result to the stream's consumer. It is a no-op on a closed
// stream so tests can race Emit against Close safely.
func (s *Stream) Emit(r stt.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.results <- r
}

// EmitFinal is shorthand for a final result with the given text.
func (s *Stream) EmitFinal(text string) {
	s.Emit(stt.Result{Text: text, IsFinal: true, Confidence: 1})
}

// EmitInterim is shorthand for an interim result with the given text.
func (s *Stream) EmitInterim(text string) {
	s.Emit(stt.Result{Text: text, Confidence: 0.5})
}

// EmitUtteranceEnd is shorthand for the empty-final endpoint marker.
func (s *Stream) EmitUtteranceEnd() {
	s.Emit(stt.Result{IsFinal: true})
}

// Audio returns the chunks recorded so far.
func (s *Stream) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
