// Package tts defines the Provider interface for streaming Text-to-Speech
// backends used by the AI pipeline.
//
// A provider wraps a synthesis service (e.g., ElevenLabs) and presents a
// uniform streaming interface: sentences go in via Synthesize, raw audio
// chunks come out on a single channel. This allows the caller to pipe LLM
// streaming output directly into synthesis without waiting for the full
// response text.
package tts

import "context"

// Chunk is one piece of synthesised audio. IsFinal marks the last chunk the
// backend will produce for the text submitted so far.
type Chunk struct {
	Audio      []byte
	SampleRate int
	IsFinal    bool
}

// Stream is one live synthesis session.
//
// Synthesize queues a text fragment, typically a complete sentence. Flush
// forces the backend to synthesise any buffered text immediately. Close ends
// the session and is idempotent; the Chunks channel is closed when the
// session ends.
type Stream interface {
	Synthesize(text string) error
	Chunks() <-chan Chunk
	Flush() error
	Close() error
}

// Provider is the abstraction over any streaming TTS backend. SampleRate
// reports the rate of the PCM16 audio the provider emits.
type Provider interface {
	Connect(ctx context.Context) (Stream, error)
	SampleRate() int
}
