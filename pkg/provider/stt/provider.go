// Package stt defines the Provider interface for streaming Speech-to-Text
// backends used by the AI pipeline.
//
// A provider wraps a transcription service (e.g., Deepgram) and presents a
// uniform streaming interface: audio chunks go in, interim and final results
// come out on a single channel. Two signals mark a turn boundary for the
// consumer: a final result (IsFinal=true) and an empty final, which providers
// emit when their endpointing detects the end of an utterance.
package stt

import (
	"context"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// Word is per-word timing and confidence detail on a final result.
type Word struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Result is one recognition hypothesis. Interim results (IsFinal=false) are
// volatile and may be revised; final results are stable. An empty-text final
// is an utterance-end marker, not a transcription.
type Result struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Words      []Word
}

// Config describes the audio the caller will send on a stream. Zero values
// fall back to the provider's defaults.
type Config struct {
	SampleRate int
	Codec      audio.Codec
	Language   string
	Channels   int
}

// Stream is one live transcription session.
//
// SendAudio queues an audio chunk in the format announced via Config. The
// Results channel is closed when the stream ends, whether by Close or by a
// provider-side failure. Close flushes pending audio and is idempotent.
type Stream interface {
	SendAudio(chunk []byte) error
	Results() <-chan Result
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
//
// SampleRate and Codec report the audio format the provider prefers to
// ingest; callers convert before sending when their source format differs.
type Provider interface {
	StartStream(ctx context.Context, cfg Config) (Stream, error)
	SampleRate() int
	Codec() audio.Codec
}
