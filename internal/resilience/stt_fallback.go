package resilience

import (
	"context"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
//
// SampleRate and Codec always report the primary's preferences; the stream
// config carries that format to whichever backend takes over.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Stage == "" {
		cfg.Stage = "stt"
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream opens a transcription stream against the first healthy provider.
// If the primary fails to start the stream, subsequent fallbacks are tried
// with the same config.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.Config) (stt.Stream, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Stream, error) {
		return p.StartStream(ctx, cfg)
	})
}

// SampleRate reports the primary provider's preferred input rate.
func (f *STTFallback) SampleRate() int {
	return f.group.Primary().SampleRate()
}

// Codec reports the primary provider's preferred input codec.
func (f *STTFallback) Codec() audio.Codec {
	return f.group.Primary().Codec()
}
