package resilience

import (
	"context"

	"github.com/voxbridge/voxbridge/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Stage == "" {
		cfg.Stage = "tts"
	}
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Connect opens a synthesis stream against the first healthy provider. Only
// stream setup is covered by failover; a mid-stream error closes the stream
// and the next Connect lands on a healthy backend.
func (f *TTSFallback) Connect(ctx context.Context) (tts.Stream, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Stream, error) {
		return p.Connect(ctx)
	})
}

// SampleRate reports the primary provider's output rate. Each chunk carries
// its own rate, so a mismatched fallback is resampled downstream.
func (f *TTSFallback) SampleRate() int {
	return f.group.Primary().SampleRate()
}
