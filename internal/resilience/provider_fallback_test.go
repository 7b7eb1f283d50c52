package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/llm"
	llmmock "github.com/voxbridge/voxbridge/pkg/provider/llm/mock"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
	sttmock "github.com/voxbridge/voxbridge/pkg/provider/stt/mock"
	ttsmock "github.com/voxbridge/voxbridge/pkg/provider/tts/mock"
)

func TestSTTFallbackUsesPrimary(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(16000, audio.PCM16)
	backup := sttmock.New(8000, audio.Mulaw)

	f := NewSTTFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	if got := f.SampleRate(); got != 16000 {
		t.Errorf("SampleRate = %d, want primary's 16000", got)
	}
	if got := f.Codec(); got != audio.PCM16 {
		t.Errorf("Codec = %q, want primary's pcm16", got)
	}

	if _, err := f.StartStream(context.Background(), stt.Config{SampleRate: 16000}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if len(primary.Streams()) != 1 || len(backup.Streams()) != 0 {
		t.Errorf("streams: primary=%d backup=%d, want 1/0",
			len(primary.Streams()), len(backup.Streams()))
	}
}

func TestSTTFallbackFailsOver(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(16000, audio.PCM16)
	primary.StartErr = errors.New("deepgram unavailable")
	backup := sttmock.New(16000, audio.PCM16)

	f := NewSTTFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	if _, err := f.StartStream(context.Background(), stt.Config{}); err != nil {
		t.Fatalf("StartStream should succeed via the fallback: %v", err)
	}
	if len(backup.Streams()) != 1 {
		t.Errorf("backup streams = %d, want 1", len(backup.Streams()))
	}
}

func TestSTTFallbackAllFailed(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(16000, audio.PCM16)
	primary.StartErr = errors.New("down")
	backup := sttmock.New(16000, audio.PCM16)
	backup.StartErr = errors.New("also down")

	f := NewSTTFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	_, err := f.StartStream(context.Background(), stt.Config{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallbackFailsOver(t *testing.T) {
	t.Parallel()

	primary := llmmock.New()
	primary.StartErr = errors.New("rate limited")
	backup := llmmock.New()
	backup.RespondText("backup says hi")

	f := NewLLMFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	req := llm.Request{Messages: []llm.Message{{Role: "user", Content: "hello"}}}
	ch, err := f.StreamCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var text string
	for chunk := range ch {
		text += chunk.Text
	}
	if text != "backup says hi" {
		t.Errorf("streamed text = %q", text)
	}
	if len(backup.Requests()) != 1 {
		t.Errorf("backup requests = %d, want 1", len(backup.Requests()))
	}
}

func TestTTSFallbackFailsOver(t *testing.T) {
	t.Parallel()

	primary := ttsmock.New(22050)
	primary.ConnectErr = errors.New("elevenlabs unavailable")
	backup := ttsmock.New(16000)

	f := NewTTSFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("backup", backup)

	if got := f.SampleRate(); got != 22050 {
		t.Errorf("SampleRate = %d, want primary's 22050", got)
	}

	stream, err := f.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect should succeed via the fallback: %v", err)
	}
	if err := stream.Synthesize("hello"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if texts := backup.Streams()[0].Texts(); len(texts) != 1 || texts[0] != "hello" {
		t.Errorf("backup texts = %v", texts)
	}
}

func TestFallbackSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(16000, audio.PCM16)
	primary.StartErr = errors.New("down")
	backup := sttmock.New(16000, audio.PCM16)

	f := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	f.AddFallback("backup", backup)

	// Trip the primary's breaker.
	for i := 0; i < 3; i++ {
		if _, err := f.StartStream(context.Background(), stt.Config{}); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
	}

	// With the breaker open the primary is no longer attempted.
	primary.StartErr = nil
	if _, err := f.StartStream(context.Background(), stt.Config{}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if len(primary.Streams()) != 0 {
		t.Errorf("primary was attempted %d times while its breaker was open", len(primary.Streams()))
	}
}
