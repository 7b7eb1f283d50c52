package deepgram

import (
	"net/url"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.SampleRate() != 16000 {
		t.Errorf("default sample rate = %d, want 16000", p.SampleRate())
	}
	if p.Codec() != audio.PCM16 {
		t.Errorf("default codec = %q, want pcm16", p.Codec())
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	p, err := New("key",
		WithModel("nova-2"),
		WithLanguage("de"),
		WithSampleRate(8000),
		WithCodec(audio.Mulaw),
		WithUtteranceEnd(800),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	raw, err := p.buildURL(stt.Config{Channels: 1})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse built URL: %v", err)
	}

	if u.Scheme != "wss" || u.Host != "api.deepgram.com" || u.Path != "/v1/listen" {
		t.Errorf("unexpected endpoint %s://%s%s", u.Scheme, u.Host, u.Path)
	}
	q := u.Query()
	want := map[string]string{
		"model":            "nova-2",
		"language":         "de",
		"punctuate":        "true",
		"interim_results":  "true",
		"encoding":         "mulaw",
		"sample_rate":      "8000",
		"channels":         "1",
		"utterance_end_ms": "800",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}
}

func TestBuildURLConfigOverridesProviderDefaults(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := p.buildURL(stt.Config{SampleRate: 8000, Codec: audio.Alaw, Language: "fr"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q, _ := url.Parse(raw)
	if got := q.Query().Get("encoding"); got != "alaw" {
		t.Errorf("encoding = %q, want alaw", got)
	}
	if got := q.Query().Get("sample_rate"); got != "8000" {
		t.Errorf("sample_rate = %q, want 8000", got)
	}
	if got := q.Query().Get("language"); got != "fr" {
		t.Errorf("language = %q, want fr", got)
	}
}

func TestBuildURLRejectsOpus(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.buildURL(stt.Config{Codec: audio.Opus}); err == nil {
		t.Fatal("opus ingest should be rejected")
	}
}

func TestParseResultsMessage(t *testing.T) {
	t.Parallel()

	msg := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{
				"transcript": "hello world",
				"confidence": 0.97,
				"words": [
					{"word": "hello", "start": 0.1, "end": 0.4, "confidence": 0.98},
					{"word": "world", "start": 0.5, "end": 0.9, "confidence": 0.96}
				]
			}]
		}
	}`)

	r, ok := parseDeepgramResponse(msg)
	if !ok {
		t.Fatal("message should parse")
	}
	if r.Text != "hello world" {
		t.Errorf("text = %q, want %q", r.Text, "hello world")
	}
	if !r.IsFinal {
		t.Error("result should be final")
	}
	if r.Confidence != 0.97 {
		t.Errorf("confidence = %v, want 0.97", r.Confidence)
	}
	if len(r.Words) != 2 {
		t.Fatalf("word count = %d, want 2", len(r.Words))
	}
	if r.Words[0].Start != 100*time.Millisecond {
		t.Errorf("word start = %v, want 100ms", r.Words[0].Start)
	}
}

func TestParseInterimMessage(t *testing.T) {
	t.Parallel()

	msg := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {"alternatives": [{"transcript": "hel", "confidence": 0.5}]}
	}`)

	r, ok := parseDeepgramResponse(msg)
	if !ok {
		t.Fatal("message should parse")
	}
	if r.IsFinal {
		t.Error("interim result should not be final")
	}
	if r.Text != "hel" {
		t.Errorf("text = %q, want %q", r.Text, "hel")
	}
}

func TestParseUtteranceEndBecomesEmptyFinal(t *testing.T) {
	t.Parallel()

	r, ok := parseDeepgramResponse([]byte(`{"type": "UtteranceEnd", "last_word_end": 3.1}`))
	if !ok {
		t.Fatal("UtteranceEnd should parse")
	}
	if !r.IsFinal || r.Text != "" {
		t.Errorf("got %+v, want empty final", r)
	}
}

func TestParseIgnoresOtherMessages(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{
		`{"type": "Metadata", "request_id": "abc"}`,
		`{"type": "SpeechStarted"}`,
		`{"type": "Results", "channel": {"alternatives": []}}`,
		`not json`,
	} {
		if _, ok := parseDeepgramResponse([]byte(msg)); ok {
			t.Errorf("message %q should be ignored", msg)
		}
	}
}
