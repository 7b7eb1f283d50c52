// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
)

const (
	deepgramEndpoint      = "wss://api.deepgram.com/v1/listen"
	defaultModel          = "nova-3"
	defaultLanguage       = "en"
	defaultSampleRate     = 16000
	defaultUtteranceEndMs = 1000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithCodec sets the default audio encoding sent on streams. Deepgram accepts
// pcm16 (linear16), mulaw, and alaw.
func WithCodec(codec audio.Codec) Option {
	return func(p *Provider) {
		p.codec = codec
	}
}

// WithUtteranceEnd sets the Deepgram utterance_end_ms endpointing window.
func WithUtteranceEnd(ms int) Option {
	return func(p *Provider) {
		p.utteranceEndMs = ms
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey         string
	model          string
	language       string
	sampleRate     int
	codec          audio.Codec
	utteranceEndMs int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		model:          defaultModel,
		language:       defaultLanguage,
		sampleRate:     defaultSampleRate,
		codec:          audio.PCM16,
		utteranceEndMs: defaultUtteranceEndMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// SampleRate reports the configured ingest sample rate.
func (p *Provider) SampleRate() int { return p.sampleRate }

// Codec reports the configured ingest encoding.
func (p *Provider) Codec() audio.Codec { return p.codec }

// StartStream opens a streaming transcription session with Deepgram.
// It respects cfg.SampleRate, cfg.Codec, cfg.Language, and cfg.Channels.
func (p *Provider) StartStream(ctx context.Context, cfg stt.Config) (stt.Stream, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:    conn,
		results: make(chan stt.Result, 64),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.Config) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	codec := cfg.Codec
	if codec == "" {
		codec = p.codec
	}
	encoding, err := deepgramEncoding(codec)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if p.utteranceEndMs > 0 {
		// UtteranceEnd events require interim results, which are already on.
		q.Set("utterance_end_ms", strconv.Itoa(p.utteranceEndMs))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramEncoding maps a codec name onto Deepgram's encoding parameter.
func deepgramEncoding(codec audio.Codec) (string, error) {
	switch codec {
	case audio.PCM16:
		return "linear16", nil
	case audio.Mulaw:
		return "mulaw", nil
	case audio.Alaw:
		return "alaw", nil
	default:
		return "", fmt.Errorf("codec %q not supported by deepgram", codec)
	}
}

// ---- session ----

// deepgramResponse is the JSON structure of a Deepgram Results or
// UtteranceEnd event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements stt.Stream.
type session struct {
	conn    *websocket.Conn
	results chan stt.Result
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues an audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: session is closed")
	}
}

// Results returns the channel of recognition results.
func (s *session) Results() <-chan stt.Result { return s.results }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Send a close message to Deepgram to flush pending audio.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain the audio channel before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// results channel.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation.
			return
		}

		r, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}

		select {
		case s.results <- r:
		case <-s.done:
		}
	}
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a Result.
// A Deepgram UtteranceEnd event becomes an empty final, which consumers treat
// as the utterance-end marker. Returns (zero, false) for messages to ignore.
func parseDeepgramResponse(data []byte) (stt.Result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Result{}, false
	}

	switch resp.Type {
	case "UtteranceEnd":
		return stt.Result{IsFinal: true}, true
	case "Results":
	default:
		return stt.Result{}, false
	}

	if len(resp.Channel.Alternatives) == 0 {
		return stt.Result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.Word{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return stt.Result{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
	}, true
}
