// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxbridge/voxbridge/pkg/provider/tts"
)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesEndpoint   = "https://api.elevenlabs.io/v1/voices"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000", "pcm_8000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoiceSettings overrides the default stability and similarity boost.
func WithVoiceSettings(stability, similarityBoost float64) Option {
	return func(p *Provider) {
		p.voiceSettings = &voiceSettings{
			Stability:       stability,
			SimilarityBoost: similarityBoost,
		}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey        string
	voiceID       string
	model         string
	outputFormat  string
	voiceSettings *voiceSettings
	httpClient    *http.Client
}

// New creates a new ElevenLabs Provider. apiKey and voiceID must be non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	p := &Provider{
		apiKey:        apiKey,
		voiceID:       voiceID,
		model:         defaultModel,
		outputFormat:  defaultOutputFmt,
		voiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		httpClient:    &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := parseOutputRate(p.outputFormat); err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	return p, nil
}

// SampleRate reports the PCM rate implied by the configured output format.
func (p *Provider) SampleRate() int {
	rate, _ := parseOutputRate(p.outputFormat)
	return rate
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
// An empty Text ends the input; Flush forces synthesis of buffered text.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"` // error or info
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// Connect opens a WebSocket synthesis session for the configured voice.
func (p *Provider) Connect(ctx context.Context) (tts.Stream, error) {
	wsURL := buildURLForVoice(p.voiceID, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	// Send the initial BOI message to authenticate and configure the stream.
	// ElevenLabs requires a non-empty first text value.
	boi := boiMessage{
		Text:          " ",
		VoiceSettings: p.voiceSettings,
		XiAPIKey:      p.apiKey,
		OutputFormat:  p.outputFormat,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	rate, _ := parseOutputRate(p.outputFormat)
	s := &stream{
		conn:   conn,
		ctx:    ctx,
		rate:   rate,
		chunks: make(chan tts.Chunk, 256),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// stream is a live ElevenLabs synthesis session. It implements tts.Stream.
type stream struct {
	conn   *websocket.Conn
	ctx    context.Context
	rate   int
	chunks chan tts.Chunk

	done chan struct{}
	once sync.Once

	wmu sync.Mutex
}

// Synthesize queues a text fragment for synthesis.
func (s *stream) Synthesize(text string) error {
	if text == "" {
		return nil
	}
	// A trailing space tells ElevenLabs the fragment is complete.
	if !strings.HasSuffix(text, " ") {
		text += " "
	}
	return s.write(textMessage{Text: text})
}

// Flush forces synthesis of any text the backend has buffered.
func (s *stream) Flush() error {
	return s.write(textMessage{Text: " ", Flush: true})
}

// Chunks returns the channel of synthesised audio.
func (s *stream) Chunks() <-chan tts.Chunk { return s.chunks }

// Close ends the input, waits for the reader to drain remaining audio, and
// closes the connection.
func (s *stream) Close() error {
	s.once.Do(func() {
		// An empty text message is the end-of-input signal.
		_ = s.write(textMessage{Text: ""})
		<-s.done
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *stream) write(msg textMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("elevenlabs: marshal: %w", err)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.Write(s.ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("elevenlabs: write: %w", err)
	}
	return nil
}

// readLoop receives audio messages and forwards decoded PCM to the chunks
// channel until the server closes the stream or ctx is cancelled.
func (s *stream) readLoop() {
	defer close(s.done)
	defer close(s.chunks)

	for {
		_, msg, err := s.conn.Read(s.ctx)
		if err != nil {
			return
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		chunk, ok := parseAudioResponse(resp, s.rate)
		if !ok {
			continue
		}
		select {
		case s.chunks <- chunk:
		case <-s.ctx.Done():
			return
		}
		if chunk.IsFinal {
			return
		}
	}
}

// parseAudioResponse converts one server message into a Chunk. Messages with
// neither audio nor a final marker are ignored.
func parseAudioResponse(resp audioResponse, rate int) (tts.Chunk, bool) {
	if resp.Audio == "" {
		if resp.IsFinal {
			return tts.Chunk{SampleRate: rate, IsFinal: true}, true
		}
		return tts.Chunk{}, false
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return tts.Chunk{}, false
	}
	return tts.Chunk{Audio: pcm, SampleRate: rate, IsFinal: resp.IsFinal}, true
}

// parseOutputRate extracts the sample rate from an ElevenLabs PCM output
// format name such as "pcm_16000".
func parseOutputRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("unsupported output format %q", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("unsupported output format %q", format)
	}
	return rate, nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// Voice describes one voice available from ElevenLabs.
type Voice struct {
	ID       string
	Name     string
	Metadata map[string]string
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return convertVoices(vr), nil
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of Voice values.
func parseVoicesResponse(data []byte) ([]Voice, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return convertVoices(vr), nil
}

func convertVoices(vr voicesResponse) []Voice {
	voices := make([]Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Metadata: meta,
		})
	}
	return voices
}

// buildURLForVoice constructs the WebSocket URL for a given voice and model.
func buildURLForVoice(voiceID, model string) string {
	return fmt.Sprintf(wsEndpointFmt, voiceID, model)
}
