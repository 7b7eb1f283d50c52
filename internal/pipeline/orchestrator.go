// Package pipeline implements the in-process voice bot: a streaming
// STT→LLM→TTS loop that takes the place of an external bot endpoint.
//
// The Orchestrator implements transport.Transport, so the bridge talks to it
// exactly as it would to a dialled WebSocket bot: binary messages carry call
// audio in the bot format, text messages carry the bridge's control protocol
// (start, stop, dtmf, barge_in).
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/llm"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
	"github.com/voxbridge/voxbridge/pkg/provider/tts"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

const (
	// DefaultMaxCallDuration ends a call that nobody hung up.
	DefaultMaxCallDuration = 1800 * time.Second

	// sentenceIdleTimeout abandons a sentence when synthesis stalls.
	sentenceIdleTimeout = 5 * time.Second

	// flushIdleTimeout bounds the final drain of synthesised audio.
	flushIdleTimeout = 3 * time.Second

	// turnTickInterval drives the turn detector's silence timer.
	turnTickInterval = 50 * time.Millisecond

	// maxToolRounds caps recursive regeneration after tool execution so a
	// model that keeps requesting tools cannot loop forever.
	maxToolRounds = 4

	defaultFallbackMessage = "I'm sorry, I'm having trouble right now. Could you say that again?"
	defaultTransferMessage = "Please hold while I transfer you to an agent."
)

// ToolExecutor runs one tool call requested by the model and returns the
// result content for the tool message.
type ToolExecutor func(ctx context.Context, name, arguments string) (string, error)

// Config assembles the providers and conversation policy for one call.
type Config struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	SystemPrompt   string
	FirstMessage   string
	Tools          []llm.ToolDefinition
	ToolExecutor   ToolExecutor
	EndCallPhrases []string
	Temperature    float64
	MaxTokens      int

	SilenceThreshold time.Duration
	MaxTurnDuration  time.Duration
	MaxCallDuration  time.Duration

	Escalation EscalationConfig
	// OnEscalate is invoked after the transfer message has been spoken.
	OnEscalate func(EscalationResult)

	// TransferMessage is spoken before escalating; FallbackMessage is spoken
	// when the LLM or TTS fails mid-turn.
	TransferMessage string
	FallbackMessage string

	// BotCodec and BotRate describe the audio format exchanged with the
	// bridge, mirroring the bot.codec and bot.sample_rate configuration.
	BotCodec audio.Codec
	BotRate  int

	Codecs  *audio.Registry
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// control mirrors the bridge's bot-side control protocol.
type control struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Digit  string `json:"digit,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Orchestrator runs one call's STT→LLM→TTS loop behind the transport
// interface. Create one per call with New; it is not reusable.
type Orchestrator struct {
	cfg  Config
	conv *ConversationContext
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	out chan transport.Message

	sttStream stt.Stream
	ttsStream tts.Stream
	inRes     *audio.Resampler
	outRes    *audio.Resampler

	callTimer *time.Timer
	wg        sync.WaitGroup

	mu         sync.Mutex
	turn       *TurnDetector
	esc        *EscalationDetector
	genCancel  context.CancelFunc
	synthTimes []time.Time
	speaking   bool
	connected  bool
	started    bool
	ending     bool
	turnStart  time.Time
}

// New validates cfg and builds an orchestrator. Connect must be called
// before any other method.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.STT == nil || cfg.LLM == nil || cfg.TTS == nil {
		return nil, fmt.Errorf("pipeline: STT, LLM and TTS providers are all required")
	}
	if cfg.Codecs == nil {
		return nil, fmt.Errorf("pipeline: codec registry is required")
	}
	if cfg.BotCodec == "" {
		cfg.BotCodec = audio.PCM16
	}
	if cfg.BotRate == 0 {
		cfg.BotRate = 16000
	}
	if cfg.MaxCallDuration <= 0 {
		cfg.MaxCallDuration = DefaultMaxCallDuration
	}
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = defaultFallbackMessage
	}
	if cfg.TransferMessage == "" {
		cfg.TransferMessage = defaultTransferMessage
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	esc, err := NewEscalationDetector(cfg.Escalation)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:  cfg,
		conv: NewConversationContext(cfg.SystemPrompt, 0, 0),
		log:  cfg.Logger,
		out:  make(chan transport.Message, 256),
		turn: NewTurnDetector(cfg.SilenceThreshold, cfg.MaxTurnDuration, 0),
		esc:  esc,
	}, nil
}

// ─── transport.Transport ──────────────────────────────────────────────────────

// Connect opens the STT and TTS streams and starts the listener goroutines.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.ctx, o.cancel = context.WithCancel(ctx)

	sttStream, err := o.cfg.STT.StartStream(o.ctx, stt.Config{
		SampleRate: o.cfg.STT.SampleRate(),
		Codec:      o.cfg.STT.Codec(),
	})
	if err != nil {
		o.cancel()
		return fmt.Errorf("pipeline: start STT: %w", err)
	}
	ttsStream, err := o.cfg.TTS.Connect(o.ctx)
	if err != nil {
		sttStream.Close()
		o.cancel()
		return fmt.Errorf("pipeline: connect TTS: %w", err)
	}
	o.sttStream = sttStream
	o.ttsStream = ttsStream

	if r := o.cfg.STT.SampleRate(); r != o.cfg.BotRate {
		o.inRes = audio.NewResampler(o.cfg.BotRate, r)
	}
	if r := o.cfg.TTS.SampleRate(); r != o.cfg.BotRate {
		o.outRes = audio.NewResampler(r, o.cfg.BotRate)
	}

	o.callTimer = time.AfterFunc(o.cfg.MaxCallDuration, func() {
		o.log.Info("max call duration reached")
		o.endCall("max_duration", "")
	})

	o.mu.Lock()
	o.connected = true
	o.mu.Unlock()

	o.wg.Add(2)
	go o.sttListener()
	go o.ttsForwarder()
	return nil
}

// Send accepts one message from the bridge: binary call audio or a control
// message.
func (o *Orchestrator) Send(_ context.Context, msg transport.Message) error {
	if !o.IsConnected() {
		return transport.ErrClosed
	}
	if msg.Kind == transport.KindBinary {
		return o.ingestAudio(msg.Data)
	}

	var c control
	if err := json.Unmarshal(msg.Data, &c); err != nil {
		return fmt.Errorf("pipeline: bad control message: %w", err)
	}
	switch c.Type {
	case "start":
		o.handleStart(c)
	case "dtmf":
		o.handleDTMF(c.Digit)
	case "barge_in":
		o.handleBargeIn()
	case "stop":
		o.log.Info("bridge stopped call", "reason", c.Reason)
		o.shutdown()
	default:
		o.log.Debug("ignoring control message", "type", c.Type)
	}
	return nil
}

// Recv returns the next outbound message: synthesised audio as binary, or a
// stop control when the pipeline decides to end the call.
func (o *Orchestrator) Recv(ctx context.Context) (transport.Message, error) {
	select {
	case msg := <-o.out:
		return msg, nil
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	case <-o.ctx.Done():
		// Drain anything emitted before shutdown.
		select {
		case msg := <-o.out:
			return msg, nil
		default:
			return transport.Message{}, transport.ErrClosed
		}
	}
}

// Disconnect tears the pipeline down. Safe to call multiple times.
func (o *Orchestrator) Disconnect() error {
	o.shutdown()
	return nil
}

// IsConnected reports whether the pipeline is running.
func (o *Orchestrator) IsConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected
}

// ─── inbound path ─────────────────────────────────────────────────────────────

// ingestAudio converts one bot-format frame into the STT ingest format and
// queues it.
func (o *Orchestrator) ingestAudio(data []byte) error {
	pcm, err := o.cfg.Codecs.Decode(data, o.cfg.BotCodec)
	if err != nil {
		return fmt.Errorf("pipeline: decode inbound audio: %w", err)
	}
	if o.inRes != nil {
		pcm = o.inRes.Process(pcm)
	}
	encoded, err := o.cfg.Codecs.Encode(pcm, o.cfg.STT.Codec())
	if err != nil {
		return fmt.Errorf("pipeline: encode for STT: %w", err)
	}
	// The STT stream queues chunks asynchronously while encoded may still
	// alias the caller's frame or the resampler's reused buffer.
	if err := o.sttStream.SendAudio(bytes.Clone(encoded)); err != nil {
		return fmt.Errorf("pipeline: send to STT: %w", err)
	}
	return nil
}

func (o *Orchestrator) handleStart(c control) {
	o.mu.Lock()
	alreadyStarted := o.started
	o.started = true
	o.mu.Unlock()
	if alreadyStarted {
		return
	}
	o.log.Info("pipeline call started", "call_id", c.CallID)
	if o.cfg.FirstMessage != "" {
		o.speak(o.cfg.FirstMessage)
	}
}

func (o *Orchestrator) handleDTMF(digit string) {
	o.mu.Lock()
	result := o.esc.CheckDTMF(digit)
	o.mu.Unlock()
	if result.ShouldEscalate {
		o.escalate(result)
	}
}

// handleBargeIn cancels the in-flight generation and discards the current
// turn. The bridge has already cleared its outbound queue.
func (o *Orchestrator) handleBargeIn() {
	o.mu.Lock()
	cancelGen := o.genCancel
	o.genCancel = nil
	o.turn.Reset()
	o.speaking = false
	o.synthTimes = nil
	o.mu.Unlock()
	if cancelGen != nil {
		cancelGen()
	}
	o.log.Debug("barge-in: generation cancelled")
}

// ─── turn handling ────────────────────────────────────────────────────────────

// sttListener forwards STT results into the turn detector and drives its
// silence timer.
func (o *Orchestrator) sttListener() {
	defer o.wg.Done()
	ticker := time.NewTicker(turnTickInterval)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-o.sttStream.Results():
			if !ok {
				return
			}
			o.mu.Lock()
			if o.turnStart.IsZero() && r.Text != "" {
				o.turnStart = time.Now()
			}
			transcript, done := o.turn.Observe(r, time.Now())
			o.mu.Unlock()
			if done {
				o.onTurnEnd(transcript)
			}
		case now := <-ticker.C:
			o.mu.Lock()
			transcript, done := o.turn.Tick(now)
			o.mu.Unlock()
			if done {
				o.onTurnEnd(transcript)
			}
		case <-o.ctx.Done():
			return
		}
	}
}

// onTurnEnd runs once per completed user turn: record it, check escalation
// and end-call phrases, then (re)start generation.
func (o *Orchestrator) onTurnEnd(transcript string) {
	o.cfg.Metrics.TurnsDetected.Add(o.ctx, 1)

	o.mu.Lock()
	if !o.turnStart.IsZero() {
		o.cfg.Metrics.STTDuration.Record(o.ctx, time.Since(o.turnStart).Seconds())
		o.turnStart = time.Time{}
	}
	o.mu.Unlock()

	o.log.Debug("turn ended", "transcript", transcript)
	o.conv.AddUser(transcript)

	o.mu.Lock()
	result := o.esc.CheckTurn(transcript)
	o.mu.Unlock()
	if result.ShouldEscalate {
		o.escalate(result)
		return
	}

	if phrase, ok := o.matchEndCallPhrase(transcript); ok {
		o.log.Info("end-call phrase detected", "phrase", phrase)
		o.endCall("caller_ended", "")
		return
	}

	genCtx, cancel := context.WithCancel(o.ctx)
	o.mu.Lock()
	if o.genCancel != nil {
		o.genCancel()
	}
	o.genCancel = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.generate(genCtx, 0)
	}()
}

func (o *Orchestrator) matchEndCallPhrase(transcript string) (string, bool) {
	lower := strings.ToLower(transcript)
	for _, p := range o.cfg.EndCallPhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

// ─── generation ───────────────────────────────────────────────────────────────

// generate streams one completion, speaking complete sentences as they form.
// Tool calls are accumulated per ToolCallID; when the stream finishes they
// are executed and generation re-enters with the tool results appended.
func (o *Orchestrator) generate(ctx context.Context, depth int) {
	start := time.Now()
	req := llm.Request{
		Messages:    o.conv.Messages(),
		Tools:       o.cfg.Tools,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}
	ch, err := o.cfg.LLM.StreamCompletion(ctx, req)
	if err != nil {
		o.log.Error("LLM stream failed", "error", err)
		o.speak(o.cfg.FallbackMessage)
		return
	}

	var buf, full strings.Builder
	var toolOrder []string
	toolAccum := map[string]*llm.ToolCall{}
	lastToolID := ""
	var streamErr error

	for chunk := range ch {
		if chunk.Err != nil {
			streamErr = chunk.Err
		}
		if chunk.Text != "" {
			buf.WriteString(chunk.Text)
			full.WriteString(chunk.Text)
			o.flushSentences(&buf)
		}
		if chunk.ToolCallID != "" || chunk.ToolArguments != "" {
			id := chunk.ToolCallID
			if id == "" {
				id = lastToolID
			} else {
				lastToolID = id
			}
			if id == "" {
				continue
			}
			tc, ok := toolAccum[id]
			if !ok {
				tc = &llm.ToolCall{ID: id}
				toolAccum[id] = tc
				toolOrder = append(toolOrder, id)
			}
			if chunk.ToolName != "" {
				tc.Name = chunk.ToolName
			}
			tc.Arguments += chunk.ToolArguments
		}
		if chunk.IsFinal && (chunk.InputTokens > 0 || chunk.OutputTokens > 0) {
			o.log.Debug("completion usage",
				"input_tokens", chunk.InputTokens, "output_tokens", chunk.OutputTokens)
		}
	}

	if ctx.Err() != nil {
		// Cancelled by barge-in or a newer turn; say nothing more.
		return
	}
	o.cfg.Metrics.LLMDuration.Record(o.ctx, time.Since(start).Seconds())

	if streamErr != nil {
		o.log.Error("LLM stream failed mid-response", "error", streamErr)
		o.speak(o.cfg.FallbackMessage)
		return
	}

	// Flush the trailing partial sentence.
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		o.speak(rest)
	}

	toolCalls := make([]llm.ToolCall, 0, len(toolOrder))
	for _, id := range toolOrder {
		toolCalls = append(toolCalls, *toolAccum[id])
	}
	o.conv.AddAssistant(full.String(), toolCalls)

	if len(toolCalls) == 0 {
		return
	}
	if o.cfg.ToolExecutor == nil {
		o.log.Warn("model requested tools but no executor is configured")
		return
	}
	if depth >= maxToolRounds {
		o.log.Warn("tool recursion limit reached", "depth", depth)
		return
	}
	for _, tc := range toolCalls {
		result, err := o.cfg.ToolExecutor(ctx, tc.Name, tc.Arguments)
		if err != nil {
			o.log.Error("tool execution failed", "tool", tc.Name, "error", err)
			result = fmt.Sprintf(`{"error":%q}`, err.Error())
		}
		o.conv.AddToolResult(tc.ID, result)
	}
	o.generate(ctx, depth+1)
}

// flushSentences speaks every complete sentence in buf and leaves the
// trailing fragment in place.
func (o *Orchestrator) flushSentences(buf *strings.Builder) {
	for {
		s := buf.String()
		idx := sentenceBoundary(s)
		if idx < 0 {
			return
		}
		sentence := strings.TrimSpace(s[:idx+1])
		rest := strings.TrimLeft(s[idx+1:], " \t\n\r")
		buf.Reset()
		buf.WriteString(rest)
		if sentence != "" {
			o.speak(sentence)
		}
	}
}

// sentenceBoundary returns the index of the first sentence-ending punctuation
// character ('.', '!', '?', ':' or ';') immediately followed by whitespace,
// or -1 when the text holds no complete sentence.
func sentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?', ':', ';':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}

// ─── outbound path ────────────────────────────────────────────────────────────

// speak queues one sentence for synthesis.
func (o *Orchestrator) speak(text string) {
	if text == "" {
		return
	}
	o.mu.Lock()
	o.synthTimes = append(o.synthTimes, time.Now())
	o.mu.Unlock()
	if err := o.ttsStream.Synthesize(text); err != nil {
		o.log.Error("TTS synthesize failed", "error", err)
		o.mu.Lock()
		if n := len(o.synthTimes); n > 0 {
			o.synthTimes = o.synthTimes[:n-1]
		}
		o.mu.Unlock()
	}
}

// ttsForwarder converts synthesised chunks to the bot format and emits them
// to the bridge. While sentences are pending, a stalled backend abandons the
// current sentence after sentenceIdleTimeout.
func (o *Orchestrator) ttsForwarder() {
	defer o.wg.Done()
	for {
		var idle <-chan time.Time
		if o.pendingSentences() > 0 {
			idle = time.After(sentenceIdleTimeout)
		}
		select {
		case chunk, ok := <-o.ttsStream.Chunks():
			if !ok {
				return
			}
			if len(chunk.Audio) > 0 {
				data, err := o.convertOutbound(chunk)
				if err != nil {
					o.log.Error("outbound audio conversion failed", "error", err)
				} else {
					o.setSpeaking(true)
					o.emit(transport.Binary(data))
				}
			}
			o.sentenceDone()
		case <-idle:
			o.log.Warn("TTS sentence timed out; abandoning")
			o.dropPending()
		case <-o.ctx.Done():
			return
		}
	}
}

// convertOutbound turns one TTS chunk into bot-format bytes.
func (o *Orchestrator) convertOutbound(chunk tts.Chunk) ([]byte, error) {
	pcm := chunk.Audio
	if o.outRes != nil {
		// Process reuses the resampler's buffer; the outbound queue holds
		// frames until the bridge drains them.
		pcm = bytes.Clone(o.outRes.Process(pcm))
	}
	return o.cfg.Codecs.Encode(pcm, o.cfg.BotCodec)
}

func (o *Orchestrator) emit(msg transport.Message) {
	select {
	case o.out <- msg:
	case <-o.ctx.Done():
	}
}

func (o *Orchestrator) emitControl(c control) {
	payload, _ := json.Marshal(c)
	o.emit(transport.Text(payload))
}

func (o *Orchestrator) pendingSentences() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.synthTimes)
}

// sentenceDone records the synthesis latency for the oldest pending sentence.
func (o *Orchestrator) sentenceDone() {
	o.mu.Lock()
	if len(o.synthTimes) > 0 {
		started := o.synthTimes[0]
		o.synthTimes = o.synthTimes[1:]
		o.mu.Unlock()
		o.cfg.Metrics.TTSDuration.Record(o.ctx, time.Since(started).Seconds())
		return
	}
	o.mu.Unlock()
}

func (o *Orchestrator) dropPending() {
	o.mu.Lock()
	o.synthTimes = nil
	o.mu.Unlock()
}

func (o *Orchestrator) setSpeaking(v bool) {
	o.mu.Lock()
	o.speaking = v
	o.mu.Unlock()
}

// ─── teardown ─────────────────────────────────────────────────────────────────

// escalate speaks the transfer message, invokes the escalation callback, and
// ends the call.
func (o *Orchestrator) escalate(r EscalationResult) {
	o.mu.Lock()
	if o.ending {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.log.Info("escalating call", "trigger", string(r.Trigger), "reason", r.Reason)
	o.cfg.Metrics.RecordEscalation(o.ctx, string(r.Trigger))

	o.cancelGeneration()
	o.speak(o.cfg.TransferMessage)
	if o.cfg.OnEscalate != nil {
		o.cfg.OnEscalate(r)
	}
	o.endCall("escalated", "")
}

// endCall drains pending synthesis, tells the bridge to stop, and leaves
// teardown to the bridge's Disconnect.
func (o *Orchestrator) endCall(reason, farewell string) {
	o.mu.Lock()
	if o.ending {
		o.mu.Unlock()
		return
	}
	o.ending = true
	o.mu.Unlock()

	if farewell != "" {
		o.speak(farewell)
	}
	if err := o.ttsStream.Flush(); err != nil {
		o.log.Debug("TTS flush failed", "error", err)
	}
	o.awaitDrain(flushIdleTimeout)
	o.emitControl(control{Type: "stop", Reason: reason})
}

// awaitDrain waits until all pending sentences have produced audio, bounded
// by timeout.
func (o *Orchestrator) awaitDrain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if o.pendingSentences() == 0 {
			return
		}
		select {
		case <-time.After(20 * time.Millisecond):
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) cancelGeneration() {
	o.mu.Lock()
	cancelGen := o.genCancel
	o.genCancel = nil
	o.mu.Unlock()
	if cancelGen != nil {
		cancelGen()
	}
}

// shutdown stops every task and closes both provider streams. Idempotent.
func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	if !o.connected {
		o.mu.Unlock()
		return
	}
	o.connected = false
	o.mu.Unlock()

	o.cancelGeneration()
	if o.callTimer != nil {
		o.callTimer.Stop()
	}
	if o.sttStream != nil {
		o.sttStream.Close()
	}
	if o.ttsStream != nil {
		o.ttsStream.Close()
	}
	o.cancel()
	o.wg.Wait()
}
