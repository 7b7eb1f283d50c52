// Package session holds the per-call state bundle and the store that tracks
// every live call.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/serializer"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// outboundQueueCap bounds the per-call outbound audio queue. At 20 ms per
// frame this is ten seconds of buffered bot speech; producers beyond that
// drop the oldest frame first.
const outboundQueueCap = 500

// CallSession is the state bundle for one active call. It exclusively owns
// its two transports, its serializer and its outbound queue; only the
// SessionStore is shared.
type CallSession struct {
	// ID is the bridge-assigned session identifier, unique per process.
	ID string

	Provider   transport.Transport
	Bot        transport.Transport
	Serializer serializer.Serializer
	Codecs     *audio.Registry

	// In converts provider-rate audio to bot rate, Out the reverse. Both are
	// nil when the rates match.
	In  *audio.Resampler
	Out *audio.Resampler

	// BotCodec and BotRate describe the format the bot peer speaks.
	BotCodec audio.Codec
	BotRate  int

	// OutCodec is the codec for provider-bound audio. It defaults to the
	// serializer's native codec and can be overridden per deployment, e.g. to
	// force A-law towards a provider whose trunk negotiated it.
	OutCodec audio.Codec

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	callID        string
	fromNumber    string
	toNumber      string
	sipHeaders    map[string]string
	direction     string
	active        bool
	onHold        bool
	botSpeaking   bool
	bargeInOn     bool
	bytesIn       int64
	bytesOut      int64
	startedAt     time.Time
	endedAt       time.Time
	pendingMarks  []string
	outboundQueue [][]byte
	endOnce       sync.Once
}

// Option configures a CallSession at construction.
type Option func(*CallSession)

// WithResamplers installs the inbound and outbound resamplers. Pass nil for
// either direction when the rates already match.
func WithResamplers(in, out *audio.Resampler) Option {
	return func(s *CallSession) {
		s.In = in
		s.Out = out
	}
}

// WithBotFormat sets the codec and sample rate of the bot peer.
func WithBotFormat(codec audio.Codec, rate int) Option {
	return func(s *CallSession) {
		s.BotCodec = codec
		s.BotRate = rate
	}
}

// WithBargeIn enables or disables barge-in detection for this call.
func WithBargeIn(enabled bool) Option {
	return func(s *CallSession) { s.bargeInOn = enabled }
}

// WithOutputCodec overrides the codec used for provider-bound audio. An empty
// codec keeps the serializer's native codec.
func WithOutputCodec(codec audio.Codec) Option {
	return func(s *CallSession) {
		if codec != "" {
			s.OutCodec = codec
		}
	}
}

// New creates a session with a fresh UUID. The returned session is active;
// its context is cancelled by End.
func New(ctx context.Context, provider, bot transport.Transport, ser serializer.Serializer, codecs *audio.Registry, opts ...Option) *CallSession {
	sctx, cancel := context.WithCancel(ctx)
	s := &CallSession{
		ID:         uuid.NewString(),
		Provider:   provider,
		Bot:        bot,
		Serializer: ser,
		Codecs:     codecs,
		BotCodec:   audio.PCM16,
		BotRate:    16000,
		OutCodec:   ser.NativeCodec(),
		ctx:        sctx,
		cancel:     cancel,
		sipHeaders: map[string]string{},
		active:     true,
		bargeInOn:  true,
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context is cancelled when the session ends.
func (s *CallSession) Context() context.Context { return s.ctx }

// Start records the call identity delivered by the provider's first control
// message.
func (s *CallSession) Start(callID, from, to, direction string, sipHeaders map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callID = callID
	s.fromNumber = from
	s.toNumber = to
	s.direction = direction
	if sipHeaders != nil {
		s.sipHeaders = sipHeaders
	}
}

// End deactivates the session, stamps ended_at and cancels every per-session
// task. It is safe to call any number of times.
func (s *CallSession) End() {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.active = false
		s.endedAt = time.Now()
		s.mu.Unlock()
		s.cancel()
	})
}

// CallID returns the provider-assigned call identifier, if known yet.
func (s *CallSession) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

// FromNumber returns the caller number.
func (s *CallSession) FromNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fromNumber
}

// ToNumber returns the callee number.
func (s *CallSession) ToNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toNumber
}

// SIPHeaders returns the SIP headers captured at call start.
func (s *CallSession) SIPHeaders() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sipHeaders
}

// IsActive reports whether the session has not ended yet.
func (s *CallSession) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetOnHold records the provider's hold state.
func (s *CallSession) SetOnHold(held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHold = held
}

// IsOnHold reports whether the provider has the call on hold.
func (s *CallSession) IsOnHold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onHold
}

// SetBotSpeaking flags whether bot audio is currently being played out.
func (s *CallSession) SetBotSpeaking(speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botSpeaking = speaking
}

// IsBotSpeaking reports whether bot audio is currently being played out.
func (s *CallSession) IsBotSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.botSpeaking
}

// BargeInEnabled reports whether barge-in detection applies to this call.
func (s *CallSession) BargeInEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bargeInOn
}

// AddBytesIn bumps the inbound audio byte counter.
func (s *CallSession) AddBytesIn(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesIn += int64(n)
}

// AddBytesOut bumps the outbound audio byte counter.
func (s *CallSession) AddBytesOut(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesOut += int64(n)
}

// BytesIn returns the total provider→bot audio bytes seen.
func (s *CallSession) BytesIn() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesIn
}

// BytesOut returns the total bot→provider audio bytes seen.
func (s *CallSession) BytesOut() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesOut
}

// StartedAt returns the session creation time.
func (s *CallSession) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// EndedAt returns the end time, zero while the session is active.
func (s *CallSession) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// DurationMs returns the call duration in milliseconds. For an active session
// it measures up to now.
func (s *CallSession) DurationMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.endedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.startedAt).Milliseconds()
}

// AddMark records a mark name awaiting provider confirmation.
func (s *CallSession) AddMark(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingMarks = append(s.pendingMarks, name)
}

// ResolveMark removes name from the pending list and reports whether it was
// pending.
func (s *CallSession) ResolveMark(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.pendingMarks {
		if m == name {
			s.pendingMarks = append(s.pendingMarks[:i], s.pendingMarks[i+1:]...)
			return true
		}
	}
	return false
}

// PendingMarks returns a copy of the marks not yet confirmed by the provider.
func (s *CallSession) PendingMarks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.pendingMarks))
	copy(out, s.pendingMarks)
	return out
}

// EnqueueOutbound appends an outbound audio payload to the bounded queue,
// dropping the oldest entry when full. It reports whether a frame was dropped.
func (s *CallSession) EnqueueOutbound(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := false
	if len(s.outboundQueue) >= outboundQueueCap {
		s.outboundQueue = s.outboundQueue[1:]
		dropped = true
	}
	s.outboundQueue = append(s.outboundQueue, data)
	return dropped
}

// DequeueOutbound pops the oldest queued payload, or (nil, false) when empty.
func (s *CallSession) DequeueOutbound() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outboundQueue) == 0 {
		return nil, false
	}
	data := s.outboundQueue[0]
	s.outboundQueue = s.outboundQueue[1:]
	return data, true
}

// ClearOutbound empties the outbound queue and the pending mark list,
// returning the number of frames discarded. Called on barge-in.
func (s *CallSession) ClearOutbound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.outboundQueue)
	s.outboundQueue = nil
	s.pendingMarks = nil
	return n
}

// ConvertInbound takes provider-native audio and returns it in the bot's
// codec at the bot's sample rate: codec conversion first, then resampling.
func (s *CallSession) ConvertInbound(data []byte) ([]byte, error) {
	from := s.Serializer.NativeCodec()
	if s.In == nil && from == s.BotCodec {
		return data, nil
	}

	pcm, err := s.Codecs.Decode(data, from)
	if err != nil {
		return nil, err
	}
	if s.In != nil {
		pcm = s.In.Process(pcm)
	}
	return s.Codecs.Encode(pcm, s.BotCodec)
}

// ConvertOutbound takes bot audio and returns it in the session's output
// codec at the provider's sample rate: resampling first, then codec
// conversion. The output codec is the serializer's native codec unless
// overridden via [WithOutputCodec].
func (s *CallSession) ConvertOutbound(data []byte) ([]byte, error) {
	to := s.OutCodec
	if to == "" {
		to = s.Serializer.NativeCodec()
	}
	if s.Out == nil && to == s.BotCodec {
		return data, nil
	}

	pcm, err := s.Codecs.Decode(data, s.BotCodec)
	if err != nil {
		return nil, err
	}
	if s.Out != nil {
		pcm = s.Out.Process(pcm)
	}
	return s.Codecs.Encode(pcm, to)
}
