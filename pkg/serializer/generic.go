package serializer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Generic speaks a minimal JSON-plus-binary dialect for custom integrations:
// binary frames carry raw audio in the configured codec, text frames are
// events keyed by "type". Codec and sample rate are configurable; the
// defaults are PCM16 at 16 kHz.
type Generic struct {
	codec      audio.Codec
	sampleRate int
	callID     string
}

// NewGeneric returns a serializer honouring the codec and sample rate in cfg.
func NewGeneric(cfg Config) (*Generic, error) {
	g := &Generic{codec: audio.PCM16, sampleRate: 16000}
	if cfg.Codec != "" {
		c, err := audio.ParseCodec(string(cfg.Codec))
		if err != nil {
			return nil, fmt.Errorf("serializer: generic: %w", err)
		}
		g.codec = c
	}
	if cfg.SampleRate != 0 {
		if cfg.SampleRate < 0 {
			return nil, fmt.Errorf("serializer: generic: invalid sample rate %d", cfg.SampleRate)
		}
		g.sampleRate = cfg.SampleRate
	}
	return g, nil
}

func (g *Generic) Name() string { return "generic" }

func (g *Generic) NativeCodec() audio.Codec { return g.codec }

func (g *Generic) NativeSampleRate() int { return g.sampleRate }

type genericMessage struct {
	Type       string `json:"type"`
	CallID     string `json:"call_id,omitempty"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Payload    string `json:"payload,omitempty"`
	Digit      string `json:"digit,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (g *Generic) Deserialize(msg transport.Message) ([]event.Event, error) {
	if msg.Kind == transport.KindBinary {
		return []event.Event{event.AudioFrame{
			Base:       base(g.callID),
			Codec:      g.codec,
			SampleRate: g.sampleRate,
			Channels:   1,
			Data:       msg.Data,
		}}, nil
	}

	var m genericMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return parseError("generic", g.callID, err), nil
	}

	switch m.Type {
	case "start":
		g.callID = m.CallID
		return []event.Event{event.CallStarted{
			Base:       base(g.callID),
			FromNumber: m.From,
			ToNumber:   m.To,
			Provider:   "generic",
			Direction:  event.DirectionInbound,
			SIPHeaders: map[string]string{},
			Metadata:   map[string]any{},
		}}, nil

	case "audio":
		data, err := base64.StdEncoding.DecodeString(m.Payload)
		if err != nil {
			return parseError("generic", g.callID, err), nil
		}
		return []event.Event{event.AudioFrame{
			Base:       base(g.callID),
			Codec:      g.codec,
			SampleRate: g.sampleRate,
			Channels:   1,
			Data:       data,
		}}, nil

	case "dtmf":
		return []event.Event{event.DTMFReceived{
			Base:       base(g.callID),
			Digit:      m.Digit,
			DurationMs: m.DurationMs,
		}}, nil

	case "stop":
		reason := m.Reason
		if reason == "" {
			reason = "normal"
		}
		return []event.Event{event.CallEnded{
			Base:   base(g.callID),
			Reason: reason,
		}}, nil

	default:
		var payload map[string]any
		_ = json.Unmarshal(msg.Data, &payload)
		return custom("generic", m.Type, g.callID, payload), nil
	}
}

func (g *Generic) Serialize(ev event.Event) (*transport.Message, error) {
	var out genericMessage
	switch e := ev.(type) {
	case event.AudioFrame:
		m := transport.Binary(e.Data)
		return &m, nil

	case event.CallStarted:
		out = genericMessage{Type: "start", CallID: e.CallID, From: e.FromNumber, To: e.ToNumber}

	case event.CallEnded:
		out = genericMessage{Type: "stop", CallID: e.CallID, Reason: e.Reason}

	case event.DTMFReceived:
		out = genericMessage{Type: "dtmf", CallID: e.CallID, Digit: e.Digit, DurationMs: e.DurationMs}

	default:
		return nil, nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	m := transport.Text(data)
	return &m, nil
}

// HandshakeResponse returns nil: the generic dialect has no handshake.
func (g *Generic) HandshakeResponse(transport.Message) *transport.Message { return nil }
