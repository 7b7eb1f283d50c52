package serializer

import (
	"encoding/json"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Asterisk speaks the Asterisk ARI externalMedia websocket dialect: binary
// frames carry raw µ-law audio, text frames carry Stasis events keyed by
// "type" with a flat channel_id.
type Asterisk struct {
	channelID string
}

// NewAsterisk returns a serializer for one ARI media connection.
func NewAsterisk() *Asterisk { return &Asterisk{} }

func (a *Asterisk) Name() string { return "asterisk" }

func (a *Asterisk) NativeCodec() audio.Codec { return audio.Mulaw }

func (a *Asterisk) NativeSampleRate() int { return 8000 }

type asteriskMessage struct {
	Type        string            `json:"type"`
	ChannelID   string            `json:"channel_id,omitempty"`
	Digit       string            `json:"digit,omitempty"`
	DurationMs  int64             `json:"duration_ms,omitempty"`
	Caller      string            `json:"caller,omitempty"`
	Callee      string            `json:"callee,omitempty"`
	ChannelVars map[string]string `json:"channelvars,omitempty"`
	Name        string            `json:"name,omitempty"`
	Operation   string            `json:"operation,omitempty"`
	Cause       string            `json:"cause,omitempty"`
}

func (a *Asterisk) Deserialize(msg transport.Message) ([]event.Event, error) {
	if msg.Kind == transport.KindBinary {
		return []event.Event{event.AudioFrame{
			Base:       base(a.channelID),
			Codec:      audio.Mulaw,
			SampleRate: 8000,
			Channels:   1,
			Data:       msg.Data,
		}}, nil
	}

	var m asteriskMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return parseError("asterisk", a.channelID, err), nil
	}

	switch m.Type {
	case "StasisStart":
		a.channelID = m.ChannelID
		return []event.Event{event.CallStarted{
			Base:       base(a.channelID),
			FromNumber: m.Caller,
			ToNumber:   m.Callee,
			Provider:   "asterisk",
			Direction:  event.DirectionInbound,
			SIPHeaders: headerPrefixed(m.ChannelVars, "PJSIP_HEADER", "SIP_HEADER"),
			Metadata:   map[string]any{"channel_id": m.ChannelID},
		}}, nil

	case "ChannelDtmfReceived":
		return []event.Event{event.DTMFReceived{
			Base:       base(a.channelID),
			Digit:      m.Digit,
			DurationMs: m.DurationMs,
		}}, nil

	case "StasisEnd":
		return []event.Event{event.CallEnded{
			Base:   base(a.channelID),
			Reason: "stasis_end",
		}}, nil

	case "ChannelHold":
		return []event.Event{event.HoldStarted{Base: base(a.channelID)}}, nil

	case "ChannelUnhold":
		return []event.Event{event.HoldEnded{Base: base(a.channelID)}}, nil

	default:
		var payload map[string]any
		_ = json.Unmarshal(msg.Data, &payload)
		return custom("asterisk", m.Type, a.channelID, payload), nil
	}
}

func (a *Asterisk) Serialize(ev event.Event) (*transport.Message, error) {
	switch e := ev.(type) {
	case event.AudioFrame:
		m := transport.Binary(e.Data)
		return &m, nil

	case event.ClearAudio:
		data, err := json.Marshal(asteriskMessage{
			Type:      "PlaybackControl",
			ChannelID: a.channelID,
			Operation: "stop",
		})
		if err != nil {
			return nil, err
		}
		m := transport.Text(data)
		return &m, nil

	case event.Mark:
		data, err := json.Marshal(asteriskMessage{
			Type:      "Mark",
			ChannelID: a.channelID,
			Name:      e.Name,
		})
		if err != nil {
			return nil, err
		}
		m := transport.Text(data)
		return &m, nil
	}
	return nil, nil
}

// HandshakeResponse returns nil: ARI media connections need no reply.
func (a *Asterisk) HandshakeResponse(transport.Message) *transport.Message { return nil }
