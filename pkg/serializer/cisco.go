package serializer

import (
	"encoding/json"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Cisco speaks the WebEx Contact Center media dialect: binary frames carry
// raw µ-law audio, text frames are events keyed by "event" with an
// interactionId. call.new must be answered with call.accepted.
type Cisco struct {
	interactionID string
}

// NewCisco returns a serializer for one WebEx CC media connection.
func NewCisco() *Cisco { return &Cisco{} }

func (c *Cisco) Name() string { return "cisco" }

func (c *Cisco) NativeCodec() audio.Codec { return audio.Mulaw }

func (c *Cisco) NativeSampleRate() int { return 8000 }

type ciscoMessage struct {
	Event         string         `json:"event"`
	InteractionID string         `json:"interactionId,omitempty"`
	Digit         string         `json:"digit,omitempty"`
	Name          string         `json:"name,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
}

func (c *Cisco) Deserialize(msg transport.Message) ([]event.Event, error) {
	if msg.Kind == transport.KindBinary {
		return []event.Event{event.AudioFrame{
			Base:       base(c.interactionID),
			Codec:      audio.Mulaw,
			SampleRate: 8000,
			Channels:   1,
			Data:       msg.Data,
		}}, nil
	}

	var m ciscoMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return parseError("cisco", c.interactionID, err), nil
	}

	switch m.Event {
	case "call.new":
		c.interactionID = m.InteractionID
		from, _ := m.Parameters["ani"].(string)
		to, _ := m.Parameters["dnis"].(string)
		return []event.Event{event.CallStarted{
			Base:       base(c.interactionID),
			FromNumber: from,
			ToNumber:   to,
			Provider:   "cisco",
			Direction:  event.DirectionInbound,
			SIPHeaders: map[string]string{},
			Metadata:   map[string]any{"interaction_id": c.interactionID},
		}}, nil

	case "call.ended":
		reason := m.Reason
		if reason == "" {
			reason = "normal"
		}
		return []event.Event{event.CallEnded{
			Base:   base(c.interactionID),
			Reason: reason,
		}}, nil

	case "dtmf":
		return []event.Event{event.DTMFReceived{
			Base:  base(c.interactionID),
			Digit: m.Digit,
		}}, nil

	case "call.held":
		return []event.Event{event.HoldStarted{Base: base(c.interactionID)}}, nil

	case "call.retrieved":
		return []event.Event{event.HoldEnded{Base: base(c.interactionID)}}, nil

	default:
		var payload map[string]any
		_ = json.Unmarshal(msg.Data, &payload)
		return custom("cisco", m.Event, c.interactionID, payload), nil
	}
}

func (c *Cisco) Serialize(ev event.Event) (*transport.Message, error) {
	var out ciscoMessage
	switch e := ev.(type) {
	case event.AudioFrame:
		m := transport.Binary(e.Data)
		return &m, nil

	case event.CallEnded:
		out = ciscoMessage{Event: "call.end", InteractionID: c.interactionID, Reason: e.Reason}

	case event.ClearAudio:
		out = ciscoMessage{Event: "audio.clear", InteractionID: c.interactionID}

	case event.Mark:
		out = ciscoMessage{Event: "audio.mark", InteractionID: c.interactionID, Name: e.Name}

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

// HandshakeResponse answers call.new with call.accepted.
func (c *Cisco) HandshakeResponse(msg transport.Message) *transport.Message {
	if msg.Kind != transport.KindText {
		return nil
	}
	var m ciscoMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil || m.Event != "call.new" {
		return nil
	}
	data, err := json.Marshal(ciscoMessage{
		Event:         "call.accepted",
		InteractionID: m.InteractionID,
		Parameters: map[string]any{
			"mediaFormat": "PCMU",
			"sampleRate":  8000,
		},
	})
	if err != nil {
		return nil
	}
	out := transport.Text(data)
	return &out
}
