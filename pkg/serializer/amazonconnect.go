package serializer

import (
	"encoding/json"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// AmazonConnect speaks the Amazon Connect media streaming dialect: binary
// frames carry raw 16-bit linear PCM at 8 kHz, text frames carry events keyed
// by "event". STARTED must be answered with ACCEPTED.
type AmazonConnect struct {
	contactID string
}

// NewAmazonConnect returns a serializer for one Connect media connection.
func NewAmazonConnect() *AmazonConnect { return &AmazonConnect{} }

func (c *AmazonConnect) Name() string { return "amazon-connect" }

func (c *AmazonConnect) NativeCodec() audio.Codec { return audio.PCM16 }

func (c *AmazonConnect) NativeSampleRate() int { return 8000 }

type connectMessage struct {
	Event      string         `json:"event"`
	ContactID  string         `json:"contactId,omitempty"`
	Digit      string         `json:"digit,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (c *AmazonConnect) Deserialize(msg transport.Message) ([]event.Event, error) {
	if msg.Kind == transport.KindBinary {
		return []event.Event{event.AudioFrame{
			Base:       base(c.contactID),
			Codec:      audio.PCM16,
			SampleRate: 8000,
			Channels:   1,
			Data:       msg.Data,
		}}, nil
	}

	var m connectMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return parseError("amazon-connect", c.contactID, err), nil
	}

	switch m.Event {
	case "STARTED":
		c.contactID = m.ContactID
		from, _ := m.Parameters["customerEndpoint"].(string)
		to, _ := m.Parameters["systemEndpoint"].(string)
		return []event.Event{event.CallStarted{
			Base:       base(c.contactID),
			FromNumber: from,
			ToNumber:   to,
			Provider:   "amazon-connect",
			Direction:  event.DirectionInbound,
			SIPHeaders: map[string]string{},
			Metadata:   map[string]any{"contact_id": c.contactID},
		}}, nil

	case "ENDED":
		reason := m.Reason
		if reason == "" {
			reason = "normal"
		}
		return []event.Event{event.CallEnded{
			Base:   base(c.contactID),
			Reason: reason,
		}}, nil

	case "DTMF":
		return []event.Event{event.DTMFReceived{
			Base:  base(c.contactID),
			Digit: m.Digit,
		}}, nil

	case "HOLD":
		return []event.Event{event.HoldStarted{Base: base(c.contactID)}}, nil

	case "RESUME":
		return []event.Event{event.HoldEnded{Base: base(c.contactID)}}, nil

	default:
		var payload map[string]any
		_ = json.Unmarshal(msg.Data, &payload)
		return custom("amazon-connect", m.Event, c.contactID, payload), nil
	}
}

func (c *AmazonConnect) Serialize(ev event.Event) (*transport.Message, error) {
	switch e := ev.(type) {
	case event.AudioFrame:
		m := transport.Binary(e.Data)
		return &m, nil

	case event.CallEnded:
		data, err := json.Marshal(connectMessage{
			Event:     "END",
			ContactID: c.contactID,
			Reason:    e.Reason,
		})
		if err != nil {
			return nil, err
		}
		m := transport.Text(data)
		return &m, nil
	}
	return nil, nil
}

// HandshakeResponse answers STARTED with the ACCEPTED media descriptor.
func (c *AmazonConnect) HandshakeResponse(msg transport.Message) *transport.Message {
	if msg.Kind != transport.KindText {
		return nil
	}
	var m connectMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil || m.Event != "STARTED" {
		return nil
	}
	data, err := json.Marshal(connectMessage{
		Event:     "ACCEPTED",
		ContactID: m.ContactID,
		Parameters: map[string]any{
			"mediaFormat": "lpcm",
			"sampleRate":  8000,
		},
	})
	if err != nil {
		return nil
	}
	out := transport.Text(data)
	return &out
}
