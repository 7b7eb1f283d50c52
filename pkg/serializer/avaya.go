package serializer

import (
	"encoding/json"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Avaya speaks the Avaya OCSAPI media dialect: binary frames carry raw µ-law
// audio, text frames are dot-namespaced control messages keyed by "type".
// session.start must be answered with session.accepted.
type Avaya struct {
	sessionID string
	callID    string
}

// NewAvaya returns a serializer for one OCSAPI connection.
func NewAvaya() *Avaya { return &Avaya{} }

func (a *Avaya) Name() string { return "avaya" }

func (a *Avaya) NativeCodec() audio.Codec { return audio.Mulaw }

func (a *Avaya) NativeSampleRate() int { return 8000 }

type avayaMessage struct {
	Type         string            `json:"type"`
	SessionID    string            `json:"sessionId,omitempty"`
	CallID       string            `json:"callId,omitempty"`
	Digit        string            `json:"digit,omitempty"`
	Name         string            `json:"name,omitempty"`
	Target       string            `json:"target,omitempty"`
	TransferType string            `json:"transferType,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
}

func (a *Avaya) Deserialize(msg transport.Message) ([]event.Event, error) {
	if msg.Kind == transport.KindBinary {
		return []event.Event{event.AudioFrame{
			Base:       base(a.callID),
			Codec:      audio.Mulaw,
			SampleRate: 8000,
			Channels:   1,
			Data:       msg.Data,
		}}, nil
	}

	var m avayaMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return parseError("avaya", a.callID, err), nil
	}

	switch m.Type {
	case "session.start":
		a.sessionID = m.SessionID
		a.callID = m.CallID
		return []event.Event{event.CallStarted{
			Base:       base(a.callID),
			FromNumber: m.Parameters["from"],
			ToNumber:   m.Parameters["to"],
			Provider:   "avaya",
			Direction:  event.DirectionInbound,
			SIPHeaders: headerPrefixed(m.Parameters, "sip_", "x-", "X-"),
			Metadata:   map[string]any{"session_id": a.sessionID},
		}}, nil

	case "session.end":
		reason := m.Reason
		if reason == "" {
			reason = "normal"
		}
		return []event.Event{event.CallEnded{
			Base:   base(a.callID),
			Reason: reason,
		}}, nil

	case "dtmf":
		return []event.Event{event.DTMFReceived{
			Base:  base(a.callID),
			Digit: m.Digit,
		}}, nil

	case "hold":
		return []event.Event{event.HoldStarted{Base: base(a.callID)}}, nil

	case "unhold":
		return []event.Event{event.HoldEnded{Base: base(a.callID)}}, nil

	case "transfer.request":
		tt := event.TransferType(m.TransferType)
		if tt == "" {
			tt = event.TransferBlind
		}
		return []event.Event{event.TransferRequested{
			Base:         base(a.callID),
			Target:       m.Target,
			TransferType: tt,
		}}, nil

	default:
		var payload map[string]any
		_ = json.Unmarshal(msg.Data, &payload)
		return custom("avaya", m.Type, a.callID, payload), nil
	}
}

func (a *Avaya) Serialize(ev event.Event) (*transport.Message, error) {
	var out avayaMessage
	switch e := ev.(type) {
	case event.AudioFrame:
		m := transport.Binary(e.Data)
		return &m, nil

	case event.ClearAudio:
		out = avayaMessage{Type: "audio.clear", SessionID: a.sessionID}

	case event.Mark:
		out = avayaMessage{Type: "audio.mark", SessionID: a.sessionID, Name: e.Name}

	case event.TransferRequested:
		out = avayaMessage{
			Type:         "transfer.initiate",
			SessionID:    a.sessionID,
			Target:       e.Target,
			TransferType: string(e.TransferType),
		}

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

// HandshakeResponse answers session.start with session.accepted carrying the
// media descriptor.
func (a *Avaya) HandshakeResponse(msg transport.Message) *transport.Message {
	if msg.Kind != transport.KindText {
		return nil
	}
	var m avayaMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil || m.Type != "session.start" {
		return nil
	}
	data, err := json.Marshal(map[string]any{
		"type":      "session.accepted",
		"sessionId": m.SessionID,
		"parameters": map[string]any{
			"media": map[string]any{
				"format":   "PCMU",
				"rate":     8000,
				"channels": 1,
			},
		},
	})
	if err != nil {
		return nil
	}
	out := transport.Text(data)
	return &out
}
