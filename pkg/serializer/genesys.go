package serializer

import (
	"encoding/json"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Genesys speaks the Genesys Cloud AudioHook protocol: binary frames carry
// raw µ-law audio, JSON text frames carry control messages. The server must
// answer open, ping and close messages with opened, pong and closed.
type Genesys struct {
	sessionID      string
	conversationID string
}

// NewGenesys returns a serializer for one AudioHook connection.
func NewGenesys() *Genesys { return &Genesys{} }

func (g *Genesys) Name() string { return "genesys" }

func (g *Genesys) NativeCodec() audio.Codec { return audio.Mulaw }

func (g *Genesys) NativeSampleRate() int { return 8000 }

type genesysMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (g *Genesys) Deserialize(msg transport.Message) ([]event.Event, error) {
	if msg.Kind == transport.KindBinary {
		return []event.Event{event.AudioFrame{
			Base:       base(g.conversationID),
			Codec:      audio.Mulaw,
			SampleRate: 8000,
			Channels:   1,
			Data:       msg.Data,
		}}, nil
	}

	var m genesysMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return parseError("genesys", g.conversationID, err), nil
	}

	switch m.Type {
	case "open":
		g.sessionID = m.ID
		if cid, ok := m.Parameters["conversationId"].(string); ok {
			g.conversationID = cid
		}
		meta := map[string]any{"session_id": g.sessionID}
		if org, ok := m.Parameters["organizationId"].(string); ok {
			meta["organization_id"] = org
		}
		from, _ := m.Parameters["ani"].(string)
		to, _ := m.Parameters["dnis"].(string)

		// SIP headers travel inside the participant attribute map.
		sip := map[string]string{}
		if part, ok := m.Parameters["participant"].(map[string]any); ok {
			flat := map[string]string{}
			for k, v := range part {
				if s, ok := v.(string); ok {
					flat[k] = s
				}
			}
			sip = headerPrefixed(flat, "sip_", "x-", "X-")
		}

		return []event.Event{event.CallStarted{
			Base:       base(g.conversationID),
			FromNumber: from,
			ToNumber:   to,
			Provider:   "genesys",
			Direction:  event.DirectionInbound,
			SIPHeaders: sip,
			Metadata:   meta,
		}}, nil

	case "ping":
		// Answered by HandshakeResponse; no event.
		return nil, nil

	case "close":
		reason, _ := m.Parameters["reason"].(string)
		if reason == "" {
			reason = "normal"
		}
		return []event.Event{event.CallEnded{
			Base:   base(g.conversationID),
			Reason: reason,
		}}, nil

	case "dtmf":
		digit, _ := m.Parameters["digit"].(string)
		return []event.Event{event.DTMFReceived{
			Base:  base(g.conversationID),
			Digit: digit,
		}}, nil

	case "pause":
		return []event.Event{event.HoldStarted{Base: base(g.conversationID)}}, nil

	case "resume":
		return []event.Event{event.HoldEnded{Base: base(g.conversationID)}}, nil

	default:
		var payload map[string]any
		_ = json.Unmarshal(msg.Data, &payload)
		return custom("genesys", m.Type, g.conversationID, payload), nil
	}
}

func (g *Genesys) Serialize(ev event.Event) (*transport.Message, error) {
	switch e := ev.(type) {
	case event.AudioFrame:
		m := transport.Binary(e.Data)
		return &m, nil

	case event.ClearAudio:
		data, err := json.Marshal(genesysMessage{Type: "discardAudio", ID: g.sessionID})
		if err != nil {
			return nil, err
		}
		m := transport.Text(data)
		return &m, nil

	case event.Mark:
		data, err := json.Marshal(genesysMessage{
			Type:       "position",
			ID:         g.sessionID,
			Parameters: map[string]any{"name": e.Name},
		})
		if err != nil {
			return nil, err
		}
		m := transport.Text(data)
		return &m, nil
	}
	return nil, nil
}

// HandshakeResponse answers AudioHook control messages that require a reply.
func (g *Genesys) HandshakeResponse(msg transport.Message) *transport.Message {
	if msg.Kind != transport.KindText {
		return nil
	}
	var m genesysMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return nil
	}

	var reply any
	switch m.Type {
	case "open":
		reply = genesysMessage{
			Type: "opened",
			ID:   m.ID,
			Parameters: map[string]any{
				"startPaused": false,
				"media": []map[string]any{{
					"type":     "audio",
					"format":   "PCMU",
					"channels": []string{"external"},
					"rate":     8000,
				}},
			},
		}
	case "ping":
		reply = genesysMessage{Type: "pong", ID: m.ID}
	case "close":
		reply = genesysMessage{Type: "closed", ID: m.ID}
	default:
		return nil
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return nil
	}
	out := transport.Text(data)
	return &out
}
