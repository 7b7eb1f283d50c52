package serializer

import (
	"encoding/json"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Freeswitch speaks the mod_ws media dialect: binary frames carry raw µ-law
// audio; inbound text frames are events keyed by "event" with the channel's
// variables flattened alongside; outbound text frames are commands keyed by
// "command".
type Freeswitch struct {
	uuid string
}

// NewFreeswitch returns a serializer for one mod_ws connection.
func NewFreeswitch() *Freeswitch { return &Freeswitch{} }

func (f *Freeswitch) Name() string { return "freeswitch" }

func (f *Freeswitch) NativeCodec() audio.Codec { return audio.Mulaw }

func (f *Freeswitch) NativeSampleRate() int { return 8000 }

type freeswitchCommand struct {
	Command     string `json:"command"`
	UUID        string `json:"uuid"`
	Cause       string `json:"cause,omitempty"`
	Name        string `json:"name,omitempty"`
	Destination string `json:"destination,omitempty"`
}

func (f *Freeswitch) Deserialize(msg transport.Message) ([]event.Event, error) {
	if msg.Kind == transport.KindBinary {
		return []event.Event{event.AudioFrame{
			Base:       base(f.uuid),
			Codec:      audio.Mulaw,
			SampleRate: 8000,
			Channels:   1,
			Data:       msg.Data,
		}}, nil
	}

	var m map[string]any
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return parseError("freeswitch", f.uuid, err), nil
	}
	evt, _ := m["event"].(string)

	switch evt {
	case "connect":
		if id, ok := m["uuid"].(string); ok {
			f.uuid = id
		}
		flat := map[string]string{}
		for k, v := range m {
			if s, ok := v.(string); ok {
				flat[k] = s
			}
		}
		return []event.Event{event.CallStarted{
			Base:       base(f.uuid),
			FromNumber: flat["caller_id_number"],
			ToNumber:   flat["destination_number"],
			Provider:   "freeswitch",
			Direction:  event.DirectionInbound,
			SIPHeaders: headerPrefixed(flat, "variable_sip_h_", "sip_"),
			Metadata:   map[string]any{"uuid": f.uuid},
		}}, nil

	case "dtmf":
		digit, _ := m["digit"].(string)
		var dur int64
		if d, ok := m["duration_ms"].(float64); ok {
			dur = int64(d)
		}
		return []event.Event{event.DTMFReceived{
			Base:       base(f.uuid),
			Digit:      digit,
			DurationMs: dur,
		}}, nil

	case "disconnect":
		cause, _ := m["cause"].(string)
		if cause == "" {
			cause = "NORMAL_CLEARING"
		}
		return []event.Event{event.CallEnded{
			Base:   base(f.uuid),
			Reason: cause,
		}}, nil

	default:
		return custom("freeswitch", evt, f.uuid, m), nil
	}
}

func (f *Freeswitch) Serialize(ev event.Event) (*transport.Message, error) {
	var cmd freeswitchCommand
	switch e := ev.(type) {
	case event.AudioFrame:
		m := transport.Binary(e.Data)
		return &m, nil

	case event.CallEnded:
		cmd = freeswitchCommand{Command: "hangup", UUID: f.uuid, Cause: e.Reason}

	case event.ClearAudio:
		cmd = freeswitchCommand{Command: "break", UUID: f.uuid}

	case event.Mark:
		cmd = freeswitchCommand{Command: "mark", UUID: f.uuid, Name: e.Name}

	case event.TransferRequested:
		cmd = freeswitchCommand{Command: "transfer", UUID: f.uuid, Destination: e.Target}

	default:
		return nil, nil
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	m := transport.Text(data)
	return &m, nil
}

// HandshakeResponse returns nil: mod_ws needs no application-level reply.
func (f *Freeswitch) HandshakeResponse(transport.Message) *transport.Message { return nil }
