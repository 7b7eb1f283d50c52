package serializer

import (
	"encoding/base64"
	"encoding/json"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Twilio speaks the Twilio Media Streams WebSocket protocol: JSON text frames
// in both directions with base64 µ-law payloads at 8 kHz.
type Twilio struct {
	streamSID string
	callSID   string
}

// NewTwilio returns a serializer for one Twilio Media Streams connection.
func NewTwilio() *Twilio { return &Twilio{} }

func (t *Twilio) Name() string { return "twilio" }

func (t *Twilio) NativeCodec() audio.Codec { return audio.Mulaw }

func (t *Twilio) NativeSampleRate() int { return 8000 }

// twilioMessage covers every Media Streams event the bridge handles.
type twilioMessage struct {
	Event     string         `json:"event"`
	StreamSid string         `json:"streamSid,omitempty"`
	Start     *twilioStart   `json:"start,omitempty"`
	Media     *twilioMedia   `json:"media,omitempty"`
	DTMF      *twilioDTMF    `json:"dtmf,omitempty"`
	Mark      *twilioMark    `json:"mark,omitempty"`
	Stop      map[string]any `json:"stop,omitempty"`
}

type twilioStart struct {
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	AccountSid       string            `json:"accountSid"`
	Tracks           []string          `json:"tracks,omitempty"`
	MediaFormat      map[string]any    `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters"`
}

type twilioMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type twilioDTMF struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

type twilioMark struct {
	Name string `json:"name"`
}

func (t *Twilio) Deserialize(msg transport.Message) ([]event.Event, error) {
	var m twilioMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return parseError("twilio", t.callSID, err), nil
	}

	switch m.Event {
	case "connected":
		return nil, nil

	case "start":
		if m.Start == nil {
			return parseError("twilio", t.callSID, errMissingField("start")), nil
		}
		t.streamSID = m.Start.StreamSid
		t.callSID = m.Start.CallSid
		meta := map[string]any{
			"account_sid":  m.Start.AccountSid,
			"stream_sid":   m.Start.StreamSid,
			"media_format": m.Start.MediaFormat,
		}
		for k, v := range m.Start.CustomParameters {
			meta[k] = v
		}
		return []event.Event{event.CallStarted{
			Base:       base(t.callSID),
			FromNumber: m.Start.CustomParameters["from"],
			ToNumber:   m.Start.CustomParameters["to"],
			Provider:   "twilio",
			Direction:  event.DirectionInbound,
			SIPHeaders: map[string]string{},
			Metadata:   meta,
		}}, nil

	case "media":
		if m.Media == nil {
			return parseError("twilio", t.callSID, errMissingField("media")), nil
		}
		data, err := base64.StdEncoding.DecodeString(m.Media.Payload)
		if err != nil {
			return parseError("twilio", t.callSID, err), nil
		}
		return []event.Event{event.AudioFrame{
			Base:       base(t.callSID),
			Codec:      audio.Mulaw,
			SampleRate: 8000,
			Channels:   1,
			Data:       data,
		}}, nil

	case "dtmf":
		if m.DTMF == nil {
			return parseError("twilio", t.callSID, errMissingField("dtmf")), nil
		}
		return []event.Event{event.DTMFReceived{
			Base:  base(t.callSID),
			Digit: m.DTMF.Digit,
		}}, nil

	case "stop":
		return []event.Event{event.CallEnded{
			Base:   base(t.callSID),
			Reason: "normal",
		}}, nil

	default:
		var payload map[string]any
		_ = json.Unmarshal(msg.Data, &payload)
		return custom("twilio", m.Event, t.callSID, payload), nil
	}
}

func (t *Twilio) Serialize(ev event.Event) (*transport.Message, error) {
	switch e := ev.(type) {
	case event.AudioFrame:
		data, err := json.Marshal(twilioMessage{
			Event:     "media",
			StreamSid: t.streamSID,
			Media:     &twilioMedia{Payload: base64.StdEncoding.EncodeToString(e.Data)},
		})
		if err != nil {
			return nil, err
		}
		m := transport.Text(data)
		return &m, nil

	case event.ClearAudio:
		data, err := json.Marshal(twilioMessage{Event: "clear", StreamSid: t.streamSID})
		if err != nil {
			return nil, err
		}
		m := transport.Text(data)
		return &m, nil
	}
	return nil, nil
}

// HandshakeResponse returns nil: Media Streams has no application-level
// handshake beyond the HTTP upgrade.
func (t *Twilio) HandshakeResponse(transport.Message) *transport.Message { return nil }

// StreamSID returns the stream identifier captured from the start message.
func (t *Twilio) StreamSID() string { return t.streamSID }
