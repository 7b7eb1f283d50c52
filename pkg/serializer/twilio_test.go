package serializer_test

import (
	"encoding/base64"
	"encoding/json"
	"slices"
	"testing"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/serializer"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

const twilioStart = `{
	"event": "start",
	"streamSid": "MZ0123",
	"start": {
		"streamSid": "MZ0123",
		"callSid": "CA4567",
		"accountSid": "AC89",
		"mediaFormat": {"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
		"customParameters": {"from": "+15551234", "to": "+15559876"}
	}
}`

func TestTwilioStart(t *testing.T) {
	t.Parallel()
	s := serializer.NewTwilio()

	evs, err := s.Deserialize(transport.Text([]byte(twilioStart)))
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	cs, ok := evs[0].(event.CallStarted)
	if !ok {
		t.Fatalf("got %T, want CallStarted", evs[0])
	}
	if cs.CallID != "CA4567" {
		t.Errorf("CallID = %q, want CA4567", cs.CallID)
	}
	if cs.FromNumber != "+15551234" || cs.ToNumber != "+15559876" {
		t.Errorf("from/to = %q/%q", cs.FromNumber, cs.ToNumber)
	}
	if cs.Provider != "twilio" {
		t.Errorf("Provider = %q", cs.Provider)
	}
	if cs.Metadata["stream_sid"] != "MZ0123" || cs.Metadata["account_sid"] != "AC89" {
		t.Errorf("metadata = %v", cs.Metadata)
	}
	if s.StreamSID() != "MZ0123" {
		t.Errorf("StreamSID = %q", s.StreamSID())
	}
}

func TestTwilioMediaDecode(t *testing.T) {
	t.Parallel()
	s := serializer.NewTwilio()

	payload := []byte{0x7f, 0xff, 0x00, 0x80}
	wire, _ := json.Marshal(map[string]any{
		"event": "media",
		"media": map[string]string{"payload": base64.StdEncoding.EncodeToString(payload)},
	})

	evs, err := s.Deserialize(transport.Text(wire))
	if err != nil {
		t.Fatal(err)
	}
	af, ok := evs[0].(event.AudioFrame)
	if !ok {
		t.Fatalf("got %T, want AudioFrame", evs[0])
	}
	if af.Codec != audio.Mulaw || af.SampleRate != 8000 {
		t.Errorf("format %s/%d, want mulaw/8000", af.Codec, af.SampleRate)
	}
	if !slices.Equal(af.Data, payload) {
		t.Errorf("Data = %x, want %x", af.Data, payload)
	}
}

func TestTwilioMediaBadBase64(t *testing.T) {
	t.Parallel()
	s := serializer.NewTwilio()
	evs, err := s.Deserialize(transport.Text([]byte(`{"event":"media","media":{"payload":"!!!"}}`)))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := evs[0].(event.ErrorEvent); !ok {
		t.Fatalf("got %T, want ErrorEvent", evs[0])
	}
}

func TestTwilioSerializeAudio(t *testing.T) {
	t.Parallel()
	s := serializer.NewTwilio()
	if _, err := s.Deserialize(transport.Text([]byte(twilioStart))); err != nil {
		t.Fatal(err)
	}

	payload := []byte{1, 2, 3, 4}
	msg, err := s.Serialize(event.AudioFrame{Data: payload, Codec: audio.Mulaw, SampleRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != transport.KindText {
		t.Fatal("outbound media must be a text frame")
	}

	var out struct {
		Event     string `json:"event"`
		StreamSid string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Event != "media" || out.StreamSid != "MZ0123" {
		t.Errorf("event/streamSid = %q/%q", out.Event, out.StreamSid)
	}
	decoded, err := base64.StdEncoding.DecodeString(out.Media.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(decoded, payload) {
		t.Errorf("payload = %x, want %x", decoded, payload)
	}
}

func TestTwilioSerializeClear(t *testing.T) {
	t.Parallel()
	s := serializer.NewTwilio()
	if _, err := s.Deserialize(transport.Text([]byte(twilioStart))); err != nil {
		t.Fatal(err)
	}

	msg, err := s.Serialize(event.ClearAudio{})
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		t.Fatal(err)
	}
	if out["event"] != "clear" || out["streamSid"] != "MZ0123" {
		t.Errorf("clear message = %v", out)
	}
}

func TestTwilioLifecycle(t *testing.T) {
	t.Parallel()
	s := serializer.NewTwilio()

	evs, err := s.Deserialize(transport.Text([]byte(`{"event":"connected","protocol":"Call"}`)))
	if err != nil || len(evs) != 0 {
		t.Fatalf("connected: evs=%v err=%v, want none", evs, err)
	}

	if _, err := s.Deserialize(transport.Text([]byte(twilioStart))); err != nil {
		t.Fatal(err)
	}

	evs, err = s.Deserialize(transport.Text([]byte(`{"event":"dtmf","dtmf":{"digit":"5"}}`)))
	if err != nil {
		t.Fatal(err)
	}
	dt, ok := evs[0].(event.DTMFReceived)
	if !ok || dt.Digit != "5" {
		t.Fatalf("dtmf: got %#v", evs[0])
	}

	evs, err = s.Deserialize(transport.Text([]byte(`{"event":"stop","streamSid":"MZ0123"}`)))
	if err != nil {
		t.Fatal(err)
	}
	ce, ok := evs[0].(event.CallEnded)
	if !ok || ce.Reason != "normal" || ce.CallID != "CA4567" {
		t.Fatalf("stop: got %#v", evs[0])
	}
}
