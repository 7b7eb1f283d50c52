package serializer_test

import (
	"slices"
	"testing"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/serializer"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

func TestRegistryKnowsAllProviders(t *testing.T) {
	t.Parallel()
	r := serializer.NewRegistry()

	want := []string{
		"amazon-connect", "asterisk", "avaya", "cisco",
		"freeswitch", "generic", "genesys", "twilio",
	}
	got := r.Names()
	if !slices.Equal(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}

	for _, name := range want {
		s, err := r.New(name, serializer.Config{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, s.Name())
		}
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	t.Parallel()
	r := serializer.NewRegistry()
	if _, err := r.New("nortel", serializer.Config{}); err == nil {
		t.Fatal("New(nortel) succeeded, want error")
	}
	if r.Known("nortel") {
		t.Error("Known(nortel) = true")
	}
}

func TestRegistryCustomFactory(t *testing.T) {
	t.Parallel()
	r := serializer.NewRegistry()
	r.Register("lab", func(serializer.Config) (serializer.Serializer, error) {
		return serializer.NewGeneric(serializer.Config{})
	})
	if !r.Known("lab") {
		t.Fatal("Known(lab) = false after Register")
	}
	if _, err := r.New("lab", serializer.Config{}); err != nil {
		t.Fatalf("New(lab): %v", err)
	}
}

// Every serializer must turn unparseable JSON into a recoverable error event
// instead of failing the connection.
func TestMalformedJSONIsRecoverable(t *testing.T) {
	t.Parallel()
	r := serializer.NewRegistry()
	for _, name := range r.Names() {
		s, err := r.New(name, serializer.Config{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		evs, err := s.Deserialize(transport.Text([]byte("{not json")))
		if err != nil {
			t.Errorf("%s: Deserialize returned error %v, want error event", name, err)
			continue
		}
		if len(evs) != 1 {
			t.Errorf("%s: got %d events, want 1", name, len(evs))
			continue
		}
		ee, ok := evs[0].(event.ErrorEvent)
		if !ok {
			t.Errorf("%s: got %T, want ErrorEvent", name, evs[0])
			continue
		}
		if !ee.Recoverable {
			t.Errorf("%s: parse error not recoverable", name)
		}
	}
}

// Unknown message types become CustomEvent with a provider-prefixed type.
func TestUnknownMessageBecomesCustomEvent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		provider string
		wire     string
		wantType string
	}{
		{"twilio", `{"event":"weird"}`, "twilio.weird"},
		{"genesys", `{"type":"update"}`, "genesys.update"},
		{"asterisk", `{"type":"ChannelVarset"}`, "asterisk.ChannelVarset"},
		{"freeswitch", `{"event":"heartbeat"}`, "freeswitch.heartbeat"},
		{"amazon-connect", `{"event":"PAUSED"}`, "amazon-connect.PAUSED"},
		{"avaya", `{"type":"session.update"}`, "avaya.session.update"},
		{"cisco", `{"event":"call.updated"}`, "cisco.call.updated"},
		{"generic", `{"type":"ping"}`, "generic.ping"},
	}

	r := serializer.NewRegistry()
	for _, tc := range cases {
		s, err := r.New(tc.provider, serializer.Config{})
		if err != nil {
			t.Fatalf("New(%q): %v", tc.provider, err)
		}
		evs, err := s.Deserialize(transport.Text([]byte(tc.wire)))
		if err != nil {
			t.Fatalf("%s: Deserialize: %v", tc.provider, err)
		}
		if len(evs) != 1 {
			t.Fatalf("%s: got %d events, want 1", tc.provider, len(evs))
		}
		ce, ok := evs[0].(event.CustomEvent)
		if !ok {
			t.Fatalf("%s: got %T, want CustomEvent", tc.provider, evs[0])
		}
		if ce.CustomType != tc.wantType {
			t.Errorf("%s: CustomType = %q, want %q", tc.provider, ce.CustomType, tc.wantType)
		}
	}
}

// Binary providers must hand audio payload bytes through untouched in both
// directions.
func TestBinaryAudioBytesPreserved(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 160)
	for i := range payload {
		payload[i] = byte(i)
	}

	r := serializer.NewRegistry()
	for _, name := range []string{"genesys", "asterisk", "freeswitch", "amazon-connect", "avaya", "cisco"} {
		s, err := r.New(name, serializer.Config{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}

		evs, err := s.Deserialize(transport.Binary(payload))
		if err != nil {
			t.Fatalf("%s: Deserialize: %v", name, err)
		}
		af, ok := evs[0].(event.AudioFrame)
		if !ok {
			t.Fatalf("%s: got %T, want AudioFrame", name, evs[0])
		}
		if !slices.Equal(af.Data, payload) {
			t.Errorf("%s: inbound audio bytes mutated", name)
		}
		if af.Codec != s.NativeCodec() || af.SampleRate != s.NativeSampleRate() {
			t.Errorf("%s: frame format %s/%d, want %s/%d",
				name, af.Codec, af.SampleRate, s.NativeCodec(), s.NativeSampleRate())
		}

		msg, err := s.Serialize(event.AudioFrame{Data: payload, Codec: s.NativeCodec(), SampleRate: s.NativeSampleRate()})
		if err != nil {
			t.Fatalf("%s: Serialize: %v", name, err)
		}
		if msg == nil || msg.Kind != transport.KindBinary {
			t.Fatalf("%s: outbound audio not a binary frame", name)
		}
		if !slices.Equal(msg.Data, payload) {
			t.Errorf("%s: outbound audio bytes mutated", name)
		}
	}
}

// Events with no outbound analogue serialize to (nil, nil), never an error.
func TestSerializeUnsupportedEventIsNil(t *testing.T) {
	t.Parallel()
	r := serializer.NewRegistry()
	for _, name := range r.Names() {
		s, err := r.New(name, serializer.Config{})
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		msg, err := s.Serialize(event.HoldStarted{})
		if err != nil {
			t.Errorf("%s: Serialize(HoldStarted) error: %v", name, err)
		}
		if msg != nil {
			t.Errorf("%s: Serialize(HoldStarted) = %v, want nil", name, msg)
		}
	}
}

func TestGenericConfigOverrides(t *testing.T) {
	t.Parallel()

	s, err := serializer.NewGeneric(serializer.Config{Codec: audio.Mulaw, SampleRate: 8000})
	if err != nil {
		t.Fatal(err)
	}
	if s.NativeCodec() != audio.Mulaw || s.NativeSampleRate() != 8000 {
		t.Fatalf("got %s/%d, want mulaw/8000", s.NativeCodec(), s.NativeSampleRate())
	}

	d, err := serializer.NewGeneric(serializer.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if d.NativeCodec() != audio.PCM16 || d.NativeSampleRate() != 16000 {
		t.Fatalf("defaults %s/%d, want pcm16/16000", d.NativeCodec(), d.NativeSampleRate())
	}

	if _, err := serializer.NewGeneric(serializer.Config{Codec: "mp3"}); err == nil {
		t.Error("NewGeneric accepted unsupported codec mp3")
	}
}
