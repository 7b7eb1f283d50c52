// Package serializer translates between provider wire protocols and the
// canonical event model.
//
// A serializer is a pure translator: it performs no I/O and keeps no state
// beyond the session identifiers the provider's wire protocol assigns after
// its handshake (stream SID, conversation ID, channel UUID and the like).
// One serializer instance serves exactly one provider connection.
//
// Wire messages the provider sends that have no canonical counterpart become
// [event.CustomEvent] values with a "<provider>.<type>" custom type — unknown
// traffic is observable but never fatal. Malformed JSON surfaces as a
// recoverable [event.ErrorEvent].
package serializer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// Serializer converts one provider's wire protocol to and from events.
type Serializer interface {
	// Name is the provider name this serializer speaks, e.g. "twilio".
	Name() string

	// NativeCodec is the codec the provider sends and expects audio in.
	NativeCodec() audio.Codec

	// NativeSampleRate is the provider's audio sample rate in Hz.
	NativeSampleRate() int

	// Deserialize translates one wire message into zero or more events.
	Deserialize(msg transport.Message) ([]event.Event, error)

	// Serialize translates an outbound event into a wire message. It returns
	// (nil, nil) when the event type has no outbound analogue for this
	// provider.
	Serialize(ev event.Event) (*transport.Message, error)

	// HandshakeResponse returns the wire message the provider expects in
	// reply to msg, or nil when no reply is required. Call Deserialize first
	// so session identifiers carried by msg are already captured.
	HandshakeResponse(msg transport.Message) *transport.Message
}

// Config carries the per-connection settings a factory may honour. Only the
// generic serializer is configurable; the named providers ignore it.
type Config struct {
	// Codec overrides the native codec (generic serializer only).
	Codec audio.Codec

	// SampleRate overrides the native sample rate (generic serializer only).
	SampleRate int
}

// Factory constructs a fresh serializer for one provider connection.
type Factory func(cfg Config) (Serializer, error)

// Registry maps provider names to serializer factories. Registration is
// runtime-extensible; construction of unknown provider names fails.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with all built-in providers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("twilio", func(Config) (Serializer, error) { return NewTwilio(), nil })
	r.Register("genesys", func(Config) (Serializer, error) { return NewGenesys(), nil })
	r.Register("asterisk", func(Config) (Serializer, error) { return NewAsterisk(), nil })
	r.Register("freeswitch", func(Config) (Serializer, error) { return NewFreeswitch(), nil })
	r.Register("amazon-connect", func(Config) (Serializer, error) { return NewAmazonConnect(), nil })
	r.Register("avaya", func(Config) (Serializer, error) { return NewAvaya(), nil })
	r.Register("cisco", func(Config) (Serializer, error) { return NewCisco(), nil })
	r.Register("generic", func(cfg Config) (Serializer, error) { return NewGeneric(cfg) })
	return r
}

// Register adds (or replaces) a factory under name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists registered provider names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Known reports whether name has a registered factory.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New constructs a serializer for the named provider.
func (r *Registry) New(name string, cfg Config) (Serializer, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("serializer: unknown provider %q", name)
	}
	return f(cfg)
}

// ── shared helpers ────────────────────────────────────────────────────────────

// base returns the common event fields stamped with the current monotonic time.
func base(callID string) event.Base {
	return event.Base{CallID: callID, Timestamp: event.Now()}
}

// custom wraps an unrecognised wire message as a CustomEvent.
func custom(provider, wireType, callID string, payload map[string]any) []event.Event {
	return []event.Event{event.CustomEvent{
		Base:       base(callID),
		CustomType: provider + "." + wireType,
		Payload:    payload,
	}}
}

// parseError surfaces malformed JSON as a recoverable ErrorEvent.
func parseError(provider, callID string, err error) []event.Event {
	return []event.Event{event.ErrorEvent{
		Base:        base(callID),
		Code:        "parse_error",
		Message:     fmt.Sprintf("%s: %v", provider, err),
		Recoverable: true,
	}}
}

// errMissingField reports a wire message missing a required sub-object.
type errMissingField string

func (e errMissingField) Error() string { return "missing field " + string(e) }

// headerPrefixed copies entries of m whose keys start with one of the given
// prefixes, for gathering SIP headers out of provider parameter maps.
func headerPrefixed(m map[string]string, prefixes ...string) map[string]string {
	out := map[string]string{}
	for k, v := range m {
		for _, p := range prefixes {
			if len(k) >= len(p) && k[:len(p)] == p {
				out[k] = v
				break
			}
		}
	}
	return out
}
