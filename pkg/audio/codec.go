// Package audio implements the codec engine of the bridge: G.711 µ-law and
// A-law companding, PCM16 passthrough, optional Opus, and a linear resampler.
//
// All conversions route through PCM16 little-endian mono as the canonical
// intermediate, so the [Registry] holds N encoders and N decoders rather than
// N² converter pairs. The G.711 tables are precomputed once at package
// initialisation and are read-only afterwards, making every conversion path
// safe for concurrent use without synchronisation.
package audio

import (
	"fmt"
	"slices"
	"sync"
)

// Codec identifies an audio encoding. The set is closed; [ParseCodec] rejects
// anything else.
type Codec string

const (
	Mulaw Codec = "mulaw"
	Alaw  Codec = "alaw"
	PCM16 Codec = "pcm16"
	Opus  Codec = "opus"
)

// ParseCodec converts a configuration string into a [Codec].
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case Mulaw, Alaw, PCM16, Opus:
		return Codec(s), nil
	}
	return "", fmt.Errorf("audio: %w: %q", ErrUnsupportedCodec, s)
}

// ErrUnsupportedCodec is returned when a codec is not present in the registry
// or a codec string is not part of the closed set.
var ErrUnsupportedCodec = fmt.Errorf("unsupported codec")

// Decoder turns codec bytes into PCM16 little-endian bytes.
type Decoder interface {
	Decode(data []byte) ([]byte, error)
}

// Encoder turns PCM16 little-endian bytes into codec bytes.
type Encoder interface {
	Encode(pcm []byte) ([]byte, error)
}

// Registry holds the decoder/encoder pair for each supported codec.
//
// Register all codecs at startup, before any call session exists; the registry
// is read-mostly and registration is not synchronised against Convert.
type Registry struct {
	mu       sync.RWMutex
	decoders map[Codec]Decoder
	encoders map[Codec]Encoder
}

// NewRegistry returns a registry preloaded with µ-law, A-law and PCM16.
// Opus is added only when the native encoder can be constructed; use
// [Registry.Register] with an Opus codec instance for custom framing.
func NewRegistry() *Registry {
	r := &Registry{
		decoders: make(map[Codec]Decoder),
		encoders: make(map[Codec]Encoder),
	}
	r.Register(Mulaw, mulawCodec{}, mulawCodec{})
	r.Register(Alaw, alawCodec{}, alawCodec{})
	r.Register(PCM16, pcmCodec{}, pcmCodec{})
	return r
}

// Register adds (or replaces) the decoder/encoder pair for codec.
func (r *Registry) Register(codec Codec, dec Decoder, enc Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[codec] = dec
	r.encoders[codec] = enc
}

// SupportedCodecs lists the registered codecs in stable order.
func (r *Registry) SupportedCodecs() []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Codec, 0, len(r.decoders))
	for c := range r.decoders {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Supports reports whether codec has a registered decoder and encoder.
func (r *Registry) Supports(codec Codec) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, dok := r.decoders[codec]
	_, eok := r.encoders[codec]
	return dok && eok
}

// Decode converts codec bytes to PCM16.
func (r *Registry) Decode(data []byte, codec Codec) ([]byte, error) {
	r.mu.RLock()
	dec, ok := r.decoders[codec]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("audio: decode: %w: %q", ErrUnsupportedCodec, codec)
	}
	return dec.Decode(data)
}

// Encode converts PCM16 bytes to codec bytes.
func (r *Registry) Encode(pcm []byte, codec Codec) ([]byte, error) {
	r.mu.RLock()
	enc, ok := r.encoders[codec]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("audio: encode: %w: %q", ErrUnsupportedCodec, codec)
	}
	return enc.Encode(pcm)
}

// Convert transcodes data from one codec to another via PCM16. Identity
// conversions return the input slice unchanged.
func (r *Registry) Convert(data []byte, from, to Codec) ([]byte, error) {
	if from == to {
		return data, nil
	}
	pcm, err := r.Decode(data, from)
	if err != nil {
		return nil, err
	}
	return r.Encode(pcm, to)
}

// pcmCodec is the identity codec for the canonical intermediate format.
type pcmCodec struct{}

func (pcmCodec) Decode(data []byte) ([]byte, error) { return data, nil }
func (pcmCodec) Encode(pcm []byte) ([]byte, error)  { return pcm, nil }
