package audio

import (
	"fmt"
	"sync"

	"layeh.com/gopus"
)

// Telephony Opus runs 16 kHz mono at 20 ms frames.
const (
	opusSampleRate  = 16000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 320
)

// OpusCodec bridges the registry to a native libopus encoder/decoder pair.
// Opus is stateful, so one OpusCodec must serve a single stream; the registry
// hands the same instance to both directions of one call, guarded by a mutex
// because the native calls may block.
type OpusCodec struct {
	mu  sync.Mutex
	dec *gopus.Decoder
	enc *gopus.Encoder
}

// NewOpusCodec constructs the native encoder and decoder. It fails when
// libopus is unavailable, in which case the codec is simply absent from the
// registry and conversions to Opus report [ErrUnsupportedCodec].
func NewOpusCodec() (*OpusCodec, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusCodec{dec: dec, enc: enc}, nil
}

// RegisterOpus attempts to add Opus support to r. Returns false when the
// native codec cannot be constructed.
func RegisterOpus(r *Registry) bool {
	c, err := NewOpusCodec()
	if err != nil {
		return false
	}
	r.Register(Opus, c, c)
	return true
}

// Decode decodes one Opus packet into PCM16 little-endian bytes.
func (c *OpusCodec) Decode(data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pcm, err := c.dec.Decode(data, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// Encode encodes one PCM16 frame into an Opus packet. The input must contain
// exactly opusFrameSize samples (20 ms at 16 kHz).
func (c *OpusCodec) Encode(pcm []byte) ([]byte, error) {
	samples := bytesToInt16s(pcm)
	if len(samples) != opusFrameSize {
		return nil, fmt.Errorf("audio: opus encode: need %d samples per frame, got %d", opusFrameSize, len(samples))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out, err := c.enc.Encode(samples, opusFrameSize, len(pcm))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return out, nil
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// bytesToInt16s converts little-endian bytes to int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
