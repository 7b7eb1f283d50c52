package audio_test

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// sine returns n samples of a sine wave as PCM16 little-endian bytes.
func sine(n int, freq float64, rate int, amplitude float64) []byte {
	out := make([]byte, n*2)
	for i := range n {
		s := int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func TestResampleIdentity(t *testing.T) {
	t.Parallel()
	data := sine(160, 440, 8000, 10000)
	out := audio.Resample(data, 8000, 8000)
	if !bytes.Equal(out, data) {
		t.Error("identity resample changed the payload")
	}
}

func TestResampleLengths(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	data := make([]byte, 320) // 160 samples
	rng.Read(data)

	tests := []struct {
		from, to int
		wantLen  int
	}{
		{8000, 8000, 320},
		{8000, 16000, 640},
		{16000, 8000, 160},
		{8000, 48000, 1920},
		{48000, 8000, 52}, // floor(160*8000/48000)=26 samples
		{16000, 16000, 320},
		{16000, 48000, 960},
		{48000, 16000, 106}, // floor(160/3)=53 samples
		{48000, 48000, 320},
	}
	for _, tc := range tests {
		out := audio.Resample(data, tc.from, tc.to)
		if len(out) != tc.wantLen {
			t.Errorf("resample %d -> %d: got %d bytes, want %d", tc.from, tc.to, len(out), tc.wantLen)
		}
	}
}

func TestResampleEmpty(t *testing.T) {
	t.Parallel()
	if out := audio.Resample(nil, 8000, 16000); len(out) != 0 {
		t.Errorf("empty input: got %d bytes, want 0", len(out))
	}
}

func TestResamplePreservesWaveform(t *testing.T) {
	t.Parallel()
	// Upsample then downsample a 440 Hz tone; the result should stay close to
	// the original away from the edges.
	orig := sine(320, 440, 8000, 16000)
	up := audio.Resample(orig, 8000, 16000)
	down := audio.Resample(up, 16000, 8000)

	if len(down) != len(orig) {
		t.Fatalf("round trip length: got %d, want %d", len(down), len(orig))
	}
	for i := 2; i < len(orig)-4; i += 2 {
		a := int16(orig[i]) | int16(orig[i+1])<<8
		b := int16(down[i]) | int16(down[i+1])<<8
		if diff := math.Abs(float64(a) - float64(b)); diff > 2000 {
			t.Fatalf("sample %d deviates by %.0f after round trip", i/2, diff)
		}
	}
}

func TestResamplerReusesBuffer(t *testing.T) {
	t.Parallel()
	r := audio.NewResampler(8000, 16000)
	in := sine(160, 300, 8000, 8000)

	first := r.Process(in)
	if len(first) != 640 {
		t.Fatalf("got %d bytes, want 640", len(first))
	}
	// Second call reuses the internal buffer; the previous result is invalid
	// but the new one must be correct.
	second := r.Process(in)
	if len(second) != 640 {
		t.Fatalf("second process: got %d bytes, want 640", len(second))
	}
	want := audio.Resample(in, 8000, 16000)
	if !bytes.Equal(second, want) {
		t.Error("resampler output differs from one-shot resample")
	}
}

func TestResamplerIdentityZeroCopy(t *testing.T) {
	t.Parallel()
	r := audio.NewResampler(8000, 8000)
	in := []byte{1, 2, 3, 4}
	out := r.Process(in)
	if &out[0] != &in[0] {
		t.Error("identity path should return the input slice unchanged")
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
	if got := audio.RMS(make([]byte, 320)); got != 0 {
		t.Errorf("RMS(silence) = %f, want 0", got)
	}
	loud := sine(160, 440, 8000, 20000)
	if got := audio.RMS(loud); got < 10000 {
		t.Errorf("RMS(loud sine) = %f, want > 10000", got)
	}
}
