package audio

// ITU-T G.711 companding. Both variants work on 8-bit samples that expand to
// 14 (µ-law) or 13 (A-law) significant bits of linear PCM. Decode is a
// 256-entry table lookup; encode is a 65536-entry table indexed by the
// unsigned reinterpretation of the int16 sample, so the per-sample hot path
// is two array reads with no branches.

const (
	mulawBias = 0x84
	mulawClip = 32635
	alawClip  = 32635
)

var (
	mulawDecodeTable [256]int16
	mulawEncodeTable [65536]byte
	alawDecodeTable  [256]int16
	alawEncodeTable  [65536]byte
)

func init() {
	for i := range 256 {
		mulawDecodeTable[i] = mulawDecodeSample(byte(i))
		alawDecodeTable[i] = alawDecodeSample(byte(i))
	}
	for i := range 65536 {
		mulawEncodeTable[i] = mulawEncodeSample(int16(uint16(i)))
		alawEncodeTable[i] = alawEncodeSample(int16(uint16(i)))
	}
}

// mulawEncodeSample compands one linear sample to µ-law.
func mulawEncodeSample(s int16) byte {
	sign := byte(0)
	v := int32(s)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > mulawClip {
		v = mulawClip
	}
	v += mulawBias

	// Exponent is the position of the highest set bit above bit 7.
	exp := byte(7)
	for mask := int32(0x4000); exp > 0 && v&mask == 0; mask >>= 1 {
		exp--
	}
	mantissa := byte(v>>(exp+3)) & 0x0F
	return ^(sign | exp<<4 | mantissa)
}

// mulawDecodeSample expands one µ-law byte to a linear sample.
func mulawDecodeSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exp := (b >> 4) & 0x07
	mantissa := b & 0x0F

	t := (int32(mantissa)<<3 + mulawBias) << exp
	sample := t - mulawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

// alawEncodeSample compands one linear sample to A-law. The output byte is
// XORed with 0x55 per the standard's even-bit inversion.
func alawEncodeSample(s int16) byte {
	sign := byte(0x80)
	v := int32(s)
	if v < 0 {
		v = -v - 1 // A-law treats -1 as magnitude 0
		sign = 0
	}
	if v > alawClip {
		v = alawClip
	}

	var out byte
	if v < 256 {
		// Linear segment: no compression below the first chord.
		out = sign | byte(v>>4)
	} else {
		exp := byte(7)
		for mask := int32(0x4000); exp > 1 && v&mask == 0; mask >>= 1 {
			exp--
		}
		mantissa := byte(v>>(exp+3)) & 0x0F
		out = sign | exp<<4 | mantissa
	}
	return out ^ 0x55
}

// alawDecodeSample expands one A-law byte to a linear sample.
func alawDecodeSample(b byte) int16 {
	b ^= 0x55
	sign := b & 0x80
	exp := (b >> 4) & 0x07
	mantissa := b & 0x0F

	var v int32
	if exp == 0 {
		v = int32(mantissa)<<4 + 8
	} else {
		v = (int32(mantissa)<<4 + 0x108) << (exp - 1)
	}
	if sign == 0 {
		v = -v
	}
	return int16(v)
}

// mulawCodec implements Decoder and Encoder for G.711 µ-law.
type mulawCodec struct{}

func (mulawCodec) Decode(data []byte) ([]byte, error) {
	out := make([]byte, len(data)*2)
	for i, b := range data {
		s := mulawDecodeTable[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}

func (mulawCodec) Encode(pcm []byte) ([]byte, error) {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := range n {
		u := uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8
		out[i] = mulawEncodeTable[u]
	}
	return out, nil
}

// alawCodec implements Decoder and Encoder for G.711 A-law.
type alawCodec struct{}

func (alawCodec) Decode(data []byte) ([]byte, error) {
	out := make([]byte, len(data)*2)
	for i, b := range data {
		s := alawDecodeTable[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out, nil
}

func (alawCodec) Encode(pcm []byte) ([]byte, error) {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := range n {
		u := uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8
		out[i] = alawEncodeTable[u]
	}
	return out, nil
}
