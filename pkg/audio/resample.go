package audio

// Resample converts 16-bit little-endian mono PCM from srcRate to dstRate
// using linear interpolation. Output sample i is taken at fractional source
// index i*srcRate/dstRate, interpolating between the two nearest samples and
// clamping to the int16 range. If srcRate == dstRate the input is returned
// unchanged (zero copy). Empty input yields empty output.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	srcSamples := len(pcm) / 2
	if srcSamples == 0 {
		return pcm[:0]
	}
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstSamples*2)
	resampleInto(out, pcm, srcSamples, dstSamples, srcRate, dstRate)
	return out
}

// resampleInto writes dstSamples interpolated samples into out, which must be
// at least dstSamples*2 bytes long.
func resampleInto(out, pcm []byte, srcSamples, dstSamples, srcRate, dstRate int) {
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := float64(s0)*(1-frac) + float64(s1)*frac
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		s := int16(v)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
}

// maxFrameBytes is the largest PCM16 frame the hot path is sized for:
// 20 ms at 48 kHz mono (1920 samples).
const maxFrameBytes = 3840

// Resampler converts between one fixed rate pair, reusing an internal output
// buffer so steady-state 20 ms frames do not allocate. It is owned by a single
// call session and is not safe for concurrent use.
type Resampler struct {
	srcRate int
	dstRate int
	buf     []byte
}

// NewResampler returns a resampler for the given rate pair.
func NewResampler(srcRate, dstRate int) *Resampler {
	return &Resampler{
		srcRate: srcRate,
		dstRate: dstRate,
		buf:     make([]byte, 0, maxFrameBytes),
	}
}

// SrcRate returns the input sample rate.
func (r *Resampler) SrcRate() int { return r.srcRate }

// DstRate returns the output sample rate.
func (r *Resampler) DstRate() int { return r.dstRate }

// Process resamples one PCM16 frame. The returned slice aliases the internal
// buffer and is valid until the next Process call; callers that retain the
// data must copy it.
func (r *Resampler) Process(pcm []byte) []byte {
	if r.srcRate == r.dstRate {
		return pcm
	}
	srcSamples := len(pcm) / 2
	if srcSamples == 0 {
		return pcm[:0]
	}
	dstSamples := int(int64(srcSamples) * int64(r.dstRate) / int64(r.srcRate))
	need := dstSamples * 2
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	r.buf = r.buf[:need]
	resampleInto(r.buf, pcm, srcSamples, dstSamples, r.srcRate, r.dstRate)
	return r.buf
}
