package audio

import "math"

// RMS computes the root-mean-square energy of a PCM16 little-endian frame.
// Used by the bridge's barge-in detector. Empty or odd-length input returns 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}
