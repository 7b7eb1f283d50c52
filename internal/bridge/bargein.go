package bridge

import "github.com/voxbridge/voxbridge/pkg/audio"

// Barge-in defaults. Threshold is RMS energy over a PCM16 frame; speech on a
// telephone line typically lands well above 1000 while comfort noise stays
// under a few hundred.
const (
	DefaultBargeInThreshold = 1000.0
	DefaultBargeInFrames    = 3
)

// bargeInDetector fires when inbound frame energy stays above a threshold for
// a minimum number of consecutive frames. One detector per session, used only
// by that session's provider loop.
type bargeInDetector struct {
	threshold float64
	minFrames int
	streak    int
}

func newBargeInDetector(threshold float64, minFrames int) *bargeInDetector {
	if threshold <= 0 {
		threshold = DefaultBargeInThreshold
	}
	if minFrames <= 0 {
		minFrames = DefaultBargeInFrames
	}
	return &bargeInDetector{threshold: threshold, minFrames: minFrames}
}

// Feed examines one PCM16 frame and reports its energy and whether the
// consecutive-frame condition is now met. After firing the streak resets, so
// continued speech does not re-trigger every frame.
func (d *bargeInDetector) Feed(pcm []byte) (energy float64, fired bool) {
	energy = audio.RMS(pcm)
	if energy < d.threshold {
		d.streak = 0
		return energy, false
	}
	d.streak++
	if d.streak < d.minFrames {
		return energy, false
	}
	d.streak = 0
	return energy, true
}

// Reset clears the consecutive-frame streak.
func (d *bargeInDetector) Reset() { d.streak = 0 }
