package pipeline

import (
	"strings"
	"time"

	"github.com/voxbridge/voxbridge/pkg/provider/stt"
)

// Turn detection defaults.
const (
	DefaultSilenceThreshold = 700 * time.Millisecond
	DefaultMaxTurnDuration  = 30 * time.Second
	DefaultMinTurnLength    = 2
)

// turnState is the detector's position in the utterance lifecycle.
type turnState int

const (
	stateIdle turnState = iota
	stateSpeaking
	stateAwaitingSilence
)

// TurnDetector assembles STT results into user turns.
//
// Callers feed every STT result through Observe and call Tick periodically
// with the current time; either may emit a completed turn transcript. The
// detector is not safe for concurrent use — the orchestrator's STT listener
// owns it.
type TurnDetector struct {
	silenceThreshold time.Duration
	maxTurnDuration  time.Duration
	minTurnLength    int

	state      turnState
	finals     []string
	interim    string
	turnStart  time.Time
	lastSpeech time.Time
}

// NewTurnDetector creates a detector; zero values fall back to the defaults.
func NewTurnDetector(silenceThreshold, maxTurnDuration time.Duration, minTurnLength int) *TurnDetector {
	if silenceThreshold <= 0 {
		silenceThreshold = DefaultSilenceThreshold
	}
	if maxTurnDuration <= 0 {
		maxTurnDuration = DefaultMaxTurnDuration
	}
	if minTurnLength <= 0 {
		minTurnLength = DefaultMinTurnLength
	}
	return &TurnDetector{
		silenceThreshold: silenceThreshold,
		maxTurnDuration:  maxTurnDuration,
		minTurnLength:    minTurnLength,
	}
}

// Observe processes one STT result at the given time. It returns a completed
// transcript and true when the result closed a turn.
func (d *TurnDetector) Observe(r stt.Result, now time.Time) (string, bool) {
	// An empty final is the provider's utterance-end signal: close out
	// whatever has accumulated.
	if r.IsFinal && r.Text == "" {
		if len(d.finals) == 0 {
			return "", false
		}
		return d.emit()
	}

	if r.Text == "" {
		return "", false
	}

	if d.state == stateIdle {
		d.state = stateSpeaking
		d.turnStart = now
	}
	d.lastSpeech = now

	if !r.IsFinal {
		d.interim = r.Text
		return "", false
	}

	d.finals = append(d.finals, r.Text)
	d.interim = ""
	d.state = stateAwaitingSilence

	if now.Sub(d.turnStart) >= d.maxTurnDuration {
		return d.emit()
	}
	return "", false
}

// Tick advances the detector's timers. It returns a completed transcript and
// true when silence (or the maximum turn duration) closed the turn.
func (d *TurnDetector) Tick(now time.Time) (string, bool) {
	switch d.state {
	case stateAwaitingSilence:
		elapsed := now.Sub(d.lastSpeech)
		if elapsed >= d.silenceThreshold && elapsed.Seconds() >= 0.8*d.silenceThreshold.Seconds() {
			return d.emit()
		}
	case stateSpeaking:
		if now.Sub(d.turnStart) >= d.maxTurnDuration {
			return d.emit()
		}
	}
	return "", false
}

// Reset discards all accumulated speech, e.g. after a barge-in cancels the
// current exchange.
func (d *TurnDetector) Reset() {
	d.state = stateIdle
	d.finals = nil
	d.interim = ""
}

// emit joins the accumulated finals, resets the detector, and applies the
// minimum-length suppression.
func (d *TurnDetector) emit() (string, bool) {
	transcript := strings.TrimSpace(strings.Join(d.finals, " "))
	d.Reset()
	if len(transcript) < d.minTurnLength {
		return "", false
	}
	return transcript, true
}
