package pipeline

import (
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/pkg/provider/stt"
)

func TestTurnFromFinalsAndSilence(t *testing.T) {
	t.Parallel()

	d := NewTurnDetector(700*time.Millisecond, 0, 0)
	base := time.Now()

	if _, done := d.Observe(stt.Result{Text: "hello", IsFinal: true}, base); done {
		t.Fatal("turn should not close on the first final")
	}
	if _, done := d.Observe(stt.Result{Text: "world.", IsFinal: true}, base.Add(200*time.Millisecond)); done {
		t.Fatal("turn should not close while speech continues")
	}

	// Not enough silence yet.
	if _, done := d.Tick(base.Add(500 * time.Millisecond)); done {
		t.Fatal("turn closed before the silence threshold")
	}

	transcript, done := d.Tick(base.Add(1000 * time.Millisecond))
	if !done {
		t.Fatal("turn should close after the silence threshold")
	}
	if transcript != "hello world." {
		t.Errorf("transcript = %q, want %q", transcript, "hello world.")
	}

	// Detector is reset; a further tick emits nothing.
	if _, done := d.Tick(base.Add(2 * time.Second)); done {
		t.Error("reset detector emitted a second turn")
	}
}

func TestInterimResultsDoNotAccumulate(t *testing.T) {
	t.Parallel()

	d := NewTurnDetector(100*time.Millisecond, 0, 0)
	base := time.Now()

	d.Observe(stt.Result{Text: "hel"}, base)
	d.Observe(stt.Result{Text: "hello wor"}, base.Add(50*time.Millisecond))
	d.Observe(stt.Result{Text: "hello world", IsFinal: true}, base.Add(100*time.Millisecond))

	transcript, done := d.Tick(base.Add(300 * time.Millisecond))
	if !done {
		t.Fatal("turn should close")
	}
	if transcript != "hello world" {
		t.Errorf("transcript = %q; interims must not leak in", transcript)
	}
}

func TestEmptyFinalClosesTurnImmediately(t *testing.T) {
	t.Parallel()

	d := NewTurnDetector(10*time.Second, 0, 0)
	base := time.Now()

	d.Observe(stt.Result{Text: "transfer me", IsFinal: true}, base)
	transcript, done := d.Observe(stt.Result{IsFinal: true}, base.Add(10*time.Millisecond))
	if !done {
		t.Fatal("utterance-end marker should close the turn without waiting for silence")
	}
	if transcript != "transfer me" {
		t.Errorf("transcript = %q", transcript)
	}
}

func TestEmptyFinalWithEmptyBufferIsIgnored(t *testing.T) {
	t.Parallel()

	d := NewTurnDetector(0, 0, 0)
	if _, done := d.Observe(stt.Result{IsFinal: true}, time.Now()); done {
		t.Fatal("utterance-end with no speech should not emit")
	}
}

func TestShortTurnSuppressed(t *testing.T) {
	t.Parallel()

	d := NewTurnDetector(100*time.Millisecond, 0, 2)
	base := time.Now()

	d.Observe(stt.Result{Text: "a", IsFinal: true}, base)
	if transcript, done := d.Tick(base.Add(time.Second)); done {
		t.Errorf("single-character turn %q should be suppressed", transcript)
	}
}

func TestMaxTurnDurationForcesEmit(t *testing.T) {
	t.Parallel()

	d := NewTurnDetector(time.Hour, 30*time.Second, 0)
	base := time.Now()

	d.Observe(stt.Result{Text: "well"}, base)
	d.Observe(stt.Result{Text: "well let me think", IsFinal: true}, base.Add(10*time.Second))
	d.Observe(stt.Result{Text: "about all of this"}, base.Add(20*time.Second))

	transcript, done := d.Observe(stt.Result{Text: "for a while longer", IsFinal: true}, base.Add(31*time.Second))
	if !done {
		t.Fatal("turn should be forced closed at the maximum duration")
	}
	if transcript != "well let me think for a while longer" {
		t.Errorf("transcript = %q", transcript)
	}
}

func TestResetDiscardsSpeech(t *testing.T) {
	t.Parallel()

	d := NewTurnDetector(100*time.Millisecond, 0, 0)
	base := time.Now()

	d.Observe(stt.Result{Text: "ignore all this", IsFinal: true}, base)
	d.Reset()

	if _, done := d.Tick(base.Add(time.Second)); done {
		t.Fatal("reset detector should not emit")
	}
}
