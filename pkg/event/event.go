// Package event defines the canonical event model shared by every telephony
// serializer and the bridge orchestrator.
//
// The event set is closed: each provider's wire protocol is translated into
// exactly these variants and nothing else. Wire messages that have no
// counterpart surface as [CustomEvent] so unknown traffic is observable but
// never fatal. Events are immutable value types from the moment a serializer
// emits them — consumers that need a modified [AudioFrame] must construct a
// new one (see [AudioFrame.WithData]).
package event

import (
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// Type discriminates the event variants.
type Type string

const (
	TypeAudioFrame        Type = "audio_frame"
	TypeCallStarted       Type = "call_started"
	TypeCallEnded         Type = "call_ended"
	TypeDTMFReceived      Type = "dtmf_received"
	TypeHoldStarted       Type = "hold_started"
	TypeHoldEnded         Type = "hold_ended"
	TypeTransferRequested Type = "transfer_requested"
	TypeBargeIn           Type = "barge_in"
	TypeClearAudio        Type = "clear_audio"
	TypeMark              Type = "mark"
	TypeCustom            Type = "custom"
	TypeError             Type = "error"
)

// Direction indicates which side initiated a call.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// TransferType selects the transfer style for a [TransferRequested] event.
type TransferType string

const (
	TransferBlind    TransferType = "blind"
	TransferAttended TransferType = "attended"
)

// processStart anchors the monotonic timestamp scale for all events.
var processStart = time.Now()

// Now returns the current monotonic timestamp in seconds since process start.
func Now() float64 {
	return time.Since(processStart).Seconds()
}

// Event is the closed sum type of everything that can flow between a
// serializer and the bridge. Only the variants in this package implement it.
type Event interface {
	Type() Type

	// Meta returns the fields common to every variant.
	Meta() Base

	sealed()
}

// Base carries the fields present on every event variant.
type Base struct {
	// CallID is the provider-assigned call identifier.
	CallID string

	// Timestamp is monotonic seconds since process start (see [Now]).
	Timestamp float64
}

// Meta implements [Event].
func (b Base) Meta() Base { return b }

func (Base) sealed() {}

// AudioFrame is one chunk of call audio in either direction.
type AudioFrame struct {
	Base
	Codec      audio.Codec
	SampleRate int
	Channels   int
	Data       []byte
}

func (AudioFrame) Type() Type { return TypeAudioFrame }

// WithData returns a copy of the frame carrying data instead of the original
// payload. The receiver is not modified.
func (f AudioFrame) WithData(data []byte) AudioFrame {
	f.Data = data
	return f
}

// CallStarted announces a new call after the provider handshake completes.
type CallStarted struct {
	Base
	FromNumber string
	ToNumber   string
	Provider   string
	Direction  Direction
	SIPHeaders map[string]string
	Metadata   map[string]any
}

func (CallStarted) Type() Type { return TypeCallStarted }

// CallEnded announces call termination from either peer.
type CallEnded struct {
	Base
	Reason     string
	DurationMs int64
}

func (CallEnded) Type() Type { return TypeCallEnded }

// DTMFReceived reports a single keypad digit pressed by the caller.
type DTMFReceived struct {
	Base
	// Digit is a single character: 0-9, *, # or A-D.
	Digit      string
	DurationMs int64
}

func (DTMFReceived) Type() Type { return TypeDTMFReceived }

// HoldStarted reports the provider placing the call on hold.
type HoldStarted struct {
	Base
}

func (HoldStarted) Type() Type { return TypeHoldStarted }

// HoldEnded reports the provider resuming a held call.
type HoldEnded struct {
	Base
}

func (HoldEnded) Type() Type { return TypeHoldEnded }

// TransferRequested asks the provider to transfer the call elsewhere.
type TransferRequested struct {
	Base
	Target       string
	TransferType TransferType
	Metadata     map[string]any
}

func (TransferRequested) Type() Type { return TypeTransferRequested }

// BargeIn reports caller speech detected while the bot was speaking.
type BargeIn struct {
	Base
	// AudioEnergy is the RMS energy of the frame that triggered detection.
	AudioEnergy float64
}

func (BargeIn) Type() Type { return TypeBargeIn }

// ClearAudio instructs the provider to flush any queued outbound audio.
type ClearAudio struct {
	Base
}

func (ClearAudio) Type() Type { return TypeClearAudio }

// Mark is a named playback checkpoint. Sent bot → provider it is enqueued
// after the most recent audio chunk; reported provider → bridge it confirms
// that audio up to the mark has reached the caller.
type Mark struct {
	Base
	Name string
}

func (Mark) Type() Type { return TypeMark }

// CustomEvent wraps provider wire messages that have no canonical variant.
type CustomEvent struct {
	Base
	// CustomType is "<provider>.<wire type>", e.g. "twilio.mark".
	CustomType string
	Payload    map[string]any
}

func (CustomEvent) Type() Type { return TypeCustom }

// ErrorEvent surfaces a recoverable or fatal error as an in-band event.
type ErrorEvent struct {
	Base
	Code        string
	Message     string
	Recoverable bool
}

func (ErrorEvent) Type() Type { return TypeError }
