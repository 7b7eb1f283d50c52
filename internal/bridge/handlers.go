package bridge

import (
	"log/slog"

	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/pkg/event"
)

// Handler observes one event on one session. Errors are logged and never
// abort dispatch to later handlers or the forwarding loop.
type Handler func(s *session.CallSession, ev event.Event) error

// AudioHandler may drop an inbound frame (return nil) or substitute another.
type AudioHandler func(s *session.CallSession, frame event.AudioFrame) (*event.AudioFrame, error)

// Handlers is the per-event-type callback registry. Registration happens
// before the server starts accepting connections; dispatch is read-only, so
// no locking is needed.
type Handlers struct {
	byType   map[event.Type][]Handler
	catchAll []Handler
	onAudio  []AudioHandler
}

// NewHandlers returns an empty registry.
func NewHandlers() *Handlers {
	return &Handlers{byType: make(map[event.Type][]Handler)}
}

// On registers a handler for one event type. Handlers run in registration
// order.
func (h *Handlers) On(t event.Type, fn Handler) {
	h.byType[t] = append(h.byType[t], fn)
}

// OnAny registers a catch-all handler invoked for every event after the
// type-specific handlers.
func (h *Handlers) OnAny(fn Handler) {
	h.catchAll = append(h.catchAll, fn)
}

// OnAudio registers an inbound audio interceptor. Interceptors run in
// registration order; the first one returning nil drops the frame.
func (h *Handlers) OnAudio(fn AudioHandler) {
	h.onAudio = append(h.onAudio, fn)
}

// Dispatch runs every matching handler for ev. A failing handler is logged
// and does not stop the rest.
func (h *Handlers) Dispatch(s *session.CallSession, ev event.Event) {
	for _, fn := range h.byType[ev.Type()] {
		if err := fn(s, ev); err != nil {
			slog.Error("event handler failed",
				"session_id", s.ID, "event", string(ev.Type()), "error", err)
		}
	}
	for _, fn := range h.catchAll {
		if err := fn(s, ev); err != nil {
			slog.Error("catch-all handler failed",
				"session_id", s.ID, "event", string(ev.Type()), "error", err)
		}
	}
}

// FilterAudio runs the audio interceptor chain. It returns the (possibly
// substituted) frame, or nil when an interceptor dropped it. A failing
// interceptor is logged and skipped.
func (h *Handlers) FilterAudio(s *session.CallSession, frame event.AudioFrame) *event.AudioFrame {
	current := &frame
	for _, fn := range h.onAudio {
		next, err := fn(s, *current)
		if err != nil {
			slog.Error("audio handler failed", "session_id", s.ID, "error", err)
			continue
		}
		if next == nil {
			return nil
		}
		current = next
	}
	return current
}
