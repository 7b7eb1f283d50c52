// Package bridge owns the per-connection orchestration between a telephony
// provider and the voice bot: two forwarding loops joined by first-failure
// cancellation, barge-in detection, mark tracking and the handler registry.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/event"
	"github.com/voxbridge/voxbridge/pkg/serializer"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// BotDialer opens the bot-side transport for a new call. In pipeline mode it
// returns the in-process AI pipeline instead of a dialed WebSocket.
type BotDialer func(ctx context.Context) (transport.Transport, error)

// Options configures a Bridge.
type Options struct {
	// Provider selects the serializer dialect for accepted connections.
	Provider string

	// SerializerConfig is honoured by configurable serializers (generic).
	SerializerConfig serializer.Config

	// BotCodec and BotRate describe the audio format the bot peer speaks.
	BotCodec audio.Codec
	BotRate  int

	// OutputCodec overrides the codec used for provider-bound audio. Empty
	// means the serializer's native codec.
	OutputCodec audio.Codec

	// BargeInEnabled turns caller-interruption detection on.
	BargeInEnabled bool

	// BargeInThreshold is the PCM16 RMS energy above which a frame counts as
	// speech. Zero selects [DefaultBargeInThreshold].
	BargeInThreshold float64

	// BargeInFrames is the number of consecutive speech frames required.
	// Zero selects [DefaultBargeInFrames].
	BargeInFrames int
}

// Bridge accepts provider connections and runs the bidirectional forwarding
// loop for each. All fields are read-only after New.
type Bridge struct {
	opts        Options
	serializers *serializer.Registry
	codecs      *audio.Registry
	store       *session.Store
	handlers    *Handlers
	dialBot     BotDialer
	metrics     *observe.Metrics
	log         *slog.Logger
}

// New assembles a bridge. handlers may be empty but not nil; metrics may be
// nil to disable reporting.
func New(opts Options, serializers *serializer.Registry, codecs *audio.Registry, store *session.Store, handlers *Handlers, dialBot BotDialer, metrics *observe.Metrics) *Bridge {
	if opts.BotCodec == "" {
		opts.BotCodec = audio.PCM16
	}
	if opts.BotRate == 0 {
		opts.BotRate = 16000
	}
	return &Bridge{
		opts:        opts,
		serializers: serializers,
		codecs:      codecs,
		store:       store,
		handlers:    handlers,
		dialBot:     dialBot,
		metrics:     metrics,
		log:         slog.Default().With("component", "bridge"),
	}
}

// Store exposes the session store, e.g. for health reporting.
func (b *Bridge) Store() *session.Store { return b.store }

// botControl is the canonical JSON control frame spoken on the bot side.
type botControl struct {
	Type     string         `json:"type"`
	CallID   string         `json:"call_id,omitempty"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Digit    string         `json:"digit,omitempty"`
	Name     string         `json:"name,omitempty"`
}

// HandleConnection runs one call to completion: it instantiates the
// serializer, dials the bot, creates and registers the session and drives the
// two forwarding loops until either peer disconnects or the call ends.
func (b *Bridge) HandleConnection(ctx context.Context, provider transport.Transport) error {
	ctx, span := observe.StartCallSpan(ctx, b.opts.Provider)
	defer span.End()

	ser, err := b.serializers.New(b.opts.Provider, b.opts.SerializerConfig)
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}

	bot, err := b.dialBot(ctx)
	if err != nil {
		return fmt.Errorf("bridge: dial bot: %w", err)
	}

	var in, out *audio.Resampler
	if ser.NativeSampleRate() != b.opts.BotRate {
		in = audio.NewResampler(ser.NativeSampleRate(), b.opts.BotRate)
		out = audio.NewResampler(b.opts.BotRate, ser.NativeSampleRate())
	}

	sess := session.New(ctx, provider, bot, ser, b.codecs,
		session.WithBotFormat(b.opts.BotCodec, b.opts.BotRate),
		session.WithResamplers(in, out),
		session.WithBargeIn(b.opts.BargeInEnabled),
		session.WithOutputCodec(b.opts.OutputCodec),
	)
	span.SetAttributes(observe.Attr("session_id", sess.ID))
	b.store.Add(sess)
	if b.metrics != nil {
		b.metrics.ActiveCalls.Add(ctx, 1, providerAttr(b.opts.Provider))
	}
	b.log.Info("call accepted", "session_id", sess.ID, "provider", b.opts.Provider)

	defer func() {
		sess.End()
		b.store.Remove(sess.ID)
		_ = provider.Disconnect()
		_ = bot.Disconnect()
		if b.metrics != nil {
			b.metrics.RecordCallEnd(context.WithoutCancel(ctx),
				b.opts.Provider, float64(sess.DurationMs())/1000)
		}
		b.log.Info("call finished",
			"session_id", sess.ID,
			"call_id", sess.CallID(),
			"duration_ms", sess.DurationMs(),
			"bytes_in", sess.BytesIn(),
			"bytes_out", sess.BytesOut())
	}()

	g, gctx := errgroup.WithContext(sess.Context())
	g.Go(func() error { return b.providerLoop(gctx, sess) })
	g.Go(func() error { return b.botLoop(gctx, sess) })
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

// providerLoop is the hot path: provider wire → events → bot.
func (b *Bridge) providerLoop(ctx context.Context, sess *session.CallSession) error {
	ser := sess.Serializer
	det := newBargeInDetector(b.opts.BargeInThreshold, b.opts.BargeInFrames)

	for {
		msg, err := sess.Provider.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge: provider recv: %w", err)
		}

		events, err := ser.Deserialize(msg)
		if err != nil {
			return fmt.Errorf("bridge: deserialize: %w", err)
		}
		if reply := ser.HandshakeResponse(msg); reply != nil {
			if err := sess.Provider.Send(ctx, *reply); err != nil {
				return fmt.Errorf("bridge: handshake reply: %w", err)
			}
		}

		for _, ev := range events {
			b.handlers.Dispatch(sess, ev)

			switch e := ev.(type) {
			case event.CallStarted:
				sess.Start(e.CallID, e.FromNumber, e.ToNumber, string(e.Direction), e.SIPHeaders)
				b.store.Index(sess)
				if err := b.sendBotControl(ctx, sess, botControl{
					Type:     "start",
					CallID:   e.CallID,
					From:     e.FromNumber,
					To:       e.ToNumber,
					Provider: e.Provider,
					Metadata: e.Metadata,
				}); err != nil {
					return err
				}

			case event.AudioFrame:
				if err := b.forwardInboundAudio(ctx, sess, det, e); err != nil {
					return err
				}

			case event.DTMFReceived:
				if err := b.sendBotControl(ctx, sess, botControl{
					Type:   "dtmf",
					CallID: sess.CallID(),
					Digit:  e.Digit,
				}); err != nil {
					return err
				}

			case event.CallEnded:
				sess.End()
				_ = b.sendBotControl(ctx, sess, botControl{
					Type:   "stop",
					CallID: sess.CallID(),
					Reason: e.Reason,
				})
				return nil

			case event.HoldStarted:
				sess.SetOnHold(true)

			case event.HoldEnded:
				sess.SetOnHold(false)

			case event.CustomEvent:
				b.resolveMark(sess, e)

			case event.ErrorEvent:
				b.log.Warn("recoverable wire error",
					"session_id", sess.ID, "code", e.Code, "message", e.Message)
				if b.metrics != nil {
					b.metrics.SerializerErrors.Add(ctx, 1, providerAttr(b.opts.Provider))
				}
			}
		}
	}
}

// forwardInboundAudio counts, filters, barge-in-checks, converts and forwards
// one caller audio frame.
func (b *Bridge) forwardInboundAudio(ctx context.Context, sess *session.CallSession, det *bargeInDetector, frame event.AudioFrame) error {
	sess.AddBytesIn(len(frame.Data))
	if b.metrics != nil {
		b.metrics.AudioBytesIn.Add(ctx, int64(len(frame.Data)), providerAttr(b.opts.Provider))
	}

	kept := b.handlers.FilterAudio(sess, frame)
	if kept == nil {
		return nil
	}

	if sess.BargeInEnabled() && sess.IsBotSpeaking() {
		pcm, err := b.codecs.Decode(kept.Data, kept.Codec)
		if err != nil {
			return b.failCodec(ctx, sess, err)
		}
		if energy, fired := det.Feed(pcm); fired {
			if err := b.bargeIn(ctx, sess, energy); err != nil {
				return err
			}
		}
	} else {
		det.Reset()
	}

	converted, err := sess.ConvertInbound(kept.Data)
	if err != nil {
		return b.failCodec(ctx, sess, err)
	}
	if err := sess.Bot.Send(ctx, transport.Binary(converted)); err != nil {
		return fmt.Errorf("bridge: bot send: %w", err)
	}
	return nil
}

// bargeIn runs the interruption protocol: emit the event, drop queued bot
// audio, tell the provider to flush, tell the bot to cancel TTS.
func (b *Bridge) bargeIn(ctx context.Context, sess *session.CallSession, energy float64) error {
	ev := event.BargeIn{
		Base:        event.Base{CallID: sess.CallID(), Timestamp: event.Now()},
		AudioEnergy: energy,
	}
	b.handlers.Dispatch(sess, ev)

	cleared := sess.ClearOutbound()

	wire, err := sess.Serializer.Serialize(event.ClearAudio{Base: ev.Base})
	if err != nil {
		return fmt.Errorf("bridge: serialize clear: %w", err)
	}
	if wire != nil {
		if err := sess.Provider.Send(ctx, *wire); err != nil {
			return fmt.Errorf("bridge: provider send: %w", err)
		}
	}

	if err := b.sendBotControl(ctx, sess, botControl{Type: "barge_in"}); err != nil {
		return err
	}

	sess.SetBotSpeaking(false)
	if b.metrics != nil {
		b.metrics.BargeIns.Add(ctx, 1, providerAttr(b.opts.Provider))
	}
	b.log.Info("barge-in",
		"session_id", sess.ID, "energy", energy, "frames_cleared", cleared)
	return nil
}

// resolveMark checks whether a provider wire message confirms a pending mark
// and, if so, fires the local Mark event.
func (b *Bridge) resolveMark(sess *session.CallSession, ce event.CustomEvent) {
	name := markName(ce.Payload)
	if name == "" || !sess.ResolveMark(name) {
		return
	}
	b.handlers.Dispatch(sess, event.Mark{
		Base: event.Base{CallID: sess.CallID(), Timestamp: event.Now()},
		Name: name,
	})
}

// markName digs the mark name out of a provider payload: a top-level "name"
// or a "name" inside any nested object (Twilio nests it under "mark").
func markName(payload map[string]any) string {
	if s, ok := payload["name"].(string); ok {
		return s
	}
	for _, v := range payload {
		if sub, ok := v.(map[string]any); ok {
			if s, ok := sub["name"].(string); ok {
				return s
			}
		}
	}
	return ""
}

// botLoop forwards bot output to the provider. All outbound audio passes
// through the session's bounded queue so barge-in can discard it atomically.
func (b *Bridge) botLoop(ctx context.Context, sess *session.CallSession) error {
	ser := sess.Serializer

	for {
		msg, err := sess.Bot.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge: bot recv: %w", err)
		}

		if msg.Kind == transport.KindBinary {
			sess.AddBytesOut(len(msg.Data))
			if b.metrics != nil {
				b.metrics.AudioBytesOut.Add(ctx, int64(len(msg.Data)), providerAttr(b.opts.Provider))
			}

			converted, err := sess.ConvertOutbound(msg.Data)
			if err != nil {
				return b.failCodec(ctx, sess, err)
			}
			if dropped := sess.EnqueueOutbound(converted); dropped {
				b.log.Warn("outbound queue overflow, oldest frame dropped", "session_id", sess.ID)
			}
			sess.SetBotSpeaking(true)

			for {
				data, ok := sess.DequeueOutbound()
				if !ok {
					break
				}
				wire, err := ser.Serialize(event.AudioFrame{
					Base:       event.Base{CallID: sess.CallID(), Timestamp: event.Now()},
					Codec:      sess.OutCodec,
					SampleRate: ser.NativeSampleRate(),
					Channels:   1,
					Data:       data,
				})
				if err != nil {
					return fmt.Errorf("bridge: serialize audio: %w", err)
				}
				if wire == nil {
					continue
				}
				if err := sess.Provider.Send(ctx, *wire); err != nil {
					return fmt.Errorf("bridge: provider send: %w", err)
				}
			}
			continue
		}

		var ctl botControl
		if err := json.Unmarshal(msg.Data, &ctl); err != nil {
			b.log.Warn("unparseable bot control frame", "session_id", sess.ID, "error", err)
			continue
		}

		switch ctl.Type {
		case "stop":
			reason := ctl.Reason
			if reason == "" {
				reason = "bot_stop"
			}
			sess.End()
			ended := event.CallEnded{
				Base:       event.Base{CallID: sess.CallID(), Timestamp: event.Now()},
				Reason:     reason,
				DurationMs: sess.DurationMs(),
			}
			b.handlers.Dispatch(sess, ended)
			if wire, err := ser.Serialize(ended); err == nil && wire != nil {
				_ = sess.Provider.Send(ctx, *wire)
			}
			return nil

		case "mark":
			sess.AddMark(ctl.Name)
			mark := event.Mark{
				Base: event.Base{CallID: sess.CallID(), Timestamp: event.Now()},
				Name: ctl.Name,
			}
			if wire, err := ser.Serialize(mark); err == nil && wire != nil {
				if err := sess.Provider.Send(ctx, *wire); err != nil {
					return fmt.Errorf("bridge: provider send: %w", err)
				}
			}

		default:
			b.log.Warn("unknown bot control frame",
				"session_id", sess.ID, "type", ctl.Type)
		}
	}
}

// failCodec ends the call with reason "codec_error" and surfaces the cause.
func (b *Bridge) failCodec(ctx context.Context, sess *session.CallSession, cause error) error {
	ended := event.CallEnded{
		Base:       event.Base{CallID: sess.CallID(), Timestamp: event.Now()},
		Reason:     "codec_error",
		DurationMs: sess.DurationMs(),
	}
	b.handlers.Dispatch(sess, ended)
	_ = b.sendBotControl(ctx, sess, botControl{Type: "stop", CallID: sess.CallID(), Reason: "codec_error"})
	if wire, err := sess.Serializer.Serialize(ended); err == nil && wire != nil {
		_ = sess.Provider.Send(ctx, *wire)
	}
	sess.End()
	return fmt.Errorf("bridge: codec: %w", cause)
}

func (b *Bridge) sendBotControl(ctx context.Context, sess *session.CallSession, ctl botControl) error {
	data, err := json.Marshal(ctl)
	if err != nil {
		return fmt.Errorf("bridge: marshal control: %w", err)
	}
	if err := sess.Bot.Send(ctx, transport.Text(data)); err != nil {
		return fmt.Errorf("bridge: bot send: %w", err)
	}
	return nil
}

func providerAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("provider", name))
}
