// Package app wires all VoxBridge subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the provider listen endpoint until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithBotDialer,
// WithListener, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxbridge/voxbridge/internal/bridge"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/health"
	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/pipeline"
	"github.com/voxbridge/voxbridge/internal/resilience"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/llm"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
	"github.com/voxbridge/voxbridge/pkg/provider/tts"
	"github.com/voxbridge/voxbridge/pkg/serializer"
	"github.com/voxbridge/voxbridge/pkg/transport"
)

// shutdownGrace is how long Run waits for in-flight calls after the HTTP
// listener stops accepting.
const shutdownGrace = 10 * time.Second

// maxConcurrentCalls is the active-call count at which /readyz starts
// reporting 503 so a load balancer routes new calls elsewhere. Calls already
// in progress are not affected.
const maxConcurrentCalls = 500

// App owns all subsystem lifetimes and serves the provider media-stream
// endpoint.
type App struct {
	cfg *config.Config

	serializers *serializer.Registry
	codecs      *audio.Registry
	store       *session.Store
	handlers    *bridge.Handlers
	metrics     *observe.Metrics
	bridge      *bridge.Bridge

	dialBot  bridge.BotDialer
	listener net.Listener
	server   *http.Server

	// toolExecutor runs LLM tool calls when the built-in pipeline is enabled.
	toolExecutor pipeline.ToolExecutor

	// closers are called in order during Shutdown.
	closers []func() error

	// calls tracks in-flight HandleConnection goroutines.
	calls sync.WaitGroup

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBotDialer injects the bot-side transport factory, overriding both the
// configured bot.url dialer and the built-in pipeline.
func WithBotDialer(d bridge.BotDialer) Option {
	return func(a *App) { a.dialBot = d }
}

// WithListener injects a pre-bound listener instead of binding
// provider.listen_host:listen_port. Useful for tests on port 0.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithHandlers injects an event handler set for call observation.
func WithHandlers(h *bridge.Handlers) Option {
	return func(a *App) { a.handlers = h }
}

// WithMetrics injects a metrics set instead of the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithToolExecutor installs the function that runs LLM tool calls when the
// built-in pipeline is enabled.
func WithToolExecutor(exec pipeline.ToolExecutor) Option {
	return func(a *App) { a.toolExecutor = exec }
}

// New creates an App by wiring all subsystems together. providers is the AI
// provider registry consulted when pipeline.enabled is true; it may be nil
// otherwise.
func New(ctx context.Context, cfg *config.Config, providers *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:         cfg,
		serializers: serializer.NewRegistry(),
		codecs:      audio.NewRegistry(),
		store:       session.NewStore(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.handlers == nil {
		a.handlers = bridge.NewHandlers()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if !a.serializers.Known(cfg.Provider.Type) {
		return nil, fmt.Errorf("app: unknown provider type %q; known: %v", cfg.Provider.Type, a.serializers.Names())
	}

	botCodec, err := audio.ParseCodec(cfg.Bot.Codec)
	if err != nil {
		return nil, fmt.Errorf("app: bot codec: %w", err)
	}

	if a.dialBot == nil {
		if cfg.Pipeline.Enabled {
			dialer, err := a.buildPipelineDialer(cfg, providers, botCodec)
			if err != nil {
				return nil, err
			}
			a.dialBot = dialer
		} else {
			url := cfg.Bot.URL
			a.dialBot = withRetry(func(ctx context.Context) (transport.Transport, error) {
				c := transport.NewClient(url)
				if err := c.Connect(ctx); err != nil {
					return nil, err
				}
				return c, nil
			}, 0, 0, 0)
		}
	}

	serCfg := serializer.Config{SampleRate: cfg.Audio.SampleRate}
	if cfg.Audio.InputCodec != "" {
		// Codec strings were validated during config load.
		serCfg.Codec, _ = audio.ParseCodec(cfg.Audio.InputCodec)
	}
	var outCodec audio.Codec
	if cfg.Audio.OutputCodec != "" {
		outCodec, _ = audio.ParseCodec(cfg.Audio.OutputCodec)
	}

	a.bridge = bridge.New(bridge.Options{
		Provider:         cfg.Provider.Type,
		SerializerConfig: serCfg,
		BotCodec:         botCodec,
		OutputCodec:      outCodec,
		BotRate:          cfg.Bot.SampleRate,
		BargeInEnabled:   cfg.Pipeline.InterruptionEnabled,
		BargeInThreshold: cfg.Pipeline.BargeInThreshold,
		BargeInFrames:    cfg.Pipeline.BargeInMinFrames,
	}, a.serializers, a.codecs, a.store, a.handlers, a.dialBot, a.metrics)

	a.buildServer()
	return a, nil
}

// buildPipelineDialer instantiates the configured AI providers once and
// returns a dialer that creates a fresh in-process orchestrator per call.
func (a *App) buildPipelineDialer(cfg *config.Config, providers *config.Registry, botCodec audio.Codec) (bridge.BotDialer, error) {
	if providers == nil {
		return nil, errors.New("app: pipeline.enabled requires a provider registry")
	}

	p := cfg.Pipeline
	sttProv, err := buildSTT(providers, p.STT, a.fallbackConfig("stt"))
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider %q: %w", p.STT.Provider, err)
	}
	llmProv, err := buildLLM(providers, p.LLM, a.fallbackConfig("llm"))
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", p.LLM.Provider, err)
	}
	ttsProv, err := buildTTS(providers, p.TTS, a.fallbackConfig("tts"))
	if err != nil {
		return nil, fmt.Errorf("app: create tts provider %q: %w", p.TTS.Provider, err)
	}
	slog.Info("pipeline providers created",
		"stt", p.STT.Provider, "llm", p.LLM.Provider, "tts", p.TTS.Provider)

	tools := make([]llm.ToolDefinition, 0, len(p.Tools))
	for _, t := range p.Tools {
		tools = append(tools, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}

	pipeCfg := pipeline.Config{
		STT:              sttProv,
		LLM:              llmProv,
		TTS:              ttsProv,
		SystemPrompt:     p.SystemPrompt,
		FirstMessage:     p.FirstMessage,
		Tools:            tools,
		ToolExecutor:     a.toolExecutor,
		EndCallPhrases:   p.EndCallPhrases,
		Temperature:      p.LLMTemperature,
		MaxTokens:        p.LLMMaxTokens,
		SilenceThreshold: time.Duration(p.SilenceThresholdMs) * time.Millisecond,
		MaxCallDuration:  time.Duration(p.MaxCallDurationSeconds) * time.Second,
		Escalation: pipeline.EscalationConfig{
			Enabled:                   p.EscalationEnabled,
			Keywords:                  p.EscalationConfig.Keywords,
			AngerPatterns:             p.EscalationConfig.AngerPatterns,
			MaxTurnsBeforeEscalation:  p.EscalationConfig.MaxTurns,
			RepeatedQuestionThreshold: p.EscalationConfig.RepeatedQuestionWindow,
		},
		BotCodec: botCodec,
		BotRate:  cfg.Bot.SampleRate,
		Codecs:   a.codecs,
		Metrics:  a.metrics,
	}

	return func(ctx context.Context) (transport.Transport, error) {
		orch, err := pipeline.New(pipeCfg)
		if err != nil {
			return nil, err
		}
		if err := orch.Connect(ctx); err != nil {
			return nil, err
		}
		return orch, nil
	}, nil
}

// fallbackConfig builds the failover group configuration for one pipeline
// stage, with breaker state changes recorded as metrics.
func (a *App) fallbackConfig(stage string) resilience.FallbackConfig {
	m := a.metrics
	return resilience.FallbackConfig{
		Stage: stage,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), stage, name, to.String())
			},
		},
	}
}

// buildSTT creates the primary STT provider and, when fallbacks are
// configured, wraps it in a circuit-breaking failover group.
func buildSTT(reg *config.Registry, stage config.StageConfig, fbCfg resilience.FallbackConfig) (stt.Provider, error) {
	primary, err := reg.CreateSTT(stage)
	if err != nil || len(stage.Fallbacks) == 0 {
		return primary, err
	}
	group := resilience.NewSTTFallback(primary, stage.Provider, fbCfg)
	for _, fb := range stage.Fallbacks {
		p, err := reg.CreateSTT(config.StageConfig{Provider: fb.Provider, Config: fb.Config})
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Provider, err)
		}
		group.AddFallback(fb.Provider, p)
	}
	return group, nil
}

func buildLLM(reg *config.Registry, stage config.StageConfig, fbCfg resilience.FallbackConfig) (llm.Provider, error) {
	primary, err := reg.CreateLLM(stage)
	if err != nil || len(stage.Fallbacks) == 0 {
		return primary, err
	}
	group := resilience.NewLLMFallback(primary, stage.Provider, fbCfg)
	for _, fb := range stage.Fallbacks {
		p, err := reg.CreateLLM(config.StageConfig{Provider: fb.Provider, Config: fb.Config})
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Provider, err)
		}
		group.AddFallback(fb.Provider, p)
	}
	return group, nil
}

func buildTTS(reg *config.Registry, stage config.StageConfig, fbCfg resilience.FallbackConfig) (tts.Provider, error) {
	primary, err := reg.CreateTTS(stage)
	if err != nil || len(stage.Fallbacks) == 0 {
		return primary, err
	}
	group := resilience.NewTTSFallback(primary, stage.Provider, fbCfg)
	for _, fb := range stage.Fallbacks {
		p, err := reg.CreateTTS(config.StageConfig{Provider: fb.Provider, Config: fb.Config})
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Provider, err)
		}
		group.AddFallback(fb.Provider, p)
	}
	return group, nil
}

// buildServer assembles the HTTP mux: the provider media-stream endpoint,
// Prometheus metrics, and health probes.
func (a *App) buildServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+a.cfg.Provider.ListenPath, a.handleMediaStream)
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(health.CallCapacity(a.store.ActiveCount, maxConcurrentCalls))
	h.Register(mux)

	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// handleMediaStream upgrades a provider connection and runs the bridge loop
// until the call ends.
func (a *App) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	a.calls.Add(1)
	defer a.calls.Done()

	t := transport.NewServer(conn)
	if err := a.bridge.HandleConnection(r.Context(), t); err != nil {
		slog.Info("call ended with error", "remote", r.RemoteAddr, "err", err)
	}
}

// Bridge exposes the bridge, e.g. for registering handlers in tests.
func (a *App) Bridge() *bridge.Bridge { return a.bridge }

// Store exposes the session store.
func (a *App) Store() *session.Store { return a.store }

// Addr returns the bound listen address. Valid after Run has started the
// listener, or immediately when one was injected.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Run binds the provider listen endpoint and serves until ctx is cancelled.
// It returns nil on graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	if a.listener == nil {
		addr := fmt.Sprintf("%s:%d", a.cfg.Provider.ListenHost, a.cfg.Provider.ListenPort)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		a.listener = l
	}

	slog.Info("voxbridge listening",
		"addr", a.Addr(),
		"path", a.cfg.Provider.ListenPath,
		"provider", a.cfg.Provider.Type,
		"tls", a.cfg.Server.TLS != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(a.listener)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops accepting connections, waits for in-flight calls up to the
// context deadline, and runs all closers.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "active_calls", a.store.ActiveCount())

		shCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(shCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		done := make(chan struct{})
		go func() {
			a.calls.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded with calls in flight")
			shutdownErr = ctx.Err()
		}

		for i, closer := range a.closers {
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
