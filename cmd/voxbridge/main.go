// Command voxbridge is the main entry point for the VoxBridge telephony
// bridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxbridge/voxbridge/internal/app"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/llm"
	"github.com/voxbridge/voxbridge/pkg/provider/llm/anyllm"
	"github.com/voxbridge/voxbridge/pkg/provider/llm/openai"
	"github.com/voxbridge/voxbridge/pkg/provider/stt"
	"github.com/voxbridge/voxbridge/pkg/provider/stt/deepgram"
	"github.com/voxbridge/voxbridge/pkg/provider/tts"
	"github.com/voxbridge/voxbridge/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxbridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxbridge: %v\n", err)
		}
		return 1
	}

	// The LevelVar lets the config watcher adjust verbosity at runtime.
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voxbridge starting",
		"config", *configPath,
		"provider", cfg.Provider.Type,
		"listen", fmt.Sprintf("%s:%d%s", cfg.Provider.ListenHost, cfg.Provider.ListenPort, cfg.Provider.ListenPath),
		"pipeline", cfg.Pipeline.Enabled,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxbridge",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// Watch the config file so a log-level edit takes effect without restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.PersonaChanged || d.EscalationChanged {
			slog.Info("pipeline changes detected — they apply after restart")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders are the LLM vendors reached through the any-llm backend.
// They share the same pattern: optional api_key + optional base_url.
var anyllmProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.StageConfig and constructs the provider from
// the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(stage config.StageConfig) (stt.Provider, error) {
		var opts []deepgram.Option
		if model := stage.Config.String("model"); model != "" {
			opts = append(opts, deepgram.WithModel(model))
		}
		if lang := stage.Config.String("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := stage.Config.Int("sample_rate"); rate != 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if codec := stage.Config.String("codec"); codec != "" {
			c, err := audio.ParseCodec(codec)
			if err != nil {
				return nil, err
			}
			opts = append(opts, deepgram.WithCodec(c))
		}
		if ms := stage.Config.Int("utterance_end_ms"); ms != 0 {
			opts = append(opts, deepgram.WithUtteranceEnd(ms))
		}
		return deepgram.New(stage.Config.String("api_key"), opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai goes through the official SDK for true streamed tool-call deltas.
	reg.RegisterLLM("openai", func(stage config.StageConfig) (llm.Provider, error) {
		var opts []openai.Option
		if base := stage.Config.String("base_url"); base != "" {
			opts = append(opts, openai.WithBaseURL(base))
		}
		if org := stage.Config.String("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(stage.Config.String("api_key"), stage.Config.String("model"), opts...)
	})

	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(stage config.StageConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if key := stage.Config.String("api_key"); key != "" {
				opts = append(opts, anyllmlib.WithAPIKey(key))
			}
			if base := stage.Config.String("base_url"); base != "" {
				opts = append(opts, anyllmlib.WithBaseURL(base))
			}
			return anyllm.New(providerName, stage.Config.String("model"), opts...)
		})
	}

	// ollama is a local server; it uses base_url for the address, not a key.
	reg.RegisterLLM("ollama", func(stage config.StageConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if base := stage.Config.String("base_url"); base != "" {
			opts = append(opts, anyllmlib.WithBaseURL(base))
		}
		return anyllm.New("ollama", stage.Config.String("model"), opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(stage config.StageConfig) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if model := stage.Config.String("model"); model != "" {
			opts = append(opts, elevenlabs.WithModel(model))
		}
		if format := stage.Config.String("output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(stage.Config.String("api_key"), stage.Config.String("voice_id"), opts...)
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        VoxBridge — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", cfg.Provider.Type)
	printRow("Listen", fmt.Sprintf("%s:%d", cfg.Provider.ListenHost, cfg.Provider.ListenPort))
	printRow("Path", cfg.Provider.ListenPath)
	printRow("Bot codec", fmt.Sprintf("%s @ %d Hz", cfg.Bot.Codec, cfg.Bot.SampleRate))
	if cfg.Pipeline.Enabled {
		printRow("Pipeline", "enabled")
		printRow("STT", cfg.Pipeline.STT.Provider)
		printRow("LLM", cfg.Pipeline.LLM.Provider)
		printRow("TTS", cfg.Pipeline.TTS.Provider)
	} else {
		printRow("Pipeline", "(disabled)")
		printRow("Bot URL", cfg.Bot.URL)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 23 {
		value = value[:20] + "…"
	}
	fmt.Printf("║  %-10s : %-23s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
