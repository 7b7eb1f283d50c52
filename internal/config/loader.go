package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// DefaultListenPath is the URL path providers connect to when
// provider.listen_path is not set.
const DefaultListenPath = "/media-stream"

// ValidProviderNames lists known names per pipeline stage. Used by [Validate]
// to warn about likely typos; unknown names are not fatal so third-party
// registrations keep working.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "mock"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "mock"},
	"tts": {"elevenlabs", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unrecognised keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills in the documented default values for fields left empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Provider.ListenHost == "" {
		cfg.Provider.ListenHost = "0.0.0.0"
	}
	if cfg.Provider.ListenPort == 0 {
		cfg.Provider.ListenPort = 8080
	}
	if cfg.Provider.ListenPath == "" {
		cfg.Provider.ListenPath = DefaultListenPath
	}
	if cfg.Bot.Codec == "" {
		cfg.Bot.Codec = string(audio.PCM16)
	}
	if cfg.Bot.SampleRate == 0 {
		cfg.Bot.SampleRate = 16000
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Provider.Type == "" {
		errs = append(errs, errors.New("provider.type is required"))
	}
	if cfg.Provider.ListenPort < 1 || cfg.Provider.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("provider.listen_port %d is out of range [1, 65535]", cfg.Provider.ListenPort))
	}
	if !strings.HasPrefix(cfg.Provider.ListenPath, "/") {
		errs = append(errs, fmt.Errorf("provider.listen_path %q must start with '/'", cfg.Provider.ListenPath))
	}

	if _, err := audio.ParseCodec(cfg.Bot.Codec); err != nil {
		errs = append(errs, fmt.Errorf("bot.codec %q is invalid; valid values: pcm16, mulaw, alaw, opus", cfg.Bot.Codec))
	}
	if cfg.Bot.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("bot.sample_rate %d must be positive", cfg.Bot.SampleRate))
	}

	if cfg.Audio.InputCodec != "" {
		if _, err := audio.ParseCodec(cfg.Audio.InputCodec); err != nil {
			errs = append(errs, fmt.Errorf("audio.input_codec %q is invalid", cfg.Audio.InputCodec))
		}
	}
	if cfg.Audio.OutputCodec != "" {
		if _, err := audio.ParseCodec(cfg.Audio.OutputCodec); err != nil {
			errs = append(errs, fmt.Errorf("audio.output_codec %q is invalid", cfg.Audio.OutputCodec))
		}
	}
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}

	if cfg.Pipeline.Enabled {
		errs = append(errs, validatePipeline(&cfg.Pipeline)...)
		if cfg.Bot.URL != "" {
			slog.Warn("bot.url is ignored while pipeline.enabled is true")
		}
	} else {
		if cfg.Bot.URL == "" {
			errs = append(errs, errors.New("bot.url is required when pipeline.enabled is false"))
		} else if !strings.HasPrefix(cfg.Bot.URL, "ws://") && !strings.HasPrefix(cfg.Bot.URL, "wss://") {
			errs = append(errs, fmt.Errorf("bot.url %q must use the ws:// or wss:// scheme", cfg.Bot.URL))
		}
	}

	return errors.Join(errs...)
}

func validatePipeline(p *PipelineConfig) []error {
	var errs []error

	if p.STT.Provider == "" {
		errs = append(errs, errors.New("pipeline.stt.provider is required when the pipeline is enabled"))
	}
	if p.LLM.Provider == "" {
		errs = append(errs, errors.New("pipeline.llm.provider is required when the pipeline is enabled"))
	}
	if p.TTS.Provider == "" {
		errs = append(errs, errors.New("pipeline.tts.provider is required when the pipeline is enabled"))
	}
	validateProviderName("stt", p.STT.Provider)
	validateProviderName("llm", p.LLM.Provider)
	validateProviderName("tts", p.TTS.Provider)

	if p.LLMTemperature < 0 || p.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("pipeline.llm_temperature %.2f is out of range [0, 2]", p.LLMTemperature))
	}
	if p.LLMMaxTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.llm_max_tokens %d must not be negative", p.LLMMaxTokens))
	}
	if p.SilenceThresholdMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.silence_threshold_ms %d must not be negative", p.SilenceThresholdMs))
	}
	if p.MaxCallDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_call_duration_seconds %d must not be negative", p.MaxCallDurationSeconds))
	}
	if p.BargeInThreshold < 0 {
		errs = append(errs, fmt.Errorf("pipeline.barge_in_threshold %.1f must not be negative", p.BargeInThreshold))
	}
	if p.BargeInMinFrames < 0 {
		errs = append(errs, fmt.Errorf("pipeline.barge_in_min_frames %d must not be negative", p.BargeInMinFrames))
	}

	for i, tool := range p.Tools {
		if tool.Name == "" {
			errs = append(errs, fmt.Errorf("pipeline.tools[%d].name is required", i))
		}
	}
	for stage, fallbacks := range map[string][]FallbackStage{
		"stt": p.STT.Fallbacks, "llm": p.LLM.Fallbacks, "tts": p.TTS.Fallbacks,
	} {
		for i, fb := range fallbacks {
			if fb.Provider == "" {
				errs = append(errs, fmt.Errorf("pipeline.%s.fallbacks[%d].provider is required", stage, i))
			}
			validateProviderName(stage, fb.Provider)
		}
	}

	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given stage.
func validateProviderName(stage, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[stage]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"stage", stage,
		"name", name,
		"known", known,
	)
}
