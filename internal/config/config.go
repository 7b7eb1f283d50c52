// Package config provides the configuration schema, loader, and provider
// registry for the VoxBridge server.
package config

// LogLevel controls log verbosity for the VoxBridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for VoxBridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Bot      BotConfig      `yaml:"bot"`
	Audio    AudioConfig    `yaml:"audio"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ServerConfig holds logging and TLS settings for the VoxBridge server.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the listen endpoint. When nil, the server runs
	// plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProviderConfig selects the telephony provider dialect and where to listen
// for its media stream connections.
type ProviderConfig struct {
	// Type is the provider name, e.g. "twilio" or "genesys". It selects the
	// wire serializer for accepted connections.
	Type string `yaml:"type"`

	// ListenHost is the interface to bind, e.g. "0.0.0.0".
	ListenHost string `yaml:"listen_host"`

	// ListenPort is the TCP port to bind.
	ListenPort int `yaml:"listen_port"`

	// ListenPath is the URL path the provider connects to.
	// Defaults to "/media-stream".
	ListenPath string `yaml:"listen_path"`
}

// BotConfig describes the voice-bot peer of the bridge: where to reach it and
// which audio format it speaks.
type BotConfig struct {
	// URL is the WebSocket endpoint dialed once per call ("ws://" or
	// "wss://"). Ignored when the built-in pipeline is enabled.
	URL string `yaml:"url"`

	// Codec is the audio codec on the bot leg: pcm16, mulaw, alaw or opus.
	Codec string `yaml:"codec"`

	// SampleRate is the bot-leg sample rate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`
}

// AudioConfig overrides the provider-leg audio format. Empty values fall back
// to the serializer's native codec and rate.
type AudioConfig struct {
	// InputCodec overrides the codec of provider→bridge audio.
	InputCodec string `yaml:"input_codec"`

	// OutputCodec overrides the codec of bridge→provider audio.
	OutputCodec string `yaml:"output_codec"`

	// SampleRate overrides the provider-leg sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`
}

// StageConfig selects one AI provider for a pipeline stage and carries its
// provider-specific settings.
type StageConfig struct {
	// Provider selects the registered implementation (e.g. "deepgram",
	// "openai", "elevenlabs").
	Provider string `yaml:"provider"`

	// Config holds provider-specific settings such as api_key, model or
	// voice_id. The factory registered for Provider interprets them.
	Config Settings `yaml:"config"`

	// Fallbacks lists additional providers tried in order when the primary
	// fails or its circuit breaker is open.
	Fallbacks []FallbackStage `yaml:"fallbacks"`
}

// FallbackStage is one fallback provider of a pipeline stage.
type FallbackStage struct {
	Provider string   `yaml:"provider"`
	Config   Settings `yaml:"config"`
}

// ToolConfig declares one function tool offered to the LLM.
type ToolConfig struct {
	// Name is the function name the model calls.
	Name string `yaml:"name"`

	// Description tells the model when to use the tool.
	Description string `yaml:"description"`

	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any `yaml:"parameters"`
}

// EscalationConfig tunes the human-handoff detector. Zero values select the
// built-in defaults.
type EscalationConfig struct {
	// Keywords are caller phrases that request a human directly.
	Keywords []string `yaml:"keywords"`

	// AngerPatterns are regular expressions matched against each turn.
	AngerPatterns []string `yaml:"anger_patterns"`

	// MaxTurns escalates any conversation that exceeds this many caller
	// turns.
	MaxTurns int `yaml:"max_turns"`

	// RepeatedQuestionWindow is how many recent turns are compared for
	// near-identical repeats.
	RepeatedQuestionWindow int `yaml:"repeated_question_window"`
}

// PipelineConfig configures the built-in STT → LLM → TTS voice bot. When
// Enabled is false the bridge dials Bot.URL instead.
type PipelineConfig struct {
	Enabled bool `yaml:"enabled"`

	STT StageConfig `yaml:"stt"`
	LLM StageConfig `yaml:"llm"`
	TTS StageConfig `yaml:"tts"`

	// SystemPrompt is the persona and instructions injected as the system
	// message of every conversation.
	SystemPrompt string `yaml:"system_prompt"`

	// FirstMessage, when set, is spoken as soon as the call starts.
	FirstMessage string `yaml:"first_message"`

	// Tools lists the function tools offered to the LLM.
	Tools []ToolConfig `yaml:"tools"`

	// EndCallPhrases end the call when the caller says one of them.
	EndCallPhrases []string `yaml:"end_call_phrases"`

	// LLMTemperature is the sampling temperature, in [0, 2].
	LLMTemperature float64 `yaml:"llm_temperature"`

	// LLMMaxTokens bounds each completion. Zero means provider default.
	LLMMaxTokens int `yaml:"llm_max_tokens"`

	// SilenceThresholdMs is the trailing silence that closes a caller turn.
	// Zero selects the 700 ms default.
	SilenceThresholdMs int `yaml:"silence_threshold_ms"`

	// InterruptionEnabled lets the caller barge in over bot speech.
	InterruptionEnabled bool `yaml:"interruption_enabled"`

	// BargeInThreshold is the PCM16 RMS energy above which an inbound frame
	// counts as caller speech. Zero selects the built-in default.
	BargeInThreshold float64 `yaml:"barge_in_threshold"`

	// BargeInMinFrames is the number of consecutive speech frames required
	// before a barge-in fires. Zero selects the built-in default.
	BargeInMinFrames int `yaml:"barge_in_min_frames"`

	// MaxCallDurationSeconds hard-stops a call. Zero selects the 1800 s
	// default.
	MaxCallDurationSeconds int `yaml:"max_call_duration_seconds"`

	// EscalationEnabled turns the human-handoff detector on.
	EscalationEnabled bool `yaml:"escalation_enabled"`

	// EscalationConfig tunes the detector.
	EscalationConfig EscalationConfig `yaml:"escalation_config"`
}
