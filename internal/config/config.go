// Package config provides the configuration schema, loader, and provider
// registry for the Vastaa voice server.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/vastaa/internal/agent"
	"github.com/MrWong99/vastaa/pkg/audio/framebuf"
	"github.com/MrWong99/vastaa/pkg/provider/vad"
)

// LogLevel controls log verbosity for the server.
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

// Slog returns the matching slog level. Unknown levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Server defaults.
const (
	DefaultListenAddr     = ":8080"
	DefaultAllowedOrigin  = "localhost:3000"
	DefaultStatusInterval = 500 * time.Millisecond
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader],
// which apply [Config.ApplyDefaults] before validating.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Agent      AgentConfig      `yaml:"agent"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Providers  ProvidersConfig  `yaml:"providers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins are the host patterns accepted in the WebSocket Origin
	// header (e.g., "localhost:3000", "*.example.com").
	AllowedOrigins []string `yaml:"allowed_origins"`

	// StatusInterval is how often agent status is pushed to clients.
	StatusInterval time.Duration `yaml:"status_interval"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig controls framing of playback audio.
type AudioConfig struct {
	// DefaultSampleRate is used for clients that do not request a rate.
	DefaultSampleRate int `yaml:"default_sample_rate"`

	// FrameDuration is the length of one playback frame.
	FrameDuration time.Duration `yaml:"frame_duration"`

	// MaxPlayback caps the audio a single reply may queue.
	MaxPlayback time.Duration `yaml:"max_playback"`

	// EmitSilence sends silent frames while nothing is queued instead of
	// sending nothing.
	EmitSilence bool `yaml:"emit_silence"`
}

// VADConfig holds the initial voice activity detection settings for every
// new session. Threshold can later be changed per session by the client or
// for all sessions by a config reload.
type VADConfig struct {
	Threshold    float64       `yaml:"threshold"`
	EnergyWindow time.Duration `yaml:"energy_window"`
	MinSpeech    time.Duration `yaml:"min_speech"`
	MaxBuffer    time.Duration `yaml:"max_buffer"`
}

// Session returns the VAD session config for a stream at sampleRate.
func (c VADConfig) Session(sampleRate int) vad.Config {
	return vad.Config{
		SampleRate:   sampleRate,
		Threshold:    c.Threshold,
		EnergyWindow: c.EnergyWindow,
		MinSpeech:    c.MinSpeech,
		MaxBuffer:    c.MaxBuffer,
	}
}

// AgentConfig tunes the conversation turn. Zero values select the agent
// package defaults.
type AgentConfig struct {
	// Language is the ISO-639-1 code passed to speech recognition.
	Language string `yaml:"language"`

	// SystemPrompt is prepended to every completion request.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature is the sampling temperature. Absent selects
	// agent.DefaultTemperature; an explicit 0 is sent as is.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens caps the reply length.
	MaxTokens int `yaml:"max_tokens"`

	// PlaybackGrace is added to the reply duration before the agent listens
	// again.
	PlaybackGrace time.Duration `yaml:"playback_grace"`

	STTTimeout time.Duration `yaml:"stt_timeout"`
	LLMTimeout time.Duration `yaml:"llm_timeout"`
	TTSTimeout time.Duration `yaml:"tts_timeout"`
}

// ResilienceConfig tunes the circuit breakers placed in front of every
// provider that has fallbacks configured.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open. Fallback entries may not have fallbacks of their own.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// StringOption returns Options[key] if it is a string, or "".
func (e ProviderEntry) StringOption(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// DurationOption returns Options[key] parsed as a duration, or 0 when the
// key is absent or malformed.
func (e ProviderEntry) DurationOption(key string) time.Duration {
	d, err := time.ParseDuration(e.StringOption(key))
	if err != nil {
		return 0
	}
	return d
}

// Default returns a config with every default applied and no providers.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero field that has a default.
func (c *Config) ApplyDefaults() {
	s := &c.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	if s.StatusInterval == 0 {
		s.StatusInterval = DefaultStatusInterval
	}

	a := &c.Audio
	if a.DefaultSampleRate == 0 {
		a.DefaultSampleRate = framebuf.DefaultSampleRate
	}
	if a.FrameDuration == 0 {
		a.FrameDuration = framebuf.DefaultFrameDuration
	}
	if a.MaxPlayback == 0 {
		a.MaxPlayback = framebuf.DefaultMaxDuration
	}

	v := &c.VAD
	if v.Threshold == 0 {
		v.Threshold = vad.DefaultThreshold
	}
	if v.EnergyWindow == 0 {
		v.EnergyWindow = vad.DefaultEnergyWindow
	}
	if v.MinSpeech == 0 {
		v.MinSpeech = vad.DefaultMinSpeech
	}
	if v.MaxBuffer == 0 {
		v.MaxBuffer = vad.DefaultMaxBuffer
	}

	g := &c.Agent
	if g.Language == "" {
		g.Language = agent.DefaultLanguage
	}
	if g.SystemPrompt == "" {
		g.SystemPrompt = agent.DefaultSystemPrompt
	}
	if g.Temperature == nil {
		t := agent.DefaultTemperature
		g.Temperature = &t
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = agent.DefaultMaxTokens
	}
	if g.PlaybackGrace == 0 {
		g.PlaybackGrace = agent.DefaultPlaybackGrace
	}
	for _, d := range []*time.Duration{&g.STTTimeout, &g.LLMTimeout, &g.TTSTimeout} {
		if *d == 0 {
			*d = agent.DefaultCallTimeout
		}
	}
}
