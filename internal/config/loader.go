package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/vastaa/pkg/audio"
)

// ValidProviderNames lists the built-in provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"openai", "whisper"},
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader expands ${VAR} references, decodes YAML from r, applies
// defaults and validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${VAR} in b with the value of the environment
// variable VAR. Unset variables expand to the empty string. A bare $VAR is
// left alone so values such as passwords may contain '$'.
func ExpandEnv(b []byte) []byte {
	return envRef.ReplaceAllFunc(b, func(m []byte) []byte {
		name := string(envRef.FindSubmatch(m)[1])
		v, ok := os.LookupEnv(name)
		if !ok {
			slog.Warn("config references unset environment variable", "name", name)
		}
		return []byte(v)
	})
}

// Validate checks that cfg contains a coherent set of values. Defaults
// must already be applied. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.StatusInterval < 0 {
		errs = append(errs, fmt.Errorf("server.status_interval %v must be positive", cfg.Server.StatusInterval))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if r := cfg.Audio.DefaultSampleRate; r < audio.MinSampleRate || r > audio.MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.default_sample_rate %d is out of range [%d, %d]", r, audio.MinSampleRate, audio.MaxSampleRate))
	}
	if cfg.Audio.FrameDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration %v must be positive", cfg.Audio.FrameDuration))
	}
	if cfg.Audio.MaxPlayback < cfg.Audio.FrameDuration {
		errs = append(errs, fmt.Errorf("audio.max_playback %v is shorter than one frame (%v)", cfg.Audio.MaxPlayback, cfg.Audio.FrameDuration))
	}

	// VAD
	if err := cfg.VAD.Session(cfg.Audio.DefaultSampleRate).Validate(); err != nil {
		errs = append(errs, err)
	}

	// Agent
	if t := cfg.Agent.Temperature; t != nil && (*t < 0 || *t > 2 || math.IsNaN(*t)) {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Agent.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tokens %d must be positive", cfg.Agent.MaxTokens))
	}
	if cfg.Agent.PlaybackGrace < 0 {
		errs = append(errs, fmt.Errorf("agent.playback_grace %v must not be negative", cfg.Agent.PlaybackGrace))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	// Providers
	errs = append(errs, validateEntry("stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntry("tts", cfg.Providers.TTS)...)

	return errors.Join(errs...)
}

func validateEntry(kind string, e ProviderEntry) []error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, fmt.Errorf("providers.%s.name is required", kind))
	}
	validateProviderName(kind, e.Name)
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s: fallbacks cannot be nested", prefix))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
