package main

import (
	"log/slog"
	"os"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/vastaa/internal/config"
	"github.com/MrWong99/vastaa/pkg/provider/llm"
	"github.com/MrWong99/vastaa/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/vastaa/pkg/provider/llm/openai"
	"github.com/MrWong99/vastaa/pkg/provider/stt"
	oaistt "github.com/MrWong99/vastaa/pkg/provider/stt/openai"
	"github.com/MrWong99/vastaa/pkg/provider/stt/whisper"
	"github.com/MrWong99/vastaa/pkg/provider/tts"
	"github.com/MrWong99/vastaa/pkg/provider/tts/coqui"
	oaitts "github.com/MrWong99/vastaa/pkg/provider/tts/openai"
)

// anyLLMBackends are served through any-llm-go. "openai" has its own
// factory built on openai-go.
var anyLLMBackends = []string{"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if e.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(e.BaseURL))
		}
		if org := organization(e); org != "" {
			opts = append(opts, oaistt.WithOrganization(org))
		}
		if lang := e.StringOption("language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if d := e.DurationOption("timeout"); d > 0 {
			opts = append(opts, oaistt.WithTimeout(d))
		}
		return oaistt.New(e.APIKey, e.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := e.StringOption("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if e.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(e.BaseURL))
		}
		if org := organization(e); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d := e.DurationOption("timeout"); d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		return oaillm.New(e.APIKey, e.Model, opts...)
	})

	// The any-llm-go backends share one pattern: optional APIKey + optional
	// BaseURL. ollama is local and ignores the key.
	for _, backend := range anyLLMBackends {
		reg.RegisterLLM(backend, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(backend, e.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if e.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(e.BaseURL))
		}
		if org := organization(e); org != "" {
			opts = append(opts, oaitts.WithOrganization(org))
		}
		if voice := e.StringOption("voice"); voice != "" {
			opts = append(opts, oaitts.WithVoice(voice))
		}
		if d := e.DurationOption("timeout"); d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(e.APIKey, e.Model, opts...)
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := e.StringOption("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := e.StringOption("speaker_id"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if mode := e.StringOption("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if d := e.DurationOption("timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	for _, kind := range []string{"stt", "llm", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// organization returns the entry's organization option, falling back to
// OPENAI_ORGANIZATION.
func organization(e config.ProviderEntry) string {
	if org := e.StringOption("organization"); org != "" {
		return org
	}
	return os.Getenv("OPENAI_ORGANIZATION")
}
