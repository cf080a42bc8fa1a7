package main

import (
	"errors"
	"net"
	"net/url"
	"slices"
	"testing"

	"github.com/MrWong99/vastaa/internal/config"
	"github.com/MrWong99/vastaa/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/vastaa/pkg/provider/llm/openai"
	oaistt "github.com/MrWong99/vastaa/pkg/provider/stt/openai"
	"github.com/MrWong99/vastaa/pkg/provider/stt/whisper"
	"github.com/MrWong99/vastaa/pkg/provider/tts/coqui"
	oaitts "github.com/MrWong99/vastaa/pkg/provider/tts/openai"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	t.Run("stt", func(t *testing.T) {
		t.Parallel()
		p, err := reg.CreateSTT(config.ProviderEntry{Name: "openai", APIKey: "sk-test"})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := p.(*oaistt.Provider); !ok {
			t.Errorf("openai stt = %T", p)
		}

		p, err = reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081", Model: "base"})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := p.(*whisper.Provider); !ok {
			t.Errorf("whisper stt = %T", p)
		}

		if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); err == nil {
			t.Error("whisper without base_url should fail")
		}
	})

	t.Run("llm", func(t *testing.T) {
		t.Parallel()
		p, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := p.(*oaillm.Provider); !ok {
			t.Errorf("openai llm = %T", p)
		}

		p, err = reg.CreateLLM(config.ProviderEntry{Name: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.1"})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := p.(*anyllm.Provider); !ok {
			t.Errorf("ollama llm = %T", p)
		}

		for _, name := range anyLLMBackends {
			if got := reg.Names("llm"); !slices.Contains(got, name) {
				t.Errorf("llm backend %q not registered (have %v)", name, got)
			}
		}
	})

	t.Run("tts", func(t *testing.T) {
		t.Parallel()
		p, err := reg.CreateTTS(config.ProviderEntry{Name: "openai", BaseURL: "http://localhost:9000/v1", Options: map[string]any{"voice": "nova"}})
		if err != nil {
			t.Fatalf("openai tts with base URL: %v", err)
		}
		if got, ok := p.(*oaitts.Provider); !ok {
			t.Errorf("openai tts = %T", p)
		} else if got.BaseURL() != "http://localhost:9000/v1" {
			t.Errorf("BaseURL = %q, want configured value", got.BaseURL())
		}

		if _, err := reg.CreateTTS(config.ProviderEntry{Name: "openai"}); err == nil {
			t.Error("openai tts without api_key or base_url should fail")
		}

		p, err = reg.CreateTTS(config.ProviderEntry{
			Name:    "coqui",
			BaseURL: "http://localhost:5002",
			Options: map[string]any{"language": "fi", "speaker_id": "p225", "timeout": "5s"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := p.(*coqui.Provider); !ok {
			t.Errorf("coqui tts = %T", p)
		}

		_, err = reg.CreateTTS(config.ProviderEntry{Name: "coqui", BaseURL: "http://x", Options: map[string]any{"api_mode": "bogus"}})
		if err == nil {
			t.Error("coqui with unknown api_mode should fail")
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("err = %v, want ErrProviderNotRegistered", err)
		}
	})
}

func TestOpenAITTSDefaultsToHostedAPI(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, err := reg.CreateTTS(config.ProviderEntry{Name: "openai", APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}
	got := p.(*oaitts.Provider).BaseURL()
	if got != oaitts.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", got, oaitts.DefaultBaseURL)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	listen := config.Default().Server.ListenAddr
	_, listenPort, _ := net.SplitHostPort(listen)
	if host := u.Hostname(); (host == "localhost" || host == "127.0.0.1" || host == "") && u.Port() == listenPort {
		t.Errorf("speech endpoint %q points at the server's own listener %q", got, listen)
	}
}

func TestOrganization(t *testing.T) {
	t.Setenv("OPENAI_ORGANIZATION", "org-env")

	if got := organization(config.ProviderEntry{}); got != "org-env" {
		t.Errorf("organization() = %q, want org-env", got)
	}
	e := config.ProviderEntry{Options: map[string]any{"organization": "org-cfg"}}
	if got := organization(e); got != "org-cfg" {
		t.Errorf("organization() = %q, want org-cfg", got)
	}
}
