package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/vastaa/internal/resilience"
	"github.com/MrWong99/vastaa/pkg/provider/llm"
	"github.com/MrWong99/vastaa/pkg/provider/stt"
	"github.com/MrWong99/vastaa/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt map[string]func(ProviderEntry) (stt.Provider, error)
	llm map[string]func(ProviderEntry) (llm.Provider, error)
	tts map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt: make(map[string]func(ProviderEntry) (stt.Provider, error)),
		llm: make(map[string]func(ProviderEntry) (llm.Provider, error)),
		tts: make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(r, r.llm, "llm", entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return create(r, r.tts, "tts", entry)
}

func create[T any](r *Registry, factories map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted provider names registered for kind ("stt",
// "llm" or "tts").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "stt":
		return slices.Sorted(maps.Keys(r.stt))
	case "llm":
		return slices.Sorted(maps.Keys(r.llm))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts))
	}
	return nil
}

// Providers is the provider set used by every conversation agent.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// Build creates the providers named in cfg. An entry with fallbacks is
// wrapped in the matching resilience fallback type, with one breaker per
// backend configured from fb.
func (r *Registry) Build(cfg ProvidersConfig, fb resilience.FallbackConfig) (*Providers, error) {
	var ps Providers
	var err error

	ps.STT, err = buildKind(cfg.STT, "stt", r.CreateSTT, func(p stt.Provider, name string) fallbackAdder[stt.Provider] {
		return resilience.NewSTTFallback(p, name, fb)
	})
	if err != nil {
		return nil, err
	}
	ps.LLM, err = buildKind(cfg.LLM, "llm", r.CreateLLM, func(p llm.Provider, name string) fallbackAdder[llm.Provider] {
		return resilience.NewLLMFallback(p, name, fb)
	})
	if err != nil {
		return nil, err
	}
	ps.TTS, err = buildKind(cfg.TTS, "tts", r.CreateTTS, func(p tts.Provider, name string) fallbackAdder[tts.Provider] {
		return resilience.NewTTSFallback(p, name, fb)
	})
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// fallbackAdder is implemented by the resilience fallback wrappers. The
// wrapper itself satisfies the provider interface T.
type fallbackAdder[T any] interface {
	AddFallback(name string, p T)
}

func buildKind[T any](entry ProviderEntry, kind string, create func(ProviderEntry) (T, error), wrap func(T, string) fallbackAdder[T]) (T, error) {
	var zero T
	primary, err := create(entry)
	if err != nil {
		return zero, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	names := map[string]int{}
	label := func(name string) string {
		names[name]++
		if n := names[name]; n > 1 {
			return fmt.Sprintf("%s/%s#%d", kind, name, n)
		}
		return kind + "/" + name
	}

	group := wrap(primary, label(entry.Name))
	for i, fe := range entry.Fallbacks {
		p, err := create(fe)
		if err != nil {
			return zero, fmt.Errorf("create %s fallback %d %q: %w", kind, i, fe.Name, err)
		}
		group.AddFallback(label(fe.Name), p)
	}
	return group.(T), nil
}
