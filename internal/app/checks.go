package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/vastaa/internal/resilience"
	"github.com/MrWong99/vastaa/internal/session"
)

// breakerSet is implemented by the resilience fallback providers.
type breakerSet interface {
	Names() []string
	Breaker(name string) *resilience.CircuitBreaker
}

func (a *App) checkSessions(context.Context) error {
	if !a.registry.Accepting() {
		return session.ErrClosed
	}
	return nil
}

// checkProviders fails when every backend of a fallback provider has an
// open breaker. Plain providers are not probed.
func (a *App) checkProviders(context.Context) error {
	var errs []error
	for kind, p := range map[string]any{
		"stt": a.providers.STT,
		"llm": a.providers.LLM,
		"tts": a.providers.TTS,
	} {
		set, ok := p.(breakerSet)
		if !ok {
			continue
		}
		if allOpen(set) {
			errs = append(errs, fmt.Errorf("%s: every backend circuit is open", kind))
		}
	}
	return errors.Join(errs...)
}

func allOpen(set breakerSet) bool {
	for _, name := range set.Names() {
		if cb := set.Breaker(name); cb != nil && cb.State() != resilience.StateOpen {
			return false
		}
	}
	return true
}
