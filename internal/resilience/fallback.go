package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend in a [FallbackGroup] produced a
// result. It wraps the last backend error.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for every per-backend breaker. Its Name
	// is replaced with the backend name.
	CircuitBreaker CircuitBreakerConfig

	// Permanent reports errors that describe the input rather than the
	// backend (for example "no speech in this audio"). Such an error is
	// returned immediately, is not tried against the next backend and does
	// not count against the breaker.
	Permanent func(error) bool
}

type backend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary backend and ordered fallbacks of the same
// provider type, each behind its own breaker. Backends must be added before
// the group is shared between goroutines.
type FallbackGroup[T any] struct {
	backends []backend[T]
	cfg      FallbackConfig
}

// NewFallbackGroup creates a group whose first backend is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend tried after all previously added ones.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.backends = append(fg.backends, backend[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Names lists the backend names in call order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, len(fg.backends))
	for i, b := range fg.backends {
		out[i] = b.name
	}
	return out
}

// Breaker returns the breaker guarding the named backend, or nil.
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for i := range fg.backends {
		if fg.backends[i].name == name {
			return fg.backends[i].breaker
		}
	}
	return nil
}

// Execute calls fn for each backend in turn until one succeeds.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult calls fn for each backend in turn and returns the first
// successful result. Backends with an open breaker are skipped. The walk
// stops early when ctx is done or fn returns a permanent error.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.backends {
		b := &fg.backends[i]

		var (
			result  R
			permErr error
		)
		err := b.breaker.Execute(ctx, func(ctx context.Context) error {
			var callErr error
			result, callErr = fn(ctx, b.value)
			if callErr != nil && fg.cfg.Permanent != nil && fg.cfg.Permanent(callErr) {
				permErr = callErr
				return nil
			}
			return callErr
		})
		if permErr != nil {
			return zero, permErr
		}
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, err
		}

		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", b.name)
			continue
		}
		if i < len(fg.backends)-1 {
			slog.Warn("provider failed, trying next", "provider", b.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
