// Package app wires the Vastaa subsystems into a running HTTP server.
//
// The App owns the full lifecycle: New builds the session registry, the
// WebSocket transport and the probes on top of an already created provider
// set, Run serves until its context is done, and Shutdown drains sessions
// and stops the listener.
//
// For testing, inject a listener, metrics or a log level via functional
// options and serve [App.Handler] from an httptest server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vastaa/internal/agent"
	"github.com/MrWong99/vastaa/internal/config"
	"github.com/MrWong99/vastaa/internal/health"
	"github.com/MrWong99/vastaa/internal/observe"
	"github.com/MrWong99/vastaa/internal/session"
	"github.com/MrWong99/vastaa/internal/transport"
	"github.com/MrWong99/vastaa/pkg/audio/framebuf"
	"github.com/MrWong99/vastaa/pkg/provider/vad/energy"
)

// DefaultShutdownTimeout bounds the shutdown Run performs once its context
// is done.
const DefaultShutdownTimeout = 15 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *config.Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar
	listener       net.Listener
	watcher        *config.Watcher

	registry  *session.Registry
	transport *transport.Handler
	health    *health.Handler
	handler   http.Handler
	server    *http.Server

	// vadThreshold holds the float64 bits of the threshold given to new
	// sessions. Config reloads change it.
	vadThreshold atomic.Uint64

	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics instruments. Defaults to
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets config reloads change the log level through lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithListener makes Run serve on ln instead of listening on
// server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithWatcher makes Run poll w alongside the server. The watcher's
// callback should call [App.Reload].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// New creates an App for cfg using providers. cfg must have defaults
// applied (as [config.Load] does).
func New(cfg *config.Config, providers *config.Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm and tts providers are required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.vadThreshold.Store(math.Float64bits(cfg.VAD.Threshold))

	a.registry = session.NewRegistry(session.Config{
		FrameDuration:  cfg.Audio.FrameDuration,
		MaxPlayback:    cfg.Audio.MaxPlayback,
		StatusInterval: cfg.Server.StatusInterval,
		EmitSilence:    cfg.Audio.EmitSilence,
		Metrics:        a.metrics,
	}, a.newAgent)

	a.transport = transport.NewHandler(a.registry, transport.Config{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		DefaultSampleRate: cfg.Audio.DefaultSampleRate,
	})

	a.health = health.New(
		health.Checker{Name: "sessions", Check: a.checkSessions},
		health.Checker{Name: "providers", Check: a.checkProviders},
	)

	mux := http.NewServeMux()
	mux.Handle("GET /ws", a.transport)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	a.handler = observe.Middleware(a.metrics)(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Registry returns the session registry.
func (a *App) Registry() *session.Registry { return a.registry }

// newAgent is the session.AgentFactory: one energy VAD session and one
// conversation agent per connection, sharing the app's providers.
func (a *App) newAgent(id string, sampleRate int, out *framebuf.Buffer) (agent.Agent, error) {
	vcfg := a.cfg.VAD.Session(sampleRate)
	vcfg.Threshold = a.VADThreshold()
	vs, err := energy.New(vcfg)
	if err != nil {
		return nil, err
	}
	ac := a.cfg.Agent
	return agent.New(agent.Config{
		SessionID:     id,
		SampleRate:    sampleRate,
		FrameSize:     out.FrameSize(),
		VAD:           vs,
		STT:           a.providers.STT,
		LLM:           a.providers.LLM,
		TTS:           a.providers.TTS,
		Output:        out,
		Metrics:       a.metrics,
		Language:      ac.Language,
		SystemPrompt:  ac.SystemPrompt,
		Temperature:   ac.Temperature,
		MaxTokens:     ac.MaxTokens,
		PlaybackGrace: ac.PlaybackGrace,
		STTTimeout:    ac.STTTimeout,
		LLMTimeout:    ac.LLMTimeout,
		TTSTimeout:    ac.TTSTimeout,
	})
}

// VADThreshold returns the threshold new sessions start with.
func (a *App) VADThreshold() float64 {
	return math.Float64frombits(a.vadThreshold.Load())
}

// Run serves HTTP (and polls the config watcher, if any) until ctx is done
// or the server fails, then shuts down within [DefaultShutdownTimeout].
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}
	slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
		defer cancel()
		return a.Shutdown(sctx)
	})
	return g.Wait()
}

// Shutdown marks the app as draining, stops accepting connections, closes
// every WebSocket and disconnects all sessions. Later calls return the
// first call's result.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.registry.Len())
		a.health.SetDraining(true)

		var errs []error
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		a.transport.Close()
		if err := a.registry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.stopErr = errors.Join(errs...)
		if a.stopErr == nil {
			slog.Info("shutdown complete")
		}
	})
	return a.stopErr
}

// Reload applies the hot-reloadable parts of a changed config: the log
// level and the VAD threshold, which is pushed to every live session.
// Other changes are logged as requiring a restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADThresholdChanged {
		a.vadThreshold.Store(math.Float64bits(d.NewVADThreshold))
		n := a.registry.UpdateThresholdAll(d.NewVADThreshold)
		slog.Info("vad threshold changed", "threshold", d.NewVADThreshold, "sessions", n)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "sections", d.RestartRequired)
	}
}
