// Package session keeps track of connected voice sessions.
//
// A [Registry] maps a session id to the session's output frame buffer and
// conversation agent. For every session it runs two loops: the frame sender,
// which paces playback frames to the client one frame duration apart, and
// the status loop, which pushes the agent's status at a fixed interval. Both
// loops stop as soon as the session leaves the registry.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vastaa/internal/agent"
	"github.com/MrWong99/vastaa/internal/observe"
	"github.com/MrWong99/vastaa/pkg/audio"
	"github.com/MrWong99/vastaa/pkg/audio/framebuf"
)

// Sentinel errors.
var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionExists   = errors.New("session: already exists")
	ErrClosed          = errors.New("session: registry is shut down")
	ErrSampleRate      = errors.New("session: unsupported sample rate")
)

// Defaults applied by [NewRegistry] to zero-valued [Config] fields.
const (
	DefaultFrameDuration  = 100 * time.Millisecond
	DefaultMaxPlayback    = 120 * time.Second
	DefaultStatusInterval = 500 * time.Millisecond
)

// Sink delivers session output to the client. Calls for one session come
// from two goroutines (frames and status), so implementations must be safe
// for concurrent use.
type Sink interface {
	SendFrame(ctx context.Context, frame []float32) error
	SendStatus(ctx context.Context, status agent.Status) error
}

// AgentFactory builds the conversation agent of a new session. out is the
// session's playback buffer.
type AgentFactory func(sessionID string, sampleRate int, out *framebuf.Buffer) (agent.Agent, error)

// Config tunes a [Registry].
type Config struct {
	// FrameDuration is the playback frame length. Default 100ms.
	FrameDuration time.Duration

	// MaxPlayback caps a single reply. Default 120s.
	MaxPlayback time.Duration

	// IdleInterval is the retry delay when no frame is queued. Default
	// FrameDuration - 1ms.
	IdleInterval time.Duration

	// StatusInterval is the status push period. Default 500ms.
	StatusInterval time.Duration

	// EmitSilence sends zeroed frames at full cadence when nothing is
	// queued, for clients that expect a continuous stream.
	EmitSilence bool

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Info describes a connected session.
type Info struct {
	ID          string
	SampleRate  int
	FrameSize   int
	ConnectedAt time.Time
}

type entry struct {
	info   Info
	buf    *framebuf.Buffer
	agent  agent.Agent
	sink   Sink
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry is the process-wide session table. It is safe for concurrent
// use.
type Registry struct {
	cfg      Config
	newAgent AgentFactory

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, newAgent AgentFactory) *Registry {
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = DefaultFrameDuration
	}
	if cfg.MaxPlayback <= 0 {
		cfg.MaxPlayback = DefaultMaxPlayback
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = max(cfg.FrameDuration-time.Millisecond, time.Millisecond)
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Registry{
		cfg:      cfg,
		newAgent: newAgent,
		sessions: make(map[string]*entry),
	}
}

// FrameDuration returns the configured playback frame length.
func (r *Registry) FrameDuration() time.Duration { return r.cfg.FrameDuration }

// Connect creates the session id with its buffer and agent and starts its
// loops. The loops outlive ctx; they end on [Registry.Disconnect].
func (r *Registry) Connect(ctx context.Context, id string, sampleRate int, sink Sink) (Info, error) {
	if sampleRate < audio.MinSampleRate || sampleRate > audio.MaxSampleRate {
		return Info{}, fmt.Errorf("%w: %d Hz (want %d-%d)", ErrSampleRate, sampleRate, audio.MinSampleRate, audio.MaxSampleRate)
	}
	if err := r.checkFree(id); err != nil {
		return Info{}, err
	}

	buf := framebuf.New(sampleRate,
		framebuf.WithFrameDuration(r.cfg.FrameDuration),
		framebuf.WithMaxDuration(r.cfg.MaxPlayback),
	)
	ag, err := r.newAgent(id, sampleRate, buf)
	if err != nil {
		return Info{}, fmt.Errorf("session: create agent: %w", err)
	}

	loopCtx, cancel := context.WithCancel(observe.WithSession(context.WithoutCancel(ctx), id))
	e := &entry{
		info: Info{
			ID:          id,
			SampleRate:  sampleRate,
			FrameSize:   buf.FrameSize(),
			ConnectedAt: time.Now(),
		},
		buf:    buf,
		agent:  ag,
		sink:   sink,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	if err := r.checkFreeLocked(id); err != nil {
		r.mu.Unlock()
		cancel()
		_ = ag.Close()
		return Info{}, err
	}
	r.sessions[id] = e
	r.mu.Unlock()

	r.cfg.Metrics.SessionOpened(ctx)
	slog.Info("session connected", "session_id", id, "sample_rate", sampleRate, "frame_size", e.info.FrameSize)

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error { return r.frameLoop(gctx, e) })
	g.Go(func() error { return r.statusLoop(gctx, e) })
	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, context.Canceled) {
			slog.Warn("session loop ended", "session_id", id, "err", err)
		}
		close(e.done)
	}()
	return e.info, nil
}

func (r *Registry) checkFree(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkFreeLocked(id)
}

func (r *Registry) checkFreeLocked(id string) error {
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.sessions[id]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	return nil
}

// Disconnect removes the session, stops its loops and closes its agent.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	r.teardown(e)
	return nil
}

func (r *Registry) teardown(e *entry) {
	e.cancel()
	<-e.done
	if err := e.agent.Close(); err != nil {
		slog.Warn("close agent", "session_id", e.info.ID, "err", err)
	}
	e.buf.Clear()
	r.cfg.Metrics.SessionClosed(context.Background())
	slog.Info("session disconnected", "session_id", e.info.ID, "duration", time.Since(e.info.ConnectedAt).Truncate(time.Second))
}

// ProcessInput forwards a captured chunk to the session's agent.
func (r *Registry) ProcessInput(ctx context.Context, id string, chunk []float32) error {
	e, err := r.get(id)
	if err != nil {
		return err
	}
	e.agent.ProcessInput(observe.WithSession(ctx, id), chunk)
	return nil
}

// UpdateThreshold changes the VAD threshold of one session.
func (r *Registry) UpdateThreshold(id string, threshold float64) error {
	e, err := r.get(id)
	if err != nil {
		return err
	}
	e.agent.UpdateVADThreshold(threshold)
	return nil
}

// UpdateThresholdAll changes the VAD threshold of every session and returns
// how many were updated.
func (r *Registry) UpdateThresholdAll(threshold float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sessions {
		e.agent.UpdateVADThreshold(threshold)
	}
	return len(r.sessions)
}

// Status returns the agent status of one session.
func (r *Registry) Status(id string) (agent.Status, error) {
	e, err := r.get(id)
	if err != nil {
		return agent.Status{}, err
	}
	return e.agent.Status(), nil
}

// Info returns the connection details of one session.
func (r *Registry) Info(id string) (Info, error) {
	e, err := r.get(id)
	if err != nil {
		return Info{}, err
	}
	return e.info, nil
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// IDs returns the connected session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Accepting reports whether new sessions can connect.
func (r *Registry) Accepting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// Shutdown refuses new sessions and disconnects every live one. It returns
// ctx.Err() if the sessions could not be torn down in time.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	entries := make([]*entry, 0, len(r.sessions))
	for id, e := range r.sessions {
		entries = append(entries, e)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			r.teardown(e)
			return nil
		})
	}
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: shutdown: %w", ctx.Err())
	}
}

func (r *Registry) get(id string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// current reports whether e is still the registered entry for its id. A
// reconnect under the same id creates a new entry, so identity matters.
func (r *Registry) current(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[e.info.ID] == e
}
