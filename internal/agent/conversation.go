package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/vastaa/internal/observe"
	"github.com/MrWong99/vastaa/pkg/audio"
	"github.com/MrWong99/vastaa/pkg/provider/llm"
	"github.com/MrWong99/vastaa/pkg/provider/stt"
	"github.com/MrWong99/vastaa/pkg/provider/tts"
	"github.com/MrWong99/vastaa/pkg/provider/vad"
	"github.com/MrWong99/vastaa/pkg/types"
)

// Defaults applied by [New] to zero-valued [Config] fields.
const (
	DefaultLanguage      = "fi"
	DefaultSystemPrompt  = "Vastaa käyttäjälle hyvin lyhyesti, korkeintaan kymmenellä sanalla."
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 70
	DefaultPlaybackGrace = time.Second
	DefaultCallTimeout   = 30 * time.Second
)

// ErrEmptyTranscript aborts a turn whose transcript is blank.
var ErrEmptyTranscript = errors.New("agent: empty transcript")

var _ Agent = (*ConversationAgent)(nil)

// Config holds the dependencies and tuning of a [ConversationAgent].
//
// VAD, STT, LLM, TTS and Output are required. FrameSize must be the frame
// size of Output so padded replies line up with playback frames.
type Config struct {
	SessionID  string
	SampleRate int
	FrameSize  int

	VAD    vad.SessionHandle
	STT    stt.Provider
	LLM    llm.Provider
	TTS    tts.Provider
	Output Output

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	Language     string
	SystemPrompt string
	// Temperature nil selects DefaultTemperature.
	Temperature *float64
	MaxTokens   int

	// PlaybackGrace is added to the reply's play time before capture
	// resumes.
	PlaybackGrace time.Duration

	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.PlaybackGrace < 0 {
		c.PlaybackGrace = 0
	}
	for _, d := range []*time.Duration{&c.STTTimeout, &c.LLMTimeout, &c.TTSTimeout} {
		if *d <= 0 {
			*d = DefaultCallTimeout
		}
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.VAD == nil {
		errs = append(errs, errors.New("VAD is required"))
	}
	if c.STT == nil {
		errs = append(errs, errors.New("STT provider is required"))
	}
	if c.LLM == nil {
		errs = append(errs, errors.New("LLM provider is required"))
	}
	if c.TTS == nil {
		errs = append(errs, errors.New("TTS provider is required"))
	}
	if c.Output == nil {
		errs = append(errs, errors.New("output is required"))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("invalid sample rate %d", c.SampleRate))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid frame size %d", c.FrameSize))
	}
	return errors.Join(errs...)
}

// ConversationAgent implements [Agent]. It alternates between idle, where
// capture is fed to the VAD, and processing, where one turn is in flight
// and capture is dropped.
type ConversationAgent struct {
	cfg Config

	// ctx scopes every turn; cancel ends them on Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards processing, closed, history and every VAD call. It is
	// never held across a provider call.
	mu         sync.Mutex
	processing bool
	closed     bool
	history    []types.Message
}

// New returns an idle agent.
func New(cfg Config) (*ConversationAgent, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(observe.WithSession(context.Background(), cfg.SessionID))
	return &ConversationAgent{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

// ProcessInput implements [Agent]. The gate check, the VAD step and the
// switch to processing happen in one critical section, so two chunks can
// never start two turns.
func (a *ConversationAgent) ProcessInput(ctx context.Context, chunk []float32) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	if a.processing {
		a.mu.Unlock()
		a.cfg.Metrics.RecordChunkDropped(ctx)
		return
	}
	res := a.cfg.VAD.Detect(chunk)
	if !res.Detected {
		a.mu.Unlock()
		return
	}
	a.processing = true
	a.wg.Add(1)
	a.mu.Unlock()

	observe.Logger(a.ctx).Debug("utterance detected",
		"samples", len(res.Segment),
		"duration", audio.Duration(len(res.Segment), a.cfg.SampleRate))
	go a.runTurn(res.Segment)
}

// UpdateVADThreshold implements [Agent].
func (a *ConversationAgent) UpdateVADThreshold(threshold float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.VAD.UpdateThreshold(threshold)
}

// Status implements [Agent].
func (a *ConversationAgent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		IsProcessing: a.processing,
		ChatHistory:  append([]types.Message{}, a.history...),
	}
}

// Close implements [Agent]. It is safe to call more than once.
func (a *ConversationAgent) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	return nil
}

func (a *ConversationAgent) runTurn(segment []float32) {
	defer a.wg.Done()
	defer func() {
		a.mu.Lock()
		a.processing = false
		a.mu.Unlock()
	}()

	start := time.Now()
	ctx, span := observe.StartTurnSpan(a.ctx, "turn",
		attribute.Int("segment.samples", len(segment)),
		attribute.Int("sample_rate", a.cfg.SampleRate),
	)
	err := a.turn(ctx, segment)
	observe.EndSpan(span, err)

	outcome := observe.TurnCompleted
	log := observe.Logger(ctx)
	switch {
	case err == nil:
		log.Info("turn completed", "duration", time.Since(start))
	case errors.Is(err, ErrEmptyTranscript) || errors.Is(err, stt.ErrNoSpeech):
		outcome = observe.TurnEmpty
		log.Info("turn skipped, nothing was understood")
	case a.ctx.Err() != nil:
		outcome = observe.TurnCancelled
		log.Debug("turn cancelled", "err", err)
	default:
		outcome = observe.TurnFailed
		log.Warn("turn failed", "err", err)
	}
	a.cfg.Metrics.RecordTurn(ctx, outcome, time.Since(start))
}

// turn runs the provider pipeline and holds until the reply has played.
func (a *ConversationAgent) turn(ctx context.Context, segment []float32) error {
	text, err := stage(ctx, a.cfg.Metrics, observe.StageSTT, a.cfg.STTTimeout, func(ctx context.Context) (string, error) {
		return a.cfg.STT.Transcribe(ctx, stt.Request{
			Audio:      segment,
			SampleRate: a.cfg.SampleRate,
			Language:   a.cfg.Language,
		})
	})
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyTranscript
	}
	messages := a.appendHistory(types.Message{Role: types.RoleUser, Content: text})

	resp, err := stage(ctx, a.cfg.Metrics, observe.StageLLM, a.cfg.LLMTimeout, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return a.cfg.LLM.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: a.cfg.SystemPrompt,
			Messages:     messages,
			Temperature:  a.cfg.Temperature,
			MaxTokens:    a.cfg.MaxTokens,
		})
	})
	if err != nil {
		return err
	}
	var reply string
	if resp != nil {
		reply = strings.TrimSpace(resp.Content)
	}
	if reply == "" {
		return fmt.Errorf("llm: %w", llm.ErrEmptyResponse)
	}
	a.appendHistory(types.Message{Role: types.RoleAssistant, Content: reply})

	samples, err := stage(ctx, a.cfg.Metrics, observe.StageTTS, a.cfg.TTSTimeout, func(ctx context.Context) ([]float32, error) {
		return a.cfg.TTS.Synthesize(ctx, reply, a.cfg.SampleRate)
	})
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("tts: %w", tts.ErrEmptyAudio)
	}

	padded := audio.PadToFrame(samples, a.cfg.FrameSize)
	if err := a.cfg.Output.Inject(padded); err != nil {
		return fmt.Errorf("inject reply: %w", err)
	}

	hold := playbackHold(len(samples), a.cfg.SampleRate, a.cfg.PlaybackGrace)
	observe.Logger(ctx).Debug("reply queued", "reply", reply, "hold", hold)
	timer := time.NewTimer(hold)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// appendHistory adds m and returns a copy of the full history.
func (a *ConversationAgent) appendHistory(m types.Message) []types.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
	return append([]types.Message(nil), a.history...)
}

// stage runs one provider call with its own timeout, span and metrics.
func stage[T any](ctx context.Context, m *observe.Metrics, name observe.Stage, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx, span := observe.StartTurnSpan(ctx, string(name))

	start := time.Now()
	v, err := call(ctx)
	m.RecordStage(ctx, name, time.Since(start), err)
	observe.EndSpan(span, err)
	if err != nil {
		return v, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// playbackHold is how long capture stays gated after a reply of n samples
// was queued. Frame padding is not counted.
func playbackHold(n, sampleRate int, grace time.Duration) time.Duration {
	return audio.Duration(n, sampleRate) + grace
}
