package session

import (
	"context"
	"time"

	"github.com/MrWong99/vastaa/internal/observe"
)

// frameLoop paces playback. While frames are queued they go out exactly
// one frame duration apart, measured from a running deadline so scheduling
// jitter does not accumulate. When the buffer is empty it polls every
// IdleInterval, or sends silence at full cadence with EmitSilence.
func (r *Registry) frameLoop(ctx context.Context, e *entry) error {
	frameDur := r.cfg.FrameDuration
	var (
		deadline time.Time
		playing  bool
		silence  []float32
	)
	if r.cfg.EmitSilence {
		silence = make([]float32, e.buf.FrameSize())
	}

	for {
		if !r.current(e) {
			return ErrSessionNotFound
		}

		frame, ok := e.buf.PullFrame()
		if !ok && silence != nil {
			frame, ok = silence, true
		}
		if !ok {
			playing = false
			if err := sleep(ctx, r.cfg.IdleInterval); err != nil {
				return err
			}
			continue
		}

		now := time.Now()
		if !playing || now.Sub(deadline) > frameDur {
			// First frame of a reply, or we fell a whole frame behind.
			deadline = now
		}
		playing = true

		if err := e.sink.SendFrame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observe.Logger(ctx).Debug("send frame", "err", err)
		} else {
			r.cfg.Metrics.RecordFrameSent(ctx)
		}

		deadline = deadline.Add(frameDur)
		if err := sleep(ctx, time.Until(deadline)); err != nil {
			return err
		}
	}
}

// statusLoop pushes the agent status every StatusInterval.
func (r *Registry) statusLoop(ctx context.Context, e *entry) error {
	ticker := time.NewTicker(r.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !r.current(e) {
			return ErrSessionNotFound
		}
		if err := e.sink.SendStatus(ctx, e.agent.Status()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observe.Logger(ctx).Debug("send status", "err", err)
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
