// Package transport exposes voice sessions over WebSocket.
//
// A client connects to the handler with optional session_id and sample_rate
// query parameters. Binary messages in either direction carry little-endian
// float32 mono samples: capture chunks from the client, playback frames
// from the server. Text messages carry JSON control and status messages
// (see messages.go).
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/MrWong99/vastaa/internal/agent"
	"github.com/MrWong99/vastaa/internal/observe"
	"github.com/MrWong99/vastaa/internal/session"
	"github.com/MrWong99/vastaa/pkg/audio"
	"github.com/MrWong99/vastaa/pkg/types"
)

// Defaults applied by [NewHandler].
const (
	DefaultSampleRate   = 8000
	DefaultReadLimit    = 4 << 20
	DefaultWriteTimeout = 5 * time.Second
)

// Registry is the part of *session.Registry the handler needs.
type Registry interface {
	Connect(ctx context.Context, id string, sampleRate int, sink session.Sink) (session.Info, error)
	Disconnect(id string) error
	ProcessInput(ctx context.Context, id string, chunk []float32) error
	UpdateThreshold(id string, threshold float64) error
}

// Config tunes a [Handler].
type Config struct {
	// AllowedOrigins are host patterns accepted in the Origin header, as
	// understood by websocket.AcceptOptions.OriginPatterns. Same-host
	// requests are always allowed.
	AllowedOrigins []string

	// DefaultSampleRate is used when the client sends no sample_rate.
	DefaultSampleRate int

	// ReadLimit caps a single client message in bytes.
	ReadLimit int64

	// WriteTimeout bounds every write to the client.
	WriteTimeout time.Duration
}

// Handler upgrades requests to WebSocket sessions.
type Handler struct {
	reg Registry
	cfg Config

	done  context.Context
	close context.CancelFunc
}

// NewHandler returns a handler that attaches connections to reg.
func NewHandler(reg Registry, cfg Config) *Handler {
	if cfg.DefaultSampleRate == 0 {
		cfg.DefaultSampleRate = DefaultSampleRate
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	done, cancel := context.WithCancel(context.Background())
	return &Handler{reg: reg, cfg: cfg, done: done, close: cancel}
}

// Close ends every open connection with StatusGoingAway. Connections
// accepted afterwards are closed immediately.
func (h *Handler) Close() {
	h.close()
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("session_id")
	if id == "" {
		id = uuid.NewString()
	}
	rate := h.cfg.DefaultSampleRate
	if s := q.Get("sample_rate"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "sample_rate must be an integer", http.StatusBadRequest)
			return
		}
		rate = v
	}
	if rate < audio.MinSampleRate || rate > audio.MaxSampleRate {
		http.Error(w, fmt.Sprintf("sample_rate must be between %d and %d", audio.MinSampleRate, audio.MaxSampleRate), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		slog.Debug("websocket accept", "err", err)
		return
	}
	conn.SetReadLimit(h.cfg.ReadLimit)
	stop := context.AfterFunc(h.done, func() {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	})
	defer stop()

	ctx := observe.WithSession(r.Context(), id)
	log := observe.Logger(ctx)
	sink := &connSink{conn: conn, timeout: h.cfg.WriteTimeout}

	info, err := h.reg.Connect(ctx, id, rate, sink)
	if err != nil {
		code := websocket.StatusInternalError
		switch {
		case errors.Is(err, session.ErrSessionExists):
			code = websocket.StatusPolicyViolation
		case errors.Is(err, session.ErrClosed):
			code = websocket.StatusTryAgainLater
		}
		log.Warn("reject connection", "err", err)
		conn.Close(code, err.Error())
		return
	}
	defer func() {
		if err := h.reg.Disconnect(id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			log.Warn("disconnect", "err", err)
		}
	}()

	if err := sink.writeJSON(ctx, SessionHello{
		Type:       TypeSession,
		SessionID:  info.ID,
		SampleRate: info.SampleRate,
		FrameSize:  info.FrameSize,
	}); err != nil {
		log.Debug("send session hello", "err", err)
		conn.CloseNow()
		return
	}

	err = h.readLoop(ctx, conn, sink, id)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		log.Debug("client closed connection")
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if ctx.Err() == nil {
			log.Debug("read loop ended", "err", err)
		}
		conn.CloseNow()
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sink *connSink, id string) error {
	log := observe.Logger(ctx)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		switch typ {
		case websocket.MessageBinary:
			chunk, err := audio.DecodeFloat32LE(data)
			if err != nil {
				log.Debug("drop malformed audio", "bytes", len(data), "err", err)
				_ = sink.writeJSON(ctx, ErrorMessage{Type: TypeError, Message: err.Error()})
				continue
			}
			if err := h.reg.ProcessInput(ctx, id, chunk); err != nil {
				return err
			}

		case websocket.MessageText:
			if err := h.handleText(ctx, data, id); err != nil {
				log.Debug("reject client message", "err", err)
				_ = sink.writeJSON(ctx, ErrorMessage{Type: TypeError, Message: err.Error()})
			}
		}
	}
}

func (h *Handler) handleText(ctx context.Context, data []byte, id string) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	switch env.Type {
	case TypeSettingsUpdate:
		var msg SettingsUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("invalid settings_update: %w", err)
		}
		if msg.Threshold == nil {
			return nil
		}
		v := *msg.Threshold
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("threshold must be a finite non-negative number, got %v", v)
		}
		if err := h.reg.UpdateThreshold(id, v); err != nil {
			return err
		}
		observe.Logger(ctx).Info("vad threshold updated", "threshold", v)
		return nil
	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
}

// connSink implements session.Sink on a WebSocket connection. Writes from
// the frame and status loops may interleave; the connection serializes
// them.
type connSink struct {
	conn    *websocket.Conn
	timeout time.Duration
}

var _ session.Sink = (*connSink)(nil)

func (s *connSink) SendFrame(ctx context.Context, frame []float32) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageBinary, audio.EncodeFloat32LE(frame))
}

func (s *connSink) SendStatus(ctx context.Context, st agent.Status) error {
	if st.ChatHistory == nil {
		st.ChatHistory = []types.Message{}
	}
	return s.writeJSON(ctx, AgentStatus{Type: TypeAgentStatus, Status: st})
}

func (s *connSink) writeJSON(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, v)
}
