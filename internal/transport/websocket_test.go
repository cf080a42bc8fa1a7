package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/vastaa/internal/agent"
	agentmock "github.com/MrWong99/vastaa/internal/agent/mock"
	"github.com/MrWong99/vastaa/internal/session"
	"github.com/MrWong99/vastaa/internal/transport"
	"github.com/MrWong99/vastaa/pkg/audio"
	"github.com/MrWong99/vastaa/pkg/audio/framebuf"
	"github.com/MrWong99/vastaa/pkg/types"
)

type testServer struct {
	srv *httptest.Server
	reg *session.Registry

	mu     sync.Mutex
	agents map[string]*agentmock.Agent
	bufs   map[string]*framebuf.Buffer
}

func newTestServer(t *testing.T, cfg transport.Config) *testServer {
	t.Helper()
	ts := &testServer{
		agents: make(map[string]*agentmock.Agent),
		bufs:   make(map[string]*framebuf.Buffer),
	}
	ts.reg = session.NewRegistry(session.Config{
		FrameDuration:  20 * time.Millisecond,
		StatusInterval: 10 * time.Millisecond,
	}, func(id string, _ int, out *framebuf.Buffer) (agent.Agent, error) {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		a := &agentmock.Agent{}
		ts.agents[id] = a
		ts.bufs[id] = out
		return a, nil
	})
	mux := http.NewServeMux()
	mux.Handle("GET /ws", transport.NewHandler(ts.reg, cfg))
	ts.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.srv.Close()
		_ = ts.reg.Shutdown(context.Background())
	})
	return ts
}

func (ts *testServer) url(query string) string {
	u := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func (ts *testServer) agent(id string) *agentmock.Agent {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.agents[id]
}

func (ts *testServer) buf(id string) *framebuf.Buffer {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.bufs[id]
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// readText reads messages until a text message of the given type arrives.
func readText(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read waiting for %q: %v", typ, err)
		}
		if mt != websocket.MessageText {
			continue
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if env.Type == typ {
			return data
		}
	}
}

func readHello(t *testing.T, ctx context.Context, conn *websocket.Conn) transport.SessionHello {
	t.Helper()
	var hello transport.SessionHello
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != transport.TypeSession {
		t.Fatalf("first message type = %q, want %q", hello.Type, transport.TypeSession)
	}
	return hello
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHandler_Hello(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		query     string
		wantID    string
		wantRate  int
		wantFrame int
	}{
		{name: "explicit", query: "session_id=abc&sample_rate=16000", wantID: "abc", wantRate: 16000, wantFrame: 320},
		{name: "default rate", query: "session_id=xyz", wantID: "xyz", wantRate: 8000, wantFrame: 160},
		{name: "generated id", query: "sample_rate=48000", wantRate: 48000, wantFrame: 960},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, transport.Config{})
			ctx := testCtx(t)

			hello := readHello(t, ctx, dial(t, ctx, ts.url(tt.query)))
			if tt.wantID != "" && hello.SessionID != tt.wantID {
				t.Errorf("session_id = %q, want %q", hello.SessionID, tt.wantID)
			}
			if hello.SessionID == "" {
				t.Error("session_id is empty")
			}
			if hello.SampleRate != tt.wantRate {
				t.Errorf("sample_rate = %d, want %d", hello.SampleRate, tt.wantRate)
			}
			if hello.FrameSize != tt.wantFrame {
				t.Errorf("frame_size = %d, want %d", hello.FrameSize, tt.wantFrame)
			}
		})
	}
}

func TestHandler_RejectsBadSampleRate(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	for _, q := range []string{"sample_rate=4000", "sample_rate=96000", "sample_rate=fast"} {
		_, resp, err := websocket.Dial(testCtx(t), ts.url(q), nil)
		if err == nil {
			t.Fatalf("%s: Dial succeeded, want error", q)
		}
		if resp == nil || resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: response = %v, want 400", q, resp)
		}
	}
	if n := ts.reg.Len(); n != 0 {
		t.Errorf("registry has %d sessions, want 0", n)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{AllowedOrigins: []string{"localhost:3000"}})

	hdr := http.Header{}
	hdr.Set("Origin", "http://evil.example")
	_, resp, err := websocket.Dial(testCtx(t), ts.url(""), &websocket.DialOptions{HTTPHeader: hdr})
	if err == nil {
		t.Fatal("Dial succeeded, want error")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}

	hdr.Set("Origin", "http://localhost:3000")
	ctx := testCtx(t)
	conn, _, err := websocket.Dial(ctx, ts.url(""), &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		t.Fatalf("Dial from allowed origin: %v", err)
	}
	defer conn.CloseNow()
	readHello(t, ctx, conn)
}

func TestHandler_AudioInput(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	ctx := testCtx(t)
	conn := dial(t, ctx, ts.url("session_id=s1"))
	readHello(t, ctx, conn)

	chunk := []float32{0.25, -0.5, 1}
	if err := conn.Write(ctx, websocket.MessageBinary, audio.EncodeFloat32LE(chunk)); err != nil {
		t.Fatal(err)
	}

	a := ts.agent("s1")
	waitFor(t, "chunk at agent", func() bool { return len(a.Chunks()) == 1 })
	got := a.Chunks()[0]
	if len(got) != len(chunk) {
		t.Fatalf("chunk len = %d, want %d", len(got), len(chunk))
	}
	for i := range chunk {
		if got[i] != chunk[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], chunk[i])
		}
	}
}

func TestHandler_MalformedAudio(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	ctx := testCtx(t)
	conn := dial(t, ctx, ts.url("session_id=s1"))
	readHello(t, ctx, conn)

	if err := conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	var msg transport.ErrorMessage
	if err := json.Unmarshal(readText(t, ctx, conn, transport.TypeError), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Message == "" {
		t.Error("error message is empty")
	}
	if n := len(ts.agent("s1").Chunks()); n != 0 {
		t.Errorf("agent got %d chunks, want 0", n)
	}
}

func TestHandler_SettingsUpdate(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	ctx := testCtx(t)
	conn := dial(t, ctx, ts.url("session_id=s1"))
	readHello(t, ctx, conn)

	if err := wsjson.Write(ctx, conn, map[string]any{"type": "settings_update", "threshold": 0.02}); err != nil {
		t.Fatal(err)
	}
	a := ts.agent("s1")
	waitFor(t, "threshold update", func() bool { return len(a.Thresholds()) == 1 })
	if got := a.Thresholds()[0]; got != 0.02 {
		t.Errorf("threshold = %v, want 0.02", got)
	}
}

func TestHandler_RejectsBadTextMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  string
	}{
		{name: "not json", msg: "hello"},
		{name: "unknown type", msg: `{"type":"reboot"}`},
		{name: "negative threshold", msg: `{"type":"settings_update","threshold":-1}`},
		{name: "wrong field type", msg: `{"type":"settings_update","threshold":"high"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t, transport.Config{})
			ctx := testCtx(t)
			conn := dial(t, ctx, ts.url("session_id=s1"))
			readHello(t, ctx, conn)

			if err := conn.Write(ctx, websocket.MessageText, []byte(tt.msg)); err != nil {
				t.Fatal(err)
			}
			readText(t, ctx, conn, transport.TypeError)
			if n := len(ts.agent("s1").Thresholds()); n != 0 {
				t.Errorf("agent got %d threshold updates, want 0", n)
			}
		})
	}
}

func TestHandler_PlaybackFrames(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	ctx := testCtx(t)
	conn := dial(t, ctx, ts.url("session_id=s1&sample_rate=8000"))
	hello := readHello(t, ctx, conn)

	samples := make([]float32, hello.FrameSize)
	for i := range samples {
		samples[i] = 0.5
	}
	if err := ts.buf("s1").Inject(samples); err != nil {
		t.Fatal(err)
	}

	for {
		mt, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if mt != websocket.MessageBinary {
			continue
		}
		frame, err := audio.DecodeFloat32LE(data)
		if err != nil {
			t.Fatal(err)
		}
		if len(frame) != hello.FrameSize {
			t.Fatalf("frame len = %d, want %d", len(frame), hello.FrameSize)
		}
		if frame[0] != 0.5 {
			t.Errorf("frame[0] = %v, want 0.5", frame[0])
		}
		return
	}
}

func TestHandler_AgentStatus(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	ctx := testCtx(t)
	conn := dial(t, ctx, ts.url("session_id=s1"))
	readHello(t, ctx, conn)

	ts.agent("s1").SetStatus(agent.Status{
		IsProcessing: true,
		ChatHistory:  []types.Message{{Role: types.RoleUser, Content: "moi"}},
	})

	for {
		var st transport.AgentStatus
		if err := json.Unmarshal(readText(t, ctx, conn, transport.TypeAgentStatus), &st); err != nil {
			t.Fatal(err)
		}
		if !st.IsProcessing {
			continue
		}
		if len(st.ChatHistory) != 1 || st.ChatHistory[0].Content != "moi" {
			t.Errorf("chat_history = %+v", st.ChatHistory)
		}
		return
	}
}

func TestHandler_AgentStatusEmptyHistory(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	ctx := testCtx(t)
	conn := dial(t, ctx, ts.url("session_id=s1"))
	readHello(t, ctx, conn)

	data := readText(t, ctx, conn, transport.TypeAgentStatus)
	if !strings.Contains(string(data), `"chat_history":[]`) {
		t.Errorf("status = %s, want empty chat_history array", data)
	}
}

func TestHandler_DuplicateSession(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	ctx := testCtx(t)
	first := dial(t, ctx, ts.url("session_id=dup"))
	readHello(t, ctx, first)

	second := dial(t, ctx, ts.url("session_id=dup"))
	_, _, err := second.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v (err %v), want %v", got, err, websocket.StatusPolicyViolation)
	}
	if n := ts.reg.Len(); n != 1 {
		t.Errorf("registry has %d sessions, want 1", n)
	}
}

func TestHandler_DisconnectOnClose(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	ctx := testCtx(t)
	conn := dial(t, ctx, ts.url("session_id=gone"))
	readHello(t, ctx, conn)

	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Logf("Close: %v", err)
	}
	waitFor(t, "session removal", func() bool { return ts.reg.Len() == 0 })
	if _, err := ts.reg.Status("gone"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Status err = %v, want ErrSessionNotFound", err)
	}
	a := ts.agent("gone")
	waitFor(t, "agent close", func() bool { return a.CloseCalls() == 1 })
}

func TestHandler_ShutdownRejects(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, transport.Config{})
	if err := ts.reg.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx := testCtx(t)
	conn := dial(t, ctx, ts.url(""))
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusTryAgainLater {
		t.Errorf("close status = %v, want %v", got, websocket.StatusTryAgainLater)
	}
}

func TestHandler_CloseEndsConnections(t *testing.T) {
	t.Parallel()

	ts := &testServer{agents: map[string]*agentmock.Agent{}, bufs: map[string]*framebuf.Buffer{}}
	ts.reg = session.NewRegistry(session.Config{StatusInterval: time.Hour}, func(id string, _ int, out *framebuf.Buffer) (agent.Agent, error) {
		return &agentmock.Agent{}, nil
	})
	h := transport.NewHandler(ts.reg, transport.Config{})
	ts.srv = httptest.NewServer(h)
	t.Cleanup(ts.srv.Close)

	ctx := testCtx(t)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.CloseNow()
	readHello(t, ctx, conn)

	h.Close()
	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
			t.Errorf("close status = %v (err %v), want %v", got, err, websocket.StatusGoingAway)
		}
		break
	}
	waitFor(t, "session removal", func() bool { return ts.reg.Len() == 0 })
}
