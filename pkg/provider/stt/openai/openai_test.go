package openai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/vastaa/pkg/audio"
	"github.com/MrWong99/vastaa/pkg/provider/stt"
	"github.com/MrWong99/vastaa/pkg/provider/stt/openai"
)

type upload struct {
	mu     sync.Mutex
	fields map[string]string
	file   []byte
}

func newTranscriptionServer(t *testing.T, body string, up *upload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/audio/transcriptions" {
			http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if up != nil {
			f, _, err := r.FormFile("file")
			if err == nil {
				data, _ := io.ReadAll(f)
				up.mu.Lock()
				up.file = data
				up.fields = map[string]string{}
				for k, v := range r.MultipartForm.Value {
					up.fields[k] = v[0]
				}
				up.mu.Unlock()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RequiresKeyWithoutBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty apiKey without base URL")
	}
	if _, err := openai.New("", "", openai.WithBaseURL("http://localhost:8080/v1")); err != nil {
		t.Fatalf("New with base URL: %v", err)
	}
}

func TestTranscribe_UploadsWAV(t *testing.T) {
	t.Parallel()

	var up upload
	srv := newTranscriptionServer(t, `{"text": " Hei, mitä kuuluu? "}`, &up)
	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}

	text, err := p.Transcribe(context.Background(), stt.Request{
		Audio:      make([]float32, 8000),
		SampleRate: 8000,
		Language:   "fi",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hei, mitä kuuluu?" {
		t.Errorf("text = %q", text)
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if up.fields["model"] != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", up.fields["model"])
	}
	if up.fields["language"] != "fi" {
		t.Errorf("language = %q, want fi", up.fields["language"])
	}
	_, rate, err := audio.DecodeWAV(up.file)
	if err != nil {
		t.Fatalf("uploaded file: %v", err)
	}
	if rate != 16000 {
		t.Errorf("uploaded rate = %d, want 16000", rate)
	}
}

func TestTranscribe_EmptyText(t *testing.T) {
	t.Parallel()

	srv := newTranscriptionServer(t, `{"text": ""}`, nil)
	p, _ := openai.New("sk-test", "", openai.WithBaseURL(srv.URL+"/v1/"), openai.WithMaxRetries(0))

	_, err := p.Transcribe(context.Background(), stt.Request{Audio: make([]float32, 160), SampleRate: 16000})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_InvalidInput(t *testing.T) {
	t.Parallel()

	p, _ := openai.New("sk-test", "")
	if _, err := p.Transcribe(context.Background(), stt.Request{SampleRate: 16000}); !errors.Is(err, stt.ErrNoSpeech) {
		t.Errorf("empty audio: err = %v, want ErrNoSpeech", err)
	}
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []float32{0}}); err == nil {
		t.Error("zero sample rate: expected error")
	}
}
