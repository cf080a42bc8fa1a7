package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/vastaa/pkg/provider/llm"
	"github.com/MrWong99/vastaa/pkg/types"
)

// TestConvertMessage_Roles checks that every supported role maps to the
// matching SDK union member.
func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	sys, err := convertMessage(types.Message{Role: types.RoleSystem, Content: "Be brief."})
	if err != nil || sys.OfSystem == nil {
		t.Fatalf("system: OfSystem unset (err=%v)", err)
	}
	usr, err := convertMessage(types.Message{Role: types.RoleUser, Content: "Hei!"})
	if err != nil || usr.OfUser == nil {
		t.Fatalf("user: OfUser unset (err=%v)", err)
	}
	asst, err := convertMessage(types.Message{Role: types.RoleAssistant, Content: "Moi."})
	if err != nil || asst.OfAssistant == nil {
		t.Fatalf("assistant: OfAssistant unset (err=%v)", err)
	}
}

// TestConvertMessage_UnknownRole checks that an unknown role returns an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()

	if _, err := convertMessage(types.Message{Role: "narrator"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// TestNew_RequiresKeyWithoutBaseURL checks the apiKey precondition.
func TestNew_RequiresKeyWithoutBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4"); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
	p, err := New("", "", WithBaseURL("http://localhost:8080/v1"))
	if err != nil {
		t.Fatalf("New with base URL: %v", err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("Model = %q, want %q", p.Model(), DefaultModel)
	}
}

// TestBuildParams checks system prompt placement and sampling options.
func TestBuildParams(t *testing.T) {
	t.Parallel()

	p, _ := New("sk-test", "gpt-4")
	temp := 0.7
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "Hei"},
			{Role: types.RoleAssistant, Content: "Moi"},
			{Role: types.RoleUser, Content: "Mitä kuuluu?"},
		},
		Temperature: &temp,
		MaxTokens:   70,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message is not the system prompt")
	}
	if got := params.Temperature.Value; got != 0.7 {
		t.Errorf("temperature = %v, want 0.7", got)
	}
	if got := params.MaxTokens.Value; got != 70 {
		t.Errorf("max tokens = %d, want 70", got)
	}
}

func TestBuildParams_Temperature(t *testing.T) {
	t.Parallel()

	zero := 0.0
	p, _ := New("sk-test", "gpt-4")
	msgs := []types.Message{{Role: types.RoleUser, Content: "Hei"}}

	params, err := p.buildParams(llm.CompletionRequest{Messages: msgs, Temperature: &zero})
	if err != nil {
		t.Fatal(err)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0 {
		t.Errorf("explicit zero temperature = %+v, want set to 0", params.Temperature)
	}

	params, err = p.buildParams(llm.CompletionRequest{Messages: msgs})
	if err != nil {
		t.Fatal(err)
	}
	if params.Temperature.Valid() {
		t.Error("nil temperature should be left unset")
	}
}

func newChatServer(t *testing.T, status int, body string, gotReq *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		if gotReq != nil {
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, gotReq)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestComplete_AgainstServer exercises a full round trip against a fake
// OpenAI-compatible server.
func TestComplete_AgainstServer(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := newChatServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4",
		"choices": [{"index": 0, "finish_reason": "stop",
			"message": {"role": "assistant", "content": " Hyvää, kiitos! "}}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
	}`, &got)

	p, err := New("sk-test", "gpt-4", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "Mitä kuuluu?"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Hyvää, kiitos!" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hyvää, kiitos!")
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
	if got["model"] != "gpt-4" {
		t.Errorf("request model = %v, want gpt-4", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("request messages = %d, want 2", len(msgs))
	}
}

// TestComplete_EmptyContent checks that a blank reply is reported as
// ErrEmptyResponse.
func TestComplete_EmptyContent(t *testing.T) {
	t.Parallel()

	srv := newChatServer(t, http.StatusOK, `{
		"id": "chatcmpl-2", "object": "chat.completion", "created": 1, "model": "gpt-4",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  "}}]
	}`, nil)

	p, _ := New("sk-test", "gpt-4", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "?"}},
	})
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

// TestComplete_ServerError checks that HTTP errors are surfaced.
func TestComplete_ServerError(t *testing.T) {
	t.Parallel()

	srv := newChatServer(t, http.StatusBadRequest, `{"error": {"message": "bad request"}}`, nil)

	p, _ := New("sk-test", "gpt-4", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "?"}},
	}); err == nil {
		t.Fatal("expected error")
	}
}
