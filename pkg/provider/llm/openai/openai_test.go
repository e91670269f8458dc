package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/ispitch/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	sys, err := convertMessage(llm.Message{Role: llm.RoleSystem, Content: "Você é um revisor."})
	if err != nil || sys.OfSystem == nil {
		t.Fatalf("system: %+v, %v", sys, err)
	}
	user, err := convertMessage(llm.Message{Role: llm.RoleUser, Content: "Olá"})
	if err != nil || user.OfUser == nil {
		t.Fatalf("user: %+v, %v", user, err)
	}
	asst, err := convertMessage(llm.Message{Role: llm.RoleAssistant, Content: "{}"})
	if err != nil || asst.OfAssistant == nil {
		t.Fatalf("assistant: %+v, %v", asst, err)
	}
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unsupported role")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "responda em JSON",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "texto"}},
		Temperature:  0.2,
		MaxTokens:    300,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("JSON mode not requested")
	}
	if params.MaxCompletionTokens.Value != 300 {
		t.Errorf("MaxCompletionTokens = %d, want 300", params.MaxCompletionTokens.Value)
	}

	plain, _ := (&Provider{model: "gpt-4"}).buildParams(llm.CompletionRequest{JSONMode: true})
	if plain.ResponseFormat.OfJSONObject != nil {
		t.Error("gpt-4 does not support JSON mode")
	}
}

func TestModelCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model     string
		ctxWindow int
		jsonMode  bool
	}{
		{"gpt-4o-mini", 128_000, true},
		{"gpt-4", 8_192, false},
		{"gpt-3.5-turbo", 16_385, true},
		{"o3-mini", 200_000, true},
		{"my-custom-model", 128_000, true},
	}
	for _, tt := range tests {
		caps := modelCapabilities(tt.model)
		if caps.ContextWindow != tt.ctxWindow {
			t.Errorf("%s: ContextWindow = %d, want %d", tt.model, caps.ContextWindow, tt.ctxWindow)
		}
		if caps.SupportsJSONMode != tt.jsonMode {
			t.Errorf("%s: SupportsJSONMode = %v, want %v", tt.model, caps.SupportsJSONMode, tt.jsonMode)
		}
		if caps.MaxOutputTokens <= 0 {
			t.Errorf("%s: MaxOutputTokens = %d", tt.model, caps.MaxOutputTokens)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"topics\":[]}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "oi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"topics":[]}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d, want 17", resp.Usage.TotalTokens)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", gotBody["model"])
	}
}

func TestComplete_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, _ := New("sk-test", "nope", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
}
