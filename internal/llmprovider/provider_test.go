package llmprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicAdapterChatToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := anthropicResponse{
			Content: []anthropicBlock{
				{Type: "text", Text: "let me check"},
				{Type: "tool_use", ID: "tu_1", Name: "view", Input: map[string]any{"path": "a.py"}},
			},
			StopReason: "tool_use",
			Model:      "claude-sonnet-4-5",
		}
		resp.Usage.InputTokens = 10
		resp.Usage.OutputTokens = 5
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter("key", srv.URL, "claude-sonnet-4-5")
	out, err := adapter.Chat(context.Background(), &ChatRequest{
		System:   "be helpful",
		Messages: []Message{{Role: RoleUser, Content: "view a.py"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.StopReason != StopToolUse {
		t.Errorf("expected StopToolUse, got %v", out.StopReason)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Name != "view" {
		t.Errorf("unexpected tool calls: %+v", out.ToolCalls)
	}
	if out.Usage.InputTokens != 10 {
		t.Errorf("unexpected usage: %+v", out.Usage)
	}
}

func TestAnthropicAdapterRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter("key", srv.URL, "claude-sonnet-4-5")
	_, err := adapter.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	var rle *RateLimitError
	if ok := asRateLimit(err, &rle); !ok {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
}

func asRateLimit(err error, target **RateLimitError) bool {
	if e, ok := err.(*RateLimitError); ok {
		*target = e
		return true
	}
	return false
}

func TestOpenAIAdapterChatEndTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAIWireResponse{Model: "gpt-4o"}
		resp.Choices = []struct {
			Message      openAIWireMessage `json:"message"`
			FinishReason string            `json:"finish_reason"`
		}{{
			Message:      openAIWireMessage{Role: "assistant", Content: "done"},
			FinishReason: "stop",
		}}
		resp.Usage.PromptTokens = 20
		resp.Usage.CompletionTokens = 8
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	adapter := NewOpenAIAdapter("key", srv.URL, "gpt-4o")
	out, err := adapter.Chat(context.Background(), &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out.StopReason != StopEndTurn {
		t.Errorf("expected StopEndTurn, got %v", out.StopReason)
	}
	if out.Content != "done" {
		t.Errorf("unexpected content: %q", out.Content)
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 1, OutputTokens: 2, CacheRead: 3, CacheWrite: 4}
	b := Usage{InputTokens: 10, OutputTokens: 20, CacheRead: 30, CacheWrite: 40}
	sum := a.Add(b)
	if sum.InputTokens != 11 || sum.OutputTokens != 22 || sum.CacheRead != 33 || sum.CacheWrite != 44 {
		t.Errorf("unexpected sum: %+v", sum)
	}
}
