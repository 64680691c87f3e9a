package toolloop

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/George-Strauch/chorus/internal/llmprovider"
	"github.com/George-Strauch/chorus/internal/permission"
	"github.com/George-Strauch/chorus/internal/tools"
)

// fakeProvider scripts a sequence of ChatResponses, one per call.
type fakeProvider struct {
	mu        sync.Mutex
	responses []*llmprovider.ChatResponse
	calls     int
}

func (f *fakeProvider) Chat(ctx context.Context, req *llmprovider.ChatRequest) (*llmprovider.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func (f *fakeProvider) DefaultModel() string { return "test-model" }

// echoTool returns its "value" argument verbatim, recording the order it
// ran in via a shared slice (to assert sequential-on-ASK batching).
type echoTool struct {
	name  string
	order *[]string
	mu    *sync.Mutex
}

func (t *echoTool) Name() string                      { return t.name }
func (t *echoTool) Description() string                { return "echo" }
func (t *echoTool) Parameters() map[string]any         { return map[string]any{} }
func (t *echoTool) BuildDetail(args map[string]any) string {
	v, _ := args["value"].(string)
	return v
}
func (t *echoTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (string, error) {
	t.mu.Lock()
	*t.order = append(*t.order, t.name)
	t.mu.Unlock()
	v, _ := args["value"].(string)
	return v, nil
}

func openProfile(t *testing.T) *permission.Profile {
	t.Helper()
	p, err := permission.NewProfile([]string{".*"}, nil)
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}
	return p
}

func TestRunReturnsTextWhenNoToolCalls(t *testing.T) {
	provider := &fakeProvider{responses: []*llmprovider.ChatResponse{
		{Content: "all done", StopReason: llmprovider.StopEndTurn},
	}}
	registry := tools.NewRegistry()

	res, err := Run(context.Background(), &Params{
		Provider: provider,
		Registry: registry,
		Profile:  openProfile(t),
		Model:    "test-model",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "all done" {
		t.Errorf("expected final content, got %q", res.Content)
	}
	if res.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", res.Iterations)
	}
}

func TestRunExecutesToolAndLoopsToCompletion(t *testing.T) {
	provider := &fakeProvider{responses: []*llmprovider.ChatResponse{
		{
			StopReason: llmprovider.StopToolUse,
			ToolCalls:  []llmprovider.ToolCall{{ID: "1", Name: "echo", Arguments: map[string]any{"value": "hi"}}},
		},
		{Content: "finished", StopReason: llmprovider.StopEndTurn},
	}}

	var order []string
	var mu sync.Mutex
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "echo", order: &order, mu: &mu})

	res, err := Run(context.Background(), &Params{
		Provider: provider,
		Registry: registry,
		Profile:  openProfile(t),
		Model:    "test-model",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Content != "finished" {
		t.Errorf("expected final content, got %q", res.Content)
	}
	if res.ToolCallsMade != 1 {
		t.Errorf("expected 1 tool call made, got %d", res.ToolCallsMade)
	}
	if len(order) != 1 || order[0] != "echo" {
		t.Errorf("expected echo tool to run once, got %v", order)
	}

	foundToolResult := false
	for _, m := range res.Messages {
		if m.Role == llmprovider.RoleTool && m.Content == "hi" {
			foundToolResult = true
		}
	}
	if !foundToolResult {
		t.Error("expected a tool-result message with content \"hi\"")
	}
}

func TestDenyProducesErrorToolResultWithoutExecuting(t *testing.T) {
	provider := &fakeProvider{responses: []*llmprovider.ChatResponse{
		{
			StopReason: llmprovider.StopToolUse,
			ToolCalls:  []llmprovider.ToolCall{{ID: "1", Name: "echo", Arguments: map[string]any{"value": "x"}}},
		},
		{Content: "done", StopReason: llmprovider.StopEndTurn},
	}}

	var order []string
	var mu sync.Mutex
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "echo", order: &order, mu: &mu})

	lockedProfile, err := permission.NewProfile(nil, nil)
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}

	res, err := Run(context.Background(), &Params{
		Provider: provider,
		Registry: registry,
		Profile:  lockedProfile,
		Model:    "test-model",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected echo tool never to execute under deny-all profile, ran %v", order)
	}

	found := false
	for _, m := range res.Messages {
		if m.Role == llmprovider.RoleTool && strings.Contains(m.Content, "PermissionDenied") {
			found = true
		}
	}
	if !found {
		t.Error("expected a PermissionDenied tool-result message")
	}
}

func TestAskBatchRunsSequentially(t *testing.T) {
	provider := &fakeProvider{responses: []*llmprovider.ChatResponse{
		{
			StopReason: llmprovider.StopToolUse,
			ToolCalls: []llmprovider.ToolCall{
				{ID: "1", Name: "echo", Arguments: map[string]any{"value": "a"}},
				{ID: "2", Name: "echo", Arguments: map[string]any{"value": "b"}},
			},
		},
		{Content: "done", StopReason: llmprovider.StopEndTurn},
	}}

	var order []string
	var mu sync.Mutex
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "echo", order: &order, mu: &mu})

	askProfile, err := permission.NewProfile(nil, []string{".*"})
	if err != nil {
		t.Fatalf("NewProfile: %v", err)
	}

	var approvals []string
	res, err := Run(context.Background(), &Params{
		Provider: provider,
		Registry: registry,
		Profile:  askProfile,
		Model:    "test-model",
		AskCallback: func(ctx context.Context, toolName, action string) bool {
			mu.Lock()
			approvals = append(approvals, action)
			mu.Unlock()
			return true
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected both tool calls to execute, got %v", order)
	}
	if len(approvals) != 2 {
		t.Fatalf("expected both calls to go through ask-callback, got %v", approvals)
	}
	if res.ToolCallsMade != 2 {
		t.Errorf("expected 2 tool calls made, got %d", res.ToolCallsMade)
	}
}

func TestMaxIterationsTruncates(t *testing.T) {
	responses := make([]*llmprovider.ChatResponse, 0, 3)
	for i := 0; i < 3; i++ {
		responses = append(responses, &llmprovider.ChatResponse{
			StopReason: llmprovider.StopToolUse,
			ToolCalls:  []llmprovider.ToolCall{{ID: "1", Name: "echo", Arguments: map[string]any{"value": "x"}}},
		})
	}
	provider := &fakeProvider{responses: responses}

	var order []string
	var mu sync.Mutex
	registry := tools.NewRegistry()
	registry.Register(&echoTool{name: "echo", order: &order, mu: &mu})

	res, err := Run(context.Background(), &Params{
		Provider:      provider,
		Registry:      registry,
		Profile:       openProfile(t),
		Model:         "test-model",
		MaxIterations: 2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Truncated {
		t.Error("expected Truncated to be true")
	}
	if res.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", res.Iterations)
	}
}
