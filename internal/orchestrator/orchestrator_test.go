package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/George-Strauch/chorus/internal/auditbus"
	"github.com/George-Strauch/chorus/internal/branch"
	"github.com/George-Strauch/chorus/internal/contextstore"
	"github.com/George-Strauch/chorus/internal/execshell"
	"github.com/George-Strauch/chorus/internal/gateway"
	"github.com/George-Strauch/chorus/internal/llmprovider"
	"github.com/George-Strauch/chorus/internal/process"
	"github.com/George-Strauch/chorus/internal/store"
	"github.com/George-Strauch/chorus/internal/tools"
	"github.com/George-Strauch/chorus/internal/workspace"
)

// fakeProvider always answers with a fixed final text response, no tool calls.
type fakeProvider struct {
	content string
}

func (f *fakeProvider) Chat(ctx context.Context, req *llmprovider.ChatRequest) (*llmprovider.ChatResponse, error) {
	return &llmprovider.ChatResponse{
		Content:    f.content,
		StopReason: llmprovider.StopEndTurn,
		Usage:      llmprovider.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func (f *fakeProvider) DefaultModel() string { return "test-model" }

// fakeGateway records sent/edited messages and lets tests script AskPermission.
type fakeGateway struct {
	mu       sync.Mutex
	sent     []string
	edited   []string
	nextID   int
	askReply gateway.AskResponse
	askErr   error
}

func (g *fakeGateway) Start(ctx context.Context, handler gateway.InboundHandler) error { return nil }

func (g *fakeGateway) Send(ctx context.Context, channelID, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.sent = append(g.sent, text)
	return "msg-" + time.Now().String(), nil
}

func (g *fakeGateway) Edit(ctx context.Context, channelID, messageID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edited = append(g.edited, text)
	return nil
}

func (g *fakeGateway) AskPermission(ctx context.Context, channelID string, buttons gateway.AskButtons, prompt string) (gateway.AskResponse, error) {
	return g.askReply, g.askErr
}

func (g *fakeGateway) SetPresence(ctx context.Context, label string) error { return nil }

func newTestOrchestrator(t *testing.T) (*Orchestrator, *AgentRuntime, *fakeGateway, *fakeProvider) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "chorus.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.CreateAgent(context.Background(), store.Agent{
		Name: "alpha", ChannelID: "chan-1", Model: "test-model",
		Permissions: "open", WindowSeconds: 3600,
	}); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}

	gw := &fakeGateway{askReply: gateway.AskResponse{Approved: true}}
	bus := auditbus.New(auditbus.Config{})
	orch := New(s, gw, bus)

	provider := &fakeProvider{content: "hello there"}
	rt := &AgentRuntime{
		Name:      "alpha",
		ChannelID: "chan-1",
		Provider:  provider,
		Registry:  tools.NewRegistry(),
		Model:     "test-model",
		Workspace: ws,
		Branches:  branch.NewManager("alpha"),
		Processes: process.NewManager(t.TempDir(), &fakeProcessStore{}),
		Shell:     execshell.New(ws.Root()),
	}
	rt.Context = contextstore.NewBuilder(s, rt.Branches, nil, nil)
	orch.RegisterAgent(rt)

	return orch, rt, gw, provider
}

type fakeProcessStore struct{}

func (fakeProcessStore) PersistProcess(ctx context.Context, p store.Process) error { return nil }
func (fakeProcessStore) ListRunningProcesses(ctx context.Context) ([]store.Process, error) {
	return nil, nil
}

func waitForBranchTerminal(t *testing.T, rt *AgentRuntime, id int) *branch.Branch {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		b, ok := rt.Branches.Get(id)
		if !ok {
			t.Fatalf("branch %d not found", id)
		}
		switch b.GetStatus() {
		case branch.StatusCompleted, branch.StatusErrored, branch.StatusCancelled:
			return b
		}
		select {
		case <-deadline:
			t.Fatalf("branch %d never reached a terminal state", id)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHandleInboundCreatesBranchAndRespondsCompleted(t *testing.T) {
	orch, rt, gw, _ := newTestOrchestrator(t)

	orch.HandleInbound(context.Background(), gateway.InboundMessage{
		ChannelID: "chan-1", UserID: "U1", MessageID: "m1", Text: "do the thing",
	})

	waitForBranchTerminal(t, rt, 1)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.sent) == 0 {
		t.Fatal("expected at least one outbound send (status view start)")
	}
}

func TestHandleInboundUnknownChannelPassesThrough(t *testing.T) {
	orch, _, gw, _ := newTestOrchestrator(t)

	orch.HandleInbound(context.Background(), gateway.InboundMessage{
		ChannelID: "chan-unknown", UserID: "U1", Text: "hello",
	})

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.sent) != 1 || gw.sent[0] == "" {
		t.Fatalf("expected a single control-plane passthrough notice, got %v", gw.sent)
	}
}

func TestHandleInboundReplyRoutesToSameBranch(t *testing.T) {
	orch, rt, _, _ := newTestOrchestrator(t)

	orch.HandleInbound(context.Background(), gateway.InboundMessage{
		ChannelID: "chan-1", UserID: "U1", MessageID: "m1", Text: "first",
	})
	b := waitForBranchTerminal(t, rt, 1)

	outboundID := b.OutboundIDs[0]
	orch.HandleInbound(context.Background(), gateway.InboundMessage{
		ChannelID: "chan-1", UserID: "U1", MessageID: "m2", ReplyToID: outboundID, Text: "follow up",
	})

	waitForBranchTerminal(t, rt, 1)

	if len(rt.Branches.ListAll()) != 1 {
		t.Errorf("expected the reply to resume branch 1 rather than create a new one, got %d branches", len(rt.Branches.ListAll()))
	}
}

func TestAskCallbackDeniesOnGatewayError(t *testing.T) {
	orch, rt, gw, _ := newTestOrchestrator(t)
	gw.askErr = context.DeadlineExceeded

	cb := orch.askCallback(rt, gateway.InboundMessage{ChannelID: "chan-1", UserID: "U1"})
	if cb(context.Background(), "bash", "tool:bash:rm -rf /") {
		t.Error("expected a gateway error to deny")
	}
}

func TestAskCallbackApprovesOnApproval(t *testing.T) {
	orch, rt, gw, _ := newTestOrchestrator(t)
	gw.askReply = gateway.AskResponse{Approved: true}
	gw.askErr = nil

	cb := orch.askCallback(rt, gateway.InboundMessage{ChannelID: "chan-1", UserID: "U1"})
	if !cb(context.Background(), "bash", "tool:bash:ls") {
		t.Error("expected approval to allow")
	}
}
