// Package contextstore builds the LLM input message list for a branch and
// manages the rolling context window persisted across restarts, per §4.8.
package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/George-Strauch/chorus/internal/branch"
	"github.com/George-Strauch/chorus/internal/llmprovider"
	"github.com/George-Strauch/chorus/internal/store"
)

// ProcessInfo is the minimal running-process shape the preamble needs;
// internal/process.Manager supplies these without contextstore importing it.
type ProcessInfo struct {
	PID            int
	Command        string
	LastOutputLine string
}

// Store is the subset of *store.Store the context builder depends on,
// declared locally so contextstore never imports internal/process or
// anything upstream of it.
type Store interface {
	GetWindow(ctx context.Context, agent string, branchID int, since time.Time) ([]store.Message, error)
	GetWindowAllBranches(ctx context.Context, agent string, since time.Time) ([]store.Message, error)
	GetAgent(ctx context.Context, name string) (*store.Agent, error)
	PersistMessage(ctx context.Context, m store.Message) (int64, error)
	ClearWindow(ctx context.Context, agent string) error
	PersistSession(ctx context.Context, sess store.Session) error
	GetSession(ctx context.Context, sessionID string) (*store.Session, error)
	ListSessions(ctx context.Context, agent string, limit int) ([]store.Session, error)
	InsertWithTimestamp(ctx context.Context, m store.Message, ts time.Time) error
}

// Summarizer generates a short summary of a message slice, backed by a
// cheap model call. On failure the caller falls back to a fixed string
// rather than failing the snapshot, per §4.8.
type Summarizer interface {
	Summarize(ctx context.Context, messages []store.Message) (string, error)
}

// Builder composes the per-branch LLM input: system prompt + docs, the
// cross-branch/process preamble, and the windowed message history.
type Builder struct {
	store      Store
	branches   *branch.Manager
	processes  func() []ProcessInfo
	summarizer Summarizer
}

// NewBuilder wires a context-window builder for one agent. processesFn may
// be nil (no running-process line in the preamble, e.g. before
// internal/process is wired up for that agent).
func NewBuilder(s Store, branches *branch.Manager, processesFn func() []ProcessInfo, sum Summarizer) *Builder {
	return &Builder{store: s, branches: branches, processes: processesFn, summarizer: sum}
}

// Window loads the filtered message slice for agent/branch per §3's
// ContextWindow derivation: timestamp > max(agent.last_clear, now - window).
func (b *Builder) Window(ctx context.Context, agent string, branchID int) ([]store.Message, error) {
	a, err := b.store.GetAgent(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("loading agent %s: %w", agent, err)
	}
	windowStart := time.Now().Add(-time.Duration(a.WindowSeconds) * time.Second)
	since := a.LastClearTime
	if windowStart.After(since) {
		since = windowStart
	}
	return b.store.GetWindow(ctx, agent, branchID, since)
}

// BuildRequest assembles the full ChatRequest for one tool-loop turn:
// system prompt (cached), preamble, and windowed history, in that order.
func (b *Builder) BuildRequest(ctx context.Context, agent string, branchID int, docs string, tools []llmprovider.ToolDefinition, model string) (*llmprovider.ChatRequest, error) {
	a, err := b.store.GetAgent(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("loading agent %s: %w", agent, err)
	}

	system := a.SystemPrompt
	if docs != "" {
		system = system + "\n\n" + docs
	}

	var preamble string
	if b.branches != nil {
		preamble = branch.BuildStatusPreamble(b.branches, branchID)
	}
	if b.processes != nil {
		if procLines := formatProcesses(b.processes()); procLines != "" {
			preamble = preamble + "\n\n" + procLines
		}
	}
	if preamble != "" {
		system = system + "\n\n" + preamble
	}

	window, err := b.Window(ctx, agent, branchID)
	if err != nil {
		return nil, err
	}

	messages := make([]llmprovider.Message, 0, len(window))
	for _, m := range window {
		msg := llmprovider.Message{
			Role:       llmprovider.Role(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.ToolCalls != "" {
			var calls []llmprovider.ToolCall
			if err := json.Unmarshal([]byte(m.ToolCalls), &calls); err == nil {
				msg.ToolCalls = calls
			}
		}
		messages = append(messages, msg)
	}

	return &llmprovider.ChatRequest{
		System:   system,
		Messages: messages,
		Tools:    tools,
		Model:    model,
		Cache:    llmprovider.CacheHints{CacheSystemPrompt: true, CacheLastTool: true},
	}, nil
}

func formatProcesses(procs []ProcessInfo) string {
	if len(procs) == 0 {
		return ""
	}
	out := "Running processes:"
	for _, p := range procs {
		out += fmt.Sprintf("\n  pid %d: %s — last output: %s", p.PID, p.Command, p.LastOutputLine)
	}
	return out
}

// Persist appends a message to the store. ToolCalls, if non-nil, is
// JSON-encoded via store.MarshalToolCalls before the call.
func (b *Builder) Persist(ctx context.Context, m store.Message) (int64, error) {
	return b.store.PersistMessage(ctx, m)
}

// Clear advances the agent's last_clear_time to now, never deleting rows.
func (b *Builder) Clear(ctx context.Context, agent string) error {
	return b.store.ClearWindow(ctx, agent)
}

// ListSnapshots returns up to limit most-recent session index rows.
func (b *Builder) ListSnapshots(ctx context.Context, agent string, limit int) ([]store.Session, error) {
	return b.store.ListSessions(ctx, agent, limit)
}
