// Package toolloop runs the agentic tool-use loop: call the LLM, execute
// the tool calls it requests under permission mediation, feed results
// back, and repeat until a final text response or the iteration cap, per
// §4.6.
package toolloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/George-Strauch/chorus/internal/llmprovider"
	"github.com/George-Strauch/chorus/internal/permission"
	"github.com/George-Strauch/chorus/internal/tools"
)

// DefaultMaxIterations caps LLM calls per loop run when the caller does
// not override it.
const DefaultMaxIterations = 25

// EventKind identifies a loop event for the status view / metrics layer.
type EventKind string

const (
	EventLLMCallStart     EventKind = "LLM_CALL_START"
	EventLLMCallComplete  EventKind = "LLM_CALL_COMPLETE"
	EventToolCallStart    EventKind = "TOOL_CALL_START"
	EventToolCallComplete EventKind = "TOOL_CALL_COMPLETE"
	EventLoopComplete     EventKind = "LOOP_COMPLETE"
)

// Event is emitted at the points named in §4.6 step 6. Fields not
// relevant to a given Kind are left zero.
type Event struct {
	Kind       EventKind
	ToolName   string
	Detail     string
	Usage      llmprovider.Usage
	Truncated  bool
	StepDesc   string
}

// EventEmitter receives loop events. Errors from the emitter are logged
// and swallowed — they must never interrupt the loop (§4.6 failure
// semantics).
type EventEmitter func(Event)

// AskCallback asks a human to approve a tool call, returning true if
// approved. Implementations should themselves honor any ask-timeout
// (§4.12 describes the 120s timeout ⇒ deny at the orchestrator layer);
// the loop treats a false return identically to a timeout.
type AskCallback func(ctx context.Context, toolName, action string) bool

// StepBeginner records a branch metrics step, e.g. "Calling LLM" or
// "Awaiting permission: tool:bash:ls". Declared locally (rather than
// importing internal/branch) to keep this package free to run without a
// branch manager in tests.
type StepBeginner interface {
	BeginStep(description string)
}

// Result is what a complete tool-loop run produces.
type Result struct {
	Content       string
	Messages      []llmprovider.Message
	TotalUsage    llmprovider.Usage
	Iterations    int
	ToolCallsMade int
	Truncated     bool
}

// Params bundles a single run_tool_loop invocation's inputs, per §4.6.
type Params struct {
	Provider      llmprovider.Provider
	Messages      []llmprovider.Message
	Registry      *tools.Registry
	Profile       *permission.Profile
	SystemPrompt  string
	Model         string
	MaxIterations int
	ExecContext   *tools.ExecContext
	AskCallback   AskCallback
	Emit          EventEmitter
	Steps         StepBeginner
	// InjectDrain returns any messages queued via branch.Inject since the
	// last drain, consumed once per iteration (§4.6 step 5).
	InjectDrain func() []llmprovider.Message
}

func (p *Params) emit(e Event) {
	if p.Emit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("event emitter panicked, swallowing", "panic", r)
		}
	}()
	p.Emit(e)
}

func (p *Params) beginStep(desc string) {
	if p.Steps != nil {
		p.Steps.BeginStep(desc)
	}
}

// Run executes the loop per §4.6's algorithm.
func Run(ctx context.Context, p *Params) (*Result, error) {
	maxIter := p.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	toolDefs := toolDefinitions(p.Registry)

	messages := append([]llmprovider.Message(nil), p.Messages...)

	totalUsage := llmprovider.Usage{}
	toolCallsMade := 0

	for iteration := 1; iteration <= maxIter; iteration++ {
		if p.InjectDrain != nil {
			messages = append(messages, p.InjectDrain()...)
		}

		p.beginStep("Calling LLM")
		p.emit(Event{Kind: EventLLMCallStart})

		req := &llmprovider.ChatRequest{
			System:   p.SystemPrompt,
			Messages: messages,
			Tools:    toolDefs,
			Model:    p.Model,
			Cache:    llmprovider.CacheHints{CacheSystemPrompt: true, CacheLastTool: len(toolDefs) > 0},
		}
		resp, err := p.Provider.Chat(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("provider call failed: %w", err)
		}
		totalUsage = totalUsage.Add(resp.Usage)
		p.emit(Event{Kind: EventLLMCallComplete, Usage: resp.Usage})

		if resp.StopReason != llmprovider.StopToolUse && len(resp.ToolCalls) == 0 {
			return &Result{
				Content:       resp.Content,
				Messages:      messages,
				TotalUsage:    totalUsage,
				Iterations:    iteration,
				ToolCallsMade: toolCallsMade,
			}, nil
		}

		assistantMsg := llmprovider.Message{
			Role:      llmprovider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)

		results := p.executeBatch(ctx, resp.ToolCalls)
		for i, tc := range resp.ToolCalls {
			messages = append(messages, llmprovider.Message{
				Role:       llmprovider.RoleTool,
				ToolCallID: tc.ID,
				Content:    results[i],
			})
			toolCallsMade++
		}
	}

	p.emit(Event{Kind: EventLoopComplete, Truncated: true})
	return &Result{
		Content:       fmt.Sprintf("Stopped after max iterations (%d). The task may be incomplete.", maxIter),
		Messages:      messages,
		TotalUsage:    totalUsage,
		Iterations:    maxIter,
		ToolCallsMade: toolCallsMade,
		Truncated:     true,
	}, nil
}

// executeBatch runs every tool call in resp.ToolCalls, honoring §4.6 step
// 4c: if any call in the batch is ASK, the whole batch runs sequentially;
// otherwise every call executes concurrently and results are joined back
// in call order.
func (p *Params) executeBatch(ctx context.Context, calls []llmprovider.ToolCall) []string {
	results := make([]string, len(calls))

	decisions := make([]decision, len(calls))
	anyAsk := false
	for i, tc := range calls {
		decisions[i] = p.decide(tc)
		if decisions[i].result == permission.Ask {
			anyAsk = true
		}
	}

	if anyAsk {
		for i, tc := range calls {
			results[i] = p.runOne(ctx, tc, decisions[i])
		}
		return results
	}

	done := make(chan struct{}, len(calls))
	for i, tc := range calls {
		go func(i int, tc llmprovider.ToolCall) {
			results[i] = p.runOne(ctx, tc, decisions[i])
			done <- struct{}{}
		}(i, tc)
	}
	for range calls {
		<-done
	}
	return results
}

type decision struct {
	result permission.Result
	action string
	tool   tools.Tool
}

func (p *Params) decide(tc llmprovider.ToolCall) decision {
	tool, ok := p.Registry.Get(tc.Name)
	if !ok {
		return decision{result: permission.Deny, action: ""}
	}
	detail := tool.BuildDetail(tc.Arguments)
	action := permission.FormatAction(tools.CategoryOf(tc.Name), detail)
	return decision{result: permission.Decide(action, p.Profile), action: action, tool: tool}
}

// runOne executes one tool call after its permission decision has already
// been made, applying ASK/DENY handling and catching handler panics/errors
// per §4.6's failure semantics.
func (p *Params) runOne(ctx context.Context, tc llmprovider.ToolCall, d decision) string {
	if d.tool == nil {
		return errJSON(fmt.Sprintf("UnknownTool: %s", tc.Name))
	}

	switch d.result {
	case permission.Deny:
		p.beginStep(fmt.Sprintf("Permission denied: %s", d.action))
		return errJSON(fmt.Sprintf("PermissionDenied: %s", d.action))

	case permission.Ask:
		p.beginStep(fmt.Sprintf("Awaiting permission: %s", d.action))
		if p.AskCallback == nil {
			return errJSON(fmt.Sprintf("AskRequiresCallback: %s", d.action))
		}
		if !p.AskCallback(ctx, tc.Name, d.action) {
			return errJSON(fmt.Sprintf("UserDeclined: %s", d.action))
		}
	}

	p.beginStep(fmt.Sprintf("Executing %s: %s", tc.Name, d.action))
	p.emit(Event{Kind: EventToolCallStart, ToolName: tc.Name, Detail: d.action})

	out, err := p.safeExecute(ctx, d.tool, tc.Arguments)

	p.emit(Event{Kind: EventToolCallComplete, ToolName: tc.Name, Detail: d.action})
	if err != nil {
		return errJSON(fmt.Sprintf("%T: %v", err, err))
	}
	return out
}

// safeExecute recovers a panicking tool handler into an error, since a
// misbehaving tool must not take down the whole branch (§4.6: "tool
// handler exceptions are caught ... loop continues").
func (p *Params) safeExecute(ctx context.Context, tool tools.Tool, args map[string]any) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panic: %v", r)
		}
	}()
	return tool.Execute(ctx, p.ExecContext, args)
}

func errJSON(msg string) string {
	kind, detail, _ := strings.Cut(msg, ": ")
	b, _ := json.Marshal(map[string]string{"error": kind, "message": detail})
	return string(b)
}

func toolDefinitions(r *tools.Registry) []llmprovider.ToolDefinition {
	if r == nil {
		return nil
	}
	var out []llmprovider.ToolDefinition
	for _, t := range r.List() {
		out = append(out, llmprovider.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}
