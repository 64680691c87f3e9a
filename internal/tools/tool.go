// Package tools catalogs the handlers an agent can invoke from the LLM tool
// loop: JSON schemas, permission action-string builders, and execution.
package tools

import (
	"context"
	"fmt"

	"github.com/George-Strauch/chorus/internal/permission"
)

// ExecContext carries everything a tool handler needs beyond its
// LLM-supplied arguments: the agent's workspace, its permission profile
// (for tools that inspect it, like self_edit_permissions), identity, and
// references into the surrounding runtime.
type ExecContext struct {
	AgentName string
	Workspace Workspace
	Profile   *permission.Profile
	IsAdmin   bool

	FileLocker    FileLocker
	ShellExecutor ShellExecutor
	ProcessOps    ProcessOps
	AgentComm     AgentComm
	SelfEdit      SelfEditStore
}

// Workspace is the subset of *workspace.Workspace that tools depend on,
// declared as an interface so tests can supply fakes (the package still
// imports workspace for its error values).
type Workspace interface {
	Root() string
	CreateFile(path, content string) error
	StrReplace(path, old, new string) (string, error)
	StrReplaceAll(path, old, new string) (int, error)
	View(path string, offset, limit int) (string, error)
	InsertAt(path string, line int, position string, content string) error
	ReplaceLines(path string, start, end int, content string) error
}

// FileLocker acquires/releases the per-file write locks owned by the
// branch manager. Read-only tools never call it.
type FileLocker interface {
	AcquireFileLock(ctx context.Context, path string) (release func(), ok bool)
}

// ShellExecutor runs a sandboxed shell command.
type ShellExecutor interface {
	Run(ctx context.Context, command, cwd string, timeoutSeconds int, maxOutputBytes int) (ShellResult, error)
}

// ShellResult mirrors execshell.Result without importing that package.
type ShellResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	TimedOut   bool
	DurationMS int64
	Truncated  bool
}

// ProcessOps is the subset of process.Manager used by the run_concurrent /
// run_background / process_list / process_kill tools.
type ProcessOps interface {
	Spawn(ctx context.Context, command, cwd string, background bool) (pid int, err error)
	Kill(ctx context.Context, pid int) error
	List() []ProcessSummary
}

// ProcessSummary is a display-oriented view of a tracked process.
type ProcessSummary struct {
	PID     int
	Command string
	Status  string
}

// AgentComm is the subset of the orchestrator used by inter-agent tools.
type AgentComm interface {
	SendToAgent(ctx context.Context, fromAgent, targetAgent, message string) error
	ReadAgentDocs(ctx context.Context, targetAgent string) (string, error)
	ListAgents(ctx context.Context) ([]string, error)
}

// SelfEditStore is the subset of the store used by self_edit_* tools.
type SelfEditStore interface {
	SetSystemPrompt(ctx context.Context, agent, prompt string) error
	WriteDoc(ctx context.Context, agent, path, content string) error
	SetPermissionProfile(ctx context.Context, agent string, profile string, role permission.Role) error
	SetModel(ctx context.Context, agent, model string) error
}

// Tool is the interface every registry entry implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	// BuildDetail renders the permission action-string detail for a call
	// with these arguments, per the grammar in the external-interfaces
	// section: bash gets the full command, file ops the relative path,
	// git "<op> <args>", self_edit "<kind>[:<target>]", agent_comm
	// "<op> <target>".
	BuildDetail(args map[string]any) string
	Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error)
}

// Registry is a name-keyed catalog of tools.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, keyed by its Name().
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ProjectFor returns the subset of tools that could produce at least one
// non-DENY action string under profile. It is an optimization to reduce
// input tokens; the runtime permission check in the tool loop remains
// authoritative regardless of what this function omits.
func ProjectFor(tools []Tool, profile *permission.Profile) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if couldEverRun(t, profile) {
			out = append(out, t)
		}
	}
	return out
}

// couldEverRun probes a handful of representative detail strings for the
// tool's category and keeps the tool if any yields non-DENY. This is a
// heuristic, not exhaustive, in keeping with the projection being an
// optimization rather than an authority.
func couldEverRun(t Tool, profile *permission.Profile) bool {
	probes := []string{t.BuildDetail(map[string]any{}), "probe", "*"}
	for _, detail := range probes {
		action := permission.FormatAction(CategoryOf(t.Name()), detail)
		if permission.Decide(action, profile) != permission.Deny {
			return true
		}
	}
	return false
}

// Execute runs a tool by name.
func (r *Registry) Execute(ctx context.Context, ec *ExecContext, name string, args map[string]any) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("UnknownTool: %s", name)
	}
	return t.Execute(ctx, ec, args)
}

// GetString extracts a string argument with a default.
func GetString(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// GetInt extracts an int argument (JSON numbers decode as float64) with a default.
func GetInt(args map[string]any, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

// GetBool extracts a bool argument with a default.
func GetBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
