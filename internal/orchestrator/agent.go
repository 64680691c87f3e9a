package orchestrator

import (
	"github.com/George-Strauch/chorus/internal/branch"
	"github.com/George-Strauch/chorus/internal/contextstore"
	"github.com/George-Strauch/chorus/internal/execshell"
	"github.com/George-Strauch/chorus/internal/llmprovider"
	"github.com/George-Strauch/chorus/internal/permission"
	"github.com/George-Strauch/chorus/internal/process"
	"github.com/George-Strauch/chorus/internal/tools"
	"github.com/George-Strauch/chorus/internal/workspace"
)

// AgentRuntime bundles one agent's static wiring: everything the
// orchestrator needs to route a channel's inbound messages into a branch
// and build that branch's tool loop, per §4.12 step 5.
type AgentRuntime struct {
	Name      string
	ChannelID string
	Provider  llmprovider.Provider
	Registry  *tools.Registry
	Model     string
	Docs      string // always-injected docs text, appended to the system prompt

	Workspace *workspace.Workspace
	Branches  *branch.Manager
	Context   *contextstore.Builder
	Processes *process.Manager
	Shell     *execshell.Executor

	// MaxIterations overrides toolloop.DefaultMaxIterations when non-zero.
	MaxIterations int
	// RecursionLimit is not read anywhere: branches spawned by
	// send_to_agent are not depth-bounded by it.
	RecursionLimit int
}

// execContextFor builds the per-branch tools.ExecContext, wiring this
// agent's workspace/shell/process manager and the branch's own file-lock
// and agent-comm views.
func (rt *AgentRuntime) execContextFor(profile *permission.Profile, selfEdit tools.SelfEditStore, agentComm tools.AgentComm, isAdmin bool) *tools.ExecContext {
	return &tools.ExecContext{
		AgentName:     rt.Name,
		Workspace:     rt.Workspace,
		Profile:       profile,
		IsAdmin:       isAdmin,
		FileLocker:    lockAdapter{branches: rt.Branches},
		ShellExecutor: shellAdapter{exec: rt.Shell},
		ProcessOps:    &process.AgentOps{Manager: rt.Processes, Agent: rt.Name},
		AgentComm:     agentComm,
		SelfEdit:      selfEdit,
	}
}
