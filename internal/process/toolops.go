package process

import (
	"context"

	"github.com/George-Strauch/chorus/internal/tools"
)

// AgentOps scopes a Manager to one agent so it satisfies tools.ProcessOps,
// the narrow interface the run_concurrent/run_background/process_list/
// process_kill tools depend on.
type AgentOps struct {
	Manager *Manager
	Agent   string
}

// Spawn implements tools.ProcessOps.
func (a *AgentOps) Spawn(ctx context.Context, command, cwd string, background bool) (int, error) {
	typ := TypeConcurrent
	if background {
		typ = TypeBackground
	}
	tp, err := a.Manager.Spawn(ctx, command, cwd, a.Agent, typ, SpawnOptions{})
	if err != nil {
		return 0, err
	}
	return tp.PID, nil
}

// Kill implements tools.ProcessOps.
func (a *AgentOps) Kill(ctx context.Context, pid int) error {
	return a.Manager.Kill(ctx, pid)
}

// List implements tools.ProcessOps.
func (a *AgentOps) List() []tools.ProcessSummary {
	tracked := a.Manager.List(a.Agent)
	out := make([]tools.ProcessSummary, 0, len(tracked))
	for _, tp := range tracked {
		out = append(out, tools.ProcessSummary{PID: tp.PID, Command: tp.Command, Status: string(tp.Status)})
	}
	return out
}
