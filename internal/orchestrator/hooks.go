package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/George-Strauch/chorus/internal/gateway"
	"github.com/George-Strauch/chorus/internal/process"
)

func errUnknownAgent(agent string) error {
	return fmt.Errorf("unknown agent: %s", agent)
}

func hookSeed(channelID, hookContext string) gateway.InboundMessage {
	return gateway.InboundMessage{
		ChannelID: channelID,
		UserID:    "hook:system",
		Text:      hookContext,
	}
}

// HookOps backs process.HookDispatcher's SPAWN_BRANCH/STOP_BRANCH/
// INJECT_CONTEXT/NOTIFY_CHANNEL actions (§4.10), routing each back through
// the same per-agent branch managers the orchestrator itself uses so a
// hook-spawned branch runs under the exact machinery a channel message
// would: profile, tool loop, status view, persistence. Exported so
// cmd/chorus can wire it into process.NewHookDispatcher.
type HookOps struct {
	orch *Orchestrator
}

// NewHookOps builds a HookOps bound to orch.
func NewHookOps(orch *Orchestrator) *HookOps {
	return &HookOps{orch: orch}
}

func (h *HookOps) runtimeFor(agent string) (*AgentRuntime, bool) {
	h.orch.mu.RLock()
	rt, ok := h.orch.agents[agent]
	h.orch.mu.RUnlock()
	return rt, ok
}

// SpawnHookBranch satisfies process.BranchSpawner. Hook-spawned branches
// always inherit the agent's own permission profile — never elevated —
// which falls out naturally since o.runner reloads the profile fresh per
// branch rather than taking one from the caller.
func (h *HookOps) SpawnHookBranch(ctx context.Context, agent, hookContext, model string, recursionDepth int) error {
	rt, ok := h.runtimeFor(agent)
	if !ok {
		return errUnknownAgent(agent)
	}
	if model != "" && model != rt.Model {
		slog.Debug("hook requested model override ignored, using agent's configured model", "agent", agent, "requested", model, "configured", rt.Model)
	}

	seed := hookSeed(rt.ChannelID, hookContext)
	b := rt.Branches.CreateBranch(ctx, hookContext, nil, recursionDepth, h.orch.runner(rt, seed))
	h.orch.presence.BranchStarted(rt.Name, b.ID)
	return nil
}

// KillBranch satisfies process.BranchKiller.
func (h *HookOps) KillBranch(agent string, branchID int) bool {
	rt, ok := h.runtimeFor(agent)
	if !ok {
		return false
	}
	return rt.Branches.Kill(branchID)
}

// Inject satisfies process.Injector.
func (h *HookOps) Inject(agent string, branchID int, message string) bool {
	rt, ok := h.runtimeFor(agent)
	if !ok {
		return false
	}
	b, ok := rt.Branches.Get(branchID)
	if !ok {
		return false
	}
	b.Inject(message)
	return true
}

// Notify satisfies process.Notifier, posting straight to the agent's own
// channel rather than through any particular branch's status view.
func (h *HookOps) Notify(ctx context.Context, agent, message string, tp *process.TrackedProcess) {
	rt, ok := h.runtimeFor(agent)
	if !ok {
		return
	}
	if _, err := h.orch.gateway.Send(ctx, rt.ChannelID, message); err != nil {
		slog.Warn("hook notification failed", "agent", agent, "error", err)
	}
}
