package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// RunConcurrentTool spawns a tracked subprocess the branch does not wait on.
type RunConcurrentTool struct{}

func (t *RunConcurrentTool) Name() string        { return "run_concurrent" }
func (t *RunConcurrentTool) Description() string { return "Start a tracked subprocess; the current branch continues immediately." }
func (t *RunConcurrentTool) Parameters() map[string]any {
	return schema(map[string]any{
		"command": strProp("Shell command to run."),
		"cwd":     strProp("Working directory, workspace-relative."),
	}, "command")
}
func (t *RunConcurrentTool) BuildDetail(args map[string]any) string { return GetString(args, "command", "") }
func (t *RunConcurrentTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	cwd := GetString(args, "cwd", "")
	if !filepath.IsAbs(cwd) {
		cwd = filepath.Join(ec.Workspace.Root(), cwd)
	}
	pid, err := ec.ProcessOps.Spawn(ctx, GetString(args, "command", ""), cwd, false)
	if err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	b, _ := json.Marshal(map[string]any{"pid": pid, "type": "concurrent"})
	return string(b), nil
}

// RunBackgroundTool spawns a tracked subprocess with a visible status embed.
type RunBackgroundTool struct{}

func (t *RunBackgroundTool) Name() string        { return "run_background" }
func (t *RunBackgroundTool) Description() string { return "Start a tracked subprocess that surfaces as a live status embed in the channel." }
func (t *RunBackgroundTool) Parameters() map[string]any {
	return schema(map[string]any{
		"command": strProp("Shell command to run."),
		"cwd":     strProp("Working directory, workspace-relative."),
	}, "command")
}
func (t *RunBackgroundTool) BuildDetail(args map[string]any) string { return GetString(args, "command", "") }
func (t *RunBackgroundTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	cwd := GetString(args, "cwd", "")
	if !filepath.IsAbs(cwd) {
		cwd = filepath.Join(ec.Workspace.Root(), cwd)
	}
	pid, err := ec.ProcessOps.Spawn(ctx, GetString(args, "command", ""), cwd, true)
	if err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	b, _ := json.Marshal(map[string]any{"pid": pid, "type": "background"})
	return string(b), nil
}

// ProcessListTool lists tracked processes for the current agent.
type ProcessListTool struct{}

func (t *ProcessListTool) Name() string        { return "process_list" }
func (t *ProcessListTool) Description() string { return "List this agent's tracked processes." }
func (t *ProcessListTool) Parameters() map[string]any {
	return schema(map[string]any{})
}
func (t *ProcessListTool) BuildDetail(args map[string]any) string { return "" }
func (t *ProcessListTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	b, _ := json.Marshal(ec.ProcessOps.List())
	return string(b), nil
}

// ProcessKillTool kills a tracked process by pid.
type ProcessKillTool struct{}

func (t *ProcessKillTool) Name() string        { return "process_kill" }
func (t *ProcessKillTool) Description() string { return "Kill a tracked process by pid (SIGTERM, grace period, then SIGKILL)." }
func (t *ProcessKillTool) Parameters() map[string]any {
	return schema(map[string]any{"pid": intProp("Process id to kill.")}, "pid")
}
func (t *ProcessKillTool) BuildDetail(args map[string]any) string {
	return fmt.Sprintf("%d", GetInt(args, "pid", 0))
}
func (t *ProcessKillTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	pid := GetInt(args, "pid", 0)
	if err := ec.ProcessOps.Kill(ctx, pid); err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	return fmt.Sprintf(`{"pid": %d, "status": "killed"}`, pid), nil
}
