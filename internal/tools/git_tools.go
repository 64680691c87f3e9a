package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// gitTool wraps a single git subcommand. Its action-string detail is
// "<op> <args>" per §6's grammar, so the standard preset's
// tool:git:(init|commit|branch|checkout|diff|log) .* pattern can distinguish
// safe operations from push/merge_request without per-op tool names.
type gitTool struct {
	op          string
	description string
	argNames    []string
}

func (t *gitTool) Name() string        { return "git_" + t.op }
func (t *gitTool) Description() string { return t.description }
func (t *gitTool) Parameters() map[string]any {
	props := map[string]any{}
	for _, a := range t.argNames {
		props[a] = strProp(a)
	}
	return schema(props, t.argNames...)
}
func (t *gitTool) BuildDetail(args map[string]any) string {
	b, _ := json.Marshal(args)
	return t.op + " " + string(b)
}
func (t *gitTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	command := "git " + t.op + " " + shellJoinArgs(t.argNames, args)
	result, err := ec.ShellExecutor.Run(ctx, strings.TrimSpace(command), "", 60, 0)
	if err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	b, _ := json.Marshal(shellResultWire{
		ExitCode: result.ExitCode, Stdout: result.Stdout, Stderr: result.Stderr,
		TimedOut: result.TimedOut, DurationMS: result.DurationMS, Truncated: result.Truncated,
	})
	return string(b), nil
}

func shellJoinArgs(names []string, args map[string]any) string {
	var parts []string
	for _, n := range names {
		v := GetString(args, n, "")
		if v != "" {
			parts = append(parts, fmt.Sprintf("%q", v))
		}
	}
	return strings.Join(parts, " ")
}

// GitTools returns the full set of git_* tools registered by default.
func GitTools() []Tool {
	return []Tool{
		&gitTool{op: "init", description: "Initialize a git repository in the workspace."},
		&gitTool{op: "commit", description: "Commit staged changes.", argNames: []string{"message"}},
		&gitTool{op: "push", description: "Push commits to the configured remote.", argNames: []string{"remote", "branch"}},
		&gitTool{op: "branch", description: "Create or list branches.", argNames: []string{"name"}},
		&gitTool{op: "checkout", description: "Switch branches or restore files.", argNames: []string{"ref"}},
		&gitTool{op: "diff", description: "Show changes between commits, commit and working tree, etc.", argNames: []string{"pathspec"}},
		&gitTool{op: "log", description: "Show commit history.", argNames: []string{"pathspec"}},
		&gitTool{op: "merge_request", description: "Open a merge/pull request against the configured remote.", argNames: []string{"title", "body"}},
	}
}
