package tools

import (
	"context"
	"encoding/json"
)

type shellResultWire struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	TimedOut   bool   `json:"timed_out"`
	DurationMS int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated"`
	Error      string `json:"error,omitempty"`
}

// BashTool implements bash_execute per §4.3.
type BashTool struct{}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return "Execute a shell command in the agent's workspace and return its captured output." }
func (t *BashTool) Parameters() map[string]any {
	return schema(map[string]any{
		"command":          strProp("Shell command to run."),
		"cwd":              strProp("Working directory, workspace-relative (default: workspace root)."),
		"timeout":          intProp("Timeout in seconds (default 60)."),
		"max_output_bytes": intProp("Output capture cap in bytes (default 50000)."),
	}, "command")
}
func (t *BashTool) BuildDetail(args map[string]any) string {
	return GetString(args, "command", "")
}
func (t *BashTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	command := GetString(args, "command", "")
	cwd := GetString(args, "cwd", "")
	timeout := GetInt(args, "timeout", 60)
	maxOutput := GetInt(args, "max_output_bytes", 0)

	result, err := ec.ShellExecutor.Run(ctx, command, cwd, timeout, maxOutput)
	if err != nil {
		b, _ := json.Marshal(shellResultWire{Error: "BlocklistedCommand: " + err.Error()})
		return string(b), nil
	}
	wire := shellResultWire{
		ExitCode:   result.ExitCode,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		TimedOut:   result.TimedOut,
		DurationMS: result.DurationMS,
		Truncated:  result.Truncated,
	}
	b, _ := json.Marshal(wire)
	return string(b), nil
}
