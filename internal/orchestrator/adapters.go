package orchestrator

import (
	"context"
	"time"

	"github.com/George-Strauch/chorus/internal/branch"
	"github.com/George-Strauch/chorus/internal/execshell"
	"github.com/George-Strauch/chorus/internal/tools"
)

// lockAdapter makes *branch.Manager satisfy tools.FileLocker with the
// fixed lock-acquisition timeout of §5 (30s ⇒ LockTimeout tool error).
type lockAdapter struct {
	branches *branch.Manager
}

const defaultLockTimeout = 30 * time.Second

func (l lockAdapter) AcquireFileLock(ctx context.Context, path string) (func(), bool) {
	return l.branches.AcquireFileLock(ctx, path, defaultLockTimeout)
}

// shellAdapter makes *execshell.Executor satisfy tools.ShellExecutor.
type shellAdapter struct {
	exec *execshell.Executor
}

func (s shellAdapter) Run(ctx context.Context, command, cwd string, timeoutSeconds, maxOutputBytes int) (tools.ShellResult, error) {
	timeout := execshell.DefaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if maxOutputBytes <= 0 {
		maxOutputBytes = execshell.DefaultMaxOutputBytes
	}
	res, err := s.exec.Run(ctx, command, cwd, timeout, maxOutputBytes)
	if res == nil {
		return tools.ShellResult{}, err
	}
	return tools.ShellResult{
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		TimedOut:   res.TimedOut,
		DurationMS: res.DurationMS,
		Truncated:  res.Truncated,
	}, err
}

// metricsSteps adapts *branch.Metrics (whose BeginStep returns a Step) to
// toolloop.StepBeginner (which returns nothing): the tool loop only needs
// the side effect, the returned Step is for callers that need timing data
// directly off the branch.
type metricsSteps struct {
	m *branch.Metrics
}

func (s metricsSteps) BeginStep(description string) {
	s.m.BeginStep(description)
}
