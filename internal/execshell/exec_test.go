package execshell

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsBlockedRmRfRoot(t *testing.T) {
	if !IsBlocked("rm -rf /") {
		t.Error("expected rm -rf / to be blocked")
	}
	if IsBlocked("ls -la") {
		t.Error("expected ls -la to not be blocked")
	}
}

func TestRunBlocklistedCommand(t *testing.T) {
	ex := New(t.TempDir())
	_, err := ex.Run(context.Background(), "rm -rf /", "", 0, 0)
	var blocked *ErrBlocked
	if !errors.As(err, &blocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestRunCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	ex := New(dir)
	result, err := ex.Run(context.Background(), "echo hello", "", 0, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("expected stdout to contain hello, got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if result.TimedOut {
		t.Error("did not expect timeout")
	}
}

func TestRunTimeout(t *testing.T) {
	dir := t.TempDir()
	ex := New(dir)
	result, err := ex.Run(context.Background(), "sleep 5", "", 200*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected timed_out=true")
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit_code -1 for timeout, got %d", result.ExitCode)
	}
}

func TestTruncateFromFrontKeepsTail(t *testing.T) {
	s := strings.Repeat("a", 100) + "TAIL"
	out, truncated := truncateFromFront(s, 10)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasSuffix(out, "TAIL") {
		t.Errorf("expected tail to be preserved, got %q", out)
	}
}

func TestSanitizedEnvOverridesHome(t *testing.T) {
	env := sanitizedEnv("/workspace/root")
	found := false
	for _, kv := range env {
		if kv == "HOME=/workspace/root" {
			found = true
		}
		if strings.HasPrefix(kv, "AWS_SECRET") {
			t.Errorf("env allowlist leaked unexpected var: %s", kv)
		}
	}
	if !found {
		t.Error("expected HOME to be repointed to workspace root")
	}
}
