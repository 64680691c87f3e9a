package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/George-Strauch/chorus/internal/permission"
	"github.com/George-Strauch/chorus/internal/workspace"
)

type fakeLocker struct{ denyNext bool }

func (f *fakeLocker) AcquireFileLock(ctx context.Context, path string) (func(), bool) {
	if f.denyNext {
		return nil, false
	}
	return func() {}, true
}

func newTestExecContext(t *testing.T) (*ExecContext, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	profile, err := permission.GetPreset("standard")
	if err != nil {
		t.Fatalf("GetPreset: %v", err)
	}
	return &ExecContext{
		AgentName: "alpha",
		Workspace: ws,
		Profile:   profile,
		FileLocker: &fakeLocker{},
	}, ws
}

func TestDefaultRegistryHasCoreTools(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{"create_file", "str_replace", "view", "bash", "git_commit", "self_edit_permissions", "send_to_agent"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("expected registry to contain tool %q", name)
		}
	}
}

func TestCreateFileThenView(t *testing.T) {
	ec, _ := newTestExecContext(t)
	r := DefaultRegistry()

	out, err := r.Execute(context.Background(), ec, "create_file", map[string]any{
		"path": "a.md", "content": "hello",
	})
	if err != nil {
		t.Fatalf("create_file: %v", err)
	}
	if !strings.Contains(out, `"action":"create_file"`) {
		t.Errorf("unexpected create_file result: %s", out)
	}

	viewed, err := r.Execute(context.Background(), ec, "view", map[string]any{"path": "a.md"})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if !strings.Contains(viewed, "hello") {
		t.Errorf("expected view to contain written content, got %q", viewed)
	}
}

func TestStrReplaceLockTimeout(t *testing.T) {
	ec, _ := newTestExecContext(t)
	ec.FileLocker = &fakeLocker{denyNext: true}
	r := DefaultRegistry()

	out, err := r.Execute(context.Background(), ec, "str_replace", map[string]any{
		"path": "a.md", "old_text": "x", "new_text": "y",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "LockTimeout") {
		t.Errorf("expected LockTimeout error, got %s", out)
	}
}

func TestBuildDetailUsedInActionString(t *testing.T) {
	tool := &CreateFileTool{}
	detail := tool.BuildDetail(map[string]any{"path": "notes/a.md"})
	action := permission.FormatAction(CategoryOf(tool.Name()), detail)
	if action != "tool:create_file:notes/a.md" {
		t.Errorf("unexpected action string: %s", action)
	}
}

func TestGitToolDetailDistinguishesPush(t *testing.T) {
	profile, _ := permission.GetPreset("standard")
	push := &gitTool{op: "push", argNames: []string{"remote", "branch"}}
	action := permission.FormatAction("git", push.BuildDetail(map[string]any{"remote": "origin", "branch": "main"}))
	if permission.Decide(action, profile) != permission.Ask {
		t.Errorf("expected git push to require ask under standard profile")
	}

	diff := &gitTool{op: "diff"}
	action = permission.FormatAction("git", diff.BuildDetail(map[string]any{}))
	if permission.Decide(action, profile) != permission.Allow {
		t.Errorf("expected git diff to be allowed under standard profile")
	}
}
