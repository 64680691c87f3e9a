package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureHomeCreatesAgentWorkspaces(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Paths.Home = filepath.Join(tmpDir, "home")
	cfg.Agents = []AgentConfig{{Name: "triage"}, {Name: "docs-bot"}}

	if err := EnsureHome(cfg); err != nil {
		t.Fatalf("EnsureHome: %v", err)
	}

	for _, a := range cfg.Agents {
		if _, err := os.Stat(cfg.WorkspacePath(a.Name)); err != nil {
			t.Errorf("expected workspace dir for %s: %v", a.Name, err)
		}
	}
}
