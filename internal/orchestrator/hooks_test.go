package orchestrator

import (
	"context"
	"testing"
)

func TestHookOpsSpawnHookBranchCreatesBranch(t *testing.T) {
	orch, rt, _, _ := newTestOrchestrator(t)
	ops := NewHookOps(orch)

	if err := ops.SpawnHookBranch(context.Background(), "alpha", "process exited nonzero", "", 0); err != nil {
		t.Fatalf("SpawnHookBranch: %v", err)
	}
	waitForBranchTerminal(t, rt, 1)

	if len(rt.Branches.ListAll()) != 1 {
		t.Fatalf("expected one hook-spawned branch, got %d", len(rt.Branches.ListAll()))
	}
}

func TestHookOpsSpawnHookBranchUnknownAgent(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)
	ops := NewHookOps(orch)

	if err := ops.SpawnHookBranch(context.Background(), "does-not-exist", "ctx", "", 0); err == nil {
		t.Error("expected an error for an unknown agent")
	}
}

func TestHookOpsKillAndInjectUnknownAgent(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)
	ops := NewHookOps(orch)

	if ops.KillBranch("does-not-exist", 1) {
		t.Error("expected KillBranch to fail for an unknown agent")
	}
	if ops.Inject("does-not-exist", 1, "hi") {
		t.Error("expected Inject to fail for an unknown agent")
	}
}

func TestHookOpsKillAndInjectKnownAgent(t *testing.T) {
	orch, rt, _, _ := newTestOrchestrator(t)
	ops := NewHookOps(orch)

	if err := ops.SpawnHookBranch(context.Background(), "alpha", "seed", "", 0); err != nil {
		t.Fatalf("SpawnHookBranch: %v", err)
	}
	b := waitForBranchTerminal(t, rt, 1)

	if !ops.KillBranch("alpha", b.ID) {
		t.Error("expected KillBranch on a terminal branch to report success")
	}
	if !ops.Inject("alpha", b.ID, "follow-up") {
		t.Error("expected Inject to succeed against a known branch")
	}
	if ops.Inject("alpha", 999, "nope") {
		t.Error("expected Inject to fail for an unknown branch id")
	}
}
