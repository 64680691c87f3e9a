package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chorus.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateAgent(ctx, Agent{
		Name: "alpha", ChannelID: "chan-1", Model: "claude-sonnet-4-5",
		Permissions: "standard", WindowSeconds: 3600,
	}); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, "alpha")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Model != "claude-sonnet-4-5" || got.Permissions != "standard" {
		t.Errorf("unexpected agent: %+v", got)
	}
}

func TestGetWindowRespectsLastClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateAgent(ctx, Agent{Name: "alpha", ChannelID: "c", Model: "m", Permissions: "standard", WindowSeconds: 3600}); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	if _, err := s.PersistMessage(ctx, Message{Agent: "alpha", Branch: 1, Role: "USER", Content: "hello"}); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}

	before := time.Now().Add(-time.Hour)
	msgs, err := s.GetWindow(ctx, "alpha", 1, before)
	if err != nil {
		t.Fatalf("GetWindow: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message in window, got %d", len(msgs))
	}

	if err := s.ClearWindow(ctx, "alpha"); err != nil {
		t.Fatalf("ClearWindow: %v", err)
	}

	// Immediately after clear, a window query from the agent's clear
	// marker should see nothing (clear never deletes rows, but the marker
	// excludes them from the window).
	a, err := s.GetAgent(ctx, "alpha")
	if err != nil {
		t.Fatalf("GetAgent after clear: %v", err)
	}
	msgs, err = s.GetWindow(ctx, "alpha", 1, a.LastClearTime)
	if err != nil {
		t.Fatalf("GetWindow after clear: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty window right after clear, got %d messages", len(msgs))
	}

	// The row itself must still exist (clear never deletes).
	all, err := s.GetWindow(ctx, "alpha", 1, time.Time{})
	if err != nil {
		t.Fatalf("GetWindow full history: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected clear to preserve the row, got %d messages", len(all))
	}
}

func TestAuditLogAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.AppendAudit(ctx, AuditRecord{Agent: "alpha", ActionString: "tool:bash:ls", Decision: "ask", UserID: "u1"}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := Session{SessionID: "sess-1", Agent: "alpha", Timestamp: time.Now(), Summary: "did stuff", MessageCount: 3, FilePath: "/tmp/sess-1.json"}
	if err := s.PersistSession(ctx, sess); err != nil {
		t.Fatalf("PersistSession: %v", err)
	}
	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.MessageCount != 3 || got.Summary != "did stuff" {
		t.Errorf("unexpected session: %+v", got)
	}
}
