package contextstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/George-Strauch/chorus/internal/store"
)

// fakeStore is an in-memory stand-in for *store.Store, sufficient to
// exercise Builder without a real SQLite handle.
type fakeStore struct {
	agent    store.Agent
	messages []store.Message
	sessions map[string]store.Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agent:    store.Agent{Name: "alpha", WindowSeconds: 3600, SystemPrompt: "You are alpha."},
		sessions: map[string]store.Session{},
	}
}

func (f *fakeStore) GetWindow(ctx context.Context, agent string, branchID int, since time.Time) ([]store.Message, error) {
	var out []store.Message
	for _, m := range f.messages {
		if m.Agent == agent && m.Timestamp.After(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetWindowAllBranches(ctx context.Context, agent string, since time.Time) ([]store.Message, error) {
	return f.GetWindow(ctx, agent, 0, since)
}

func (f *fakeStore) GetAgent(ctx context.Context, name string) (*store.Agent, error) {
	a := f.agent
	return &a, nil
}

func (f *fakeStore) PersistMessage(ctx context.Context, m store.Message) (int64, error) {
	m.Timestamp = time.Now()
	f.messages = append(f.messages, m)
	return int64(len(f.messages)), nil
}

func (f *fakeStore) ClearWindow(ctx context.Context, agent string) error {
	f.agent.LastClearTime = time.Now()
	return nil
}

func (f *fakeStore) PersistSession(ctx context.Context, sess store.Session) error {
	f.sessions[sess.SessionID] = sess
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, errNotFound
	}
	return &sess, nil
}

func (f *fakeStore) ListSessions(ctx context.Context, agent string, limit int) ([]store.Session, error) {
	var out []store.Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) InsertWithTimestamp(ctx context.Context, m store.Message, ts time.Time) error {
	m.Timestamp = ts
	f.messages = append(f.messages, m)
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errNotFound = errString("not found")

type failingSummarizer struct{}

func (failingSummarizer) Summarize(ctx context.Context, messages []store.Message) (string, error) {
	return "", errNotFound
}

func TestBuildRequestIncludesSystemAndWindow(t *testing.T) {
	fs := newFakeStore()
	ctx := context.Background()
	if _, err := fs.PersistMessage(ctx, store.Message{Agent: "alpha", Branch: 1, Role: "USER", Content: "hello"}); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}

	b := NewBuilder(fs, nil, nil, nil)
	req, err := b.BuildRequest(ctx, "alpha", 1, "", nil, "claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.System != "You are alpha." {
		t.Errorf("unexpected system prompt: %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
	if !req.Cache.CacheSystemPrompt {
		t.Error("expected system prompt to be marked cacheable")
	}
}

func TestSnapshotFallsBackOnSummarizerFailure(t *testing.T) {
	fs := newFakeStore()
	ctx := context.Background()
	if _, err := fs.PersistMessage(ctx, store.Message{Agent: "alpha", Branch: 1, Role: "USER", Content: "hello"}); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}

	b := NewBuilder(fs, nil, nil, failingSummarizer{})
	dir := t.TempDir()
	sess, err := b.Snapshot(ctx, "alpha", dir, "manual snapshot")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if sess.Summary != summaryFailedPlaceholder {
		t.Errorf("expected fallback summary, got %q", sess.Summary)
	}
}

func TestRestoreReentersWindow(t *testing.T) {
	fs := newFakeStore()
	ctx := context.Background()
	if _, err := fs.PersistMessage(ctx, store.Message{Agent: "alpha", Branch: 1, Role: "USER", Content: "seed"}); err != nil {
		t.Fatalf("PersistMessage: %v", err)
	}

	b := NewBuilder(fs, nil, nil, nil)
	dir := t.TempDir()
	sess, err := b.Snapshot(ctx, "alpha", dir, "")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	// Simulate a clear — the window should now be empty.
	if err := b.Clear(ctx, "alpha"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	window, err := b.Window(ctx, "alpha", 1)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(window) != 0 {
		t.Fatalf("expected empty window after clear, got %d", len(window))
	}

	n, err := b.Restore(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 message restored, got %d", n)
	}

	window, err = b.Window(ctx, "alpha", 1)
	if err != nil {
		t.Fatalf("Window after restore: %v", err)
	}
	if len(window) != 1 || window[0].Content != "seed" {
		t.Errorf("expected restored message to re-enter window, got %+v", window)
	}
}

func TestSnapshotDirIsUnderWorkspace(t *testing.T) {
	got := SnapshotDir("/workspaces/alpha")
	want := filepath.Join("/workspaces/alpha", ".chorus", "sessions")
	if got != want {
		t.Errorf("SnapshotDir = %q, want %q", got, want)
	}
}
