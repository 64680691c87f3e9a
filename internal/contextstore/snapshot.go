package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/George-Strauch/chorus/internal/store"
)

const summaryFailedPlaceholder = "(summary generation failed)"

// SnapshotMessage is the shape of one message inside a session file.
type SnapshotMessage struct {
	Branch     int    `json:"branch"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCalls  string `json:"tool_calls,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// SnapshotFile is the on-disk shape written by Snapshot, per §4.8.
type SnapshotFile struct {
	ID           string            `json:"id"`
	Timestamp    string            `json:"timestamp"`
	Description  string            `json:"description,omitempty"`
	Summary      string            `json:"summary"`
	MessageCount int               `json:"message_count"`
	WindowStart  string            `json:"window_start"`
	WindowEnd    string            `json:"window_end"`
	Messages     []SnapshotMessage `json:"messages"`
}

// SnapshotDir returns the directory snapshot files are written under, a
// subdirectory of the agent's workspace root so it travels with the rest
// of the agent's durable state.
func SnapshotDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".chorus", "sessions")
}

// Snapshot writes a session file for the agent's full persisted history
// across all branches inside the current rolling window (after the later of
// the last clear and now minus the agent's window seconds), and an index row.
// On summarizer failure it still writes the snapshot, with the fixed
// placeholder summary, per §4.8 — a snapshot must never fail because the
// cheap summarization call did.
func (b *Builder) Snapshot(ctx context.Context, agent, workspaceRoot, description string) (*store.Session, error) {
	a, err := b.store.GetAgent(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("loading agent %s: %w", agent, err)
	}

	windowStart := a.LastClearTime
	if ws := time.Now().Add(-time.Duration(a.WindowSeconds) * time.Second); ws.After(windowStart) {
		windowStart = ws
	}
	messages, err := b.store.GetWindowAllBranches(ctx, agent, windowStart)
	if err != nil {
		return nil, fmt.Errorf("loading window for snapshot: %w", err)
	}

	summary := summaryFailedPlaceholder
	if b.summarizer != nil {
		if s, err := b.summarizer.Summarize(ctx, messages); err == nil && s != "" {
			summary = s
		}
	}

	snap := SnapshotFile{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Description:  description,
		Summary:      summary,
		MessageCount: len(messages),
		WindowStart:  windowStart.UTC().Format(time.RFC3339),
		WindowEnd:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, m := range messages {
		snap.Messages = append(snap.Messages, SnapshotMessage{
			Branch:     m.Branch,
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Timestamp:  m.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	dir := SnapshotDir(workspaceRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	path := filepath.Join(dir, snap.ID+".json")
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing snapshot file: %w", err)
	}

	sess := store.Session{
		SessionID:    snap.ID,
		Agent:        agent,
		Timestamp:    time.Now(),
		Description:  description,
		Summary:      summary,
		MessageCount: len(messages),
		FilePath:     path,
	}
	if err := b.store.PersistSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persisting session index row: %w", err)
	}
	return &sess, nil
}

// Restore re-inserts a snapshot's messages with fresh timestamps so they
// re-enter the rolling window, per §4.8.
func (b *Builder) Restore(ctx context.Context, sessionID string) (int, error) {
	sess, err := b.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	data, err := os.ReadFile(sess.FilePath)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot file: %w", err)
	}
	var snap SnapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("parsing snapshot file: %w", err)
	}

	now := time.Now()
	for i, m := range snap.Messages {
		ts := now.Add(time.Duration(i) * time.Millisecond)
		if err := b.store.InsertWithTimestamp(ctx, store.Message{
			Agent:      sess.Agent,
			Branch:     m.Branch,
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		}, ts); err != nil {
			return i, fmt.Errorf("restoring message %d: %w", i, err)
		}
	}
	return len(snap.Messages), nil
}
