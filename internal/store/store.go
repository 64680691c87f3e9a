// Package store is the narrow persistence layer for agents, messages,
// branches, steps, sessions, audit records, and tracked processes: raw SQL
// over a single SQLite handle, no ORM, following the reference timeline
// service's schema-application idiom.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/George-Strauch/chorus/internal/permission"
)

// Store wraps the single write-capable SQLite handle the whole process
// shares, per §5's "Store: assumed to serialize writes internally; the
// core opens one write-capable handle."
type Store struct {
	db *sql.DB
}

// New opens (creating if absent) the SQLite database at path, applies the
// schema, and runs best-effort migrations for columns added after the
// initial schema was written.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	// Best-effort migrations for fields added after the initial schema.
	_, _ = db.Exec(`ALTER TABLE agents ADD COLUMN docs_dir TEXT NOT NULL DEFAULT ''`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent)`)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Agent is the persisted row shape for agents.name.
type Agent struct {
	Name           string
	ChannelID      string
	Model          string
	Permissions    string
	SystemPrompt   string
	WorkspaceRoot  string
	WindowSeconds  int
	LastClearTime  time.Time
	Status         string
}

// CreateAgent inserts a new agent row.
func (s *Store) CreateAgent(ctx context.Context, a Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (name, channel_id, model, permissions, system_prompt, workspace_root, window_seconds, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.ChannelID, a.Model, a.Permissions, a.SystemPrompt, a.WorkspaceRoot, a.WindowSeconds, "active")
	return err
}

// GetAgent loads a single agent row by name.
func (s *Store) GetAgent(ctx context.Context, name string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, channel_id, model, permissions, system_prompt, workspace_root, window_seconds, last_clear_time, status
		FROM agents WHERE name = ?`, name)
	var a Agent
	var lastClear string
	if err := row.Scan(&a.Name, &a.ChannelID, &a.Model, &a.Permissions, &a.SystemPrompt, &a.WorkspaceRoot, &a.WindowSeconds, &lastClear, &a.Status); err != nil {
		return nil, err
	}
	a.LastClearTime, _ = time.Parse("2006-01-02 15:04:05", lastClear)
	return &a, nil
}

// ListAgents returns every agent name.
func (s *Store) ListAgents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM agents ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ClearWindow advances agents.last_clear_time to now, never deleting rows.
func (s *Store) ClearWindow(ctx context.Context, agent string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET last_clear_time = datetime('now') WHERE name = ?`, agent)
	return err
}

// SetSystemPrompt implements tools.SelfEditStore.
func (s *Store) SetSystemPrompt(ctx context.Context, agent, prompt string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET system_prompt = ? WHERE name = ?`, prompt, agent)
	return err
}

// SetModel implements tools.SelfEditStore.
func (s *Store) SetModel(ctx context.Context, agent, model string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET model = ? WHERE name = ?`, model, agent)
	return err
}

// SetPermissionProfile implements tools.SelfEditStore. role is accepted for
// parity with the interface but the authorization decision itself is made
// by the caller (internal/permission.AuthorizeProfileChange) before this is
// ever invoked.
func (s *Store) SetPermissionProfile(ctx context.Context, agent string, profileJSON string, role permission.Role) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agents SET permissions = ? WHERE name = ?`, profileJSON, agent)
	return err
}

// WriteDoc persists a docs-directory write. The actual file write happens
// at the workspace layer; this records the doc's existence for discovery
// by read_agent_docs on agents that load docs through the store rather
// than scanning the filesystem directly.
func (s *Store) WriteDoc(ctx context.Context, agent, path, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		"doc:"+agent+":"+path, content)
	return err
}

// Message is the persisted row shape for messages.
type Message struct {
	ID                 int64
	Agent              string
	Branch             int
	Role               string
	Content            string
	ToolCalls          string
	ToolCallID         string
	Timestamp          time.Time
	OutboundMessageID  string
}

// PersistMessage appends a message row; rows are never updated or deleted.
func (s *Store) PersistMessage(ctx context.Context, m Message) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (agent, branch, role, content, tool_calls, tool_call_id, outbound_message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Agent, m.Branch, m.Role, m.Content, m.ToolCalls, m.ToolCallID, m.OutboundMessageID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetWindow returns messages for agent/branch with timestamp > since,
// ordered ascending — the derived ContextWindow of §3.
func (s *Store) GetWindow(ctx context.Context, agent string, branch int, since time.Time) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, branch, role, content, COALESCE(tool_calls, ''), COALESCE(tool_call_id, ''), timestamp, COALESCE(outbound_message_id, '')
		FROM messages
		WHERE agent = ? AND branch = ? AND timestamp > ?
		ORDER BY timestamp ASC, id ASC`,
		agent, branch, since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.Agent, &m.Branch, &m.Role, &m.Content, &m.ToolCalls, &m.ToolCallID, &ts, &m.OutboundMessageID); err != nil {
			return nil, err
		}
		m.Timestamp, _ = time.Parse("2006-01-02 15:04:05", ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetWindowAllBranches is GetWindow without the branch filter, used by
// snapshot() which captures an agent's whole rolling window across every
// branch rather than one branch at a time.
func (s *Store) GetWindowAllBranches(ctx context.Context, agent string, since time.Time) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, branch, role, content, COALESCE(tool_calls, ''), COALESCE(tool_call_id, ''), timestamp, COALESCE(outbound_message_id, '')
		FROM messages
		WHERE agent = ? AND timestamp > ?
		ORDER BY timestamp ASC, id ASC`,
		agent, since.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.Agent, &m.Branch, &m.Role, &m.Content, &m.ToolCalls, &m.ToolCallID, &ts, &m.OutboundMessageID); err != nil {
			return nil, err
		}
		m.Timestamp, _ = time.Parse("2006-01-02 15:04:05", ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertWithTimestamp re-inserts a message with a fresh timestamp so it
// re-enters the rolling window, used by session restore.
func (s *Store) InsertWithTimestamp(ctx context.Context, m Message, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (agent, branch, role, content, tool_calls, tool_call_id, outbound_message_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Agent, m.Branch, m.Role, m.Content, m.ToolCalls, m.ToolCallID, m.OutboundMessageID, ts.UTC().Format("2006-01-02 15:04:05"))
	return err
}

// PersistBranch upserts a branch row.
func (s *Store) PersistBranch(ctx context.Context, agent string, id int, status, summary string, parentBranch *int, depth int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (agent, id, status, summary, parent_branch, recursion_depth)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent, id) DO UPDATE SET status = excluded.status, summary = excluded.summary`,
		agent, id, status, summary, parentBranch, depth)
	return err
}

// PersistStep writes a completed branch step.
func (s *Store) PersistStep(ctx context.Context, agent string, branch, stepNumber int, description string, startedAt, endedAt time.Time, durationMS int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branch_steps (agent, branch, step_number, description, started_at, ended_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent, branch, stepNumber, description, startedAt.UTC().Format(time.RFC3339), endedAt.UTC().Format(time.RFC3339), durationMS)
	return err
}

// AuditRecord is an append-only permission-decision record.
type AuditRecord struct {
	Agent        string
	ActionString string
	Decision     string
	UserID       string
	Detail       string
}

// AppendAudit writes an audit_log row. The orchestrator calls it only for
// ASK decisions: ALLOW when the user approved, DENY when the user declined,
// the ask timed out or the ask failed. Decisions the tool loop makes
// directly from the allow list or the implicit deny are not audited.
func (s *Store) AppendAudit(ctx context.Context, r AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (agent, action_string, decision, user_id, detail)
		VALUES (?, ?, ?, ?, ?)`,
		r.Agent, r.ActionString, r.Decision, r.UserID, r.Detail)
	return err
}

// Session is a persisted context-store snapshot index row.
type Session struct {
	SessionID    string
	Agent        string
	Timestamp    time.Time
	Description  string
	Summary      string
	MessageCount int
	FilePath     string
}

// PersistSession records a snapshot's index row (the snapshot content
// itself is written to FilePath by the caller).
func (s *Store) PersistSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, agent, timestamp, description, summary, message_count, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.Agent, sess.Timestamp.UTC().Format(time.RFC3339), sess.Description, sess.Summary, sess.MessageCount, sess.FilePath)
	return err
}

// ListSessions returns up to limit most-recent sessions for an agent.
func (s *Store) ListSessions(ctx context.Context, agent string, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, agent, timestamp, COALESCE(description, ''), COALESCE(summary, ''), message_count, file_path
		FROM sessions WHERE agent = ? ORDER BY timestamp DESC LIMIT ?`, agent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var sess Session
		var ts string
		if err := rows.Scan(&sess.SessionID, &sess.Agent, &ts, &sess.Description, &sess.Summary, &sess.MessageCount, &sess.FilePath); err != nil {
			return nil, err
		}
		sess.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession loads a single session index row by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, agent, timestamp, COALESCE(description, ''), COALESCE(summary, ''), message_count, file_path
		FROM sessions WHERE session_id = ?`, sessionID)
	var sess Session
	var ts string
	if err := row.Scan(&sess.SessionID, &sess.Agent, &ts, &sess.Description, &sess.Summary, &sess.MessageCount, &sess.FilePath); err != nil {
		return nil, err
	}
	sess.Timestamp, _ = time.Parse(time.RFC3339, ts)
	return &sess, nil
}

// Process is the persisted row shape for a tracked process.
type Process struct {
	PID               int
	Command           string
	Cwd               string
	Agent             string
	StartedAt         time.Time
	Type              string
	ParentBranch      *int
	StdoutLog         string
	StderrLog         string
	Status            string
	ExitCode          *int
	Callbacks         string
	Context           string
	RecursionDepth    int
	OutboundMessageID string
}

// PersistProcess upserts a process row.
func (s *Store) PersistProcess(ctx context.Context, p Process) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processes (pid, command, cwd, agent, type, parent_branch, stdout_log, stderr_log, status, exit_code, callbacks, context, recursion_depth, outbound_message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pid) DO UPDATE SET status = excluded.status, exit_code = excluded.exit_code`,
		p.PID, p.Command, p.Cwd, p.Agent, p.Type, p.ParentBranch, p.StdoutLog, p.StderrLog, p.Status, p.ExitCode, p.Callbacks, p.Context, p.RecursionDepth, p.OutboundMessageID)
	return err
}

// ListRunningProcesses returns every process row still marked RUNNING,
// used by Manager.RecoverOnStartup.
func (s *Store) ListRunningProcesses(ctx context.Context) ([]Process, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pid, command, cwd, agent, started_at, type, stdout_log, stderr_log, status, callbacks, context, recursion_depth
		FROM processes WHERE status = 'RUNNING'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Process
	for rows.Next() {
		var p Process
		var startedAt string
		if err := rows.Scan(&p.PID, &p.Command, &p.Cwd, &p.Agent, &startedAt, &p.Type, &p.StdoutLog, &p.StderrLog, &p.Status, &p.Callbacks, &p.Context, &p.RecursionDepth); err != nil {
			return nil, err
		}
		p.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarshalToolCalls is a convenience for encoding a message's tool-call
// array into the messages.tool_calls text column.
func MarshalToolCalls(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
