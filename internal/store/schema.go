package store

// Schema is applied once at startup. Later fields added to the logical
// schema are appended via best-effort ALTER TABLE statements in New, the
// same migration idiom the reference implementation uses for its SQLite
// store, so existing databases pick up new columns without a migration
// runner.
const Schema = `
CREATE TABLE IF NOT EXISTS agents (
	name TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	model TEXT NOT NULL,
	permissions TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	workspace_root TEXT NOT NULL DEFAULT '',
	window_seconds INTEGER NOT NULL DEFAULT 3600,
	last_clear_time TEXT NOT NULL DEFAULT (datetime('now')),
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	status TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent TEXT NOT NULL,
	branch INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tool_calls TEXT,
	tool_call_id TEXT,
	timestamp TEXT NOT NULL DEFAULT (datetime('now')),
	outbound_message_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_agent_ts ON messages(agent, timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_agent_branch ON messages(agent, branch);

CREATE TABLE IF NOT EXISTS branches (
	agent TEXT NOT NULL,
	id INTEGER NOT NULL,
	status TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	parent_branch INTEGER,
	recursion_depth INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (agent, id)
);

CREATE TABLE IF NOT EXISTS branch_steps (
	agent TEXT NOT NULL,
	branch INTEGER NOT NULL,
	step_number INTEGER NOT NULL,
	description TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS idx_branch_steps ON branch_steps(agent, branch);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	agent TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	description TEXT,
	summary TEXT,
	message_count INTEGER NOT NULL,
	file_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL DEFAULT (datetime('now')),
	agent TEXT NOT NULL,
	action_string TEXT NOT NULL,
	decision TEXT NOT NULL,
	user_id TEXT,
	detail TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_agent_ts ON audit_log(agent, timestamp);

CREATE TABLE IF NOT EXISTS processes (
	pid INTEGER PRIMARY KEY,
	command TEXT NOT NULL,
	cwd TEXT NOT NULL DEFAULT '',
	agent TEXT NOT NULL,
	started_at TEXT NOT NULL DEFAULT (datetime('now')),
	type TEXT NOT NULL,
	parent_branch INTEGER,
	stdout_log TEXT NOT NULL,
	stderr_log TEXT NOT NULL,
	status TEXT NOT NULL,
	exit_code INTEGER,
	callbacks TEXT,
	context TEXT,
	recursion_depth INTEGER NOT NULL DEFAULT 0,
	outbound_message_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_processes_agent ON processes(agent);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
