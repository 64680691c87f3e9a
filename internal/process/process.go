package process

import (
	"container/ring"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/George-Strauch/chorus/internal/store"
)

// GracePeriod and sanitizedEnv's allowlist mirror internal/execshell's
// two-phase kill and environment sanitization, since tracked background
// processes are killed and sandboxed the same way foreground bash_execute
// calls are.
const GracePeriod = 2 * time.Second

// TrackedProcess is a subprocess the Manager is monitoring.
type TrackedProcess struct {
	PID             int
	Command         string
	Cwd             string
	Agent           string
	StartedAt       time.Time
	Type            Type
	SpawnedByBranch *int
	StdoutLog       string
	StderrLog       string
	Status          Status
	ExitCode        *int
	Callbacks       []*Callback
	Context         string
	ModelForHooks   string
	RecursionDepth  int

	mu         sync.Mutex
	tail       *ring.Ring
	cmd        *exec.Cmd
	exitSignal chan struct{}
}

func newTrackedProcess() *TrackedProcess {
	return &TrackedProcess{tail: ring.New(100), exitSignal: make(chan struct{})}
}

// pushTail appends a line to the rolling 100-line tail buffer.
func (p *TrackedProcess) pushTail(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tail.Value = line
	p.tail = p.tail.Next()
}

// TailLines returns up to n most recent output lines, oldest first.
func (p *TrackedProcess) TailLines(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []string
	p.tail.Do(func(v any) {
		if v != nil {
			all = append(all, v.(string))
		}
	})
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// LastLine returns the most recently observed output line, or "".
func (p *TrackedProcess) LastLine() string {
	lines := p.TailLines(1)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// OnLineFunc is called for every output line from any tracked process.
type OnLineFunc func(pid int, stream string, line string)

// OnExitFunc is called when a tracked process exits.
type OnExitFunc func(pid int, exitCode *int)

// OnSpawnFunc is called right after a process is registered, used by the
// hook dispatcher to start ON_TIMEOUT watchers.
type OnSpawnFunc func(pid int)

// Store is the subset of *store.Store the process manager persists
// through, declared locally to avoid an import cycle.
type Store interface {
	PersistProcess(ctx context.Context, p store.Process) error
	ListRunningProcesses(ctx context.Context) ([]store.Process, error)
}

// Manager tracks every subprocess spawned across all agents on this host.
type Manager struct {
	logDir string
	store  Store

	mu        sync.Mutex
	processes map[int]*TrackedProcess

	onLine  OnLineFunc
	onExit  OnExitFunc
	onSpawn OnSpawnFunc
}

// NewManager creates a Manager that writes per-pid stdout/stderr logs
// under logDir and persists process rows through s.
func NewManager(logDir string, s Store) *Manager {
	return &Manager{logDir: logDir, store: s, processes: map[int]*TrackedProcess{}}
}

// SetCallbacks wires the hook dispatcher's event handlers. Must be called
// before any Spawn for hooks to observe that process's events.
func (m *Manager) SetCallbacks(onLine OnLineFunc, onExit OnExitFunc, onSpawn OnSpawnFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLine, m.onExit, m.onSpawn = onLine, onExit, onSpawn
}

// SpawnOptions carries the optional fields spawn() accepts per §4.9.
type SpawnOptions struct {
	Callbacks       []*Callback
	Context         string
	ModelForHooks   string
	RecursionDepth  int
	SpawnedByBranch *int
}

// Spawn starts an asynchronous subprocess with output piped to per-pid log
// files, begins monitoring it, and persists the process row as RUNNING.
func (m *Manager) Spawn(ctx context.Context, command, cwd, agent string, typ Type, opts SpawnOptions) (*TrackedProcess, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = cwd
	cmd.Env = sanitizedEnv(cwd)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting process: %w", err)
	}

	tp := newTrackedProcess()
	tp.PID = cmd.Process.Pid
	tp.Command = command
	tp.Cwd = cwd
	tp.Agent = agent
	tp.StartedAt = time.Now()
	tp.Type = typ
	tp.SpawnedByBranch = opts.SpawnedByBranch
	tp.Callbacks = opts.Callbacks
	tp.Context = opts.Context
	tp.ModelForHooks = opts.ModelForHooks
	tp.RecursionDepth = opts.RecursionDepth
	tp.Status = StatusRunning
	tp.cmd = cmd

	pdir := filepath.Join(m.logDir, agent, "processes", fmt.Sprintf("%d", tp.PID))
	if err := os.MkdirAll(pdir, 0o755); err != nil {
		return nil, fmt.Errorf("creating process log dir: %w", err)
	}
	tp.StdoutLog = filepath.Join(pdir, "stdout.log")
	tp.StderrLog = filepath.Join(pdir, "stderr.log")

	m.mu.Lock()
	m.processes[tp.PID] = tp
	onLine, onExit, onSpawn := m.onLine, m.onExit, m.onSpawn
	m.mu.Unlock()

	monitor := &outputMonitor{
		proc:   tp,
		onLine: onLine,
		onExit: func() { m.handleExit(tp, onExit) },
	}
	monitor.start(stdoutPipe, stderrPipe, cmd)

	if err := m.persist(ctx, tp); err != nil {
		return nil, err
	}

	if onSpawn != nil {
		onSpawn(tp.PID)
	}

	return tp, nil
}

func (m *Manager) handleExit(tp *TrackedProcess, onExit OnExitFunc) {
	tp.mu.Lock()
	if tp.Status != StatusKilled {
		tp.Status = StatusExited
	}
	exitCode := tp.cmd.ProcessState.ExitCode()
	tp.ExitCode = &exitCode
	tp.mu.Unlock()

	_ = m.persist(context.Background(), tp)
	close(tp.exitSignal)

	if onExit != nil {
		onExit(tp.PID, tp.ExitCode)
	}
}

// Kill sends SIGTERM to the process group, waits GracePeriod, then SIGKILL.
func (m *Manager) Kill(ctx context.Context, pid int) error {
	m.mu.Lock()
	tp, ok := m.processes[pid]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("process %d not tracked", pid)
	}

	tp.mu.Lock()
	alreadyDone := tp.Status != StatusRunning
	tp.mu.Unlock()
	if alreadyDone {
		return nil
	}

	_ = syscall.Kill(-pid, syscall.SIGTERM)

	select {
	case <-tp.exitSignal:
	case <-time.After(GracePeriod):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-tp.exitSignal
	}

	tp.mu.Lock()
	tp.Status = StatusKilled
	tp.mu.Unlock()
	return m.persist(ctx, tp)
}

// List returns tracked processes, optionally filtered by agent ("" = all).
func (m *Manager) List(agent string) []*TrackedProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*TrackedProcess
	for _, p := range m.processes {
		if agent == "" || p.Agent == agent {
			out = append(out, p)
		}
	}
	return out
}

// Get returns the tracked process for pid, or nil.
func (m *Manager) Get(pid int) *TrackedProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processes[pid]
}

// AddCallbacks appends callbacks to a still-running tracked process.
func (m *Manager) AddCallbacks(pid int, cbs []*Callback) *TrackedProcess {
	m.mu.Lock()
	tp, ok := m.processes[pid]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.Status != StatusRunning {
		return nil
	}
	tp.Callbacks = append(tp.Callbacks, cbs...)
	return tp
}

// RecoverOnStartup probes every persisted RUNNING row's pid with signal 0.
// Either way — alive but unmonitorable (stdout/stderr fds were lost across
// the restart) or dead — the row is marked LOST, matching the reference
// manager's recovery behavior; ON_EXIT callbacks cannot fire for these
// since the process outlived its tracking.
func (m *Manager) RecoverOnStartup(ctx context.Context) (recovered, lost int, err error) {
	rows, err := m.store.ListRunningProcesses(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing running processes: %w", err)
	}
	for _, row := range rows {
		recovered++
		lost++
		slog.Info("recovering tracked process", "pid", row.PID, "alive", isPidAlive(row.PID))
		row.Status = string(StatusLost)
		if perr := m.store.PersistProcess(ctx, row); perr != nil {
			return recovered, lost, fmt.Errorf("marking pid %d lost: %w", row.PID, perr)
		}
	}
	return recovered, lost, nil
}

func (m *Manager) persist(ctx context.Context, tp *TrackedProcess) error {
	tp.mu.Lock()
	row := store.Process{
		PID: tp.PID, Command: tp.Command, Cwd: tp.Cwd, Agent: tp.Agent,
		StartedAt: tp.StartedAt, Type: string(tp.Type), ParentBranch: tp.SpawnedByBranch,
		StdoutLog: tp.StdoutLog, StderrLog: tp.StderrLog, Status: string(tp.Status),
		ExitCode: tp.ExitCode, Context: tp.Context, RecursionDepth: tp.RecursionDepth,
	}
	tp.mu.Unlock()
	return m.store.PersistProcess(ctx, row)
}

// isPidAlive reports whether pid exists via signal 0, per the reference
// implementation's recovery probe.
func isPidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func sanitizedEnv(cwd string) []string {
	allow := []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TERM", "SHELL", "TMPDIR", "SCOPE_PATH"}
	out := make([]string, 0, len(allow))
	for _, key := range allow {
		if key == "HOME" {
			out = append(out, "HOME="+cwd)
			continue
		}
		if v, ok := os.LookupEnv(key); ok {
			out = append(out, key+"="+v)
		}
	}
	return out
}
