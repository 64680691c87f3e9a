package process

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// MaxRecursionDepth bounds SPAWN_BRANCH hook chains, per §4.10's safety
// rule: reject when recursion_depth > MAX_DEPTH (default 3).
const MaxRecursionDepth = 3

// MaxInFlightSpawns bounds global concurrent hook-spawned branches.
const MaxInFlightSpawns = 3

// BranchSpawner receives SPAWN_BRANCH hook actions. All hook-spawned
// branches inherit the agent's normal permission profile — never elevated.
type BranchSpawner interface {
	SpawnHookBranch(ctx context.Context, agent, hookContext, model string, recursionDepth int) error
}

// BranchKiller receives STOP_BRANCH hook actions.
type BranchKiller interface {
	KillBranch(agent string, branchID int) bool
}

// Injector receives INJECT_CONTEXT hook actions.
type Injector interface {
	Inject(agent string, branchID int, message string) bool
}

// Notifier receives NOTIFY_CHANNEL hook actions.
type Notifier interface {
	Notify(ctx context.Context, agent, message string, tp *TrackedProcess)
}

// HookDispatcher evaluates a tracked process's callbacks against its
// output, exit, and timeout events and dispatches the configured action.
// Wired into Manager via SetCallbacks.
type HookDispatcher struct {
	manager  *Manager
	spawner  BranchSpawner
	killer   BranchKiller
	injector Injector
	notifier Notifier

	spawnSem chan struct{}

	mu            sync.Mutex
	timeoutCancel map[int]chan struct{}
}

// NewHookDispatcher wires a dispatcher against manager. Any of spawner,
// killer, injector, notifier may be nil to disable that action class.
func NewHookDispatcher(manager *Manager, spawner BranchSpawner, killer BranchKiller, injector Injector, notifier Notifier) *HookDispatcher {
	return &HookDispatcher{
		manager:       manager,
		spawner:       spawner,
		killer:        killer,
		injector:      injector,
		notifier:      notifier,
		spawnSem:      make(chan struct{}, MaxInFlightSpawns),
		timeoutCancel: map[int]chan struct{}{},
	}
}

// WireToManager connects this dispatcher's event handlers to the manager.
func (d *HookDispatcher) WireToManager() {
	d.manager.SetCallbacks(d.onLine, d.onExit, d.onSpawn)
}

func (d *HookDispatcher) onSpawn(pid int) {
	tp := d.manager.Get(pid)
	if tp == nil {
		return
	}
	for _, cb := range tp.Callbacks {
		if cb.Trigger.Kind == TriggerOnTimeout && cb.Trigger.TimeoutSeconds > 0 && !cb.Exhausted() {
			d.startTimeoutWatcher(pid, cb)
		}
	}
}

func (d *HookDispatcher) startTimeoutWatcher(pid int, cb *Callback) {
	cancel := make(chan struct{})
	d.mu.Lock()
	d.timeoutCancel[pid] = cancel
	d.mu.Unlock()

	go func() {
		select {
		case <-time.After(time.Duration(cb.Trigger.TimeoutSeconds * float64(time.Second))):
		case <-cancel:
			return
		}
		tp := d.manager.Get(pid)
		if tp == nil || tp.Status != StatusRunning || cb.Exhausted() {
			return
		}
		d.fire(context.Background(), pid, cb, "Process timed out")
	}()
}

func (d *HookDispatcher) onLine(pid int, stream, line string) {
	tp := d.manager.Get(pid)
	if tp == nil {
		return
	}
	for _, cb := range tp.Callbacks {
		if cb.Trigger.Kind != TriggerOnOutputMatch || cb.Exhausted() {
			continue
		}
		re := cb.Trigger.Compiled()
		if re == nil || !re.MatchString(line) {
			continue
		}
		delay := cb.OutputDelaySeconds
		if delay <= 0 {
			delay = DefaultOutputDelaySeconds
		}
		go d.delayedFire(pid, cb, line, delay)
	}
}

func (d *HookDispatcher) delayedFire(pid int, cb *Callback, triggerLine string, delaySeconds float64) {
	time.Sleep(time.Duration(delaySeconds * float64(time.Second)))
	tp := d.manager.Get(pid)
	if tp == nil {
		return
	}
	tail := tp.TailLines(20)
	msg := fmt.Sprintf("Output matched pattern: %s\nRecent output after delay:\n%s", triggerLine, strings.Join(tail, "\n"))
	d.fire(context.Background(), pid, cb, msg)
}

func (d *HookDispatcher) onExit(pid int, exitCode *int) {
	d.mu.Lock()
	if cancel, ok := d.timeoutCancel[pid]; ok {
		close(cancel)
		delete(d.timeoutCancel, pid)
	}
	d.mu.Unlock()

	tp := d.manager.Get(pid)
	if tp == nil {
		return
	}
	for _, cb := range tp.Callbacks {
		if cb.Trigger.Kind != TriggerOnExit || cb.Exhausted() {
			continue
		}
		switch cb.Trigger.ExitFilter {
		case ExitSuccess:
			if exitCode == nil || *exitCode != 0 {
				continue
			}
		case ExitFailure:
			if exitCode == nil || *exitCode == 0 {
				continue
			}
		}
		code := "unknown"
		if exitCode != nil {
			code = fmt.Sprintf("%d", *exitCode)
		}
		msg := fmt.Sprintf("Process exited with code %s. Command: %s", code, tp.Command)
		d.fire(context.Background(), pid, cb, msg)
	}
}

func (d *HookDispatcher) fire(ctx context.Context, pid int, cb *Callback, eventContext string) {
	cb.FireCount++

	tp := d.manager.Get(pid)
	if tp == nil {
		return
	}

	full := cb.ContextMessage
	switch {
	case full != "" && eventContext != "":
		full = full + "\n\n" + eventContext
	case eventContext != "":
		full = eventContext
	}

	slog.Info("firing process hook", "action", cb.Action, "pid", pid, "fire_count", cb.FireCount, "max_fires", cb.MaxFires)

	switch cb.Action {
	case ActionStopProcess:
		_ = d.manager.Kill(ctx, pid)

	case ActionStopBranch:
		if tp.SpawnedByBranch != nil && d.killer != nil {
			d.killer.KillBranch(tp.Agent, *tp.SpawnedByBranch)
		}

	case ActionInjectContext:
		if tp.SpawnedByBranch != nil && d.injector != nil {
			d.injector.Inject(tp.Agent, *tp.SpawnedByBranch, full)
		}

	case ActionNotifyChannel:
		if d.notifier != nil {
			d.notifier.Notify(ctx, tp.Agent, full, tp)
		}

	case ActionSpawnBranch:
		d.spawnBranch(ctx, tp, full)
	}
}

func (d *HookDispatcher) spawnBranch(ctx context.Context, tp *TrackedProcess, eventContext string) {
	if tp.RecursionDepth >= MaxRecursionDepth {
		slog.Warn("hook recursion depth exceeded", "pid", tp.PID, "depth", tp.RecursionDepth)
		return
	}
	if d.spawner == nil {
		slog.Warn("no branch spawner configured for SPAWN_BRANCH action")
		return
	}

	select {
	case d.spawnSem <- struct{}{}:
		defer func() { <-d.spawnSem }()
	case <-ctx.Done():
		return
	}

	tail := tp.TailLines(30)
	recent := "(no output)"
	if len(tail) > 0 {
		recent = strings.Join(tail, "\n")
	}
	exitPart := ""
	if tp.ExitCode != nil {
		exitPart = fmt.Sprintf(" (exit %d)", *tp.ExitCode)
	}
	hookContext := fmt.Sprintf(
		"A process hook was triggered.\n\n**Process:** PID %d\n**Command:** `%s`\n**Status:** %s%s\n**Trigger context:** %s\n\n**Recent output:**\n```\n%s\n```\n\nRespond to this event as instructed.",
		tp.PID, tp.Command, tp.Status, exitPart, eventContext, recent,
	)
	if err := d.spawner.SpawnHookBranch(ctx, tp.Agent, hookContext, tp.ModelForHooks, tp.RecursionDepth+1); err != nil {
		slog.Warn("hook branch spawn failed", "pid", tp.PID, "error", err)
	}
}
