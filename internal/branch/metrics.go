package branch

import (
	"sync"
	"time"
)

// Step is one entry in a branch's step history.
type Step struct {
	Number      int
	Description string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationMS  int64
}

// Metrics tracks timing and step history for a branch.
type Metrics struct {
	mu          sync.Mutex
	CreatedAt   time.Time
	StepNumber  int
	CurrentStep string
	StepHistory []Step
}

// NewMetrics creates metrics stamped with the current time.
func NewMetrics() *Metrics {
	return &Metrics{CreatedAt: time.Now(), CurrentStep: "Starting"}
}

// ElapsedMS is the wall-clock time since creation, in milliseconds.
func (m *Metrics) ElapsedMS() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.CreatedAt).Milliseconds()
}

// BeginStep closes the current open step (if any) and starts a new one.
func (m *Metrics) BeginStep(description string) Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if n := len(m.StepHistory); n > 0 && m.StepHistory[n-1].EndedAt.IsZero() {
		prev := &m.StepHistory[n-1]
		prev.EndedAt = now
		prev.DurationMS = now.Sub(prev.StartedAt).Milliseconds()
	}
	m.StepNumber++
	m.CurrentStep = description
	step := Step{Number: m.StepNumber, Description: description, StartedAt: now}
	m.StepHistory = append(m.StepHistory, step)
	return step
}

// Finalize closes the last open step, if any.
func (m *Metrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.StepHistory); n > 0 && m.StepHistory[n-1].EndedAt.IsZero() {
		now := time.Now()
		last := &m.StepHistory[n-1]
		last.EndedAt = now
		last.DurationMS = now.Sub(last.StartedAt).Milliseconds()
	}
}

// Snapshot returns a consistent copy of step number and current step text.
func (m *Metrics) Snapshot() (stepNumber int, current string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StepNumber, m.CurrentStep
}
