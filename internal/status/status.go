// Package status builds the live status view shown in the agent's channel
// while a branch runs, and the rate limiters that keep edits and outbound
// sends within the gateway's limits, per §4.11.
package status

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/George-Strauch/chorus/internal/llmprovider"
)

// Phase is a branch's coarse status for display purposes.
type Phase string

const (
	PhaseProcessing Phase = "processing"
	PhaseWaiting    Phase = "waiting"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
	PhaseCancelled  Phase = "cancelled"
)

// Snapshot is a point-in-time view of a running branch, enough to render
// either the in-progress line or the finalized response message.
type Snapshot struct {
	AgentName         string
	BranchID          int
	Phase             Phase
	StepNumber        int
	CurrentStep       string
	ActiveBranchCount int
	Usage             llmprovider.Usage
	LLMIterations     int
	ToolCallsMade     int
	ElapsedMS         int64
	ErrorMessage      string
	ResponseContent   *string
}

// maxEmbedChars mirrors the gateway's practical message-body limit; kept
// well under Slack's ~4000 char block-text cap so the footer always fits.
const maxEmbedChars = 3500

// RenderLine builds the single-message status text for a snapshot. Two
// modes: in-progress (no ResponseContent) shows phase + step + metrics;
// finalized (ResponseContent set) shows the response body with a footer.
func RenderLine(s Snapshot) string {
	if s.ResponseContent != nil {
		content := *s.ResponseContent
		if len(content) > maxEmbedChars {
			content = content[:maxEmbedChars] + "…"
		}
		footer := fmt.Sprintf("branch #%d · %d steps · %s in / %s out · %.1fs",
			s.BranchID, s.StepNumber, formatCount(s.Usage.InputTokens), formatCount(s.Usage.OutputTokens),
			float64(s.ElapsedMS)/1000)
		body := content
		if s.ErrorMessage != "" {
			body += "\n*Error:* " + s.ErrorMessage
		}
		return fmt.Sprintf("*%s*\n%s\n\n_%s_", s.AgentName, body, footer)
	}

	label := capitalize(string(s.Phase))
	var line1 string
	switch s.Phase {
	case PhaseCompleted, PhaseError, PhaseCancelled:
		line1 = fmt.Sprintf("*%s* · %d steps", label, s.StepNumber)
	case "":
		line1 = "*Starting*"
	default:
		if s.StepNumber > 0 {
			line1 = fmt.Sprintf("*%s* · Step %d: %s", label, s.StepNumber, s.CurrentStep)
		} else {
			line1 = fmt.Sprintf("*%s* · %s", label, s.CurrentStep)
		}
	}

	parts := []string{fmt.Sprintf("%s in / %s out", formatCount(s.Usage.InputTokens), formatCount(s.Usage.OutputTokens))}
	if s.LLMIterations > 0 {
		unit := "call"
		if s.LLMIterations != 1 {
			unit = "calls"
		}
		parts = append(parts, fmt.Sprintf("%d %s", s.LLMIterations, unit))
	}
	if s.ToolCallsMade > 0 {
		parts = append(parts, fmt.Sprintf("%d tools", s.ToolCallsMade))
	}
	parts = append(parts, fmt.Sprintf("%.1fs", float64(s.ElapsedMS)/1000))
	line2 := strings.Join(parts, " · ")

	text := fmt.Sprintf("*%s · branch #%d*\n%s\n%s", s.AgentName, s.BranchID, line1, line2)
	if s.ErrorMessage != "" {
		text += "\n*Error:* " + s.ErrorMessage
	}
	return text
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatCount(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i != 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}

// EditRateLimiter enforces a global minimum interval between status-message
// edits across every live view, shared so one busy branch cannot starve the
// edit budget from others (§4.11: "edits throttled to one per ≈1.5s").
type EditRateLimiter struct {
	mu           sync.Mutex
	minInterval  time.Duration
	lastEditTime time.Time
	now          func() time.Time
}

// DefaultEditInterval is the spec's throttle period.
const DefaultEditInterval = 1500 * time.Millisecond

// NewEditRateLimiter creates a limiter with the given minimum interval; a
// zero interval uses DefaultEditInterval.
func NewEditRateLimiter(minInterval time.Duration) *EditRateLimiter {
	if minInterval <= 0 {
		minInterval = DefaultEditInterval
	}
	return &EditRateLimiter{minInterval: minInterval, now: time.Now}
}

// CanEditNow reports whether enough time has elapsed since the last edit.
func (l *EditRateLimiter) CanEditNow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Sub(l.lastEditTime) >= l.minInterval
}

// TimeUntilNextAllowed is how long the caller must wait before CanEditNow
// would return true, or 0 if it already would.
func (l *EditRateLimiter) TimeUntilNextAllowed() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := l.minInterval - l.now().Sub(l.lastEditTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordEdit marks that an edit was just performed.
func (l *EditRateLimiter) RecordEdit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastEditTime = l.now()
}

// Editor sends or edits a single status message in a channel.
type Editor interface {
	// Send posts a new message and returns an id to edit later.
	Send(channelID, text string) (messageID string, err error)
	Edit(channelID, messageID, text string) error
}

// LiveView manages one branch's single status message: an initial send,
// throttled edits as the branch progresses, and a final edit that always
// goes through regardless of the throttle (§4.11).
type LiveView struct {
	editor    Editor
	limiter   *EditRateLimiter
	channelID string
	startedAt time.Time
	now       func() time.Time

	mu            sync.Mutex
	snapshot      Snapshot
	messageID     string
	pendingTimer  *time.Timer
	activeCounter func() int
}

// NewLiveView creates a view for one branch. activeCount reports the
// agent's current active-branch count for display.
func NewLiveView(editor Editor, limiter *EditRateLimiter, channelID, agentName string, branchID int, activeCount func() int) *LiveView {
	return &LiveView{
		editor:        editor,
		limiter:       limiter,
		channelID:     channelID,
		now:           time.Now,
		activeCounter: activeCount,
		snapshot:      Snapshot{AgentName: agentName, BranchID: branchID, Phase: PhaseProcessing},
	}
}

// MessageID returns the underlying message id, empty until Start succeeds.
func (v *LiveView) MessageID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.messageID
}

// Start sends the initial status message.
func (v *LiveView) Start() error {
	v.mu.Lock()
	v.startedAt = v.now()
	if v.activeCounter != nil {
		v.snapshot.ActiveBranchCount = v.activeCounter()
	}
	text := RenderLine(v.snapshot)
	v.mu.Unlock()

	id, err := v.editor.Send(v.channelID, text)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.messageID = id
	v.mu.Unlock()
	v.limiter.RecordEdit()
	return nil
}

// Update merges the given mutation into the snapshot and schedules a
// throttled edit: immediate if the rate limiter allows it, otherwise
// deferred to fire once the limiter's window reopens.
func (v *LiveView) Update(mutate func(*Snapshot)) {
	v.mu.Lock()
	if v.messageID == "" {
		v.mu.Unlock()
		return
	}
	mutate(&v.snapshot)
	if v.activeCounter != nil {
		v.snapshot.ActiveBranchCount = v.activeCounter()
	}
	alreadyPending := v.pendingTimer != nil
	v.mu.Unlock()

	if v.limiter.CanEditNow() {
		v.doEdit()
		return
	}
	if alreadyPending {
		return
	}
	delay := v.limiter.TimeUntilNextAllowed()
	v.mu.Lock()
	v.pendingTimer = time.AfterFunc(delay, func() {
		v.mu.Lock()
		v.pendingTimer = nil
		v.mu.Unlock()
		if v.limiter.CanEditNow() {
			v.doEdit()
		}
	})
	v.mu.Unlock()
}

// Finalize performs a terminal edit unconditionally, bypassing the
// throttle, and cancels any pending deferred edit.
func (v *LiveView) Finalize(phase Phase, errMsg string, responseContent *string) {
	v.mu.Lock()
	if v.pendingTimer != nil {
		v.pendingTimer.Stop()
		v.pendingTimer = nil
	}
	v.snapshot.Phase = phase
	if errMsg != "" {
		v.snapshot.ErrorMessage = errMsg
	}
	if responseContent != nil {
		v.snapshot.ResponseContent = responseContent
	}
	if v.activeCounter != nil {
		v.snapshot.ActiveBranchCount = v.activeCounter()
	}
	hasMessage := v.messageID != ""
	v.mu.Unlock()

	if hasMessage {
		v.doEdit()
	}
}

func (v *LiveView) doEdit() {
	v.mu.Lock()
	v.snapshot.ElapsedMS = v.now().Sub(v.startedAt).Milliseconds()
	text := RenderLine(v.snapshot)
	messageID := v.messageID
	v.mu.Unlock()

	_ = v.editor.Edit(v.channelID, messageID, text)
	v.limiter.RecordEdit()
}
