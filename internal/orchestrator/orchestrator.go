// Package orchestrator wires a channel's inbound messages to an agent's
// branch manager and tool loop, per §4.12: identify the agent, route or
// create a branch, persist the turn, mediate ASK prompts through the
// gateway, and drive the loop to completion.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/George-Strauch/chorus/internal/auditbus"
	"github.com/George-Strauch/chorus/internal/branch"
	"github.com/George-Strauch/chorus/internal/gateway"
	"github.com/George-Strauch/chorus/internal/llmprovider"
	"github.com/George-Strauch/chorus/internal/permission"
	"github.com/George-Strauch/chorus/internal/status"
	"github.com/George-Strauch/chorus/internal/store"
	"github.com/George-Strauch/chorus/internal/toolloop"
)

// DefaultAskTimeout is how long an ASK prompt waits for a click before it
// is treated as a deny, per §4.12/§5.
const DefaultAskTimeout = 120 * time.Second

// Orchestrator owns every registered agent and routes a single gateway's
// inbound events across them.
type Orchestrator struct {
	store   *store.Store
	gateway gateway.Gateway
	audit   *auditbus.Bus

	outbound *status.OutboundQueue
	presence *status.PresenceManager
	limiter  *status.EditRateLimiter

	askTimeout time.Duration

	mu        sync.RWMutex
	agents    map[string]*AgentRuntime
	byChannel map[string]string
}

// New builds an Orchestrator. Every agent's replies share one
// per-channel rate-limited outbound FIFO and one debounced presence label,
// both driven through gw.
func New(s *store.Store, gw gateway.Gateway, bus *auditbus.Bus) *Orchestrator {
	o := &Orchestrator{
		store:      s,
		gateway:    gw,
		audit:      bus,
		askTimeout: DefaultAskTimeout,
		limiter:    status.NewEditRateLimiter(status.DefaultEditInterval),
		agents:     make(map[string]*AgentRuntime),
		byChannel:  make(map[string]string),
	}
	o.outbound = status.NewOutboundQueue(func(msg status.OutboundMessage) error {
		_, err := gw.Send(context.Background(), msg.ChannelID, msg.Text)
		return err
	})
	o.presence = status.NewPresenceManager(func(label string) error {
		return gw.SetPresence(context.Background(), label)
	}, status.DefaultPresenceDebounce)
	return o
}

// RegisterAgent binds an agent's runtime wiring and its channel, so
// inbound messages on that channel route to it.
func (o *Orchestrator) RegisterAgent(rt *AgentRuntime) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agents[rt.Name] = rt
	o.byChannel[rt.ChannelID] = rt.Name
}

// Start begins consuming gateway events.
func (o *Orchestrator) Start(ctx context.Context) error {
	return o.gateway.Start(ctx, o.HandleInbound)
}

// HandleInbound implements §4.12 steps 1-5: identify the agent, route or
// create a branch, persist the user turn, and run the tool loop.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg gateway.InboundMessage) {
	o.mu.RLock()
	agentName, ok := o.byChannel[msg.ChannelID]
	var rt *AgentRuntime
	if ok {
		rt = o.agents[agentName]
	}
	o.mu.RUnlock()

	if !ok || rt == nil {
		// No agent bound to this channel: pass through to the control
		// plane. A full control plane (agent provisioning, channel
		// binding) is out of this package's scope; surface the gap
		// rather than silently dropping the message.
		slog.Info("no agent bound to channel, passing through to control plane", "channel", msg.ChannelID)
		if _, err := o.gateway.Send(ctx, msg.ChannelID, "No agent is bound to this channel yet."); err != nil {
			slog.Warn("control-plane passthrough notice failed", "error", err)
		}
		return
	}

	b := o.resolveBranch(ctx, rt, msg)

	userMsg := store.Message{
		Agent:   rt.Name,
		Branch:  b.ID,
		Role:    string(llmprovider.RoleUser),
		Content: msg.Text,
	}
	if _, err := rt.Context.Persist(ctx, userMsg); err != nil {
		slog.Warn("failed to persist inbound message", "error", err)
	}
}

// resolveBranch implements §4.12 step 2: route a reply to its live branch
// (injecting the message if the branch is still running, resuming it
// otherwise), or seed a brand new branch from the message. CreateBranch
// and Resume both start the branch's runner before returning, so the
// caller never needs to kick off a loop run itself.
func (o *Orchestrator) resolveBranch(ctx context.Context, rt *AgentRuntime, msg gateway.InboundMessage) *branch.Branch {
	if msg.ReplyToID != "" {
		if b, ok := rt.Branches.Route(msg.ReplyToID); ok {
			if b.GetStatus() == branch.StatusRunning {
				b.Inject(msg.Text)
				return b
			}
			rt.Branches.Resume(ctx, b.ID, o.runner(rt, msg))
			o.presence.BranchStarted(rt.Name, b.ID)
			return b
		}
	}

	b := rt.Branches.CreateBranch(ctx, msg.Text, nil, 0, o.runner(rt, msg))
	o.presence.BranchStarted(rt.Name, b.ID)
	return b
}

// runner builds the branch.Runner closure that drives one tool-loop run to
// completion and persists the result, per §4.12 steps 5-6.
func (o *Orchestrator) runner(rt *AgentRuntime, seed gateway.InboundMessage) branch.Runner {
	return func(ctx context.Context, b *branch.Branch) (runErr error) {
		defer o.presence.BranchCompleted(rt.Name, b.ID)
		defer func() {
			finalStatus := branch.StatusCompleted
			switch {
			case ctx.Err() != nil:
				finalStatus = branch.StatusCancelled
			case runErr != nil:
				finalStatus = branch.StatusErrored
			}
			if err := o.store.PersistBranch(context.Background(), rt.Name, b.ID, string(finalStatus), b.Summary, b.ParentBranchID, b.RecursionDepth); err != nil {
				slog.Warn("failed to persist branch", "error", err)
			}
		}()

		profile, err := o.loadProfile(ctx, rt.Name)
		if err != nil {
			return fmt.Errorf("loading permission profile: %w", err)
		}

		view := status.NewLiveView(gatewayEditor{o.gateway}, o.limiter, seed.ChannelID, rt.Name, b.ID, func() int {
			return len(rt.Branches.ListActive())
		})
		if err := view.Start(); err != nil {
			slog.Warn("status view failed to start", "error", err)
		} else {
			rt.Branches.RegisterOutbound(b.ID, view.MessageID())
		}

		agentComm := &agentCommImpl{orch: o}
		execCtx := rt.execContextFor(profile, o.store, agentComm, false)

		req, err := rt.Context.BuildRequest(ctx, rt.Name, b.ID, rt.Docs, toolDefsFor(rt), rt.Model)
		if err != nil {
			view.Finalize(status.PhaseError, err.Error(), nil)
			return err
		}

		params := &toolloop.Params{
			Provider:      rt.Provider,
			Messages:      req.Messages,
			Registry:      rt.Registry,
			Profile:       profile,
			SystemPrompt:  req.System,
			Model:         rt.Model,
			MaxIterations: rt.MaxIterations,
			ExecContext:   execCtx,
			AskCallback:   o.askCallback(rt, seed),
			Steps:         metricsSteps{m: b.Metrics},
			InjectDrain:   func() []llmprovider.Message { return drainInject(b) },
			Emit:          o.emitterFor(view, b),
		}

		result, err := toolloop.Run(ctx, params)
		if err != nil {
			view.Finalize(status.PhaseError, err.Error(), nil)
			return err
		}

		assistantMsg := store.Message{
			Agent:   rt.Name,
			Branch:  b.ID,
			Role:    string(llmprovider.RoleAssistant),
			Content: result.Content,
		}
		if _, err := rt.Context.Persist(ctx, assistantMsg); err != nil {
			slog.Warn("failed to persist assistant response", "error", err)
		}

		for _, chunk := range status.ChunkResponse(result.Content) {
			o.outbound.Enqueue(status.OutboundMessage{ChannelID: seed.ChannelID, BranchID: b.ID, Text: chunk})
		}

		phase := status.PhaseCompleted
		if result.Truncated {
			phase = status.PhaseError
		}
		content := result.Content
		view.Finalize(phase, "", &content)

		return nil
	}
}

// drainInject pulls every currently-queued injected message off a branch's
// InjectQueue without blocking, per §4.6 step 5.
func drainInject(b *branch.Branch) []llmprovider.Message {
	var out []llmprovider.Message
	for {
		select {
		case m := <-b.InjectQueue:
			out = append(out, llmprovider.Message{Role: llmprovider.RoleUser, Content: m})
		default:
			return out
		}
	}
}

// askCallback bridges toolloop.AskCallback to the gateway's interactive
// approve/deny UI, gated to the invoking user and bounded by askTimeout.
// A timeout or any error denies, per §4.12/§7 (AskTimeout).
func (o *Orchestrator) askCallback(rt *AgentRuntime, seed gateway.InboundMessage) toolloop.AskCallback {
	return func(ctx context.Context, toolName, action string) bool {
		askCtx, cancel := context.WithTimeout(ctx, o.askTimeout)
		defer cancel()

		resp, err := o.gateway.AskPermission(askCtx, seed.ChannelID, gateway.AskButtons{
			ActionString: action,
			AllowedUser:  seed.UserID,
		}, fmt.Sprintf("%s is requesting permission to run:", rt.Name))

		decision := "DENY"
		if err == nil && resp.Approved {
			decision = "ALLOW"
		}
		auditErr := o.store.AppendAudit(context.Background(), store.AuditRecord{
			Agent:        rt.Name,
			ActionString: action,
			Decision:     decision,
			UserID:       seed.UserID,
		})
		if auditErr != nil {
			slog.Warn("failed to append audit record", "error", auditErr)
		}
		o.audit.Mirror(context.Background(), auditbus.Entry{
			Timestamp:    time.Now(),
			Agent:        rt.Name,
			ActionString: action,
			Decision:     decision,
			UserID:       seed.UserID,
		})

		if err != nil {
			return false
		}
		return resp.Approved
	}
}

// emitterFor wires toolloop.Event into the branch's live status view.
func (o *Orchestrator) emitterFor(view *status.LiveView, b *branch.Branch) toolloop.EventEmitter {
	return func(e toolloop.Event) {
		view.Update(func(s *status.Snapshot) {
			s.Usage = s.Usage.Add(e.Usage)
			step, current := b.Metrics.Snapshot()
			s.StepNumber = step
			s.CurrentStep = current
			s.LLMIterations += boolToInt(e.Kind == toolloop.EventLLMCallComplete)
			s.ToolCallsMade += boolToInt(e.Kind == toolloop.EventToolCallComplete)
			s.ElapsedMS = b.Metrics.ElapsedMS()
		})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// loadProfile loads and compiles the agent's current permission profile
// from the store, so a self_edit_permissions call from a prior turn is
// picked up on the next branch run.
func (o *Orchestrator) loadProfile(ctx context.Context, agent string) (*permission.Profile, error) {
	a, err := o.store.GetAgent(ctx, agent)
	if err != nil {
		return nil, err
	}
	stored := strings.TrimSpace(a.Permissions)
	if stored == "" {
		stored = "standard"
	}
	for _, name := range permission.PresetNames() {
		if stored == name {
			return permission.GetPreset(name)
		}
	}
	var p permission.Profile
	if err := json.Unmarshal([]byte(stored), &p); err != nil {
		return nil, fmt.Errorf("parsing stored permission profile for %s: %w", agent, err)
	}
	return permission.NewProfile(p.AllowPatterns, p.AskPatterns)
}

func toolDefsFor(rt *AgentRuntime) []llmprovider.ToolDefinition {
	var out []llmprovider.ToolDefinition
	for _, t := range rt.Registry.List() {
		out = append(out, llmprovider.ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return out
}

// gatewayEditor adapts gateway.Gateway to status.Editor.
type gatewayEditor struct {
	gw gateway.Gateway
}

func (g gatewayEditor) Send(channelID, text string) (string, error) {
	return g.gw.Send(context.Background(), channelID, text)
}

func (g gatewayEditor) Edit(channelID, messageID, text string) error {
	return g.gw.Edit(context.Background(), channelID, messageID, text)
}
