package orchestrator

import (
	"context"
	"fmt"

	"github.com/George-Strauch/chorus/internal/gateway"
	"github.com/George-Strauch/chorus/internal/llmprovider"
	"github.com/George-Strauch/chorus/internal/store"
)

// agentCommImpl backs the send_to_agent/read_agent_docs/list_agents tools
// (tools.AgentComm), per §4.12's closing paragraph: send_to_agent enqueues
// a seed USER message into the target agent's own channel routing path,
// spawning a new branch there under the target's own permission profile —
// it never borrows the sending agent's profile or workspace.
type agentCommImpl struct {
	orch *Orchestrator
}

func (a *agentCommImpl) SendToAgent(ctx context.Context, fromAgent, targetAgent, message string) error {
	a.orch.mu.RLock()
	target, ok := a.orch.agents[targetAgent]
	a.orch.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown agent: %s", targetAgent)
	}

	seed := gateway.InboundMessage{
		ChannelID: target.ChannelID,
		UserID:    "agent:" + fromAgent,
		Text:      fmt.Sprintf("[from %s] %s", fromAgent, message),
	}
	b := target.Branches.CreateBranch(ctx, seed.Text, nil, 0, a.orch.runner(target, seed))
	a.orch.presence.BranchStarted(target.Name, b.ID)

	_, err := target.Context.Persist(ctx, store.Message{
		Agent:   target.Name,
		Branch:  b.ID,
		Role:    string(llmprovider.RoleUser),
		Content: seed.Text,
	})
	return err
}

func (a *agentCommImpl) ReadAgentDocs(ctx context.Context, targetAgent string) (string, error) {
	a.orch.mu.RLock()
	target, ok := a.orch.agents[targetAgent]
	a.orch.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown agent: %s", targetAgent)
	}
	return target.Docs, nil
}

func (a *agentCommImpl) ListAgents(ctx context.Context) ([]string, error) {
	return a.orch.store.ListAgents(ctx)
}
