package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// SendToAgentTool implements send_to_agent(target, message): enqueues a
// seed USER message into the target agent's own channel routing path,
// spawning a new branch there under the target's own permission profile.
type SendToAgentTool struct{}

func (t *SendToAgentTool) Name() string        { return "send_to_agent" }
func (t *SendToAgentTool) Description() string { return "Send a message to another agent, starting a new branch there." }
func (t *SendToAgentTool) Parameters() map[string]any {
	return schema(map[string]any{
		"target":  strProp("Name of the target agent."),
		"message": strProp("Message text to send."),
	}, "target", "message")
}
func (t *SendToAgentTool) BuildDetail(args map[string]any) string {
	return "send_to_agent " + GetString(args, "target", "")
}
func (t *SendToAgentTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	target := GetString(args, "target", "")
	if err := ec.AgentComm.SendToAgent(ctx, ec.AgentName, target, GetString(args, "message", "")); err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	return `{"status": "sent"}`, nil
}

// ReadAgentDocsTool implements read_agent_docs(target).
type ReadAgentDocsTool struct{}

func (t *ReadAgentDocsTool) Name() string        { return "read_agent_docs" }
func (t *ReadAgentDocsTool) Description() string { return "Read another agent's always-injected docs." }
func (t *ReadAgentDocsTool) Parameters() map[string]any {
	return schema(map[string]any{"target": strProp("Name of the target agent.")}, "target")
}
func (t *ReadAgentDocsTool) BuildDetail(args map[string]any) string {
	return "read_agent_docs " + GetString(args, "target", "")
}
func (t *ReadAgentDocsTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	docs, err := ec.AgentComm.ReadAgentDocs(ctx, GetString(args, "target", ""))
	if err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	return docs, nil
}

// ListAgentsTool implements list_agents().
type ListAgentsTool struct{}

func (t *ListAgentsTool) Name() string        { return "list_agents" }
func (t *ListAgentsTool) Description() string { return "List the names of all configured agents." }
func (t *ListAgentsTool) Parameters() map[string]any {
	return schema(map[string]any{})
}
func (t *ListAgentsTool) BuildDetail(args map[string]any) string { return "list_agents" }
func (t *ListAgentsTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	names, err := ec.AgentComm.ListAgents(ctx)
	if err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	b, _ := json.Marshal(names)
	return string(b), nil
}
