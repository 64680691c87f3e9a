package tools

import (
	"context"
	"fmt"

	"github.com/George-Strauch/chorus/internal/permission"
)

// SelfEditSystemPromptTool implements self_edit_system_prompt(content).
type SelfEditSystemPromptTool struct{}

func (t *SelfEditSystemPromptTool) Name() string        { return "self_edit_system_prompt" }
func (t *SelfEditSystemPromptTool) Description() string { return "Replace this agent's system prompt." }
func (t *SelfEditSystemPromptTool) Parameters() map[string]any {
	return schema(map[string]any{"content": strProp("New system prompt text.")}, "content")
}
func (t *SelfEditSystemPromptTool) BuildDetail(args map[string]any) string { return "system_prompt" }
func (t *SelfEditSystemPromptTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	if err := ec.SelfEdit.SetSystemPrompt(ctx, ec.AgentName, GetString(args, "content", "")); err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	return `{"status": "ok"}`, nil
}

// SelfEditDocsTool implements self_edit_docs(path, content).
type SelfEditDocsTool struct{}

func (t *SelfEditDocsTool) Name() string        { return "self_edit_docs" }
func (t *SelfEditDocsTool) Description() string { return "Write a file into this agent's always-injected docs directory." }
func (t *SelfEditDocsTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":    strProp("Docs-relative path."),
		"content": strProp("File content."),
	}, "path", "content")
}
func (t *SelfEditDocsTool) BuildDetail(args map[string]any) string {
	return "docs:" + GetString(args, "path", "")
}
func (t *SelfEditDocsTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	if err := ec.SelfEdit.WriteDoc(ctx, ec.AgentName, path, GetString(args, "content", "")); err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	return `{"status": "ok"}`, nil
}

// SelfEditPermissionsTool implements self_edit_permissions(profile). Beyond
// the engine's own decision, this is gated by an additional role check per
// §4.1: only an admin-role caller may grant "open".
type SelfEditPermissionsTool struct{}

func (t *SelfEditPermissionsTool) Name() string        { return "self_edit_permissions" }
func (t *SelfEditPermissionsTool) Description() string { return "Change this agent's permission profile to a preset or inline pattern set." }
func (t *SelfEditPermissionsTool) Parameters() map[string]any {
	return schema(map[string]any{"profile": strProp(`Preset name ("open"|"standard"|"locked") or inline {"allow":[],"ask":[]}.`)}, "profile")
}
func (t *SelfEditPermissionsTool) BuildDetail(args map[string]any) string {
	return "permissions:" + GetString(args, "profile", "")
}
func (t *SelfEditPermissionsTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	target := GetString(args, "profile", "")
	role := permission.RoleAgent
	if ec.IsAdmin {
		role = permission.RoleAdmin
	}
	if !permission.AuthorizeProfileChange(role, target) {
		return `{"error": "InsufficientRole"}`, nil
	}
	if err := ec.SelfEdit.SetPermissionProfile(ctx, ec.AgentName, target, role); err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	return `{"status": "ok"}`, nil
}

// SelfEditModelTool implements self_edit_model(model).
type SelfEditModelTool struct{}

func (t *SelfEditModelTool) Name() string        { return "self_edit_model" }
func (t *SelfEditModelTool) Description() string { return "Change the LLM model id this agent uses." }
func (t *SelfEditModelTool) Parameters() map[string]any {
	return schema(map[string]any{"model": strProp("New model identifier.")}, "model")
}
func (t *SelfEditModelTool) BuildDetail(args map[string]any) string {
	return "model:" + GetString(args, "model", "")
}
func (t *SelfEditModelTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	if err := ec.SelfEdit.SetModel(ctx, ec.AgentName, GetString(args, "model", "")); err != nil {
		return fmt.Sprintf(`{"error": "%v"}`, err), nil
	}
	return `{"status": "ok"}`, nil
}
