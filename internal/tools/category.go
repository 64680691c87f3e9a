package tools

// CategoryOf maps a tool's registry name to the permission-category token
// used in its action string, matching the built-in presets' pattern
// vocabulary (file/bash/git/self_edit/agent_comm). Tools without a mapped
// category use their own name as the category (e.g. run_concurrent).
func CategoryOf(toolName string) string {
	switch toolName {
	case "create_file", "str_replace", "str_replace_all", "view", "insert_at", "replace_lines":
		return toolName
	case "bash":
		return "bash"
	case "git_init", "git_commit", "git_push", "git_branch", "git_checkout", "git_diff", "git_log", "git_merge_request":
		return "git"
	case "self_edit_system_prompt", "self_edit_docs", "self_edit_permissions", "self_edit_model":
		return "self_edit"
	case "send_to_agent", "read_agent_docs", "list_agents":
		return "agent_comm"
	default:
		return toolName
	}
}
