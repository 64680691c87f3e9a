package tools

// DefaultRegistry builds a Registry with the full built-in tool set:
// file operations, shell execution, process control, git, self-edit, and
// inter-agent communication.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&CreateFileTool{})
	r.Register(&StrReplaceTool{})
	r.Register(&StrReplaceAllTool{})
	r.Register(&ViewTool{})
	r.Register(&InsertAtTool{})
	r.Register(&ReplaceLinesTool{})
	r.Register(&BashTool{})
	r.Register(&RunConcurrentTool{})
	r.Register(&RunBackgroundTool{})
	r.Register(&ProcessListTool{})
	r.Register(&ProcessKillTool{})
	for _, g := range GitTools() {
		r.Register(g)
	}
	r.Register(&SelfEditSystemPromptTool{})
	r.Register(&SelfEditDocsTool{})
	r.Register(&SelfEditPermissionsTool{})
	r.Register(&SelfEditModelTool{})
	r.Register(&SendToAgentTool{})
	r.Register(&ReadAgentDocsTool{})
	r.Register(&ListAgentsTool{})
	return r
}
