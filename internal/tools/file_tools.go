package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/George-Strauch/chorus/internal/workspace"
)

func schema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

// fileResult is the structured shape every file tool returns as JSON, per
// §4.2: "a structured result (path, action, snippet, error-kind-or-none)".
type fileResult struct {
	Path    string `json:"path"`
	Action  string `json:"action"`
	Snippet string `json:"snippet,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r fileResult) marshal() string {
	b, _ := json.Marshal(r)
	return string(b)
}

func classifyFileErr(path, action string, err error) string {
	switch {
	case errors.Is(err, workspace.ErrOutsideWorkspace):
		return fileResult{Path: path, Action: action, Error: "PathTraversal"}.marshal()
	case errors.Is(err, workspace.ErrStringNotFound):
		return fileResult{Path: path, Action: action, Error: "StringNotFound"}.marshal()
	case errors.Is(err, workspace.ErrAmbiguousMatch):
		return fileResult{Path: path, Action: action, Error: "AmbiguousMatch"}.marshal()
	case errors.Is(err, workspace.ErrBinaryFile):
		return fileResult{Path: path, Action: action, Error: "BinaryFile"}.marshal()
	default:
		return fileResult{Path: path, Action: action, Error: fmt.Sprintf("FileNotFoundInWorkspace: %v", err)}.marshal()
	}
}

// CreateFileTool implements create_file(path, content).
type CreateFileTool struct{}

func (t *CreateFileTool) Name() string        { return "create_file" }
func (t *CreateFileTool) Description() string { return "Create or overwrite a file with the given content, creating parent directories as needed." }
func (t *CreateFileTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":    strProp("Workspace-relative path to write."),
		"content": strProp("UTF-8 content to write."),
	}, "path", "content")
}
func (t *CreateFileTool) BuildDetail(args map[string]any) string {
	return GetString(args, "path", "")
}
func (t *CreateFileTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	content := GetString(args, "content", "")

	release, ok := ec.FileLocker.AcquireFileLock(ctx, path)
	if !ok {
		return fileResult{Path: path, Action: "create_file", Error: "LockTimeout"}.marshal(), nil
	}
	defer release()

	if err := ec.Workspace.CreateFile(path, content); err != nil {
		return classifyFileErr(path, "create_file", err), nil
	}
	return fileResult{Path: path, Action: "create_file"}.marshal(), nil
}

// StrReplaceTool implements str_replace(path, old, new).
type StrReplaceTool struct{}

func (t *StrReplaceTool) Name() string        { return "str_replace" }
func (t *StrReplaceTool) Description() string {
	return "Replace a single unique occurrence of old_text with new_text in a file."
}
func (t *StrReplaceTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":     strProp("Workspace-relative path."),
		"old_text": strProp("Exact text to find; must occur exactly once."),
		"new_text": strProp("Replacement text."),
	}, "path", "old_text", "new_text")
}
func (t *StrReplaceTool) BuildDetail(args map[string]any) string {
	return GetString(args, "path", "")
}
func (t *StrReplaceTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	oldText := GetString(args, "old_text", "")
	newText := GetString(args, "new_text", "")

	release, ok := ec.FileLocker.AcquireFileLock(ctx, path)
	if !ok {
		return fileResult{Path: path, Action: "str_replace", Error: "LockTimeout"}.marshal(), nil
	}
	defer release()

	snippet, err := ec.Workspace.StrReplace(path, oldText, newText)
	if err != nil {
		return classifyFileErr(path, "str_replace", err), nil
	}
	return fileResult{Path: path, Action: "str_replace", Snippet: snippet}.marshal(), nil
}

// StrReplaceAllTool implements str_replace_all(path, old, new).
type StrReplaceAllTool struct{}

func (t *StrReplaceAllTool) Name() string        { return "str_replace_all" }
func (t *StrReplaceAllTool) Description() string { return "Replace every occurrence of old_text with new_text in a file." }
func (t *StrReplaceAllTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":     strProp("Workspace-relative path."),
		"old_text": strProp("Text to find; may occur any number of times."),
		"new_text": strProp("Replacement text."),
	}, "path", "old_text", "new_text")
}
func (t *StrReplaceAllTool) BuildDetail(args map[string]any) string {
	return GetString(args, "path", "")
}
func (t *StrReplaceAllTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	oldText := GetString(args, "old_text", "")
	newText := GetString(args, "new_text", "")

	release, ok := ec.FileLocker.AcquireFileLock(ctx, path)
	if !ok {
		return fileResult{Path: path, Action: "str_replace_all", Error: "LockTimeout"}.marshal(), nil
	}
	defer release()

	n, err := ec.Workspace.StrReplaceAll(path, oldText, newText)
	if err != nil {
		return classifyFileErr(path, "str_replace_all", err), nil
	}
	return fileResult{Path: path, Action: "str_replace_all", Snippet: fmt.Sprintf("%d replacements", n)}.marshal(), nil
}

// ViewTool implements view(path, offset?, limit?). Read-only: no lock.
type ViewTool struct{}

func (t *ViewTool) Name() string        { return "view" }
func (t *ViewTool) Description() string { return "View numbered lines of a workspace file, optionally within an offset/limit range." }
func (t *ViewTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":   strProp("Workspace-relative path."),
		"offset": intProp("0-indexed starting line (default 0)."),
		"limit":  intProp("Maximum number of lines to return (default: all)."),
	}, "path")
}
func (t *ViewTool) BuildDetail(args map[string]any) string {
	return GetString(args, "path", "")
}
func (t *ViewTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	offset := GetInt(args, "offset", 0)
	limit := GetInt(args, "limit", 0)

	out, err := ec.Workspace.View(path, offset, limit)
	if err != nil {
		return classifyFileErr(path, "view", err), nil
	}
	return out, nil
}

// InsertAtTool implements insert_at(path, line, position, content).
type InsertAtTool struct{}

func (t *InsertAtTool) Name() string        { return "insert_at" }
func (t *InsertAtTool) Description() string { return "Insert a new line before or after a given line number." }
func (t *InsertAtTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":     strProp("Workspace-relative path."),
		"line":     intProp("1-indexed anchor line."),
		"position": strProp(`"before" or "after" (default "after").`),
		"content":  strProp("Line content to insert."),
	}, "path", "line", "content")
}
func (t *InsertAtTool) BuildDetail(args map[string]any) string {
	return GetString(args, "path", "")
}
func (t *InsertAtTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	line := GetInt(args, "line", 1)
	position := GetString(args, "position", "after")
	content := GetString(args, "content", "")

	release, ok := ec.FileLocker.AcquireFileLock(ctx, path)
	if !ok {
		return fileResult{Path: path, Action: "insert_at", Error: "LockTimeout"}.marshal(), nil
	}
	defer release()

	if err := ec.Workspace.InsertAt(path, line, position, content); err != nil {
		return classifyFileErr(path, "insert_at", err), nil
	}
	return fileResult{Path: path, Action: "insert_at"}.marshal(), nil
}

// ReplaceLinesTool implements replace_lines(path, start, end, content).
type ReplaceLinesTool struct{}

func (t *ReplaceLinesTool) Name() string        { return "replace_lines" }
func (t *ReplaceLinesTool) Description() string { return "Replace an inclusive 1-indexed line range with new content." }
func (t *ReplaceLinesTool) Parameters() map[string]any {
	return schema(map[string]any{
		"path":    strProp("Workspace-relative path."),
		"start":   intProp("1-indexed first line to replace."),
		"end":     intProp("1-indexed last line to replace (inclusive)."),
		"content": strProp("Replacement content."),
	}, "path", "start", "end", "content")
}
func (t *ReplaceLinesTool) BuildDetail(args map[string]any) string {
	return GetString(args, "path", "")
}
func (t *ReplaceLinesTool) Execute(ctx context.Context, ec *ExecContext, args map[string]any) (string, error) {
	path := GetString(args, "path", "")
	start := GetInt(args, "start", 1)
	end := GetInt(args, "end", start)
	content := GetString(args, "content", "")

	release, ok := ec.FileLocker.AcquireFileLock(ctx, path)
	if !ok {
		return fileResult{Path: path, Action: "replace_lines", Error: "LockTimeout"}.marshal(), nil
	}
	defer release()

	if err := ec.Workspace.ReplaceLines(path, start, end, content); err != nil {
		return classifyFileErr(path, "replace_lines", err), nil
	}
	return fileResult{Path: path, Action: "replace_lines"}.marshal(), nil
}
