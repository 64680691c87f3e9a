package workspace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrStringNotFound is returned by StrReplace when old does not occur.
var ErrStringNotFound = errors.New("StringNotFound")

// ErrAmbiguousMatch is returned by StrReplace when old occurs more than once.
var ErrAmbiguousMatch = errors.New("AmbiguousMatch")

// ErrBinaryFile is returned by View when the file looks binary.
var ErrBinaryFile = errors.New("refusing to view binary file")

const binarySniffLen = 8192

// CreateFile writes content to path, creating any missing parent
// directories, and overwrites any existing file.
func (w *Workspace) CreateFile(path, content string) error {
	resolved, err := w.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}

// StrReplace replaces a single occurrence of old with new in the file at
// path. It returns ErrStringNotFound if old does not occur, and
// ErrAmbiguousMatch if it occurs more than once. On success it returns a
// short context snippet (roughly three lines before and after the edit).
func (w *Workspace) StrReplace(path, old, new string) (snippet string, err error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	content := string(data)

	count := strings.Count(content, old)
	switch {
	case count == 0:
		return "", ErrStringNotFound
	case count > 1:
		return "", ErrAmbiguousMatch
	}

	idx := strings.Index(content, old)
	updated := content[:idx] + new + content[idx+len(old):]
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return "", err
	}

	return contextSnippet(updated, idx, len(new)), nil
}

// StrReplaceAll replaces every occurrence of old with new in the file at
// path, returning the number of replacements made. Unlike StrReplace it
// does not require a unique match.
func (w *Workspace) StrReplaceAll(path, old, new string) (int, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return 0, err
	}
	content := string(data)
	count := strings.Count(content, old)
	if count == 0 {
		return 0, ErrStringNotFound
	}
	updated := strings.ReplaceAll(content, old, new)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return 0, err
	}
	return count, nil
}

// View returns numbered lines of the file at path within [offset, offset+limit).
// offset and limit of 0 mean "from the start" / "no limit". Files that look
// binary (a NUL byte within the first 8KB) are rejected.
func (w *Workspace) View(path string, offset, limit int) (string, error) {
	resolved, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}

	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) != -1 {
		return "", ErrBinaryFile
	}

	lines := splitLines(string(data))
	start := offset
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := len(lines)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return b.String(), nil
}

// InsertAt inserts content as a new line immediately before or after the
// given 1-indexed line number.
func (w *Workspace) InsertAt(path string, line int, position string, content string) error {
	resolved, err := w.Resolve(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}
	lines := splitLines(string(data))

	idx := line - 1
	if position == "after" {
		idx = line
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(lines) {
		idx = len(lines)
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:idx]...)
	out = append(out, content)
	out = append(out, lines[idx:]...)

	return os.WriteFile(resolved, []byte(strings.Join(out, "\n")), 0o644)
}

// ReplaceLines replaces the inclusive 1-indexed line range [start, end]
// with content.
func (w *Workspace) ReplaceLines(path string, start, end int, content string) error {
	resolved, err := w.Resolve(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}
	lines := splitLines(string(data))

	s, e := start-1, end
	if s < 0 {
		s = 0
	}
	if e > len(lines) {
		e = len(lines)
	}
	if s > e {
		return fmt.Errorf("replace_lines: start %d is after end %d", start, end)
	}

	out := make([]string, 0, len(lines))
	out = append(out, lines[:s]...)
	out = append(out, splitLines(content)...)
	out = append(out, lines[e:]...)

	return os.WriteFile(resolved, []byte(strings.Join(out, "\n")), 0o644)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func contextSnippet(content string, byteIdx, replacedLen int) string {
	lines := splitLines(content)
	// Find the line containing byteIdx.
	pos := 0
	lineNo := 0
	for i, l := range lines {
		next := pos + len(l) + 1
		if byteIdx < next {
			lineNo = i
			break
		}
		pos = next
	}
	start := lineNo - 3
	if start < 0 {
		start = 0
	}
	end := lineNo + 4
	if end > len(lines) {
		end = len(lines)
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return b.String()
}
