package status

import "strings"

// MaxChunkChars is the outbound message body length limit chunks are split
// to respect.
const MaxChunkChars = 3500

// ChunkResponse splits text into pieces no longer than MaxChunkChars,
// preferring to break at a paragraph boundary, then a line boundary, then a
// sentence boundary, falling back to a hard cut. It never splits inside a
// fenced code block (```), since emitting an unterminated fence would break
// reply formatting until the next chunk closes it — instead a fence is
// pushed whole into the next chunk if it would overflow.
func ChunkResponse(text string) []string {
	if len(text) <= MaxChunkChars {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > MaxChunkChars {
		cut := findSplit(remaining, MaxChunkChars)
		chunk := strings.TrimRight(remaining[:cut], "\n")
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeft(remaining[cut:], "\n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// findSplit locates the best split point in s at or before limit, adjusted
// so it never lands inside an open fenced code block.
func findSplit(s string, limit int) int {
	if limit >= len(s) {
		return len(s)
	}

	cut := limit
	if i := strings.LastIndex(s[:limit], "\n\n"); i > 0 {
		cut = i + 2
	} else if i := strings.LastIndex(s[:limit], "\n"); i > 0 {
		cut = i + 1
	} else if i := lastSentenceBoundary(s[:limit]); i > 0 {
		cut = i
	}

	return avoidOpenFence(s, cut)
}

func lastSentenceBoundary(s string) int {
	best := -1
	for _, sep := range []string{". ", "! ", "? "} {
		if i := strings.LastIndex(s, sep); i > best {
			best = i + len(sep)
		}
	}
	return best
}

// avoidOpenFence pushes cut backward (to the start of the offending fence)
// if the prefix s[:cut] contains an odd number of ``` markers, which would
// leave a code block open across the split.
func avoidOpenFence(s string, cut int) int {
	prefix := s[:cut]
	if strings.Count(prefix, "```")%2 == 0 {
		return cut
	}
	if i := strings.LastIndex(prefix, "```"); i > 0 {
		return i
	}
	return cut
}
