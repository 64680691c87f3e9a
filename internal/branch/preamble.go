package branch

import (
	"fmt"
	"strings"
)

// BuildStatusPreamble formats active-branch info for injection into the
// next LLM call's system context, per §4.8's preamble description.
// currentBranchID of 0 means no branch should be marked "(this branch)".
func BuildStatusPreamble(m *Manager, currentBranchID int) string {
	active := m.ListActive()
	if len(active) == 0 {
		return "No active branches."
	}

	var lines []string
	lines = append(lines, "Active branches:")
	for _, b := range active {
		marker := ""
		if b.ID == currentBranchID {
			marker = " (this branch)"
		}
		stepNumber, current := b.Metrics.Snapshot()
		elapsedS := float64(b.Metrics.ElapsedMS()) / 1000.0
		summary := b.Summary
		if summary == "" {
			summary = "Starting..."
		}
		lines = append(lines, fmt.Sprintf(
			"  #%d%s: %s — step %d, %.0fs elapsed, currently: %s [%s]",
			b.ID, marker, summary, stepNumber, elapsedS, current, b.GetStatus(),
		))
	}
	if len(lines) == 1 {
		return "No active branches."
	}
	return strings.Join(lines, "\n")
}
