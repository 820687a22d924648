package audit

import (
	"encoding/json"
	"fmt"
	"strings"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders entries as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return "No entries found.\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s – %s UTC\n",
		result.Summary.First.Format("2006-01-02 15:04:05"),
		result.Summary.Last.Format("15:04:05")))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		approved := ""
		if e.Approved {
			approved = "  [approved]"
		}
		b.WriteString(fmt.Sprintf("%-10s %-3s %-17s %-16s %-36s%s\n",
			e.Timestamp.Format("15:04:05"),
			e.RiskLevel,
			strings.ToUpper(e.Action),
			truncate(e.ToolName, 16),
			truncate(string(e.ToolArgs), 36),
			approved))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatSummary(s ReplaySummary) string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.Executed, "executed")
	add(s.Failed, "failed")
	add(s.Denied, "denied")
	add(s.TimedOut, "timed out")
	add(s.Cancelled, "cancelled")
	add(s.Blocked, "blocked")

	line := fmt.Sprintf("%d entries | max level %s", s.Total, s.MaxLevel)
	if len(parts) > 0 {
		line += " | " + strings.Join(parts, ", ")
	}
	if s.Usage != nil {
		line += fmt.Sprintf(" | %d in / %d out tokens, $%.4f",
			s.Usage.InputTokens, s.Usage.OutputTokens, s.Usage.CostUSD)
	}
	return line + "\n"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
