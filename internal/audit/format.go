package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a Result as a human-readable text timeline.
func FormatTimeline(result *Result) string {
	if len(result.Entries) == 0 {
		return "No entries found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Decisions: %s–%s UTC\n",
		formatDateTime(result.Summary.FirstTimestamp),
		formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s %-6d %-17s %-20s %s\n",
			formatTimeOnly(e.Timestamp), e.Port, strings.ToUpper(e.Decision),
			truncate(e.Action, 20), truncate(e.Reason, 40))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a Result as indented JSON.
func FormatJSON(result *Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s Summary) string {
	var parts []string
	if s.Approved > 0 {
		parts = append(parts, fmt.Sprintf("%d approved", s.Approved))
	}
	if s.ApprovedSession > 0 {
		parts = append(parts, fmt.Sprintf("%d approved_session", s.ApprovedSession))
	}
	if s.Rejected > 0 {
		parts = append(parts, fmt.Sprintf("%d rejected", s.Rejected))
	}
	if s.Cancelled > 0 {
		parts = append(parts, fmt.Sprintf("%d cancelled", s.Cancelled))
	}
	return fmt.Sprintf("Summary: %d total | %s\n", s.Total, strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
