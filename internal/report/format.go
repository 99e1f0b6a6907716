// Package report renders evaluations and developer statistics for the CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/appraise/pkg/ledger"
)

// OutputFormat specifies how evaluations are written.
type OutputFormat string

const (
	// OutputFormatDefault uses human-readable tables with truncated reasoning
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON outputs complete records as JSON
	OutputFormatJSON OutputFormat = "json"
)

// ParseOutputFormat maps a --output flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected default or json)", s)
	}
}

// FormatEvaluation writes a single evaluation as a summary block followed by
// one row per agent decision.
func FormatEvaluation(w io.Writer, e *ledger.Evaluation) {
	fmt.Fprintf(w, "Evaluation %s\n\n", e.ID)
	fmt.Fprintf(w, "  Fingerprint: %s\n", e.Fingerprint)
	fmt.Fprintf(w, "  Developer:   %s\n", e.Developer)
	if e.Project != "" {
		fmt.Fprintf(w, "  Project:     %s\n", e.Project)
	}
	fmt.Fprintf(w, "  Status:      %s\n", e.Status)
	if len(e.FailedAgents) > 0 {
		failed := make([]string, len(e.FailedAgents))
		for i, a := range e.FailedAgents {
			failed[i] = string(a)
		}
		fmt.Fprintf(w, "  Failed:      %s\n", strings.Join(failed, ", "))
	}

	fmt.Fprintln(w)
	if e.Consensus != nil {
		fmt.Fprintf(w, "  Estimated reward:   %.2f\n", e.Consensus.EstimatedReward)
		fmt.Fprintf(w, "  Consensus strength: %.2f (%s agreement)\n", e.Consensus.ConsensusStrength, e.Consensus.Agreement)
		fmt.Fprintf(w, "  Average confidence: %.2f\n", e.Consensus.AverageConfidence)
	} else {
		fmt.Fprintf(w, "  Estimated reward:   %.2f (no consensus, %d %s)\n",
			e.EstimatedReward(), len(e.Decisions), plural(len(e.Decisions), "decision", "decisions"))
	}
	if tags := e.SkillTags(); len(tags) > 0 {
		fmt.Fprintf(w, "  Skill tags:         %s\n", strings.Join(tags, ", "))
	}

	if len(e.Decisions) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-22s %-7s %-5s %-30s %s\n", "AGENT", "REWARD", "CONF", "TAGS", "REASONING")
	fmt.Fprintf(w, "%-22s %-7s %-5s %-30s %s\n",
		"----------------------", "-------", "-----", "------------------------------", "----------------------------------------")
	for _, d := range e.Decisions {
		fmt.Fprintf(w, "%-22s %-7s %-5s %-30s %s\n",
			d.AgentType,
			fmt.Sprintf("%.2f", d.RecommendedReward),
			fmt.Sprintf("%.2f", d.Confidence),
			formatTags(d.SkillTags, 30),
			formatReasoning(d.Reasoning),
		)
	}

	var suggestions []string
	for _, d := range e.Decisions {
		suggestions = append(suggestions, d.Suggestions...)
	}
	if len(suggestions) > 0 {
		fmt.Fprintf(w, "\nSuggestions:\n")
		for _, s := range suggestions {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
}

// FormatEvaluationTable writes a developer's evaluations as a compact table,
// newest first as supplied by the caller.
// Returns the number of evaluations formatted.
func FormatEvaluationTable(w io.Writer, evaluations []*ledger.Evaluation, developer string, now time.Time) int {
	if len(evaluations) == 0 {
		fmt.Fprintf(w, "No evaluations found for developer '%s'\n", developer)
		return 0
	}

	fmt.Fprintf(w, "Evaluations for developer '%s':\n\n", developer)

	fmt.Fprintf(w, "%-10s %-10s %-8s %-7s %-6s %-9s %s\n",
		"ID", "CONTRIB", "AGE", "REWARD", "AGREE", "STATUS", "TAGS")
	fmt.Fprintf(w, "%-10s %-10s %-8s %-7s %-6s %-9s %s\n",
		"----------", "----------", "--------", "-------", "------", "---------", "------------------------------")

	for _, e := range evaluations {
		agreement := "-"
		if e.Consensus != nil {
			agreement = string(e.Consensus.Agreement)
		}
		fmt.Fprintf(w, "%-10s %-10s %-8s %-7s %-6s %-9s %s\n",
			formatID(e.ID),
			formatID(e.Fingerprint),
			formatAge(e.TimestampMs, now),
			fmt.Sprintf("%.2f", e.EstimatedReward()),
			agreement,
			e.Status,
			formatTags(e.SkillTags(), 40),
		)
	}

	fmt.Fprintf(w, "\n%d %s found\n", len(evaluations), plural(len(evaluations), "evaluation", "evaluations"))

	return len(evaluations)
}

// FormatDeveloperStats writes a developer's aggregate statistics. Skill tags
// are listed by descending count, ties broken alphabetically.
func FormatDeveloperStats(w io.Writer, stats *ledger.DeveloperStats, now time.Time) {
	fmt.Fprintf(w, "Developer %s\n\n", stats.Developer)
	fmt.Fprintf(w, "  Evaluations:      %d\n", stats.Evaluations)
	if stats.Evaluations == 0 {
		return
	}
	fmt.Fprintf(w, "  Total reward:     %.2f\n", stats.TotalEstimatedReward)
	fmt.Fprintf(w, "  Average reward:   %.2f\n", stats.AverageEstimatedReward)
	fmt.Fprintf(w, "  Last evaluated:   %s\n", formatAge(stats.LastEvaluatedMs, now))

	if len(stats.SkillTags) == 0 {
		return
	}

	tags := make([]string, 0, len(stats.SkillTags))
	for tag := range stats.SkillTags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		ci, cj := stats.SkillTags[tags[i]], stats.SkillTags[tags[j]]
		if ci != cj {
			return ci > cj
		}
		return tags[i] < tags[j]
	})

	fmt.Fprintf(w, "\n  %-24s %s\n", "SKILL", "COUNT")
	for _, tag := range tags {
		fmt.Fprintf(w, "  %-24s %d\n", tag, stats.SkillTags[tag])
	}
}

// FormatJSON writes v as pretty-printed JSON followed by a newline.
func FormatJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	fmt.Fprintln(w)
	return nil
}

// FormatJSONL writes one compact JSON object per line.
// This format is ideal for streaming and processing with tools like jq.
func FormatJSONL(w io.Writer, evaluations []*ledger.Evaluation) error {
	for _, e := range evaluations {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal evaluation to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// formatID truncates identifiers to the first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatReasoning keeps the first non-empty line, truncated to 60 characters.
func formatReasoning(reasoning string) string {
	var firstLine string
	for _, line := range strings.Split(reasoning, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}

	if firstLine == "" {
		return "-"
	}

	if len(firstLine) > 60 {
		return firstLine[:57] + "..."
	}
	return firstLine
}

func formatTags(tags []string, width int) string {
	if len(tags) == 0 {
		return "-"
	}

	joined := strings.Join(tags, ",")
	if len(joined) > width {
		return joined[:width-3] + "..."
	}
	return joined
}

// formatAge renders a millisecond timestamp relative to now, e.g. "2m ago".
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	if diff < 0 {
		diff = 0
	}

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
