package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/appraise/internal/printer"
	"github.com/dyluth/appraise/internal/report"
	"github.com/dyluth/appraise/pkg/ledger"
)

var (
	statsOutputFormat string
	statsLimit        int64
	statsFilters      filterFlags
)

var statsCmd = &cobra.Command{
	Use:   "stats DEVELOPER",
	Short: "Summarise a developer's evaluations",
	Long: `Show aggregate statistics for a developer (evaluation count, total and
average estimated reward, skill tag frequencies) followed by their most
recent evaluations.

Filters (--since, --until, --project, --agreement, --status, --min-reward)
narrow the listed evaluations; the aggregate statistics always cover every
evaluation of the developer.

Examples:
  appraise stats 0x1234
  appraise stats --since 7d --agreement high 0x1234
  appraise stats --limit 50 --output json 0x1234 | jq .stats`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutputFormat, "output", "o", "default", "Output format: default or json")
	statsCmd.Flags().Int64Var(&statsLimit, "limit", 10, "Number of recent evaluations to list (0 for none)")
	statsFilters.register(statsCmd)
	rootCmd.AddCommand(statsCmd)
}

// statsOutput is the JSON document written by "stats --output json".
type statsOutput struct {
	Stats       *ledger.DeveloperStats `json:"stats"`
	Evaluations []*ledger.Evaluation   `json:"evaluations"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	developer := args[0]

	outputFormat, err := report.ParseOutputFormat(statsOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", statsOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	now := time.Now()
	criteria, err := statsFilters.criteria(now)
	if err != nil {
		return err
	}

	client, err := connectLedger(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := client.DeveloperStats(ctx, developer)
	if err != nil {
		return fmt.Errorf("failed to compute developer stats: %w", err)
	}

	evaluations := []*ledger.Evaluation{}
	if statsLimit > 0 {
		// Filtering happens client-side, so a filtered listing reads the whole index
		fetch := statsLimit
		if criteria.HasFilters() {
			fetch = 0
		}

		evaluations, err = client.ListDeveloperEvaluations(ctx, developer, fetch)
		if err != nil {
			return fmt.Errorf("failed to list evaluations: %w", err)
		}

		evaluations = criteria.Apply(evaluations)
		if int64(len(evaluations)) > statsLimit {
			evaluations = evaluations[:statsLimit]
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == report.OutputFormatJSON {
		return report.FormatJSON(out, statsOutput{Stats: stats, Evaluations: evaluations})
	}

	report.FormatDeveloperStats(out, stats, now)
	if statsLimit > 0 && stats.Evaluations > 0 {
		fmt.Fprintln(out)
		report.FormatEvaluationTable(out, evaluations, developer, now)
	}
	return nil
}
