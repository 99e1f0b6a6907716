package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/appraise/internal/filter"
	"github.com/dyluth/appraise/internal/printer"
	"github.com/dyluth/appraise/internal/timespec"
	"github.com/dyluth/appraise/pkg/ledger"
)

// filterFlags holds the evaluation filters shared by stats and watch.
type filterFlags struct {
	since     string
	until     string
	project   string
	agreement string
	status    string
	minReward float64
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.since, "since", "", "Only evaluations after this time (duration, days like 7d, or RFC3339)")
	cmd.Flags().StringVar(&f.until, "until", "", "Only evaluations before this time (duration, days like 7d, or RFC3339)")
	cmd.Flags().StringVar(&f.project, "project", "", "Filter by project (glob pattern)")
	cmd.Flags().StringVar(&f.agreement, "agreement", "", "Filter by agent agreement: high, medium or low")
	cmd.Flags().StringVar(&f.status, "status", "", "Filter by status: processed or partial")
	cmd.Flags().Float64Var(&f.minReward, "min-reward", 0, "Only evaluations with at least this estimated reward")
}

// criteria validates the flags and builds the filter they describe.
func (f *filterFlags) criteria(now time.Time) (*filter.Criteria, error) {
	since, until, err := timespec.ParseRange(f.since, f.until, now)
	if err != nil {
		return nil, printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration like 2h, days like 7d, or RFC3339 like 2025-10-29T13:00:00Z"},
		)
	}

	criteria := &filter.Criteria{
		SinceTimestampMs: since,
		UntilTimestampMs: until,
		ProjectGlob:      f.project,
		MinReward:        f.minReward,
	}

	switch agreement := ledger.Agreement(f.agreement); agreement {
	case "", ledger.AgreementHigh, ledger.AgreementMedium, ledger.AgreementLow:
		criteria.Agreement = agreement
	default:
		return nil, printer.Error(
			"invalid agreement filter",
			fmt.Sprintf("Unknown agreement: %s", f.agreement),
			[]string{"Valid values: high, medium, low"},
		)
	}

	if f.status != "" {
		status := ledger.EvaluationStatus(f.status)
		if err := status.Validate(); err != nil {
			return nil, printer.Error(
				"invalid status filter",
				fmt.Sprintf("Unknown status: %s", f.status),
				[]string{"Valid values: processed, partial"},
			)
		}
		criteria.Status = status
	}

	if f.minReward < 0 {
		return nil, printer.Error(
			"invalid reward filter",
			fmt.Sprintf("--min-reward must be >= 0, got %v", f.minReward),
			nil,
		)
	}

	return criteria, nil
}
