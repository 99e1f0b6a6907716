package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/appraise/internal/printer"
	"github.com/dyluth/appraise/internal/report"
	"github.com/dyluth/appraise/internal/resolver"
	"github.com/dyluth/appraise/internal/watch"
	"github.com/dyluth/appraise/pkg/ledger"
)

var (
	showOutputFormat string
	showWait         time.Duration
)

var showCmd = &cobra.Command{
	Use:   "show FINGERPRINT",
	Short: "Display a recorded evaluation",
	Long: `Display the evaluation recorded for a contribution fingerprint.

The fingerprint is the 64-character hex digest reported by "score" and by
the HTTP API. A unique prefix of at least 6 characters is also accepted.

Examples:
  appraise show 9f2c41

  # Wait up to 30s for a serve process to record it
  appraise show --wait 30s 9f2c...e41a`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutputFormat, "output", "o", "default", "Output format: default or json")
	showCmd.Flags().DurationVar(&showWait, "wait", 0, "Poll for the evaluation for up to this long")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	fingerprint := args[0]

	outputFormat, err := report.ParseOutputFormat(showOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", showOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	full := ledger.IsFingerprint(fingerprint)
	if !full {
		if err := resolver.CheckPrefix(fingerprint); err != nil {
			return printer.Error(
				"invalid fingerprint",
				err.Error(),
				[]string{"Pass the full 64-character fingerprint or a unique prefix of at least 6 characters"},
			)
		}
		if showWait > 0 {
			return printer.Error(
				"--wait needs a full fingerprint",
				"Only evaluations that already exist can be found by prefix.",
				[]string{"Pass the full 64-character fingerprint"},
			)
		}
	}

	client, err := connectLedger(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if !full {
		fingerprint, err = resolver.ResolveFingerprint(ctx, client, fingerprint)
		if err != nil {
			if ambiguous, ok := err.(*resolver.AmbiguousError); ok {
				return printer.Error(
					"ambiguous fingerprint",
					ambiguous.Describe(),
					[]string{"Use a longer prefix to identify the evaluation"},
				)
			}
			if resolver.IsNotFoundError(err) {
				return printer.Error(
					"evaluation not found",
					fmt.Sprintf("No evaluation is recorded for %s.", args[0]),
					[]string{"Check the --instance matches the process that scored it"},
				)
			}
			return fmt.Errorf("failed to resolve fingerprint: %w", err)
		}
	}

	var evaluation *ledger.Evaluation
	if showWait > 0 {
		evaluation, err = watch.PollForEvaluation(ctx, client, fingerprint, showWait)
	} else {
		evaluation, err = client.GetEvaluation(ctx, fingerprint)
	}
	if err != nil {
		if ledger.IsNotFound(err) || showWait > 0 {
			return printer.Error(
				"evaluation not found",
				fmt.Sprintf("No evaluation is recorded for %s.", fingerprint),
				[]string{"Check the --instance matches the process that scored it"},
			)
		}
		return fmt.Errorf("failed to fetch evaluation: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputFormat == report.OutputFormatJSON {
		return report.FormatJSON(out, evaluation)
	}
	report.FormatEvaluation(out, evaluation)
	return nil
}
