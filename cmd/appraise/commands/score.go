package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dyluth/appraise/internal/agent"
	"github.com/dyluth/appraise/internal/orchestrator"
	"github.com/dyluth/appraise/internal/printer"
	"github.com/dyluth/appraise/internal/report"
	"github.com/dyluth/appraise/pkg/ledger"
)

var (
	scoreDeveloper    string
	scoreLanguage     string
	scoreTimestamp    string
	scoreDescription  string
	scoreProject      string
	scoreSave         bool
	scoreOutputFormat string
)

var scoreCmd = &cobra.Command{
	Use:   "score FILE",
	Short: "Score a contribution locally",
	Long: `Score a single contribution with the configured agents and print the
evaluation.

FILE holds the contributed code; use "-" to read it from stdin.

When a ledger is configured (--redis-url), the impact agent reads project
popularity from it, and --save records the evaluation there.

Output Formats:
  default - Summary plus one row per agent decision
  json    - The complete evaluation as JSON

Examples:
  # Score a file
  appraise score --developer 0x1234 add.js

  # Score from stdin with a description and project
  git diff HEAD~1 | appraise score --developer 0x1234 --project codedao/core \
    --description "add retry to the uploader" -

  # Score and record in the ledger
  appraise score --redis-url redis://localhost:6379 --developer 0x1234 --save add.js`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreDeveloper, "developer", "d", "", "Developer identifier (required)")
	scoreCmd.Flags().StringVarP(&scoreLanguage, "language", "l", "", "Language hint, used when detection finds nothing")
	scoreCmd.Flags().StringVar(&scoreTimestamp, "timestamp", "", "Submission timestamp (default: now, RFC3339)")
	scoreCmd.Flags().StringVar(&scoreDescription, "description", "", "What the contribution does")
	scoreCmd.Flags().StringVarP(&scoreProject, "project", "p", "", "Project the contribution targets")
	scoreCmd.Flags().BoolVar(&scoreSave, "save", false, "Record the evaluation in the ledger")
	scoreCmd.Flags().StringVarP(&scoreOutputFormat, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	outputFormat, err := report.ParseOutputFormat(scoreOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", scoreOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	if scoreSave && !ledgerConfigured() {
		return printer.Error(
			"--save requires a ledger",
			"The evaluation can only be recorded when a Redis URL is configured.",
			[]string{"Pass --redis-url or set APPRAISE_REDIS_URL"},
		)
	}

	code, err := readCode(cmd, args[0])
	if err != nil {
		return printer.Error(
			"cannot read contribution",
			err.Error(),
			[]string{"Check the file path, or pass - to read from stdin"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var client *ledger.Client
	var popularity agent.PopularitySource
	if ledgerConfigured() {
		client, err = connectLedger(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		popularity = agent.NewLedgerPopularity(client)
	}

	engine := orchestrator.NewEngine(
		buildAgents(cfg, popularity),
		orchestrator.WithInstanceName(viper.GetString(keyInstance)),
		orchestrator.WithEvaluationTimeout(cfg.Orchestrator.EvaluationTimeout),
	)
	if err := engine.Initialize(ctx); err != nil {
		printer.Warning("Some agents failed to initialize: %v\n", err)
	}
	defer engine.Shutdown(ctx)

	timestamp := scoreTimestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	contribution := &ledger.Contribution{
		Developer:   scoreDeveloper,
		Code:        code,
		Language:    scoreLanguage,
		Timestamp:   ledger.Timestamp(timestamp),
		Description: scoreDescription,
		Project:     scoreProject,
	}

	evaluation, err := engine.ProcessContribution(ctx, contribution)
	if err != nil {
		if ledger.IsValidation(err) {
			return printer.Error(
				"invalid contribution",
				err.Error(),
				[]string{"Pass --developer and a non-empty FILE"},
			)
		}
		return fmt.Errorf("failed to score contribution: %w", err)
	}

	if scoreSave {
		if err := client.SaveEvaluation(ctx, evaluation); err != nil {
			return printer.Error(
				"failed to record evaluation",
				err.Error(),
				[]string{"Check Redis connectivity and retry"},
			)
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == report.OutputFormatJSON {
		return report.FormatJSON(out, evaluation)
	}

	report.FormatEvaluation(out, evaluation)
	if evaluation.Consensus != nil {
		fmt.Fprintf(out, "\nAgreement: %s\n", printer.Agreement(evaluation.Consensus.Agreement))
	}
	if scoreSave {
		printer.Success("Recorded evaluation %s\n", evaluation.Fingerprint)
	}
	return nil
}

// readCode returns the contents of path, or of stdin when path is "-".
func readCode(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
