package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/appraise/internal/printer"
	"github.com/dyluth/appraise/internal/watch"
)

var (
	watchOutputFormat string
	watchDeveloper    string
	watchFilters      filterFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream evaluations as they are recorded",
	Long: `Stream evaluations as they are recorded in the ledger by any process
sharing the instance, until interrupted.

Output Formats:
  default - One line per evaluation with reward, agreement and tags
  json    - Line-delimited JSON for programmatic processing

Filters (--developer, --project, --agreement, --status, --min-reward) drop
non-matching evaluations from the stream.

Examples:
  appraise watch
  appraise watch --developer 0x1234 --min-reward 5
  appraise watch --output=json > evaluations.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchDeveloper, "developer", "", "Only evaluations of this developer")
	watchFilters.register(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	criteria, err := watchFilters.criteria(time.Now())
	if err != nil {
		return err
	}
	criteria.Developer = watchDeveloper

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	client, err := connectLedger(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return watch.StreamEvaluations(ctx, client, criteria, outputFormat, cmd.OutOrStdout())
}
