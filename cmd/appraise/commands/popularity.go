package commands

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dyluth/appraise/internal/printer"
	"github.com/dyluth/appraise/pkg/ledger"
)

var popularityCmd = &cobra.Command{
	Use:   "popularity",
	Short: "Manage project popularity scores",
	Long: `Manage the project popularity scores read by the contribution impact agent.

Scores lie in [0,100]. Projects without a score are treated as neutral (50,
or impact.default_popularity from appraise.yml).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var popularitySetCmd = &cobra.Command{
	Use:     "set PROJECT SCORE",
	Short:   "Record a project's popularity score",
	Example: "  appraise popularity set codedao/core 85",
	Args:    cobra.ExactArgs(2),
	RunE:    runPopularitySet,
}

var popularityGetCmd = &cobra.Command{
	Use:   "get PROJECT",
	Short: "Show a project's popularity score",
	Args:  cobra.ExactArgs(1),
	RunE:  runPopularityGet,
}

func init() {
	popularityCmd.AddCommand(popularitySetCmd)
	popularityCmd.AddCommand(popularityGetCmd)
	rootCmd.AddCommand(popularityCmd)
}

func runPopularitySet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	project := args[0]

	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil || math.IsNaN(score) || score < 0 || score > 100 {
		return printer.Error(
			"invalid popularity score",
			fmt.Sprintf("%q is not a number in [0,100].", args[1]),
			[]string{"Example:\n  appraise popularity set codedao/core 85"},
		)
	}

	client, err := connectLedger(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SetProjectPopularity(ctx, project, score); err != nil {
		return fmt.Errorf("failed to record popularity: %w", err)
	}

	printer.Success("Popularity of '%s' set to %g\n", project, score)
	return nil
}

func runPopularityGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	project := args[0]

	client, err := connectLedger(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	score, err := client.GetProjectPopularity(ctx, project)
	if err != nil {
		if ledger.IsNotFound(err) {
			return printer.Error(
				"no popularity recorded",
				fmt.Sprintf("Project '%s' has no popularity score; the neutral default applies.", project),
				[]string{fmt.Sprintf("Record one:\n  appraise popularity set %s <0-100>", project)},
			)
		}
		return fmt.Errorf("failed to read popularity: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%g\n", project, score)
	return nil
}
