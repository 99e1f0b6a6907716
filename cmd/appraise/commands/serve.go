package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dyluth/appraise/internal/agent"
	"github.com/dyluth/appraise/internal/orchestrator"
	"github.com/dyluth/appraise/internal/printer"
	"github.com/dyluth/appraise/pkg/ledger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scoring engine behind an HTTP API",
	Long: `Run the scoring engine with its HTTP API and periodic agent health checks.

Endpoints:
  GET  /healthz                           Ledger connectivity and agent summary
  GET  /api/agents/status                 Per-agent status and activity
  POST /api/contributions/analyze         Score a contribution
  GET  /api/contributions/{fingerprint}   Fetch a recorded evaluation
  GET  /api/developers/{developer}/stats  Aggregate statistics for a developer

Without a ledger (--redis-url) contributions are scored but not recorded, and
the lookup endpoints answer 503.

Examples:
  appraise serve --redis-url redis://localhost:6379 --listen :9090
  APPRAISE_CONFIG=appraise.yml appraise serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default from config, then :8080)")
	_ = viper.BindPFlag(keyListen, serveCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return serveUntil(ctx)
}

// serveUntil runs the engine and HTTP server until ctx is cancelled.
func serveUntil(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// A nil *ledger.Client must not end up inside the interface
	var store orchestrator.EvaluationStore
	var popularity agent.PopularitySource
	if ledgerConfigured() {
		printer.Step("Connecting to ledger\n")
		client, err := connectLedger(ctx)
		if err != nil {
			return err
		}
		defer client.Close()
		store = client
		popularity = agent.NewLedgerPopularity(client)
	} else {
		printer.Warning("No ledger configured: evaluations will not be recorded\n")
	}

	instanceName := viper.GetString(keyInstance)
	engine := orchestrator.NewEngine(
		buildAgents(cfg, popularity),
		orchestrator.WithInstanceName(instanceName),
		orchestrator.WithEvaluationTimeout(cfg.Orchestrator.EvaluationTimeout),
	)

	printer.Step("Initializing agents\n")
	if err := engine.Initialize(ctx); err != nil {
		printer.Warning("Some agents failed to initialize: %v\n", err)
	}
	printAgentStatus(engine.AgentStatus())

	active := 0
	for _, state := range engine.AgentStatus() {
		if state.Status == ledger.AgentStatusActive {
			active++
		}
	}
	if active == 0 {
		return printer.Error(
			"no agents available",
			"Every configured agent failed to initialize.",
			[]string{"Check the agents section of appraise.yml"},
		)
	}

	listenAddr := viper.GetString(keyListen)
	if listenAddr == "" {
		listenAddr = cfg.Orchestrator.ListenAddr
	}
	server := orchestrator.NewHealthServer(engine, store, listenAddr)

	printer.Success("Serving instance '%s' on %s\n", instanceName, listenAddr)

	runErr := engine.Run(ctx, server, cfg.Orchestrator.HealthCheckInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: agent shutdown: %v\n", err)
	}

	if runErr != nil {
		return printer.Error(
			"server failed",
			runErr.Error(),
			[]string{"Choose a free address with --listen or APPRAISE_LISTEN"},
		)
	}

	printer.Info("Stopped\n")
	return nil
}

func printAgentStatus(states map[ledger.AgentType]ledger.AgentState) {
	types := make([]string, 0, len(states))
	for t := range states {
		types = append(types, string(t))
	}
	sort.Strings(types)

	for _, t := range types {
		state := states[ledger.AgentType(t)]
		line := fmt.Sprintf("  %-22s %s", t, printer.AgentStatus(state.Status))
		if state.Error != "" {
			line += " (" + state.Error + ")"
		}
		printer.Println(line)
	}
}
