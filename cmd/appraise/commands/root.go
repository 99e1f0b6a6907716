package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dyluth/appraise/internal/agent"
	"github.com/dyluth/appraise/internal/config"
	"github.com/dyluth/appraise/internal/printer"
	"github.com/dyluth/appraise/pkg/ledger"
)

// Viper keys for process-level settings. Each is also read from the
// environment as APPRAISE_<KEY>.
const (
	keyRedisURL = "redis_url"
	keyInstance = "instance"
	keyConfig   = "config"
	keyListen   = "listen"
)

const defaultInstance = "default"

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "appraise",
	Short: "Appraise - multi-agent contribution scoring",
	Long: `Appraise scores code contributions with a panel of independent agents
and combines their recommendations into a consensus reward estimate.

Evaluations can be kept in a Redis-backed ledger, served over HTTP, and
inspected per contribution or per developer.

Process settings may be given as flags or environment variables:
  --redis-url  APPRAISE_REDIS_URL
  --instance   APPRAISE_INSTANCE
  --config     APPRAISE_CONFIG
  --listen     APPRAISE_LISTEN (serve only)`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	cobra.OnInitialize(initEnv)

	flags := rootCmd.PersistentFlags()
	flags.String("redis-url", "", "Redis URL of the evaluation ledger, e.g. redis://localhost:6379")
	flags.String("instance", defaultInstance, "Ledger namespace shared by cooperating processes")
	flags.String("config", "", "Path to appraise.yml (built-in defaults if omitted)")

	_ = viper.BindPFlag(keyRedisURL, flags.Lookup("redis-url"))
	_ = viper.BindPFlag(keyInstance, flags.Lookup("instance"))
	_ = viper.BindPFlag(keyConfig, flags.Lookup("config"))
}

func initEnv() {
	viper.SetEnvPrefix("APPRAISE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads appraise.yml when a path is configured, otherwise returns the defaults.
func loadConfig() (*config.AppraiseConfig, error) {
	path := viper.GetString(keyConfig)
	if path == "" {
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			fmt.Sprintf("Failed to load %s.", path),
			map[string]string{"Error": err.Error()},
			[]string{"Fix the file, or omit --config to use the built-in defaults"},
		)
	}
	return cfg, nil
}

// ledgerConfigured reports whether a Redis URL was supplied.
func ledgerConfigured() bool {
	return viper.GetString(keyRedisURL) != ""
}

// connectLedger opens and pings the evaluation ledger.
func connectLedger(ctx context.Context) (*ledger.Client, error) {
	redisURL := viper.GetString(keyRedisURL)
	if redisURL == "" {
		return nil, printer.Error(
			"no ledger configured",
			"This command needs the Redis-backed evaluation ledger.",
			[]string{
				"Pass the Redis URL:\n  appraise --redis-url redis://localhost:6379 ...",
				"Or set it in the environment:\n  export APPRAISE_REDIS_URL=redis://localhost:6379",
			},
		)
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %q: %v", redisURL, err),
			[]string{"Use the form redis://[user:password@]host:port[/db]"},
		)
	}

	instanceName := viper.GetString(keyInstance)
	if instanceName == "" {
		instanceName = defaultInstance
	}

	client, err := ledger.NewClient(redisOpts, instanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"Instance": instanceName, "Error": err.Error()},
			[]string{"Check that Redis is running and reachable from this host"},
		)
	}

	return client, nil
}

// buildAgents returns the agents enabled in cfg, in registry order.
func buildAgents(cfg *config.AppraiseConfig, popularity agent.PopularitySource) []agent.Agent {
	opts := agent.Options{
		LanguageMultipliers: cfg.CodeQuality.LanguageMultipliers,
		Popularity:          popularity,
		DefaultPopularity:   cfg.Impact.DefaultPopularity,
		PopularityTimeout:   cfg.Impact.PopularityTimeout,
	}

	var agents []agent.Agent
	for _, a := range agent.Defaults(opts) {
		if cfg.AgentEnabled(a.Type()) {
			agents = append(agents, a)
		}
	}
	return agents
}
