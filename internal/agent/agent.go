// Package agent implements the independent scoring agents that assess a
// contribution. Every agent turns one ledger.Contribution into one
// ledger.Decision and knows nothing about the other agents.
package agent

import (
	"context"
	"math"
	"time"

	"github.com/dyluth/appraise/pkg/ledger"
)

// Agent is a scoring procedure run by the orchestrator.
//
// Initialize is idempotent and may perform one-time setup. Evaluate must be a
// function of the contribution plus the agent's fixed configuration, and must
// not block indefinitely: agents calling external services bound those calls
// themselves and fall back to a default.
type Agent interface {
	Type() ledger.AgentType
	Initialize(ctx context.Context) error
	Evaluate(ctx context.Context, c *ledger.Contribution) (*ledger.Decision, error)
}

// HealthChecker is implemented by agents that expose a health probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Shutdowner is implemented by agents holding resources that need teardown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Options configures the default agent set.
type Options struct {
	// LanguageMultipliers overrides entries of the default multiplier table
	LanguageMultipliers map[string]float64

	// Popularity supplies project popularity; nil uses the neutral default
	Popularity PopularitySource

	// DefaultPopularity is used when no popularity signal is available; nil keeps NeutralPopularity
	DefaultPopularity *float64

	// PopularityTimeout bounds each popularity lookup
	PopularityTimeout time.Duration
}

// Defaults builds the fixed agent list in registry order.
func Defaults(opts Options) []Agent {
	impactOpts := []ImpactOption{
		WithPopularitySource(opts.Popularity),
		WithPopularityTimeout(opts.PopularityTimeout),
	}
	if opts.DefaultPopularity != nil {
		impactOpts = append(impactOpts, WithDefaultPopularity(*opts.DefaultPopularity))
	}

	return []Agent{
		NewCodeQualityAgent(
			WithLanguageMultipliers(opts.LanguageMultipliers),
		),
		NewContributionImpactAgent(impactOpts...),
		NewCommunityBehaviorAgent(),
		NewInnovationDetectionAgent(),
	}
}

// clamp limits v to [lo, hi].
func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
