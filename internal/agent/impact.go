package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/dyluth/appraise/pkg/ledger"
)

const (
	// NeutralPopularity is assumed when no popularity signal is available.
	NeutralPopularity = 50.0

	// DefaultPopularityTimeout bounds a single popularity lookup.
	DefaultPopularityTimeout = 500 * time.Millisecond

	impactBaseReward = 5.0
	impactScale      = 2.0
)

var (
	bugFixPattern       = regexp.MustCompile(`fix|bug|error|issue`)
	newFeaturePattern   = regexp.MustCompile(`add|new|feature|implement`)
	coreChangePattern   = regexp.MustCompile(`core|main|critical|important`)
	userFacingPattern   = regexp.MustCompile(`\b(ui|ux)\b|interface|user|frontend`)
	perfImpactPattern   = regexp.MustCompile(`performance|speed|optimize|efficient`)
	securityPattern     = regexp.MustCompile(`security|auth|permission|secure`)
	algorithmPattern    = regexp.MustCompile(`algorithm|sort|search|optimize|recursive`)
	integrationPattern  = regexp.MustCompile(`api|integration|service|database`)
	architecturePattern = regexp.MustCompile(`architecture|pattern|design|structure`)
	novelPattern        = regexp.MustCompile(`novel|innovative|creative|unique`)
	cuttingEdgePattern  = regexp.MustCompile(`\b(ai|ml)\b|blockchain|quantum|webassembly`)
	hardProblemPattern  = regexp.MustCompile(`solve|solution|problem|challenge`)
)

// ErrUnknownProject is returned by a PopularitySource that has no score for a project.
var ErrUnknownProject = errors.New("unknown project")

// PopularitySource supplies a project popularity score in [0,100].
type PopularitySource interface {
	Popularity(ctx context.Context, project string) (float64, error)
}

// ImpactMetrics holds the ContributionImpactAgent sub-metrics, each in [0,100].
type ImpactMetrics struct {
	ProjectPopularity   float64
	FeatureImportance   float64
	UserBenefit         float64
	TechnicalDifficulty float64
	InnovationLevel     float64
}

// Score returns the weighted impact score in [0,1].
func (m ImpactMetrics) Score() float64 {
	weighted := m.ProjectPopularity*0.20 +
		m.FeatureImportance*0.25 +
		m.UserBenefit*0.25 +
		m.TechnicalDifficulty*0.15 +
		m.InnovationLevel*0.15

	return clamp(0, 1, weighted/100)
}

// ContributionImpactAgent estimates how much a contribution matters to the
// project and its users.
type ContributionImpactAgent struct {
	popularity        PopularitySource
	defaultPopularity float64
	timeout           time.Duration
}

// ImpactOption customises a ContributionImpactAgent.
type ImpactOption func(*ContributionImpactAgent)

// WithPopularitySource sets where project popularity comes from. A nil source
// leaves every project at the default popularity.
func WithPopularitySource(s PopularitySource) ImpactOption {
	return func(a *ContributionImpactAgent) {
		a.popularity = s
	}
}

// WithDefaultPopularity sets the fallback popularity, clamped to [0,100].
func WithDefaultPopularity(score float64) ImpactOption {
	return func(a *ContributionImpactAgent) {
		if !math.IsNaN(score) {
			a.defaultPopularity = clamp(0, 100, score)
		}
	}
}

// WithPopularityTimeout bounds popularity lookups. Zero keeps the current value.
func WithPopularityTimeout(d time.Duration) ImpactOption {
	return func(a *ContributionImpactAgent) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewContributionImpactAgent creates an impact agent with the neutral popularity default.
func NewContributionImpactAgent(opts ...ImpactOption) *ContributionImpactAgent {
	a := &ContributionImpactAgent{
		defaultPopularity: NeutralPopularity,
		timeout:           DefaultPopularityTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Type implements Agent.
func (a *ContributionImpactAgent) Type() ledger.AgentType {
	return ledger.AgentTypeContributionImpact
}

// Initialize implements Agent.
func (a *ContributionImpactAgent) Initialize(ctx context.Context) error {
	return nil
}

// HealthCheck implements HealthChecker.
func (a *ContributionImpactAgent) HealthCheck(ctx context.Context) error {
	return nil
}

// Evaluate implements Agent.
func (a *ContributionImpactAgent) Evaluate(ctx context.Context, c *ledger.Contribution) (*ledger.Decision, error) {
	if c == nil {
		return nil, fmt.Errorf("contribution is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics := a.Metrics(ctx, c)
	score := metrics.Score()

	return &ledger.Decision{
		AgentType:         ledger.AgentTypeContributionImpact,
		Developer:         c.Developer,
		RecommendedReward: impactBaseReward * score * impactScale,
		Confidence:        score,
		Reasoning:         impactReasoning(metrics),
		SkillTags:         []string{"impact_analysis"},
		Metrics: map[string]float64{
			"project_popularity":   metrics.ProjectPopularity,
			"feature_importance":   metrics.FeatureImportance,
			"user_benefit":         metrics.UserBenefit,
			"technical_difficulty": metrics.TechnicalDifficulty,
			"innovation_level":     metrics.InnovationLevel,
			"impact_score":         score,
		},
	}, nil
}

// Metrics computes every impact sub-metric for a contribution.
func (a *ContributionImpactAgent) Metrics(ctx context.Context, c *ledger.Contribution) ImpactMetrics {
	description := strings.ToLower(c.Description)
	code := strings.ToLower(c.Code)

	return ImpactMetrics{
		ProjectPopularity:   a.projectPopularity(ctx, c.Project),
		FeatureImportance:   FeatureImportanceScore(description),
		UserBenefit:         UserBenefitScore(code),
		TechnicalDifficulty: TechnicalDifficultyScore(code),
		InnovationLevel:     InnovationScore(description, code),
	}
}

// projectPopularity asks the source under a timeout. Any failure falls back to
// the default so a slow source never stalls an evaluation.
func (a *ContributionImpactAgent) projectPopularity(ctx context.Context, project string) float64 {
	if a.popularity == nil || project == "" {
		return a.defaultPopularity
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		score float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		score, err := a.popularity.Popularity(lookupCtx, project)
		done <- result{score, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if !errors.Is(r.err, ErrUnknownProject) {
				log.Printf("[ImpactAgent] Popularity lookup for %s failed: %v", project, r.err)
			}
			return a.defaultPopularity
		}
		if math.IsNaN(r.score) {
			return a.defaultPopularity
		}
		return clamp(0, 100, r.score)
	case <-lookupCtx.Done():
		log.Printf("[ImpactAgent] Popularity lookup for %s timed out after %s", project, a.timeout)
		return a.defaultPopularity
	}
}

// FeatureImportanceScore scores a lowercased description.
func FeatureImportanceScore(description string) float64 {
	score := 50.0
	if bugFixPattern.MatchString(description) {
		score += 20
	}
	if newFeaturePattern.MatchString(description) {
		score += 30
	}
	if coreChangePattern.MatchString(description) {
		score += 25
	}
	return math.Min(100, score)
}

// UserBenefitScore scores lowercased code.
func UserBenefitScore(code string) float64 {
	score := 40.0
	if userFacingPattern.MatchString(code) {
		score += 30
	}
	if perfImpactPattern.MatchString(code) {
		score += 25
	}
	if securityPattern.MatchString(code) {
		score += 35
	}
	return math.Min(100, score)
}

// TechnicalDifficultyScore scores lowercased code.
func TechnicalDifficultyScore(code string) float64 {
	score := 30.0
	if algorithmPattern.MatchString(code) {
		score += 35
	}
	if integrationPattern.MatchString(code) {
		score += 25
	}
	if architecturePattern.MatchString(code) {
		score += 30
	}
	return math.Min(100, score)
}

// InnovationScore scores a lowercased description and lowercased code.
func InnovationScore(description, code string) float64 {
	score := 20.0
	if novelPattern.MatchString(description) {
		score += 40
	}
	if cuttingEdgePattern.MatchString(code) {
		score += 35
	}
	if hardProblemPattern.MatchString(description) {
		score += 25
	}
	return math.Min(100, score)
}

func impactReasoning(m ImpactMetrics) string {
	var reasons []string
	if m.ProjectPopularity > 70 {
		reasons = append(reasons, "contribution to popular project")
	}
	if m.FeatureImportance > 70 {
		reasons = append(reasons, "important feature or bug fix")
	}
	if m.UserBenefit > 70 {
		reasons = append(reasons, "high user benefit")
	}
	if m.TechnicalDifficulty > 70 {
		reasons = append(reasons, "technically challenging implementation")
	}
	if m.InnovationLevel > 70 {
		reasons = append(reasons, "innovative solution")
	}

	if len(reasons) == 0 {
		return "standard impact contribution"
	}
	return strings.Join(reasons, ", ")
}
