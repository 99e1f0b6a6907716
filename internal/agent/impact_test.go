package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/appraise/pkg/ledger"
)

type slowPopularity struct{}

func (slowPopularity) Popularity(ctx context.Context, project string) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(5 * time.Second):
		return 100, nil
	}
}

type failingPopularity struct{}

func (failingPopularity) Popularity(ctx context.Context, project string) (float64, error) {
	return 0, errors.New("stats service unavailable")
}

func TestContributionImpactAgent_NeutralContribution(t *testing.T) {
	a := NewContributionImpactAgent()
	c := newContribution("x")

	decision, err := a.Evaluate(context.Background(), c)
	require.NoError(t, err)
	require.NoError(t, decision.Validate())

	assert.Equal(t, ledger.AgentTypeContributionImpact, decision.AgentType)
	assert.Equal(t, NeutralPopularity, decision.Metrics["project_popularity"])
	assert.Equal(t, 50.0, decision.Metrics["feature_importance"])
	assert.Equal(t, 40.0, decision.Metrics["user_benefit"])
	assert.Equal(t, 30.0, decision.Metrics["technical_difficulty"])
	assert.Equal(t, 20.0, decision.Metrics["innovation_level"])

	assert.InDelta(t, 0.40, decision.Confidence, 1e-9)
	assert.InDelta(t, 4.0, decision.RecommendedReward, 1e-9)
	assert.Equal(t, "standard impact contribution", decision.Reasoning)
	assert.Equal(t, []string{"impact_analysis"}, decision.SkillTags)
}

func TestContributionImpactAgent_HighImpact(t *testing.T) {
	a := NewContributionImpactAgent(WithPopularitySource(StaticPopularity{"codedao/core": 95}))
	c := newContribution("optimize the search algorithm behind the user API for security")
	c.Project = "codedao/core"
	c.Description = "Fix critical bug with a novel solution"

	decision, err := a.Evaluate(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, 95.0, decision.Metrics["project_popularity"])
	assert.Equal(t, 95.0, decision.Metrics["feature_importance"])
	assert.Equal(t, 100.0, decision.Metrics["user_benefit"])
	assert.Equal(t, 90.0, decision.Metrics["technical_difficulty"])
	assert.Equal(t, 85.0, decision.Metrics["innovation_level"])
	assert.Contains(t, decision.Reasoning, "contribution to popular project")
	assert.Contains(t, decision.Reasoning, "innovative solution")
	assert.InDelta(t, 0.94, decision.Confidence, 1e-9)
	assert.InDelta(t, 10*decision.Confidence, decision.RecommendedReward, 1e-9)
}

func TestContributionImpactAgent_Popularity(t *testing.T) {
	tests := []struct {
		name     string
		opts     []ImpactOption
		project  string
		expected float64
	}{
		{"no source", nil, "p", NeutralPopularity},
		{"no project", []ImpactOption{WithPopularitySource(StaticPopularity{"": 99})}, "", NeutralPopularity},
		{"known project", []ImpactOption{WithPopularitySource(StaticPopularity{"p": 80})}, "p", 80},
		{"unknown project", []ImpactOption{WithPopularitySource(StaticPopularity{})}, "p", NeutralPopularity},
		{"out of range score clamped", []ImpactOption{WithPopularitySource(StaticPopularity{"p": 150})}, "p", 100},
		{"failing source", []ImpactOption{WithPopularitySource(failingPopularity{})}, "p", NeutralPopularity},
		{"custom default", []ImpactOption{WithDefaultPopularity(30)}, "p", 30},
		{"zero default", []ImpactOption{WithDefaultPopularity(0)}, "p", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewContributionImpactAgent(tt.opts...)
			c := newContribution("x")
			c.Project = tt.project
			assert.Equal(t, tt.expected, a.Metrics(context.Background(), c).ProjectPopularity)
		})
	}
}

func TestContributionImpactAgent_PopularityTimeout(t *testing.T) {
	a := NewContributionImpactAgent(
		WithPopularitySource(slowPopularity{}),
		WithPopularityTimeout(20*time.Millisecond),
	)
	c := newContribution("x")
	c.Project = "slow/project"

	start := time.Now()
	decision, err := a.Evaluate(context.Background(), c)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, NeutralPopularity, decision.Metrics["project_popularity"])
}

func TestContributionImpactAgent_Deterministic(t *testing.T) {
	a := NewContributionImpactAgent(WithPopularitySource(StaticPopularity{"p": 72}))
	c := newContribution("render the ui")
	c.Project = "p"
	c.Description = "add new feature"

	first, err := a.Evaluate(context.Background(), c)
	require.NoError(t, err)
	second, err := a.Evaluate(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestImpactScores(t *testing.T) {
	t.Run("feature importance", func(t *testing.T) {
		assert.Equal(t, 50.0, FeatureImportanceScore(""))
		assert.Equal(t, 70.0, FeatureImportanceScore("fix typo"))
		assert.Equal(t, 100.0, FeatureImportanceScore("fix critical bug and add new feature"))
	})

	t.Run("user benefit", func(t *testing.T) {
		assert.Equal(t, 70.0, UserBenefitScore("build ui"))
		assert.Equal(t, 40.0, UserBenefitScore("guide"), "ui inside a word is not user facing")
		assert.Equal(t, 100.0, UserBenefitScore("secure frontend speed"))
	})

	t.Run("technical difficulty", func(t *testing.T) {
		assert.Equal(t, 30.0, TechnicalDifficultyScore("x"))
		assert.Equal(t, 65.0, TechnicalDifficultyScore("recursive walk"))
		assert.Equal(t, 100.0, TechnicalDifficultyScore("sort via database service with a design"))
	})

	t.Run("innovation", func(t *testing.T) {
		assert.Equal(t, 20.0, InnovationScore("", "email"))
		assert.Equal(t, 55.0, InnovationScore("", "train the ml model"))
		assert.Equal(t, 100.0, InnovationScore("novel solution", "blockchain"))
	})
}

func TestLedgerPopularity(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := ledger.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	require.NoError(t, client.SetProjectPopularity(ctx, "codedao/core", 88))

	source := NewLedgerPopularity(client)

	score, err := source.Popularity(ctx, "codedao/core")
	require.NoError(t, err)
	assert.Equal(t, 88.0, score)

	_, err = source.Popularity(ctx, "codedao/unknown")
	assert.ErrorIs(t, err, ErrUnknownProject)

	a := NewContributionImpactAgent(WithPopularitySource(source))
	c := newContribution("x")
	c.Project = "codedao/core"
	assert.Equal(t, 88.0, a.Metrics(ctx, c).ProjectPopularity)
}
