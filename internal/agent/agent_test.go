package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/appraise/pkg/ledger"
)

func TestDefaults(t *testing.T) {
	agents := Defaults(Options{})
	require.Len(t, agents, 4)

	types := make([]ledger.AgentType, 0, len(agents))
	for _, a := range agents {
		types = append(types, a.Type())
		assert.NoError(t, a.Initialize(context.Background()))

		checker, ok := a.(HealthChecker)
		require.True(t, ok, "%s should expose a health probe", a.Type())
		assert.NoError(t, checker.HealthCheck(context.Background()))
	}
	assert.Equal(t, ledger.AllAgentTypes(), types)
}

func TestDefaults_Options(t *testing.T) {
	agents := Defaults(Options{
		LanguageMultipliers: map[string]float64{"javascript": 1.5},
		Popularity:          StaticPopularity{"p": 90},
	})
	fallback := 10.0
	withDefault := Defaults(Options{DefaultPopularity: &fallback})

	c := newContribution("const x = 1")
	c.Project = "p"

	quality, err := agents[0].Evaluate(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1.5, quality.Metrics["language_multiplier"])

	impact, err := agents[1].Evaluate(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 90.0, impact.Metrics["project_popularity"])

	impact, err = withDefault[1].Evaluate(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 10.0, impact.Metrics["project_popularity"])
}

func TestPlaceholderAgents(t *testing.T) {
	tests := []struct {
		agent      Agent
		agentType  ledger.AgentType
		reward     float64
		confidence float64
		tag        string
	}{
		{NewCommunityBehaviorAgent(), ledger.AgentTypeCommunityBehavior, 2, 0.8, "collaboration"},
		{NewInnovationDetectionAgent(), ledger.AgentTypeInnovationDetection, 3, 0.6, "problem_solving"},
	}

	for _, tt := range tests {
		t.Run(string(tt.agentType), func(t *testing.T) {
			assert.Equal(t, tt.agentType, tt.agent.Type())

			decision, err := tt.agent.Evaluate(context.Background(), newContribution("anything"))
			require.NoError(t, err)
			require.NoError(t, decision.Validate())

			assert.Equal(t, "0x1234", decision.Developer)
			assert.Equal(t, tt.reward, decision.RecommendedReward)
			assert.Equal(t, tt.confidence, decision.Confidence)
			assert.Equal(t, []string{tt.tag}, decision.SkillTags)
			assert.Contains(t, decision.Reasoning, "placeholder")

			_, err = tt.agent.Evaluate(context.Background(), nil)
			assert.Error(t, err)
		})
	}
}
