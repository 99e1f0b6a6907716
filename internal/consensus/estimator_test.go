package consensus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/appraise/pkg/ledger"
)

func decision(agentType ledger.AgentType, reward, confidence float64) *ledger.Decision {
	return &ledger.Decision{
		AgentType:         agentType,
		Developer:         "0x1234",
		RecommendedReward: reward,
		Confidence:        confidence,
		Reasoning:         "test",
		SkillTags:         []string{},
	}
}

func rewards(values ...float64) []*ledger.Decision {
	types := ledger.AllAgentTypes()
	out := make([]*ledger.Decision, 0, len(values))
	for i, v := range values {
		out = append(out, decision(types[i%len(types)], v, 0.5))
	}
	return out
}

func TestEstimate_IdenticalRewards(t *testing.T) {
	result := Estimate(rewards(4, 4))
	require.NotNil(t, result)

	assert.Equal(t, 4.0, result.EstimatedReward)
	assert.Equal(t, 1.0, result.ConsensusStrength)
	assert.Equal(t, ledger.AgreementHigh, result.Agreement)
	assert.Equal(t, 2, result.DecisionCount)
}

func TestEstimate_WideSpread(t *testing.T) {
	// mean 5, population variance 16 → 1 - 16/5 is negative
	result := Estimate(rewards(1, 9))
	require.NotNil(t, result)

	assert.Equal(t, 5.0, result.EstimatedReward)
	assert.Equal(t, 0.0, result.ConsensusStrength)
	assert.Equal(t, ledger.AgreementLow, result.Agreement)
}

func TestEstimate_TooFewDecisions(t *testing.T) {
	assert.Nil(t, Estimate(nil))
	assert.Nil(t, Estimate(rewards(3)))
	assert.Nil(t, Estimate([]*ledger.Decision{nil, nil}))
}

func TestEstimate_DropsInvalidDecisions(t *testing.T) {
	decisions := rewards(2, 4)
	decisions = append(decisions,
		decision(ledger.AgentTypeCommunityBehavior, math.NaN(), 0.5),
		decision(ledger.AgentTypeInnovationDetection, -1, 0.5),
		nil,
	)

	result := Estimate(decisions)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.DecisionCount)
	assert.Equal(t, 3.0, result.EstimatedReward)

	// Only one valid decision left
	assert.Nil(t, Estimate([]*ledger.Decision{
		decision(ledger.AgentTypeCodeQuality, 5, 0.5),
		decision(ledger.AgentTypeContributionImpact, math.Inf(1), 0.5),
	}))
}

func TestEstimate_AverageConfidence(t *testing.T) {
	result := Estimate([]*ledger.Decision{
		decision(ledger.AgentTypeCodeQuality, 2, 0.2),
		decision(ledger.AgentTypeContributionImpact, 2, 0.8),
		decision(ledger.AgentTypeCommunityBehavior, 2, 0.5),
	})
	require.NotNil(t, result)
	assert.InDelta(t, 0.5, result.AverageConfidence, 1e-9)
}

func TestEstimate_Bounds(t *testing.T) {
	sets := [][]float64{
		{0, 0},
		{0, 10},
		{0.0484, 4, 2, 3},
		{100, 100.5},
		{1e-9, 1e9},
	}
	for _, set := range sets {
		result := Estimate(rewards(set...))
		require.NotNil(t, result)
		assert.True(t, result.ConsensusStrength >= 0 && result.ConsensusStrength <= 1, "strength for %v", set)
		assert.True(t, result.AverageConfidence >= 0 && result.AverageConfidence <= 1)
		assert.True(t, result.EstimatedReward >= 0)
	}
}

func TestStrength(t *testing.T) {
	assert.Equal(t, 1.0, Strength(0, 0))
	assert.Equal(t, 0.0, Strength(0, 1))
	assert.Equal(t, 0.75, Strength(4, 1))
	assert.Equal(t, 0.0, Strength(5, 16))
	assert.Equal(t, 1.0, Strength(3, 0))
}

func TestAgreementFor(t *testing.T) {
	tests := []struct {
		strength float64
		expected ledger.Agreement
	}{
		{1, ledger.AgreementHigh},
		{0.81, ledger.AgreementHigh},
		{0.8, ledger.AgreementMedium},
		{0.61, ledger.AgreementMedium},
		{0.6, ledger.AgreementLow},
		{0, ledger.AgreementLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, AgreementFor(tt.strength), "strength %v", tt.strength)
	}
}
