// Package consensus aggregates the decisions of independent agents into a
// single reward estimate with a measure of how much the agents agree.
package consensus

import (
	"log"
	"math"

	"github.com/dyluth/appraise/pkg/ledger"
)

// MinDecisions is the smallest number of valid decisions that yields an estimate.
const MinDecisions = 2

// Estimate combines agent decisions into a consensus result.
//
// Decisions that fail validation (NaN or negative rewards, confidence outside
// [0,1]) are dropped with a warning. Returns nil when fewer than MinDecisions
// valid decisions remain: no consensus is a normal outcome, not an error.
func Estimate(decisions []*ledger.Decision) *ledger.ConsensusResult {
	valid := make([]*ledger.Decision, 0, len(decisions))
	for _, d := range decisions {
		if d == nil {
			continue
		}
		if err := d.Validate(); err != nil {
			log.Printf("[Consensus] WARN: Dropping decision from %s: %v", d.AgentType, err)
			continue
		}
		valid = append(valid, d)
	}

	if len(valid) < MinDecisions {
		return nil
	}

	n := float64(len(valid))
	var rewardSum, confidenceSum float64
	for _, d := range valid {
		rewardSum += d.RecommendedReward
		confidenceSum += d.Confidence
	}
	avgReward := rewardSum / n

	// Population variance
	var squares float64
	for _, d := range valid {
		diff := d.RecommendedReward - avgReward
		squares += diff * diff
	}
	variance := squares / n

	strength := Strength(avgReward, variance)

	return &ledger.ConsensusResult{
		EstimatedReward:   avgReward,
		ConsensusStrength: strength,
		AverageConfidence: confidenceSum / n,
		Agreement:         AgreementFor(strength),
		DecisionCount:     len(valid),
	}
}

// Strength maps reward spread onto [0,1]: 1 - variance/mean, clamped.
// A zero mean is full agreement only when every reward is zero.
func Strength(avgReward, variance float64) float64 {
	if avgReward == 0 {
		if variance == 0 {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, 1-variance/avgReward))
}

// AgreementFor labels a consensus strength. Thresholds are strict.
func AgreementFor(strength float64) ledger.Agreement {
	switch {
	case strength > 0.8:
		return ledger.AgreementHigh
	case strength > 0.6:
		return ledger.AgreementMedium
	default:
		return ledger.AgreementLow
	}
}
