package agent

import (
	"context"
	"fmt"

	"github.com/dyluth/appraise/pkg/ledger"
)

// fixedAgent returns the same assessment for every contribution. The community
// and innovation agents have no real signal yet and say so in their reasoning.
type fixedAgent struct {
	agentType  ledger.AgentType
	reward     float64
	confidence float64
	reasoning  string
	tag        string
}

// NewCommunityBehaviorAgent returns the fixed-score community behaviour agent.
func NewCommunityBehaviorAgent() Agent {
	return &fixedAgent{
		agentType:  ledger.AgentTypeCommunityBehavior,
		reward:     2,
		confidence: 0.8,
		reasoning:  "placeholder assessment: community behaviour is not analysed yet, fixed score applied",
		tag:        "collaboration",
	}
}

// NewInnovationDetectionAgent returns the fixed-score innovation agent.
func NewInnovationDetectionAgent() Agent {
	return &fixedAgent{
		agentType:  ledger.AgentTypeInnovationDetection,
		reward:     3,
		confidence: 0.6,
		reasoning:  "placeholder assessment: innovation is not analysed yet, fixed score applied",
		tag:        "problem_solving",
	}
}

func (a *fixedAgent) Type() ledger.AgentType { return a.agentType }

func (a *fixedAgent) Initialize(ctx context.Context) error { return nil }

func (a *fixedAgent) HealthCheck(ctx context.Context) error { return nil }

func (a *fixedAgent) Evaluate(ctx context.Context, c *ledger.Contribution) (*ledger.Decision, error) {
	if c == nil {
		return nil, fmt.Errorf("contribution is nil")
	}
	return &ledger.Decision{
		AgentType:         a.agentType,
		Developer:         c.Developer,
		RecommendedReward: a.reward,
		Confidence:        a.confidence,
		Reasoning:         a.reasoning,
		SkillTags:         []string{a.tag},
	}, nil
}
