package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/google/uuid"
)

// Contribution is a unit of submitted code plus metadata to be scored.
// Developer, Code and Timestamp are required; everything else is optional.
type Contribution struct {
	Developer   string    `json:"developer"`
	Code        string    `json:"code"`
	Language    string    `json:"language,omitempty"`    // Hint only - agents may re-detect
	Timestamp   Timestamp `json:"timestamp"`             // Literal text of the submitted timestamp
	Description string    `json:"description,omitempty"` // Not part of the fingerprint
	Project     string    `json:"project,omitempty"`     // Not part of the fingerprint
}

// Timestamp holds the submitted timestamp exactly as it was written.
// Callers send either an ISO string or epoch milliseconds; both are kept verbatim
// so that the fingerprint does not depend on a parse/format round trip.
type Timestamp string

// UnmarshalJSON accepts a JSON string or a JSON number.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		*t = Timestamp(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("timestamp must be a string or a number: %w", err)
	}
	*t = Timestamp(n.String())
	return nil
}

// AgentType identifies one of the fixed scoring agent variants.
type AgentType string

const (
	// AgentTypeCodeQuality scores complexity, readability, tests, docs and performance
	AgentTypeCodeQuality AgentType = "code_quality"

	// AgentTypeContributionImpact scores popularity, importance, benefit, difficulty and innovation
	AgentTypeContributionImpact AgentType = "contribution_impact"

	// AgentTypeCommunityBehavior is a placeholder for community signals
	AgentTypeCommunityBehavior AgentType = "community_behavior"

	// AgentTypeInnovationDetection is a placeholder for innovation signals
	AgentTypeInnovationDetection AgentType = "innovation_detection"
)

// AllAgentTypes returns the agent variants in registry order.
func AllAgentTypes() []AgentType {
	return []AgentType{
		AgentTypeCodeQuality,
		AgentTypeContributionImpact,
		AgentTypeCommunityBehavior,
		AgentTypeInnovationDetection,
	}
}

// Validate checks if the AgentType is a valid enum value.
func (t AgentType) Validate() error {
	switch t {
	case AgentTypeCodeQuality, AgentTypeContributionImpact,
		AgentTypeCommunityBehavior, AgentTypeInnovationDetection:
		return nil
	default:
		return fmt.Errorf("unknown agent type: %q", t)
	}
}

// Decision is one agent's independent assessment of a contribution.
// A decision is created once per (contribution, agent) pair and never mutated.
type Decision struct {
	AgentType         AgentType          `json:"agent_type"`
	Developer         string             `json:"developer"`
	RecommendedReward float64            `json:"recommended_reward"` // Token units, >= 0
	Confidence        float64            `json:"confidence"`         // In [0,1]
	Reasoning         string             `json:"reasoning"`
	SkillTags         []string           `json:"skill_tags"`
	Suggestions       []string           `json:"suggestions,omitempty"`
	Language          string             `json:"language_detected,omitempty"`
	Metrics           map[string]float64 `json:"metrics,omitempty"`
}

// Validate checks the decision's enum and numeric bounds.
func (d *Decision) Validate() error {
	if err := d.AgentType.Validate(); err != nil {
		return fmt.Errorf("invalid agent type: %w", err)
	}

	if d.Developer == "" {
		return fmt.Errorf("developer cannot be empty")
	}

	if math.IsNaN(d.RecommendedReward) || math.IsInf(d.RecommendedReward, 0) || d.RecommendedReward < 0 {
		return fmt.Errorf("invalid recommended reward: %v (must be a finite value >= 0)", d.RecommendedReward)
	}

	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("invalid confidence: %v (must be in [0,1])", d.Confidence)
	}

	return nil
}

// AgentStatus is the orchestrator's view of an agent's health.
type AgentStatus string

const (
	// AgentStatusActive agents receive contributions
	AgentStatusActive AgentStatus = "active"

	// AgentStatusError agents failed to initialize and stay excluded until re-initialized
	AgentStatusError AgentStatus = "error"

	// AgentStatusUnhealthy agents failed an evaluation or a health probe
	AgentStatusUnhealthy AgentStatus = "unhealthy"
)

// AgentState is the read model exposed for one agent.
type AgentState struct {
	Status         AgentStatus `json:"status"`
	LastActivityMs int64       `json:"last_activity_ms,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Agreement classifies how tightly agents' rewards cluster.
type Agreement string

const (
	AgreementHigh   Agreement = "high"
	AgreementMedium Agreement = "medium"
	AgreementLow    Agreement = "low"
)

// ConsensusResult aggregates the decisions for one contribution.
type ConsensusResult struct {
	EstimatedReward   float64   `json:"estimated_reward"`
	ConsensusStrength float64   `json:"consensus_strength"`
	AverageConfidence float64   `json:"average_confidence"`
	Agreement         Agreement `json:"agent_agreement"`
	DecisionCount     int       `json:"decision_count"`
}

// EvaluationStatus reports whether every dispatched agent produced a decision.
type EvaluationStatus string

const (
	// EvaluationStatusProcessed means all dispatched agents produced a decision
	EvaluationStatusProcessed EvaluationStatus = "processed"

	// EvaluationStatusPartial means some registered agent produced no decision
	EvaluationStatusPartial EvaluationStatus = "partial"
)

// Validate checks if the EvaluationStatus is a valid enum value.
func (s EvaluationStatus) Validate() error {
	switch s {
	case EvaluationStatusProcessed, EvaluationStatusPartial:
		return nil
	default:
		return fmt.Errorf("unknown evaluation status: %q", s)
	}
}

// Evaluation is the outcome of processing one contribution.
type Evaluation struct {
	ID           string           `json:"id"`          // UUID of this processing run
	Fingerprint  string           `json:"fingerprint"` // Contribution fingerprint
	Developer    string           `json:"developer"`
	Project      string           `json:"project,omitempty"`
	Decisions    []*Decision      `json:"decisions"`
	Consensus    *ConsensusResult `json:"consensus"` // nil when fewer than 2 decisions
	FailedAgents []AgentType      `json:"failed_agents,omitempty"`
	Status       EvaluationStatus `json:"status"`
	TimestampMs  int64            `json:"timestamp_ms"`
}

// Validate checks identifiers, status and every decision.
func (e *Evaluation) Validate() error {
	if !isValidUUID(e.ID) {
		return fmt.Errorf("invalid evaluation ID: not a valid UUID")
	}

	if !IsFingerprint(e.Fingerprint) {
		return fmt.Errorf("invalid fingerprint: %q", e.Fingerprint)
	}

	if e.Developer == "" {
		return fmt.Errorf("developer cannot be empty")
	}

	if err := e.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	for i, d := range e.Decisions {
		if d == nil {
			return fmt.Errorf("decision at index %d is nil", i)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid decision at index %d: %w", i, err)
		}
	}

	return nil
}

// EstimatedReward returns the consensus reward, or the single decision's reward
// when only one agent answered.
func (e *Evaluation) EstimatedReward() float64 {
	if e.Consensus != nil {
		return e.Consensus.EstimatedReward
	}
	if len(e.Decisions) == 1 {
		return e.Decisions[0].RecommendedReward
	}
	return 0
}

// SkillTags returns the union of the decisions' skill tags in first-seen order.
func (e *Evaluation) SkillTags() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, d := range e.Decisions {
		for _, tag := range d.SkillTags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// DeveloperStats summarises the evaluations recorded for one developer.
type DeveloperStats struct {
	Developer              string         `json:"developer"`
	Evaluations            int            `json:"evaluations"`
	TotalEstimatedReward   float64        `json:"total_estimated_reward"`
	AverageEstimatedReward float64        `json:"average_estimated_reward"`
	SkillTags              map[string]int `json:"skill_tags"`
	LastEvaluatedMs        int64          `json:"last_evaluated_ms,omitempty"`
}

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsFingerprint reports whether s looks like a fingerprint (64 lowercase hex chars).
func IsFingerprint(s string) bool {
	return fingerprintPattern.MatchString(s)
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
