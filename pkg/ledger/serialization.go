package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Scalar fields are stored as individual hash fields; decisions, consensus and the
// failed agent list are JSON-encoded into single fields.

// EvaluationToHash converts an Evaluation to a Redis hash format.
func EvaluationToHash(e *Evaluation) (map[string]interface{}, error) {
	decisions := e.Decisions
	if decisions == nil {
		decisions = []*Decision{}
	}
	decisionsJSON, err := json.Marshal(decisions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decisions: %w", err)
	}

	failed := e.FailedAgents
	if failed == nil {
		failed = []AgentType{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal failed_agents: %w", err)
	}

	hash := map[string]interface{}{
		"id":            e.ID,
		"fingerprint":   e.Fingerprint,
		"developer":     e.Developer,
		"project":       e.Project,
		"decisions":     string(decisionsJSON),
		"failed_agents": string(failedJSON),
		"status":        string(e.Status),
		"timestamp_ms":  e.TimestampMs,
	}

	// Consensus is optional - an empty field means "no consensus available"
	if e.Consensus != nil {
		consensusJSON, err := json.Marshal(e.Consensus)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal consensus: %w", err)
		}
		hash["consensus"] = string(consensusJSON)
	} else {
		hash["consensus"] = ""
	}

	return hash, nil
}

// HashToEvaluation converts a Redis hash to an Evaluation.
func HashToEvaluation(hash map[string]string) (*Evaluation, error) {
	timestampMs, err := strconv.ParseInt(hash["timestamp_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp_ms field: %w", err)
	}

	var decisions []*Decision
	if raw := hash["decisions"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &decisions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decisions: %w", err)
		}
	}
	if decisions == nil {
		decisions = []*Decision{}
	}

	var failed []AgentType
	if raw := hash["failed_agents"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &failed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed_agents: %w", err)
		}
	}
	if len(failed) == 0 {
		failed = nil
	}

	var consensus *ConsensusResult
	if raw := hash["consensus"]; raw != "" {
		consensus = &ConsensusResult{}
		if err := json.Unmarshal([]byte(raw), consensus); err != nil {
			return nil, fmt.Errorf("failed to unmarshal consensus: %w", err)
		}
	}

	return &Evaluation{
		ID:           hash["id"],
		Fingerprint:  hash["fingerprint"],
		Developer:    hash["developer"],
		Project:      hash["project"],
		Decisions:    decisions,
		Consensus:    consensus,
		FailedAgents: failed,
		Status:       EvaluationStatus(hash["status"]),
		TimestampMs:  timestampMs,
	}, nil
}
