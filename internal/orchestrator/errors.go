package orchestrator

import (
	"fmt"

	"github.com/dyluth/appraise/pkg/ledger"
)

// InitError records an agent that failed to initialize. The agent is left in
// the error state and receives no contributions until it is reinitialized.
type InitError struct {
	AgentType ledger.AgentType
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("agent %s failed to initialize: %v", e.AgentType, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// EvaluationError records an agent that failed to produce a decision, whether
// it returned an error, panicked, produced an invalid decision or ran out of time.
type EvaluationError struct {
	AgentType ledger.AgentType
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("agent %s failed to evaluate contribution: %v", e.AgentType, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
