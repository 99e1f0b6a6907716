package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/appraise/internal/agent"
	"github.com/dyluth/appraise/pkg/ledger"
)

// agentResult is the settled outcome of one agent's evaluation.
// Exactly one of decision and err is set.
type agentResult struct {
	index     int
	agentType ledger.AgentType
	decision  *ledger.Decision
	err       error
}

// dispatch runs every agent concurrently and waits for all of them to settle.
// A failing agent never affects the others. If ctx expires first, agents still
// running are reported as failed with the context error and their late results
// are discarded. Results are returned in the order of agents.
func dispatch(ctx context.Context, agents []agent.Agent, c *ledger.Contribution) []agentResult {
	resultsCh := make(chan agentResult, len(agents))

	for i, a := range agents {
		go func(index int, a agent.Agent) {
			decision, err := safeEvaluate(ctx, a, c)
			resultsCh <- agentResult{index: index, agentType: a.Type(), decision: decision, err: err}
		}(i, a)
	}

	results := make([]agentResult, len(agents))
	settled := make([]bool, len(agents))
	remaining := len(agents)

	for remaining > 0 {
		select {
		case r := <-resultsCh:
			results[r.index] = r
			settled[r.index] = true
			remaining--

		case <-ctx.Done():
			for i, a := range agents {
				if !settled[i] {
					results[i] = agentResult{
						index:     i,
						agentType: a.Type(),
						err:       &EvaluationError{AgentType: a.Type(), Err: ctx.Err()},
					}
				}
			}
			return results
		}
	}

	return results
}

// safeEvaluate calls the agent and converts panics, missing decisions and
// invalid decisions into EvaluationErrors.
func safeEvaluate(ctx context.Context, a agent.Agent, c *ledger.Contribution) (decision *ledger.Decision, err error) {
	agentType := a.Type()

	defer func() {
		if r := recover(); r != nil {
			decision = nil
			err = &EvaluationError{AgentType: agentType, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	decision, err = a.Evaluate(ctx, c)
	if err != nil {
		return nil, &EvaluationError{AgentType: agentType, Err: err}
	}
	if decision == nil {
		return nil, &EvaluationError{AgentType: agentType, Err: errors.New("agent returned no decision")}
	}
	if decision.AgentType != agentType {
		return nil, &EvaluationError{
			AgentType: agentType,
			Err:       fmt.Errorf("decision reports agent type %s", decision.AgentType),
		}
	}
	if decision.Developer != c.Developer {
		return nil, &EvaluationError{
			AgentType: agentType,
			Err:       fmt.Errorf("decision is for developer %s, not %s", decision.Developer, c.Developer),
		}
	}
	if err := decision.Validate(); err != nil {
		return nil, &EvaluationError{AgentType: agentType, Err: fmt.Errorf("invalid decision: %w", err)}
	}

	return decision, nil
}

// safeCall runs an agent lifecycle hook, converting a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
