// Package filter selects evaluations for the stats and watch commands.
package filter

import (
	"path/filepath"

	"github.com/dyluth/appraise/pkg/ledger"
)

// Criteria defines filtering criteria for evaluations.
// All filters are ANDed together - an evaluation must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64                   // 0 = no filter
	UntilTimestampMs int64                   // 0 = no filter
	Developer        string                  // Exact match, empty = no filter
	ProjectGlob      string                  // Glob pattern, empty = no filter
	Agreement        ledger.Agreement        // Empty = no filter; evaluations without consensus never match
	Status           ledger.EvaluationStatus // Empty = no filter
	MinReward        float64                 // 0 = no filter
}

// Matches returns true if the evaluation matches all filter criteria.
func (c *Criteria) Matches(e *ledger.Evaluation) bool {
	if c == nil {
		return true
	}

	if c.SinceTimestampMs > 0 && e.TimestampMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && e.TimestampMs > c.UntilTimestampMs {
		return false
	}

	if c.Developer != "" && e.Developer != c.Developer {
		return false
	}

	if c.ProjectGlob != "" {
		matched, err := filepath.Match(c.ProjectGlob, e.Project)
		if err != nil || !matched {
			return false
		}
	}

	if c.Agreement != "" && (e.Consensus == nil || e.Consensus.Agreement != c.Agreement) {
		return false
	}

	if c.Status != "" && e.Status != c.Status {
		return false
	}

	if c.MinReward > 0 && e.EstimatedReward() < c.MinReward {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c != nil && *c != Criteria{}
}

// Apply returns the evaluations that match, preserving order.
func (c *Criteria) Apply(evaluations []*ledger.Evaluation) []*ledger.Evaluation {
	if !c.HasFilters() {
		return evaluations
	}

	matched := make([]*ledger.Evaluation, 0, len(evaluations))
	for _, e := range evaluations {
		if c.Matches(e) {
			matched = append(matched, e)
		}
	}
	return matched
}
