package agent

import (
	"context"
	"fmt"

	"github.com/dyluth/appraise/pkg/ledger"
)

// StaticPopularity is a fixed project → score table.
type StaticPopularity map[string]float64

// Popularity implements PopularitySource.
func (s StaticPopularity) Popularity(ctx context.Context, project string) (float64, error) {
	score, ok := s[project]
	if !ok {
		return 0, ErrUnknownProject
	}
	return score, nil
}

// PopularityStore is the subset of the ledger client used for popularity lookups.
type PopularityStore interface {
	GetProjectPopularity(ctx context.Context, project string) (float64, error)
}

// LedgerPopularity reads project popularity recorded in the ledger.
type LedgerPopularity struct {
	store PopularityStore
}

// NewLedgerPopularity creates a popularity source backed by the ledger.
func NewLedgerPopularity(store PopularityStore) *LedgerPopularity {
	return &LedgerPopularity{store: store}
}

// Popularity implements PopularitySource.
func (p *LedgerPopularity) Popularity(ctx context.Context, project string) (float64, error) {
	score, err := p.store.GetProjectPopularity(ctx, project)
	if err != nil {
		if ledger.IsNotFound(err) {
			return 0, ErrUnknownProject
		}
		return 0, fmt.Errorf("failed to read popularity of %s: %w", project, err)
	}
	return score, nil
}
