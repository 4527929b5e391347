package engine

import (
	"github.com/gramforge/gramforge/pkg/config"
)

// Tier is the processing strategy selected for one run. Exactly one tier is
// chosen per run and it never changes for the run's duration; what can
// change at runtime is a tier's internal working set (chunk shrink,
// spill batch shrink), not the tier itself.
type Tier int

const (
	// TierInMemory processes the whole dataset in one pass
	TierInMemory Tier = iota
	// TierChunked processes memory-bounded row ranges sequentially
	TierChunked
	// TierDiskBacked spills sorted partial tallies and merges from disk
	TierDiskBacked
)

// String returns the tier name for logging and metrics labels.
func (t Tier) String() string {
	switch t {
	case TierInMemory:
		return "in_memory"
	case TierChunked:
		return "chunked"
	case TierDiskBacked:
		return "disk_backed"
	default:
		return "unknown"
	}
}

// StrategySelector picks a processing tier from a dataset estimate and a
// budget. The decision is a heuristic over approximations, so borderline
// inputs deliberately land on the safer (lower) tier. It never consults
// live memory pressure; pressure reactions belong to the executing tier.
type StrategySelector struct {
	cfg config.SelectorConfig
}

// NewStrategySelector creates a selector with the given admission policy.
func NewStrategySelector(cfg config.SelectorConfig) *StrategySelector {
	return &StrategySelector{cfg: cfg}
}

// Select applies the tier admission rule in order:
//  1. the estimated dataset fits the allocation discounted by the safety
//     margin (headroom for intermediate structures) → in-memory;
//  2. the estimated row count is within the machine-class fallback
//     threshold → chunked;
//  3. otherwise → disk-backed.
func (s *StrategySelector) Select(estimate DatasetEstimate, budget *Budget) Tier {
	margin := uint64(float64(budget.AllocationBytes()) * s.cfg.SafetyMargin)
	if estimate.EstimatedBytes() <= margin {
		return TierInMemory
	}

	if estimate.RowCount <= s.FallbackThresholdRows(budget.TotalBytes()) {
		return TierChunked
	}

	return TierDiskBacked
}

// FallbackThresholdRows returns the chunked-tier row ceiling for a machine
// with the given total memory. Tiers descend by threshold; first match wins.
func (s *StrategySelector) FallbackThresholdRows(totalBytes uint64) uint64 {
	for _, tier := range s.cfg.FallbackTiers {
		if totalBytes >= tier.MinTotalBytes {
			return tier.MaxRows
		}
	}
	return s.cfg.BaseFallbackRows
}
