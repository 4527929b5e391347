package engine

import (
	"github.com/gramforge/gramforge/pkg/config"
)

// ChunkPlan describes how the chunked tier will slice the dataset.
type ChunkPlan struct {
	ChunkSizeRows uint32
	ChunkCount    uint32
}

// ChunkPlanner computes chunk plans from dataset estimates. Planning never
// errors: a zero-row estimate yields a zero-chunk plan, which callers must
// treat as nothing to process.
type ChunkPlanner struct {
	cfg config.PlannerConfig
}

// NewChunkPlanner creates a planner with the given sizing policy.
func NewChunkPlanner(cfg config.PlannerConfig) *ChunkPlanner {
	return &ChunkPlanner{cfg: cfg}
}

// Plan computes a chunk plan. scaleFactor multiplies the base chunk size
// (1.0 baseline, up to 2.0 for large budgets, down to 0.5 for small ones);
// the result is clamped into [MinChunkRows, MaxChunkRows] regardless of the
// computed ideal.
func (p *ChunkPlanner) Plan(estimate DatasetEstimate, scaleFactor float64) ChunkPlan {
	if scaleFactor <= 0 {
		scaleFactor = 1.0
	}

	size := p.Clamp(uint64(float64(p.cfg.BaseChunkRows) * scaleFactor))

	if estimate.RowCount == 0 {
		return ChunkPlan{ChunkSizeRows: size, ChunkCount: 0}
	}

	count := estimate.RowCount / uint64(size)
	if estimate.RowCount%uint64(size) != 0 {
		count++
	}

	return ChunkPlan{ChunkSizeRows: size, ChunkCount: uint32(count)}
}

// Clamp bounds a row count into the configured [min, max] chunk range.
func (p *ChunkPlanner) Clamp(rows uint64) uint32 {
	if rows < uint64(p.cfg.MinChunkRows) {
		return p.cfg.MinChunkRows
	}
	if rows > uint64(p.cfg.MaxChunkRows) {
		return p.cfg.MaxChunkRows
	}
	return uint32(rows)
}

// MinChunkRows returns the lower chunk bound.
func (p *ChunkPlanner) MinChunkRows() uint32 {
	return p.cfg.MinChunkRows
}

// ShrinkFactor returns the configured backoff multiplier applied to the
// remaining chunk size when memory pressure crosses the warn threshold.
func (p *ChunkPlanner) ShrinkFactor() float64 {
	return p.cfg.ShrinkFactor
}

// ScaleForBudget derives a chunk scale factor from the budget size: small
// allocations halve the base chunk, large ones double it.
func ScaleForBudget(budget *Budget) float64 {
	const gib = 1 << 30
	switch alloc := budget.AllocationBytes(); {
	case alloc >= 8*gib:
		return 2.0
	case alloc < 2*gib:
		return 0.5
	default:
		return 1.0
	}
}
