package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gramforge/gramforge/pkg/config"
	"github.com/gramforge/gramforge/pkg/sysmem"
)

func TestChunkPlanner_Plan(t *testing.T) {
	planner := NewChunkPlanner(config.DefaultConfig().Planner)

	tests := []struct {
		name     string
		estimate DatasetEstimate
		scale    float64
		wantSize uint32
		wantN    uint32
	}{
		{"base scale", DatasetEstimate{RowCount: 250_000, AvgRowBytes: 100}, 1.0, 100_000, 3},
		{"exact multiple", DatasetEstimate{RowCount: 200_000, AvgRowBytes: 100}, 1.0, 100_000, 2},
		{"partial last chunk", DatasetEstimate{RowCount: 100_001, AvgRowBytes: 100}, 1.0, 100_000, 2},
		{"doubled for large budget", DatasetEstimate{RowCount: 1_000_000, AvgRowBytes: 100}, 2.0, 200_000, 5},
		{"halved for small budget", DatasetEstimate{RowCount: 100_000, AvgRowBytes: 100}, 0.5, 50_000, 2},
		{"clamped to max", DatasetEstimate{RowCount: 10_000_000, AvgRowBytes: 100}, 10.0, 500_000, 20},
		{"clamped to min", DatasetEstimate{RowCount: 100_000, AvgRowBytes: 100}, 0.05, 10_000, 10},
		{"zero scale defaults to base", DatasetEstimate{RowCount: 100_000, AvgRowBytes: 100}, 0, 100_000, 1},
		{"zero rows", DatasetEstimate{}, 1.0, 100_000, 0},
		{"single row", DatasetEstimate{RowCount: 1, AvgRowBytes: 100}, 1.0, 100_000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planner.Plan(tt.estimate, tt.scale)
			assert.Equal(t, tt.wantSize, plan.ChunkSizeRows)
			assert.Equal(t, tt.wantN, plan.ChunkCount)
		})
	}
}

// Whatever the inputs, the planned chunk size must land inside the
// configured bounds.
func TestChunkPlanner_SizeAlwaysWithinBounds(t *testing.T) {
	cfg := config.DefaultConfig().Planner
	planner := NewChunkPlanner(cfg)

	scales := []float64{-1, 0, 0.001, 0.5, 1, 2, 100}
	rowCounts := []uint64{0, 1, 9_999, 10_000, 1_000_000, 1 << 40}

	for _, scale := range scales {
		for _, rows := range rowCounts {
			plan := planner.Plan(DatasetEstimate{RowCount: rows, AvgRowBytes: 64}, scale)
			assert.GreaterOrEqual(t, plan.ChunkSizeRows, cfg.MinChunkRows,
				"scale=%v rows=%d", scale, rows)
			assert.LessOrEqual(t, plan.ChunkSizeRows, cfg.MaxChunkRows,
				"scale=%v rows=%d", scale, rows)
		}
	}
}

func TestScaleForBudget(t *testing.T) {
	cfg := config.DefaultConfig().Budget

	tests := []struct {
		name       string
		totalBytes uint64
		want       float64
	}{
		// 64GiB at factor 0.40 allocates 25.6GiB, well above 8GiB.
		{"large allocation doubles", 64 * config.GiB, 2.0},
		// 8GiB at factor 0.25 allocates 2GiB.
		{"mid allocation stays base", 8 * config.GiB, 1.0},
		// 4GiB at factor 0.20 allocates 0.8GiB.
		{"small allocation halves", 4 * config.GiB, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget := NewBudget(sysmem.NewSyntheticMonitor(tt.totalBytes), cfg)
			assert.Equal(t, tt.want, ScaleForBudget(budget))
		})
	}
}
