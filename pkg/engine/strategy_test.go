package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gramforge/gramforge/pkg/config"
	"github.com/gramforge/gramforge/pkg/sysmem"
)

func newTestBudget(totalBytes uint64) *Budget {
	return NewBudget(sysmem.NewSyntheticMonitor(totalBytes), config.DefaultConfig().Budget)
}

func TestStrategySelector_Select(t *testing.T) {
	selector := NewStrategySelector(config.DefaultConfig().Selector)

	tests := []struct {
		name       string
		totalBytes uint64
		estimate   DatasetEstimate
		want       Tier
	}{
		{
			// 8GiB allocates 2GiB; margin 0.6 admits up to 1.2GiB.
			name:       "tiny dataset on workstation",
			totalBytes: 8 * config.GiB,
			estimate:   DatasetEstimate{RowCount: 100, AvgRowBytes: 50},
			want:       TierInMemory,
		},
		{
			name:       "fits just under margin",
			totalBytes: 8 * config.GiB,
			estimate:   DatasetEstimate{RowCount: 1_288_490, AvgRowBytes: 1000},
			want:       TierInMemory,
		},
		{
			// 2GB estimated exceeds the 1.2GiB margin but 1M rows is
			// within the 1.5M fallback for an 8GiB machine.
			name:       "oversized but chunkable",
			totalBytes: 8 * config.GiB,
			estimate:   DatasetEstimate{RowCount: 1_000_000, AvgRowBytes: 2000},
			want:       TierChunked,
		},
		{
			name:       "row count beyond fallback",
			totalBytes: 8 * config.GiB,
			estimate:   DatasetEstimate{RowCount: 5_000_000, AvgRowBytes: 2000},
			want:       TierDiskBacked,
		},
		{
			// 16GiB allocates 4.8GiB; margin 0.6 admits 2.88GiB, so
			// 2M rows at 200B (400MB) stays in memory even though the
			// row count exceeds the 1.5M chunked fallback.
			name:       "row count over fallback but bytes fit",
			totalBytes: 16 * config.GiB,
			estimate:   DatasetEstimate{RowCount: 2_000_000, AvgRowBytes: 200},
			want:       TierInMemory,
		},
		{
			// A 16GiB machine allocates 4.8GiB and tolerates 1.5M
			// chunked rows.
			name:       "chunked ceiling on 16GiB",
			totalBytes: 16 * config.GiB,
			estimate:   DatasetEstimate{RowCount: 1_500_000, AvgRowBytes: 4000},
			want:       TierChunked,
		},
		{
			name:       "one row past the 16GiB ceiling",
			totalBytes: 16 * config.GiB,
			estimate:   DatasetEstimate{RowCount: 1_500_001, AvgRowBytes: 4000},
			want:       TierDiskBacked,
		},
		{
			name:       "empty dataset",
			totalBytes: 4 * config.GiB,
			estimate:   DatasetEstimate{},
			want:       TierInMemory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selector.Select(tt.estimate, newTestBudget(tt.totalBytes))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStrategySelector_FallbackThresholdRows(t *testing.T) {
	selector := NewStrategySelector(config.DefaultConfig().Selector)

	tests := []struct {
		name       string
		totalBytes uint64
		want       uint64
	}{
		{"64GiB", 64 * config.GiB, 3_000_000},
		{"exactly 32GiB", 32 * config.GiB, 3_000_000},
		{"one byte below 32GiB", 32*config.GiB - 1, 1_500_000},
		{"16GiB", 16 * config.GiB, 1_500_000},
		{"exactly 8GiB", 8 * config.GiB, 1_500_000},
		{"one byte below 8GiB", 8*config.GiB - 1, 500_000},
		{"2GiB", 2 * config.GiB, 500_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, selector.FallbackThresholdRows(tt.totalBytes))
		})
	}
}

func TestTier_String(t *testing.T) {
	assert.Equal(t, "in_memory", TierInMemory.String())
	assert.Equal(t, "chunked", TierChunked.String())
	assert.Equal(t, "disk_backed", TierDiskBacked.String())
	assert.Equal(t, "unknown", Tier(99).String())
}
