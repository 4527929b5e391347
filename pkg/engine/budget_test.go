package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gramforge/gramforge/pkg/config"
	"github.com/gramforge/gramforge/pkg/sysmem"
)

func TestNewBudget_TierTable(t *testing.T) {
	cfg := config.DefaultConfig().Budget

	tests := []struct {
		name       string
		totalBytes uint64
		wantFactor float64
	}{
		{"64GiB machine", 64 * config.GiB, 0.40},
		{"exactly 32GiB", 32 * config.GiB, 0.40},
		{"one byte below 32GiB", 32*config.GiB - 1, 0.30},
		{"exactly 16GiB", 16 * config.GiB, 0.30},
		{"one byte below 16GiB", 16*config.GiB - 1, 0.25},
		{"exactly 8GiB", 8 * config.GiB, 0.25},
		{"one byte below 8GiB", 8*config.GiB - 1, 0.20},
		{"4GiB machine", 4 * config.GiB, 0.20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := sysmem.NewSyntheticMonitor(tt.totalBytes)
			budget := NewBudget(monitor, cfg)

			assert.Equal(t, tt.wantFactor, budget.AllocationFactor())
			assert.Equal(t, uint64(float64(tt.totalBytes)*tt.wantFactor), budget.AllocationBytes())
			assert.Equal(t, tt.totalBytes, budget.TotalBytes())
		})
	}
}

func TestNewBudget_FactorOverride(t *testing.T) {
	monitor := sysmem.NewSyntheticMonitor(4 * config.GiB)
	budget := NewBudget(monitor, config.DefaultConfig().Budget, WithFactorOverride(0.5))

	// The override bypasses the tier table entirely.
	assert.Equal(t, 0.5, budget.AllocationFactor())
	assert.Equal(t, uint64(2*config.GiB), budget.AllocationBytes())
}

func TestBudget_PressureLevels(t *testing.T) {
	monitor := sysmem.NewSyntheticMonitor(8 * config.GiB)
	budget := NewBudget(monitor, config.DefaultConfig().Budget)
	alloc := budget.AllocationBytes()
	require.Equal(t, uint64(2*config.GiB), alloc)

	tests := []struct {
		name      string
		usedBytes uint64
		want      PressureLevel
	}{
		{"idle", 0, PressureNominal},
		{"just below warn", uint64(0.75*float64(alloc)) - 1, PressureNominal},
		{"exactly warn", uint64(0.75 * float64(alloc)), PressureWarn},
		{"between warn and critical", uint64(0.80 * float64(alloc)), PressureWarn},
		{"just above critical", uint64(0.90*float64(alloc)) + 1, PressureCritical},
		{"above allocation", alloc + 1, PressureCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor.SetUsedBytes(tt.usedBytes)

			level, err := budget.Level()
			require.NoError(t, err)
			assert.Equal(t, tt.want, level)
		})
	}
}

func TestBudget_Pressure(t *testing.T) {
	monitor := sysmem.NewSyntheticMonitor(8 * config.GiB)
	budget := NewBudget(monitor, config.DefaultConfig().Budget)

	monitor.SetUsedBytes(budget.AllocationBytes() / 2)
	pressure, err := budget.Pressure()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pressure, 1e-9)
}

func TestPressureLevel_String(t *testing.T) {
	assert.Equal(t, "nominal", PressureNominal.String())
	assert.Equal(t, "warn", PressureWarn.String())
	assert.Equal(t, "critical", PressureCritical.String())
}
