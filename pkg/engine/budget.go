package engine

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/gramforge/gramforge/pkg/config"
	"github.com/gramforge/gramforge/pkg/sysmem"
)

// PressureLevel classifies a live memory reading against the budget.
type PressureLevel int

const (
	// PressureNominal means usage is below the warn threshold
	PressureNominal PressureLevel = iota
	// PressureWarn means usage crossed the warn threshold; chunked and
	// disk-backed runs back off their working set
	PressureWarn
	// PressureCritical means usage crossed the critical threshold; runs
	// abort unless they can still shrink
	PressureCritical
)

// String returns the level name for logging and metrics labels.
func (p PressureLevel) String() string {
	switch p {
	case PressureWarn:
		return "warn"
	case PressureCritical:
		return "critical"
	default:
		return "nominal"
	}
}

// Budget derives an advisory allocation ceiling and pressure thresholds
// from a memory profile. The ceiling is not OS-enforced; components consult
// Pressure at chunk and batch boundaries and react themselves.
//
// The allocation factor comes from a step-function tier table rather than
// a continuous curve, so behavior on any machine class is predictable and
// testable at exact boundaries. Immutable after construction except for the
// live reading, which re-queries the monitor.
type Budget struct {
	allocationBytes  uint64
	allocationFactor float64
	warnFraction     float64
	criticalFraction float64
	totalBytes       uint64
	monitor          sysmem.Monitor
}

// BudgetOption customizes budget construction.
type BudgetOption func(*budgetOptions)

type budgetOptions struct {
	factorOverride *float64
}

// WithFactorOverride bypasses the tier table entirely and applies the
// given allocation factor as-is, with no re-validation against bounds.
// An intentional escape hatch for tests and per-deployment tuning.
func WithFactorOverride(factor float64) BudgetOption {
	return func(o *budgetOptions) {
		o.factorOverride = &factor
	}
}

// NewBudget derives a budget from the monitor's memory profile using the
// configured tier table.
func NewBudget(monitor sysmem.Monitor, cfg config.BudgetConfig, opts ...BudgetOption) *Budget {
	var options budgetOptions
	for _, opt := range opts {
		opt(&options)
	}

	total := monitor.Profile().TotalBytes

	factor := cfg.BaseFactor
	if options.factorOverride != nil {
		factor = *options.factorOverride
	} else {
		// Tiers descend by threshold; first match wins.
		for _, tier := range cfg.Tiers {
			if total >= tier.MinTotalBytes {
				factor = tier.Factor
				break
			}
		}
	}

	return &Budget{
		allocationBytes:  uint64(float64(total) * factor),
		allocationFactor: factor,
		warnFraction:     cfg.WarnFraction,
		criticalFraction: cfg.CriticalFraction,
		totalBytes:       total,
		monitor:          monitor,
	}
}

// AllocationBytes returns the advisory allocation ceiling.
func (b *Budget) AllocationBytes() uint64 {
	return b.allocationBytes
}

// AllocationFactor returns the factor applied to total memory.
func (b *Budget) AllocationFactor() float64 {
	return b.allocationFactor
}

// TotalBytes returns the total system memory the budget was derived from.
func (b *Budget) TotalBytes() uint64 {
	return b.totalBytes
}

// Pressure returns current memory usage as a fraction of the allocation.
func (b *Budget) Pressure() (float64, error) {
	used, err := b.monitor.UsedBytes()
	if err != nil {
		return 0, err
	}
	if b.allocationBytes == 0 {
		return 1, nil
	}
	return float64(used) / float64(b.allocationBytes), nil
}

// Level classifies the current pressure reading.
func (b *Budget) Level() (PressureLevel, error) {
	pressure, err := b.Pressure()
	if err != nil {
		return PressureNominal, err
	}
	switch {
	case pressure >= b.criticalFraction:
		return PressureCritical, nil
	case pressure >= b.warnFraction:
		return PressureWarn, nil
	default:
		return PressureNominal, nil
	}
}

// LogFields returns structured fields describing the budget.
func (b *Budget) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("total_memory", humanize.IBytes(b.totalBytes)),
		zap.String("allocation", humanize.IBytes(b.allocationBytes)),
		zap.Float64("allocation_factor", b.allocationFactor),
	}
}
