// Package config provides the unified configuration system for GramForge.
// It defines a single Config structure shared by the CLI and the processing
// engine, so every policy constant the engine consults (the memory tier
// table, chunk bounds, safety margins, backoff factors) is an explicit,
// testable value rather than a hard-coded literal.
//
// The configuration is organized into logical sections:
//   - Budget: memory allocation tiers and pressure thresholds
//   - Planner: chunk sizing bounds and adaptive backoff
//   - Selector: tier admission margins and fallback thresholds
//   - Spill: temporary storage and compression for disk-backed runs
//   - Analyzer: n-gram extraction settings
//   - Performance: worker counts for parallel batch computation
//   - Observability: metrics and logging
//
// Example usage:
//
//	cfg := config.DefaultConfig()
//	cfg.Analyzer.NGramSize = 3
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"runtime"
	"time"
)

// GiB is one gibibyte in bytes.
const GiB = 1 << 30

// Config is the single unified configuration structure for GramForge.
type Config struct {
	// Name identifies the analysis run or deployment
	Name string `yaml:"name" json:"name"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Budget controls memory allocation and pressure thresholds
	Budget BudgetConfig `yaml:"budget" json:"budget"`

	// Planner controls chunk sizing for the chunked tier
	Planner PlannerConfig `yaml:"planner" json:"planner"`

	// Selector controls processing tier admission
	Selector SelectorConfig `yaml:"selector" json:"selector"`

	// Spill controls temporary storage for the disk-backed tier
	Spill SpillConfig `yaml:"spill" json:"spill"`

	// Analyzer controls n-gram extraction
	Analyzer AnalyzerConfig `yaml:"analyzer" json:"analyzer"`

	// Performance controls concurrency
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// BudgetTier maps a minimum total system memory to an allocation factor.
// Tiers are evaluated in descending MinTotalBytes order; the first tier
// whose threshold the system meets wins.
type BudgetTier struct {
	// MinTotalBytes is the inclusive lower bound of total system memory
	MinTotalBytes uint64 `yaml:"min_total_bytes" json:"min_total_bytes"`
	// Factor is the fraction of total memory the engine may claim
	Factor float64 `yaml:"factor" json:"factor"`
}

// BudgetConfig contains memory budget derivation settings.
// The tier table is a step function, deliberately: behavior at any given
// machine size is predictable and testable at exact boundaries.
type BudgetConfig struct {
	// Tiers is the allocation factor step table, descending by threshold
	Tiers []BudgetTier `yaml:"tiers" json:"tiers"`
	// BaseFactor applies when total memory is below every tier threshold
	BaseFactor float64 `yaml:"base_factor" json:"base_factor"`
	// WarnFraction of the allocation at which backoff begins
	WarnFraction float64 `yaml:"warn_fraction" json:"warn_fraction"`
	// CriticalFraction of the allocation at which runs abort or downgrade
	CriticalFraction float64 `yaml:"critical_fraction" json:"critical_fraction"`
}

// PlannerConfig contains chunk sizing settings for the chunked tier.
type PlannerConfig struct {
	// BaseChunkRows is the unscaled chunk size in rows
	BaseChunkRows uint32 `yaml:"base_chunk_rows" json:"base_chunk_rows"`
	// MinChunkRows is the lower clamp on computed chunk size
	MinChunkRows uint32 `yaml:"min_chunk_rows" json:"min_chunk_rows"`
	// MaxChunkRows is the upper clamp on computed chunk size
	MaxChunkRows uint32 `yaml:"max_chunk_rows" json:"max_chunk_rows"`
	// ShrinkFactor multiplies the remaining chunk size when memory
	// pressure crosses the warn threshold mid-run
	ShrinkFactor float64 `yaml:"shrink_factor" json:"shrink_factor"`
}

// FallbackTier maps a minimum total system memory to a row-count ceiling
// for the chunked tier.
type FallbackTier struct {
	MinTotalBytes uint64 `yaml:"min_total_bytes" json:"min_total_bytes"`
	MaxRows       uint64 `yaml:"max_rows" json:"max_rows"`
}

// SelectorConfig contains processing tier admission settings.
type SelectorConfig struct {
	// SafetyMargin discounts the allocation when testing whether an
	// estimated dataset fits in memory, leaving headroom for
	// intermediate structures
	SafetyMargin float64 `yaml:"safety_margin" json:"safety_margin"`
	// FallbackTiers is the chunked-tier row ceiling step table,
	// descending by threshold
	FallbackTiers []FallbackTier `yaml:"fallback_tiers" json:"fallback_tiers"`
	// BaseFallbackRows applies below every fallback tier threshold
	BaseFallbackRows uint64 `yaml:"base_fallback_rows" json:"base_fallback_rows"`
}

// SpillConfig contains temporary storage settings for the disk-backed tier.
type SpillConfig struct {
	// Dir is the directory for spill segments; empty means the OS default
	Dir string `yaml:"dir" json:"dir"`
	// Compression selects the segment compression algorithm
	// (none, gzip, snappy, s2, lz4, zstd)
	Compression string `yaml:"compression" json:"compression"`
	// CompressionLevel sets compression ratio vs speed (1-9)
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
	// BatchScaleFactor scales the planner's base chunk size for spill
	// batches (spill batches reuse chunk sizing logic)
	BatchScaleFactor float64 `yaml:"batch_scale_factor" json:"batch_scale_factor"`
}

// AnalyzerConfig contains n-gram extraction settings.
type AnalyzerConfig struct {
	// NGramSize is the n in n-gram
	NGramSize int `yaml:"ngram_size" json:"ngram_size"`
	// MinTokenLength drops tokens shorter than this
	MinTokenLength int `yaml:"min_token_length" json:"min_token_length"`
	// Lowercase folds tokens to lower case before counting
	Lowercase bool `yaml:"lowercase" json:"lowercase"`
}

// PerformanceConfig contains concurrency settings.
type PerformanceConfig struct {
	// Workers is the number of concurrent spill-batch workers
	Workers int `yaml:"workers" json:"workers"`
}

// ObservabilityConfig contains monitoring and logging settings.
type ObservabilityConfig struct {
	// EnableMetrics activates Prometheus metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// MetricsInterval sets how often gauges are refreshed
	MetricsInterval time.Duration `yaml:"metrics_interval" json:"metrics_interval"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Development enables console encoding and stack traces
	Development bool `yaml:"development" json:"development"`
}

// DefaultConfig creates a Config with production defaults. The numeric
// policy values (tier factors, chunk bounds, margins) are tuned starting
// points, not contracts; deployments override them per machine class.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gramforge",
		Version: "1.0.0",
		Budget: BudgetConfig{
			Tiers: []BudgetTier{
				{MinTotalBytes: 32 * GiB, Factor: 0.40},
				{MinTotalBytes: 16 * GiB, Factor: 0.30},
				{MinTotalBytes: 8 * GiB, Factor: 0.25},
			},
			BaseFactor:       0.20,
			WarnFraction:     0.75,
			CriticalFraction: 0.90,
		},
		Planner: PlannerConfig{
			BaseChunkRows: 100_000,
			MinChunkRows:  10_000,
			MaxChunkRows:  500_000,
			ShrinkFactor:  0.75,
		},
		Selector: SelectorConfig{
			SafetyMargin: 0.6,
			FallbackTiers: []FallbackTier{
				{MinTotalBytes: 32 * GiB, MaxRows: 3_000_000},
				{MinTotalBytes: 8 * GiB, MaxRows: 1_500_000},
			},
			BaseFallbackRows: 500_000,
		},
		Spill: SpillConfig{
			Dir:              "",
			Compression:      "lz4",
			CompressionLevel: 5,
			BatchScaleFactor: 1.0,
		},
		Analyzer: AnalyzerConfig{
			NGramSize:      2,
			MinTokenLength: 1,
			Lowercase:      true,
		},
		Performance: PerformanceConfig{
			Workers: runtime.NumCPU(),
		},
		Observability: ObservabilityConfig{
			EnableMetrics:   true,
			MetricsInterval: 30 * time.Second,
			LogLevel:        "info",
			Development:     false,
		},
	}
}

// Validate validates the configuration for correctness. Call after loading
// to catch errors early.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Budget.BaseFactor <= 0 || c.Budget.BaseFactor > 1 {
		return fmt.Errorf("budget.base_factor must be in (0, 1]")
	}
	for i, tier := range c.Budget.Tiers {
		if tier.Factor <= 0 || tier.Factor > 1 {
			return fmt.Errorf("budget.tiers[%d].factor must be in (0, 1]", i)
		}
		if i > 0 && tier.MinTotalBytes >= c.Budget.Tiers[i-1].MinTotalBytes {
			return fmt.Errorf("budget.tiers must descend by min_total_bytes")
		}
	}
	if c.Budget.WarnFraction <= 0 || c.Budget.WarnFraction >= c.Budget.CriticalFraction {
		return fmt.Errorf("budget.warn_fraction must be positive and below critical_fraction")
	}
	if c.Budget.CriticalFraction > 1 {
		return fmt.Errorf("budget.critical_fraction cannot exceed 1")
	}
	if c.Planner.MinChunkRows == 0 {
		return fmt.Errorf("planner.min_chunk_rows must be positive")
	}
	if c.Planner.MaxChunkRows < c.Planner.MinChunkRows {
		return fmt.Errorf("planner.max_chunk_rows must be >= min_chunk_rows")
	}
	if c.Planner.BaseChunkRows == 0 {
		return fmt.Errorf("planner.base_chunk_rows must be positive")
	}
	if c.Planner.ShrinkFactor <= 0 || c.Planner.ShrinkFactor >= 1 {
		return fmt.Errorf("planner.shrink_factor must be in (0, 1)")
	}
	if c.Selector.SafetyMargin <= 0 || c.Selector.SafetyMargin > 1 {
		return fmt.Errorf("selector.safety_margin must be in (0, 1]")
	}
	if c.Selector.BaseFallbackRows == 0 {
		return fmt.Errorf("selector.base_fallback_rows must be positive")
	}
	if c.Spill.BatchScaleFactor <= 0 {
		return fmt.Errorf("spill.batch_scale_factor must be positive")
	}
	if c.Analyzer.NGramSize <= 0 {
		return fmt.Errorf("analyzer.ngram_size must be positive")
	}
	return nil
}

// GetWorkers returns the worker count, ensuring it's at least 1
func (p *PerformanceConfig) GetWorkers() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}
