package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"base factor above one", func(c *Config) { c.Budget.BaseFactor = 1.5 }},
		{"zero tier factor", func(c *Config) { c.Budget.Tiers[0].Factor = 0 }},
		{"tiers not descending", func(c *Config) {
			c.Budget.Tiers[1].MinTotalBytes = c.Budget.Tiers[0].MinTotalBytes
		}},
		{"warn above critical", func(c *Config) { c.Budget.WarnFraction = 0.95 }},
		{"critical above one", func(c *Config) { c.Budget.CriticalFraction = 1.1 }},
		{"zero min chunk rows", func(c *Config) { c.Planner.MinChunkRows = 0 }},
		{"max below min chunk rows", func(c *Config) { c.Planner.MaxChunkRows = c.Planner.MinChunkRows - 1 }},
		{"zero base chunk rows", func(c *Config) { c.Planner.BaseChunkRows = 0 }},
		{"shrink factor of one", func(c *Config) { c.Planner.ShrinkFactor = 1.0 }},
		{"zero safety margin", func(c *Config) { c.Selector.SafetyMargin = 0 }},
		{"zero fallback rows", func(c *Config) { c.Selector.BaseFallbackRows = 0 }},
		{"zero batch scale", func(c *Config) { c.Spill.BatchScaleFactor = 0 }},
		{"zero ngram size", func(c *Config) { c.Analyzer.NGramSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analyzer.NGramSize = 3
	cfg.Budget.WarnFraction = 0.7
	cfg.Spill.Compression = "zstd"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, loaded.Analyzer.NGramSize)
	assert.Equal(t, 0.7, loaded.Budget.WarnFraction)
	assert.Equal(t, "zstd", loaded.Spill.Compression)
	assert.Equal(t, cfg.Budget.Tiers, loaded.Budget.Tiers)
	assert.Equal(t, cfg.Selector.FallbackTiers, loaded.Selector.FallbackTiers)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analyzer:\n  ngram_size: 4\n"), 0644))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, loaded.Analyzer.NGramSize)
	// Unspecified sections retain their defaults.
	assert.Equal(t, DefaultConfig().Planner, loaded.Planner)
	assert.Equal(t, DefaultConfig().Budget, loaded.Budget)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budget:\n  base_factor: 2.0\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestGetWorkers(t *testing.T) {
	p := PerformanceConfig{Workers: 4}
	assert.Equal(t, 4, p.GetWorkers())

	p.Workers = 0
	assert.Positive(t, p.GetWorkers())
}
