package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gramforge/gramforge/pkg/config"
	"github.com/gramforge/gramforge/pkg/engine"
	"github.com/gramforge/gramforge/pkg/logger"
	"github.com/gramforge/gramforge/pkg/progress"
	csvsink "github.com/gramforge/gramforge/pkg/sink/csv"
	csvsource "github.com/gramforge/gramforge/pkg/source/csv"
	"github.com/gramforge/gramforge/pkg/sysmem"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "gramforge",
		Short: "GramForge - Memory-aware n-gram aggregation engine",
		Long: `GramForge aggregates per-author token n-gram frequencies over message
datasets of any size. It probes available memory at startup and adapts its
processing strategy, from a single in-memory pass to a disk-backed external
sort-merge, so that runs complete within a fixed memory budget.`,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newSysinfoCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newAnalyzeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("GramForge v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// newSysinfoCmd reports the detected memory profile and the budget the
// engine would run with, without touching any data.
func newSysinfoCmd() *cobra.Command {
	var memoryFactor float64

	cmd := &cobra.Command{
		Use:   "sysinfo",
		Short: "Show detected memory profile and computed budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			monitor, err := sysmem.NewSystemMonitor()
			if err != nil {
				return fmt.Errorf("failed to probe system memory: %w", err)
			}

			var opts []engine.BudgetOption
			if memoryFactor > 0 {
				opts = append(opts, engine.WithFactorOverride(memoryFactor))
			}
			budget := engine.NewBudget(monitor, config.DefaultConfig().Budget, opts...)

			profile := monitor.Profile()
			fmt.Printf("Total memory:     %s\n", humanize.IBytes(profile.TotalBytes))
			fmt.Printf("Available memory: %s\n", humanize.IBytes(profile.AvailableBytes))
			fmt.Printf("Budget factor:    %.2f\n", budget.AllocationFactor())
			fmt.Printf("Budget:           %s\n", humanize.IBytes(budget.AllocationBytes()))

			if used, err := monitor.UsedBytes(); err == nil {
				fmt.Printf("Process RSS:      %s\n", humanize.IBytes(used))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&memoryFactor, "memory-factor", 0, "Override the budget fraction of total memory (0 < f <= 1)")
	return cmd
}

// newConfigCmd prints the default configuration as YAML, as a starting
// point for a site config file.
func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			rendered, err := config.Render(config.DefaultConfig())
			if err != nil {
				return err
			}
			fmt.Print(rendered)
			return nil
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var (
		inputFile    string
		outputFile   string
		configFile   string
		authorColumn string
		textColumn   string
		ngramSize    int
		memoryFactor float64
		tempDir      string
		logLevel     string
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Aggregate per-author n-gram frequencies from a CSV dataset",
		Long: `Analyze reads a CSV message dataset and writes per-author n-gram counts
as sorted CSV. The processing tier (in-memory, chunked, disk-backed) is
selected automatically from the dataset estimate and the memory budget.

Example:
  gramforge analyze --input messages.csv --output counts.csv --ngram 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(analyzeOptions{
				inputFile:    inputFile,
				outputFile:   outputFile,
				configFile:   configFile,
				authorColumn: authorColumn,
				textColumn:   textColumn,
				ngramSize:    ngramSize,
				memoryFactor: memoryFactor,
				tempDir:      tempDir,
				logLevel:     logLevel,
				timeout:      timeout,
			})
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Path to input CSV file (required)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Path to output CSV file (required)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file (optional)")
	cmd.Flags().StringVar(&authorColumn, "author-column", "author", "Header name of the author column")
	cmd.Flags().StringVar(&textColumn, "text-column", "text", "Header name of the message text column")
	cmd.Flags().IntVar(&ngramSize, "ngram", 0, "N-gram size override (1 for unigrams, 2 for bigrams, ...)")
	cmd.Flags().Float64Var(&memoryFactor, "memory-factor", 0, "Override the budget fraction of total memory (0 < f <= 1)")
	cmd.Flags().StringVar(&tempDir, "temp-dir", "", "Directory for spill segments (defaults to the system temp dir)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this duration (0 means no timeout)")

	return cmd
}

type analyzeOptions struct {
	inputFile    string
	outputFile   string
	configFile   string
	authorColumn string
	textColumn   string
	ngramSize    int
	memoryFactor float64
	tempDir      string
	logLevel     string
	timeout      time.Duration
}

func runAnalyze(opts analyzeOptions) error {
	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		return err
	}

	// Flag overrides on top of the file configuration.
	if opts.ngramSize > 0 {
		cfg.Analyzer.NGramSize = opts.ngramSize
	}
	if opts.tempDir != "" {
		cfg.Spill.Dir = opts.tempDir
	}
	if opts.logLevel != "" {
		cfg.Observability.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.Development,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get().With(zap.String("component", "gramforge-cli"))

	monitor, err := sysmem.NewSystemMonitor()
	if err != nil {
		return fmt.Errorf("failed to probe system memory: %w", err)
	}

	var orchOpts []engine.OrchestratorOption
	if opts.memoryFactor > 0 {
		orchOpts = append(orchOpts, engine.WithBudgetOptions(engine.WithFactorOverride(opts.memoryFactor)))
	}

	orchestrator, err := engine.NewOrchestrator(cfg, monitor, log, orchOpts...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	source := csvsource.NewSource(opts.inputFile, opts.authorColumn, opts.textColumn)
	defer func() { _ = source.Close() }()

	sink, err := csvsink.NewSink(opts.outputFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	log.Info("starting analysis",
		zap.String("input", opts.inputFile),
		zap.String("output", opts.outputFile),
		zap.Int("ngram_size", cfg.Analyzer.NGramSize))

	result, err := orchestrator.Execute(ctx, source, sink, progress.NewLogSink(log))
	if err != nil {
		_ = sink.Close()
		return fmt.Errorf("analysis failed: %w", err)
	}

	if err := sink.Close(); err != nil {
		return fmt.Errorf("failed to finalize output: %w", err)
	}

	log.Info("analysis complete",
		zap.String("run_id", result.RunID),
		zap.String("tier", result.Tier.String()),
		zap.Uint64("rows_processed", result.RowsProcessed),
		zap.Uint64("distinct_keys", result.DistinctKeys),
		zap.Uint32("segments", result.Segments),
		zap.Duration("duration", result.Duration))

	fmt.Printf("Processed %d rows into %d distinct keys (%s tier) in %s\n",
		result.RowsProcessed, result.DistinctKeys, result.Tier, result.Duration.Round(time.Millisecond))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
