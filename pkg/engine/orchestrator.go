package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gramforge/gramforge/pkg/analyzer/ngram"
	"github.com/gramforge/gramforge/pkg/compression"
	"github.com/gramforge/gramforge/pkg/config"
	"github.com/gramforge/gramforge/pkg/errors"
	"github.com/gramforge/gramforge/pkg/logger"
	"github.com/gramforge/gramforge/pkg/metrics"
	"github.com/gramforge/gramforge/pkg/progress"
	"github.com/gramforge/gramforge/pkg/sysmem"
)

// Orchestrator is the top-level driver: it derives the memory budget,
// selects a processing tier, dispatches to the matching executor, and
// relays progress and results unchanged. It holds no retry logic; a run is
// at most one attempt per tier, and retries belong to the caller.
type Orchestrator struct {
	cfg     *config.Config
	monitor sysmem.Monitor
	store   TempStore
	logger  *zap.Logger

	budgetOpts []BudgetOption
}

// OrchestratorOption customizes orchestrator construction.
type OrchestratorOption func(*Orchestrator)

// WithBudgetOptions forwards options (such as an allocation factor
// override) to budget construction.
func WithBudgetOptions(opts ...BudgetOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.budgetOpts = opts
	}
}

// WithTempStore substitutes the temporary storage backend.
func WithTempStore(store TempStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// NewOrchestrator creates an orchestrator. The memory monitor is injected
// so tests can substitute synthetic readings.
func NewOrchestrator(cfg *config.Config, monitor sysmem.Monitor, logger *zap.Logger, opts ...OrchestratorOption) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid engine configuration")
	}

	o := &Orchestrator{
		cfg:     cfg,
		monitor: monitor,
		store:   NewDiskTempStore(cfg.Spill.Dir),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Execute runs one analysis: estimate, budget, tier selection, dispatch.
// The result is either a complete deduplicated tally in the sink or an
// error; there is no best-effort output mode.
func (o *Orchestrator) Execute(ctx context.Context, source RowSource, sink ResultSink, sinkProgress progress.Sink) (*Result, error) {
	runID := uuid.NewString()
	log := o.logger.With(zap.String("run_id", runID))
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)

	start := time.Now()

	estimate, err := source.Estimate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypePlanning, "dataset estimate failed")
	}
	if estimate.RowCount > 0 && estimate.AvgRowBytes == 0 {
		return nil, errors.New(errors.ErrorTypePlanning, "estimate has rows but zero average row size").
			WithDetail("row_count_estimate", estimate.RowCount)
	}

	budget := NewBudget(o.monitor, o.cfg.Budget, o.budgetOpts...)
	metrics.BudgetAllocation.Set(float64(budget.AllocationBytes()))

	if pressure, perr := budget.Pressure(); perr == nil {
		metrics.MemoryPressure.Set(pressure)
	}

	extractor, err := ngram.NewExtractor(o.cfg.Analyzer)
	if err != nil {
		return nil, err
	}

	planner := NewChunkPlanner(o.cfg.Planner)
	selector := NewStrategySelector(o.cfg.Selector)
	tier := selector.Select(estimate, budget)
	metrics.TierSelections.WithLabelValues(tier.String()).Inc()

	log.Info("processing tier selected",
		append(budget.LogFields(),
			zap.String("tier", tier.String()),
			zap.Uint64("row_count_estimate", estimate.RowCount),
			zap.Uint32("avg_row_bytes_estimate", estimate.AvgRowBytes))...)

	// Out-of-order worker completions must never move progress backwards.
	monotonic := progress.NewMonotonicSink(sinkProgress)

	result, err := o.dispatch(ctx, tier, estimate, budget, extractor, planner, source, sink, monotonic, log)
	if err != nil {
		o.recordFailure(log, err)
		return nil, err
	}

	result.RunID = runID
	result.Duration = time.Since(start)
	metrics.RunDuration.WithLabelValues(tier.String()).Observe(result.Duration.Seconds())

	log.Info("run complete",
		zap.String("tier", result.Tier.String()),
		zap.Uint64("rows_processed", result.RowsProcessed),
		zap.Uint64("distinct_keys", result.DistinctKeys),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, tier Tier, estimate DatasetEstimate, budget *Budget, extractor *ngram.Extractor, planner *ChunkPlanner, source RowSource, sink ResultSink, sinkProgress progress.Sink, logger *zap.Logger) (*Result, error) {
	switch tier {
	case TierInMemory:
		aggregator := NewStreamingAggregator(extractor, planner, budget, logger)
		return aggregator.Run(ctx, source, nil, sink, sinkProgress)

	case TierChunked:
		plan := planner.Plan(estimate, ScaleForBudget(budget))
		if plan.ChunkCount == 0 {
			// Nothing to process: a complete, empty tally.
			if _, err := writeTally(ctx, sink, nil); err != nil {
				return nil, err
			}
			return &Result{Tier: tier}, nil
		}
		aggregator := NewStreamingAggregator(extractor, planner, budget, logger)
		return aggregator.Run(ctx, source, &plan, sink, sinkProgress)

	case TierDiskBacked:
		algorithm, err := compression.ParseAlgorithm(o.cfg.Spill.Compression)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid spill compression")
		}
		codec, err := compression.NewCodec(algorithm, compression.Level(o.cfg.Spill.CompressionLevel))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid spill compression")
		}
		extsort := NewExternalSortExtractor(extractor, planner, budget, o.store, codec,
			o.cfg.Performance.GetWorkers(), o.cfg.Spill.BatchScaleFactor, logger)
		return extsort.Run(ctx, source, sink, sinkProgress)
	}

	return nil, errors.New(errors.ErrorTypeInternal, "unknown processing tier").
		WithDetail("tier", int(tier))
}

func (o *Orchestrator) recordFailure(logger *zap.Logger, err error) {
	errType := string(errors.ErrorTypeInternal)
	var structured *errors.Error
	if e, ok := err.(*errors.Error); ok {
		structured = e
		errType = string(e.Type)
	}
	metrics.RunFailures.WithLabelValues(errType).Inc()

	fields := []zap.Field{zap.Error(err)}
	if structured != nil {
		for k, v := range structured.Details {
			fields = append(fields, zap.Any(k, v))
		}
	}
	logger.Error("run failed", fields...)
}
