package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/gramforge/gramforge/pkg/analyzer/ngram"
	"github.com/gramforge/gramforge/pkg/errors"
	"github.com/gramforge/gramforge/pkg/metrics"
	"github.com/gramforge/gramforge/pkg/progress"
)

// StreamingAggregator executes the in-memory and chunked tiers: sequential
// range reads, per-chunk tally extraction, key-wise merge into one running
// tally, and a single final output write. No partial or interim output is
// ever produced.
type StreamingAggregator struct {
	extractor *ngram.Extractor
	planner   *ChunkPlanner
	budget    *Budget
	logger    *zap.Logger
}

// NewStreamingAggregator creates an aggregator bound to a budget.
func NewStreamingAggregator(extractor *ngram.Extractor, planner *ChunkPlanner, budget *Budget, logger *zap.Logger) *StreamingAggregator {
	return &StreamingAggregator{
		extractor: extractor,
		planner:   planner,
		budget:    budget,
		logger:    logger,
	}
}

// Run processes the source and writes the complete deduplicated tally to
// the sink. A nil plan selects the in-memory tier; otherwise the plan's
// chunk geometry drives the chunked tier.
func (a *StreamingAggregator) Run(ctx context.Context, source RowSource, plan *ChunkPlan, sink ResultSink, sinkProgress progress.Sink) (*Result, error) {
	if plan == nil {
		return a.runInMemory(ctx, source, sink, sinkProgress)
	}
	return a.runChunked(ctx, source, *plan, sink, sinkProgress)
}

// runInMemory reads the entire source in one pass. This tier assumes the
// dataset fits; crossing the critical pressure threshold is a planning
// error surfaced as MemoryExceeded, never silently downgraded.
func (a *StreamingAggregator) runInMemory(ctx context.Context, source RowSource, sink ResultSink, sinkProgress progress.Sink) (*Result, error) {
	a.logger.Info("starting in-memory pass", a.budget.LogFields()...)

	running := newRunState()
	readRows := uint64(a.planner.Plan(DatasetEstimate{}, 1.0).ChunkSizeRows)

	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}

		batch, err := source.ReadRange(ctx, running.rows, readRows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "source read failed")
		}
		if batch.RowCount() == 0 {
			break
		}

		if err := running.consume(a.extractor, batch); err != nil {
			return nil, err
		}
		metrics.RowsProcessed.WithLabelValues(TierInMemory.String()).Add(float64(batch.RowCount()))
		sinkProgress.Publish(progress.Event{Step: "aggregate", Completed: running.rows})

		level, err := a.pressureLevel()
		if err != nil {
			return nil, err
		}
		if level == PressureCritical {
			return nil, errors.New(errors.ErrorTypeMemory, "critical memory pressure during in-memory pass").
				WithDetail("rows_read", running.rows)
		}
	}

	keys, err := writeTally(ctx, sink, running.tally)
	if err != nil {
		return nil, err
	}

	return &Result{
		Tier:          TierInMemory,
		RowsProcessed: running.rows,
		DistinctKeys:  keys,
	}, nil
}

// runChunked iterates the planned row ranges, merging per-chunk tallies
// into the running aggregate. Pressure crossing warn shrinks the remaining
// chunk size; critical with no further shrink aborts. Chunk boundaries
// need not align with any natural record grouping: aggregation is
// key-based, so chunking never splits a tally incorrectly.
func (a *StreamingAggregator) runChunked(ctx context.Context, source RowSource, plan ChunkPlan, sink ResultSink, sinkProgress progress.Sink) (*Result, error) {
	a.logger.Info("starting chunked pass",
		append(a.budget.LogFields(),
			zap.Uint32("chunk_size_rows", plan.ChunkSizeRows),
			zap.Uint32("chunk_count", plan.ChunkCount))...)

	total := uint64(plan.ChunkCount)
	running := newRunState()
	chunkRows := plan.ChunkSizeRows
	var completed uint64

	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}

		batch, err := source.ReadRange(ctx, running.rows, uint64(chunkRows))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "source read failed")
		}
		if batch.RowCount() == 0 {
			break
		}

		if err := running.consume(a.extractor, batch); err != nil {
			return nil, err
		}
		completed++
		metrics.RowsProcessed.WithLabelValues(TierChunked.String()).Add(float64(batch.RowCount()))
		metrics.ChunksProcessed.Inc()
		event := progress.Event{Step: "aggregate", Completed: completed}
		if completed <= total {
			// The plan's chunk count came from an estimate; once the
			// source outlives it the total is wrong, so stop claiming one.
			event.Total = &total
		}
		sinkProgress.Publish(event)

		level, err := a.pressureLevel()
		if err != nil {
			return nil, err
		}
		switch level {
		case PressureWarn:
			chunkRows = a.shrink(chunkRows)
		case PressureCritical:
			shrunk := a.shrink(chunkRows)
			if shrunk == chunkRows {
				return nil, errors.New(errors.ErrorTypeMemory, "critical memory pressure with no further backoff").
					WithDetail("chunk_rows", chunkRows).
					WithDetail("chunks_completed", completed)
			}
			chunkRows = shrunk
		}
	}

	keys, err := writeTally(ctx, sink, running.tally)
	if err != nil {
		return nil, err
	}

	return &Result{
		Tier:          TierChunked,
		RowsProcessed: running.rows,
		DistinctKeys:  keys,
	}, nil
}

// shrink applies the backoff factor, clamped to the minimum chunk size.
func (a *StreamingAggregator) shrink(chunkRows uint32) uint32 {
	shrunk := uint32(float64(chunkRows) * a.planner.ShrinkFactor())
	if shrunk < a.planner.MinChunkRows() {
		shrunk = a.planner.MinChunkRows()
	}
	if shrunk >= chunkRows {
		return chunkRows
	}
	a.logger.Warn("memory pressure backoff",
		zap.Uint32("chunk_rows_before", chunkRows),
		zap.Uint32("chunk_rows_after", shrunk))
	metrics.PressureEvents.WithLabelValues(PressureWarn.String()).Inc()
	return shrunk
}

func (a *StreamingAggregator) pressureLevel() (PressureLevel, error) {
	level, err := a.budget.Level()
	if err != nil {
		return PressureNominal, errors.Wrap(err, errors.ErrorTypeInternal, "memory pressure query failed")
	}
	if level == PressureCritical {
		metrics.PressureEvents.WithLabelValues(level.String()).Inc()
	}
	return level, nil
}
