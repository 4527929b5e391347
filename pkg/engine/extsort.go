package engine

import (
	"container/heap"
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gramforge/gramforge/pkg/analyzer/ngram"
	"github.com/gramforge/gramforge/pkg/compression"
	"github.com/gramforge/gramforge/pkg/errors"
	"github.com/gramforge/gramforge/pkg/metrics"
	"github.com/gramforge/gramforge/pkg/progress"
	"github.com/gramforge/gramforge/pkg/tally"
)

// ExternalSortExtractor executes the disk-backed tier: a classic two-phase
// external sort-merge producing the same complete, deduplicated tally as
// the streaming tiers while holding a bounded working set regardless of
// input size.
//
// Spill phase: memory-bounded batches are read sequentially, tallied,
// sorted by key, and written to temporary storage as numbered segments.
// Batch count is open-ended, driven by bytes actually read; disk-backed is
// chosen precisely because the row estimate may be unreliable.
//
// Merge phase: a k-way heap merge over the sorted segments with one
// in-flight entry per segment. Key ties across segments are summed before
// a single emit, so the unique-key invariant holds in the output.
//
// Every segment is removed on both success and failure paths.
type ExternalSortExtractor struct {
	extractor *ngram.Extractor
	planner   *ChunkPlanner
	budget    *Budget
	store     TempStore
	codec     *compression.Codec
	workers   int
	scale     float64
	logger    *zap.Logger
}

// NewExternalSortExtractor creates a disk-backed extractor. scale adjusts
// the planner's base chunk size for spill batches; workers bounds parallel
// batch tallying.
func NewExternalSortExtractor(extractor *ngram.Extractor, planner *ChunkPlanner, budget *Budget, store TempStore, codec *compression.Codec, workers int, scale float64, logger *zap.Logger) *ExternalSortExtractor {
	if workers < 1 {
		workers = 1
	}
	if scale <= 0 {
		scale = 1.0
	}
	return &ExternalSortExtractor{
		extractor: extractor,
		planner:   planner,
		budget:    budget,
		store:     store,
		codec:     codec,
		workers:   workers,
		scale:     scale,
		logger:    logger,
	}
}

// Run processes the source through spill and merge and writes the complete
// tally to the sink.
func (e *ExternalSortExtractor) Run(ctx context.Context, source RowSource, sink ResultSink, sinkProgress progress.Sink) (*Result, error) {
	e.logger.Info("starting disk-backed run",
		append(e.budget.LogFields(), zap.Int("workers", e.workers))...)

	batches, rows, spillErr := e.spill(ctx, source, sinkProgress)

	// Temporary storage is reclaimed unconditionally, whatever happens
	// between here and return.
	defer e.cleanup(batches)

	if spillErr != nil {
		return nil, spillErr
	}

	keys, err := e.merge(ctx, batches, sink, sinkProgress)
	if err != nil {
		return nil, err
	}

	return &Result{
		Tier:          TierDiskBacked,
		RowsProcessed: rows,
		DistinctKeys:  keys,
		Segments:      uint32(len(batches)),
	}, nil
}

// spill reads the source to exhaustion, writing one sorted segment per
// batch. Reads are sequential; tallying and segment writes run on up to
// e.workers goroutines. Pressure checks account for aggregate usage across
// all workers because the budget watches whole-process memory.
func (e *ExternalSortExtractor) spill(ctx context.Context, source RowSource, sinkProgress progress.Sink) ([]partialBatch, uint64, error) {
	batchRows := e.planner.Plan(DatasetEstimate{}, e.scale).ChunkSizeRows

	var (
		mu       sync.Mutex
		inflight sync.WaitGroup
		batches  []partialBatch
		spilled  uint64
		rows     uint64
		seq      uint32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for {
		if err := checkCancelled(ctx); err != nil {
			g.Wait()
			mu.Lock()
			defer mu.Unlock()
			return batches, rows, err
		}
		// A failed worker cancels gctx; stop reading immediately and
		// let the final Wait surface its error.
		if gctx.Err() != nil {
			break
		}

		batch, err := source.ReadRange(ctx, rows, uint64(batchRows))
		if err != nil {
			g.Wait()
			mu.Lock()
			defer mu.Unlock()
			return batches, rows, errors.Wrap(err, errors.ErrorTypeData, "source read failed")
		}
		if batch.RowCount() == 0 {
			break
		}

		rows += uint64(batch.RowCount())
		metrics.RowsProcessed.WithLabelValues(TierDiskBacked.String()).Add(float64(batch.RowCount()))

		sequenceNo := seq
		seq++
		b := batch
		inflight.Add(1)
		g.Go(func() error {
			defer inflight.Done()

			t, err := e.extractor.Extract(b)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "ngram extraction failed")
			}

			segment, bytes, err := writeSegment(gctx, e.store, e.codec, sequenceNo, t)
			if err != nil {
				return err
			}

			metrics.SpillSegments.Inc()
			metrics.SpillBytes.Add(float64(bytes))

			mu.Lock()
			batches = append(batches, segment)
			spilled++
			completed := spilled
			mu.Unlock()

			sinkProgress.Publish(progress.Event{Step: "spill", Completed: completed})
			return nil
		})

		level, lerr := e.budget.Level()
		if lerr != nil {
			g.Wait()
			mu.Lock()
			defer mu.Unlock()
			return batches, rows, errors.Wrap(lerr, errors.ErrorTypeInternal, "memory pressure query failed")
		}
		if level != PressureNominal {
			metrics.PressureEvents.WithLabelValues(level.String()).Inc()
			// The disk tier downgrades itself under pressure: shrink the
			// batch size and drain in-flight workers before reading more.
			shrunk := uint32(float64(batchRows) * e.planner.ShrinkFactor())
			if shrunk < e.planner.MinChunkRows() {
				shrunk = e.planner.MinChunkRows()
			}
			if shrunk < batchRows {
				e.logger.Warn("spill batch backoff",
					zap.String("pressure", level.String()),
					zap.Uint32("batch_rows_before", batchRows),
					zap.Uint32("batch_rows_after", shrunk))
				batchRows = shrunk
			}
			if level == PressureCritical {
				// Not g.Wait: that cancels gctx and poisons segment
				// writes still to come.
				inflight.Wait()
			}
		}
	}

	if err := g.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		return batches, rows, err
	}
	if err := checkCancelled(ctx); err != nil {
		mu.Lock()
		defer mu.Unlock()
		return batches, rows, err
	}

	mu.Lock()
	defer mu.Unlock()
	e.logger.Info("spill phase complete",
		zap.Uint64("rows", rows),
		zap.Int("segments", len(batches)))
	return batches, rows, nil
}

// merge performs the k-way merge over sorted segments, summing counts when
// keys tie across segments and emitting each key exactly once. A read
// failure on any segment is fatal: dropping one batch would silently
// corrupt counts, so partial merge results are discarded, not salvaged.
func (e *ExternalSortExtractor) merge(ctx context.Context, batches []partialBatch, sink ResultSink, sinkProgress progress.Sink) (uint64, error) {
	readers := make([]*segmentReader, 0, len(batches))
	defer func() {
		for _, r := range readers {
			r.close()
		}
	}()

	h := make(mergeHeap, 0, len(batches))
	for _, batch := range batches {
		r, err := openSegment(ctx, e.store, e.codec, batch)
		if err != nil {
			return 0, err
		}
		readers = append(readers, r)

		ok, err := r.next()
		if err != nil {
			return 0, err
		}
		if ok {
			h = append(h, r)
		}
	}
	heap.Init(&h)

	writer := newResultWriter(sink)
	var merged uint64

	for h.Len() > 0 {
		if merged%uint64(outputBatchRows) == 0 {
			if err := checkCancelled(ctx); err != nil {
				return 0, err
			}
		}

		top := h[0]
		current := tally.Entry{Key: top.head.Key, Count: 0}

		// Drain every segment whose head ties with the minimum key.
		for h.Len() > 0 && !current.Key.Less(h[0].head.Key) {
			r := h[0]
			current.Count += r.head.Count

			ok, err := r.next()
			if err != nil {
				return 0, err
			}
			if ok {
				heap.Fix(&h, 0)
			} else {
				heap.Pop(&h)
			}
		}

		if err := writer.write(ctx, current); err != nil {
			return 0, err
		}
		merged++
		if merged%uint64(outputBatchRows) == 0 {
			sinkProgress.Publish(progress.Event{Step: "merge", Completed: merged})
		}
	}

	if err := writer.flush(ctx); err != nil {
		return 0, err
	}
	sinkProgress.Publish(progress.Event{Step: "merge", Completed: merged})

	e.logger.Info("merge phase complete", zap.Uint64("distinct_keys", merged))
	return merged, nil
}

// cleanup removes every spilled segment. Failures are logged, never
// propagated; cleanup runs on paths that already carry an error.
func (e *ExternalSortExtractor) cleanup(batches []partialBatch) {
	for _, batch := range batches {
		if err := e.store.Remove(batch.handle); err != nil {
			e.logger.Warn("spill segment cleanup failed",
				zap.Uint32("sequence_no", batch.sequenceNo),
				zap.Error(err))
		}
	}
}
