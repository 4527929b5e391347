package engine

import (
	"context"
	"io"
	"time"

	"github.com/gramforge/gramforge/pkg/columnar"
)

// DatasetEstimate is the caller-supplied sizing approximation used only for
// strategy and chunk decisions. Neither field is assumed exact.
type DatasetEstimate struct {
	RowCount    uint64
	AvgRowBytes uint32
}

// EstimatedBytes returns the approximate total dataset size.
func (e DatasetEstimate) EstimatedBytes() uint64 {
	return e.RowCount * uint64(e.AvgRowBytes)
}

// RowSource is the columnar input contract. Implementations must support a
// cheap estimate call and sequential range reads.
type RowSource interface {
	// Estimate returns an approximate row count and average row size.
	Estimate(ctx context.Context) (DatasetEstimate, error)
	// ReadRange returns up to limit rows starting at offset as a columnar
	// batch. A batch with zero rows signals the end of the source.
	ReadRange(ctx context.Context, offset, limit uint64) (*columnar.Batch, error)
}

// ResultSink is the columnar output contract. The engine only ever appends
// already-deduplicated, final batches; sinks never deduplicate.
type ResultSink interface {
	AppendBatch(ctx context.Context, batch *columnar.Batch) error
}

// SegmentHandle is an opaque reference to one spill segment in temporary
// storage. The engine never interprets it.
type SegmentHandle string

// TempStore provides create-write-read-delete primitives for spill
// segments. The disk-backed tier owns every handle it creates and removes
// them all no later than run completion or abort.
type TempStore interface {
	Create(ctx context.Context) (SegmentHandle, io.WriteCloser, error)
	Open(ctx context.Context, handle SegmentHandle) (io.ReadCloser, error)
	Remove(handle SegmentHandle) error
}

// Result describes a completed run.
type Result struct {
	RunID         string
	Tier          Tier
	RowsProcessed uint64
	DistinctKeys  uint64
	Segments      uint32
	Duration      time.Duration
}
