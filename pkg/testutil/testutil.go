// Package testutil provides testing utilities for GramForge
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/gramforge/gramforge/pkg/columnar"
	"github.com/gramforge/gramforge/pkg/engine"
	"github.com/gramforge/gramforge/pkg/tally"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Message is one input row for a MemorySource.
type Message struct {
	Author string
	Text   string
}

// MemorySource is a slice-backed engine.RowSource. The estimate it reports
// can be overridden to exercise strategy decisions independently of the
// actual row count.
type MemorySource struct {
	Messages []Message
	// EstimateOverride, when non-nil, is returned verbatim by Estimate.
	EstimateOverride *engine.DatasetEstimate
	// ReadErr, when non-nil, is returned by every ReadRange call.
	ReadErr error
	// Reads counts ReadRange calls.
	Reads int
}

// NewMemorySource builds a source over the given messages.
func NewMemorySource(messages ...Message) *MemorySource {
	return &MemorySource{Messages: messages}
}

// Estimate reports the exact row count with a small per-row byte figure,
// unless an override is set.
func (s *MemorySource) Estimate(ctx context.Context) (engine.DatasetEstimate, error) {
	if err := ctx.Err(); err != nil {
		return engine.DatasetEstimate{}, err
	}
	if s.EstimateOverride != nil {
		return *s.EstimateOverride, nil
	}
	if len(s.Messages) == 0 {
		return engine.DatasetEstimate{}, nil
	}
	return engine.DatasetEstimate{
		RowCount:    uint64(len(s.Messages)),
		AvgRowBytes: 64,
	}, nil
}

// ReadRange returns up to limit rows starting at offset.
func (s *MemorySource) ReadRange(ctx context.Context, offset, limit uint64) (*columnar.Batch, error) {
	s.Reads++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}

	batch := columnar.NewBatch(columnar.MessageSchema())
	if offset >= uint64(len(s.Messages)) {
		return batch, nil
	}
	end := offset + limit
	if end > uint64(len(s.Messages)) {
		end = uint64(len(s.Messages))
	}
	for _, msg := range s.Messages[offset:end] {
		if err := batch.AppendRow(msg.Author, msg.Text); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// CaptureSink collects result batches back into a tally so tests can
// compare outputs across tiers. It also records batch-level ordering.
type CaptureSink struct {
	Batches int
	Rows    []tally.Entry
	// AppendErr, when non-nil, is returned by every AppendBatch call.
	AppendErr error
}

// AppendBatch accumulates the batch rows in arrival order.
func (s *CaptureSink) AppendBatch(ctx context.Context, batch *columnar.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.AppendErr != nil {
		return s.AppendErr
	}

	ngrams := batch.Column("ngram").(*columnar.StringColumn)
	authors := batch.Column("author").(*columnar.StringColumn)
	counts := batch.Column("count").(*columnar.Uint64Column)

	for i := 0; i < batch.RowCount(); i++ {
		s.Rows = append(s.Rows, tally.Entry{
			Key: tally.Key{
				NGram:  ngrams.GetString(i),
				Author: authors.GetString(i),
			},
			Count: counts.GetUint64(i),
		})
	}
	s.Batches++
	return nil
}

// Tally rebuilds a tally from the captured rows.
func (s *CaptureSink) Tally() tally.Tally {
	out := tally.New()
	for _, row := range s.Rows {
		out.Add(row.Key, row.Count)
	}
	return out
}

// Sorted reports whether the captured rows arrived in ascending key order.
func (s *CaptureSink) Sorted() bool {
	for i := 1; i < len(s.Rows); i++ {
		if s.Rows[i].Key.Less(s.Rows[i-1].Key) {
			return false
		}
	}
	return true
}
