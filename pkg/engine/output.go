package engine

import (
	"context"

	"github.com/gramforge/gramforge/pkg/columnar"
	"github.com/gramforge/gramforge/pkg/errors"
	"github.com/gramforge/gramforge/pkg/tally"
)

// outputBatchRows bounds the size of result batches appended to the sink.
const outputBatchRows = 65536

// resultWriter accumulates final tally records into columnar batches and
// appends them to the sink. Only complete, deduplicated data ever passes
// through it.
type resultWriter struct {
	sink  ResultSink
	batch *columnar.Batch
	rows  uint64
}

func newResultWriter(sink ResultSink) *resultWriter {
	return &resultWriter{
		sink:  sink,
		batch: columnar.NewBatch(columnar.ResultSchema()),
	}
}

func (w *resultWriter) write(ctx context.Context, entry tally.Entry) error {
	if err := w.batch.AppendRow(entry.Key.NGram, entry.Key.Author, entry.Count); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to build result batch")
	}
	w.rows++

	if w.batch.RowCount() >= outputBatchRows {
		return w.flush(ctx)
	}
	return nil
}

func (w *resultWriter) flush(ctx context.Context) error {
	if w.batch.RowCount() == 0 {
		return nil
	}
	if err := w.sink.AppendBatch(ctx, w.batch); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to append result batch")
	}
	w.batch = columnar.NewBatch(columnar.ResultSchema())
	return nil
}

// writeTally emits a complete tally to the sink in sorted key order, so
// output is deterministic across tiers.
func writeTally(ctx context.Context, sink ResultSink, t tally.Tally) (uint64, error) {
	w := newResultWriter(sink)
	for _, entry := range t.SortedEntries() {
		if err := w.write(ctx, entry); err != nil {
			return 0, err
		}
	}
	if err := w.flush(ctx); err != nil {
		return 0, err
	}
	return w.rows, nil
}
