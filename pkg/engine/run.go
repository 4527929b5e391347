package engine

import (
	"context"

	"github.com/gramforge/gramforge/pkg/analyzer/ngram"
	"github.com/gramforge/gramforge/pkg/columnar"
	"github.com/gramforge/gramforge/pkg/errors"
	"github.com/gramforge/gramforge/pkg/tally"
)

// runState is the single piece of shared mutable state in a run: the
// running tally and the rows consumed so far. Owned exclusively by the
// executing component for the run's duration.
type runState struct {
	tally tally.Tally
	rows  uint64
}

func newRunState() *runState {
	return &runState{tally: tally.New()}
}

// consume extracts the batch's tallies and merges them into the running
// aggregate. Merge is a key-wise sum, so consume order never changes the
// final result.
func (s *runState) consume(extractor *ngram.Extractor, batch *columnar.Batch) error {
	t, err := extractor.Extract(batch)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "ngram extraction failed")
	}
	s.tally.Merge(t)
	s.rows += uint64(batch.RowCount())
	return nil
}

// checkCancelled maps context cancellation onto the engine error taxonomy.
// Called at chunk and batch boundaries only, never mid-record.
func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCancelled, "run cancelled")
	}
	return nil
}
