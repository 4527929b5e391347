// Package csv provides a CSV-backed result sink for the processing engine.
package csv

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"sync"

	"github.com/gramforge/gramforge/pkg/columnar"
	"github.com/gramforge/gramforge/pkg/errors"
)

// Sink writes aggregated result batches to a CSV file with a header row.
// Batches arrive in key order, so the output file is fully sorted.
type Sink struct {
	mu            sync.Mutex
	file          *os.File
	writer        *csv.Writer
	headerWritten bool
}

// NewSink creates the output file, truncating any existing content.
func NewSink(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file")
	}
	return &Sink{
		file:   f,
		writer: csv.NewWriter(f),
	}, nil
}

// AppendBatch writes one result batch. The batch must carry the result
// schema: ngram, author, count.
func (s *Sink) AppendBatch(ctx context.Context, batch *columnar.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.headerWritten {
		if err := s.writer.Write([]string{"ngram", "author", "count"}); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write output header")
		}
		s.headerWritten = true
	}

	ngrams, ok := batch.Column("ngram").(*columnar.StringColumn)
	if !ok {
		return errors.New(errors.ErrorTypeData, "result batch missing ngram column")
	}
	authors, ok := batch.Column("author").(*columnar.StringColumn)
	if !ok {
		return errors.New(errors.ErrorTypeData, "result batch missing author column")
	}
	counts, ok := batch.Column("count").(*columnar.Uint64Column)
	if !ok {
		return errors.New(errors.ErrorTypeData, "result batch missing count column")
	}

	for i := 0; i < batch.RowCount(); i++ {
		record := []string{
			ngrams.GetString(i),
			authors.GetString(i),
			strconv.FormatUint(counts.GetUint64(i), 10),
		}
		if err := s.writer.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write output row")
		}
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output rows")
	}
	return nil
}

// Close flushes buffered rows and closes the output file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	s.file = nil

	if flushErr != nil {
		return errors.Wrap(flushErr, errors.ErrorTypeFile, "failed to flush output file")
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, errors.ErrorTypeFile, "failed to close output file")
	}
	return nil
}
