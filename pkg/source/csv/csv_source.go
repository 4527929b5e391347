// Package csv provides a CSV-backed row source for the processing engine.
// It satisfies the engine's input contract: a cheap dataset estimate and
// sequential range reads returning columnar message batches.
package csv

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"sync"

	"github.com/gramforge/gramforge/pkg/columnar"
	"github.com/gramforge/gramforge/pkg/engine"
	"github.com/gramforge/gramforge/pkg/errors"
)

// estimateSampleRows bounds how many rows the estimate call reads.
const estimateSampleRows = 1000

// Source reads message rows from a CSV file with a header row. The engine
// reads ranges in ascending offset order; backwards seeks reopen the file.
type Source struct {
	path       string
	authorCol  string
	textCol    string

	mu        sync.Mutex
	file      *os.File
	reader    *csv.Reader
	authorIdx int
	textIdx   int
	position  uint64
}

// NewSource creates a source over the given file. authorCol and textCol
// name the header columns carrying the author ID and message text.
func NewSource(path, authorCol, textCol string) *Source {
	return &Source{
		path:      path,
		authorCol: authorCol,
		textCol:   textCol,
	}
}

// Estimate samples the file head to approximate row count and average row
// size. The engine treats both fields as approximations, never as exact.
func (s *Source) Estimate(ctx context.Context) (engine.DatasetEstimate, error) {
	if err := ctx.Err(); err != nil {
		return engine.DatasetEstimate{}, err
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return engine.DatasetEstimate{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to stat input file")
	}

	f, err := os.Open(s.path)
	if err != nil {
		return engine.DatasetEstimate{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to open input file")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	// Header row.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return engine.DatasetEstimate{}, nil
		}
		return engine.DatasetEstimate{}, errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV header")
	}

	var sampled, sampledBytes uint64
	for sampled < estimateSampleRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return engine.DatasetEstimate{}, errors.Wrap(err, errors.ErrorTypeData, "failed to sample CSV rows")
		}
		for _, field := range record {
			sampledBytes += uint64(len(field))
		}
		sampledBytes += uint64(len(record)) + 1 // separators and newline
		sampled++
	}

	if sampled == 0 {
		return engine.DatasetEstimate{}, nil
	}

	avgRow := sampledBytes / sampled
	if avgRow == 0 {
		avgRow = 1
	}

	return engine.DatasetEstimate{
		RowCount:    uint64(info.Size()) / avgRow,
		AvgRowBytes: uint32(avgRow),
	}, nil
}

// ReadRange returns up to limit rows starting at offset. An empty batch
// signals the end of the file.
func (s *Source) ReadRange(ctx context.Context, offset, limit uint64) (*columnar.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.reader == nil || offset < s.position {
		if err := s.reopen(); err != nil {
			return nil, err
		}
	}

	// Skip forward to the requested offset.
	for s.position < offset {
		if _, err := s.reader.Read(); err != nil {
			if err == io.EOF {
				return columnar.NewBatch(columnar.MessageSchema()), nil
			}
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to skip CSV rows")
		}
		s.position++
	}

	batch := columnar.NewBatch(columnar.MessageSchema())
	for uint64(batch.RowCount()) < limit {
		record, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV row")
		}
		if s.authorIdx >= len(record) || s.textIdx >= len(record) {
			return nil, errors.New(errors.ErrorTypeData, "CSV row missing required columns").
				WithDetail("row", s.position)
		}
		if err := batch.AppendRow(record[s.authorIdx], record[s.textIdx]); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to build message batch")
		}
		s.position++
	}

	return batch, nil
}

// Close releases the underlying file.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		s.reader = nil
		return err
	}
	return nil
}

func (s *Source) reopen() error {
	if s.file != nil {
		s.file.Close()
	}

	f, err := os.Open(s.path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open input file")
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrorTypeData, "failed to read CSV header")
	}

	authorIdx, textIdx := -1, -1
	for i, name := range header {
		switch name {
		case s.authorCol:
			authorIdx = i
		case s.textCol:
			textIdx = i
		}
	}
	if authorIdx < 0 || textIdx < 0 {
		f.Close()
		return errors.New(errors.ErrorTypeData, "CSV header missing required columns").
			WithDetail("author_column", s.authorCol).
			WithDetail("text_column", s.textCol)
	}

	s.file = f
	s.reader = reader
	s.authorIdx = authorIdx
	s.textIdx = textIdx
	s.position = 0
	return nil
}
