package engine

import (
	"bufio"
	"context"
	"io"

	"github.com/goccy/go-json"

	"github.com/gramforge/gramforge/pkg/compression"
	"github.com/gramforge/gramforge/pkg/errors"
	"github.com/gramforge/gramforge/pkg/tally"
)

// spillEntry is the on-disk form of one tally record. Segments hold one
// JSON document per entry, in ascending key order, behind the configured
// compression codec.
type spillEntry struct {
	NGram  string `json:"g"`
	Author string `json:"a"`
	Count  uint64 `json:"c"`
}

// partialBatch is one spilled segment: a sorted, deduplicated slice of the
// input's tallies. Owned exclusively by the extractor for the run's
// duration and deleted no later than run completion or abort.
type partialBatch struct {
	sequenceNo  uint32
	recordCount uint32
	handle      SegmentHandle
}

// countingWriter tracks compressed bytes for metrics.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// writeSegment sorts the tally's entries and writes them as one spill
// segment. Returns the batch descriptor and the compressed byte count.
// On any write failure the partially written segment is removed before
// returning.
func writeSegment(ctx context.Context, store TempStore, codec *compression.Codec, seq uint32, t tally.Tally) (partialBatch, int64, error) {
	entries := t.SortedEntries()

	handle, raw, err := store.Create(ctx)
	if err != nil {
		return partialBatch{}, 0, errors.Wrap(err, errors.ErrorTypeStorage, "spill segment create failed")
	}

	counter := &countingWriter{w: raw}
	compressed, err := codec.NewWriter(counter)
	if err != nil {
		raw.Close()
		store.Remove(handle)
		return partialBatch{}, 0, errors.Wrap(err, errors.ErrorTypeStorage, "spill compressor init failed")
	}

	buffered := bufio.NewWriter(compressed)
	enc := json.NewEncoder(buffered)
	for _, entry := range entries {
		rec := spillEntry{NGram: entry.Key.NGram, Author: entry.Key.Author, Count: entry.Count}
		if err := enc.Encode(&rec); err != nil {
			compressed.Close()
			raw.Close()
			store.Remove(handle)
			return partialBatch{}, 0, errors.Wrap(err, errors.ErrorTypeStorage, "spill segment write failed")
		}
	}

	if err := buffered.Flush(); err == nil {
		err = compressed.Close()
		if cerr := raw.Close(); err == nil {
			err = cerr
		}
	} else {
		compressed.Close()
		raw.Close()
	}
	if err != nil {
		store.Remove(handle)
		return partialBatch{}, 0, errors.Wrap(err, errors.ErrorTypeStorage, "spill segment flush failed")
	}

	return partialBatch{
		sequenceNo:  seq,
		recordCount: uint32(len(entries)),
		handle:      handle,
	}, counter.n, nil
}

// faultReader records the first non-EOF error from the underlying reader.
// The stream decoder reports any reader failure as a plain EOF, so the
// error has to be captured below it to tell corruption from end of data.
type faultReader struct {
	r   io.Reader
	err error
}

func (fr *faultReader) Read(p []byte) (int, error) {
	n, err := fr.r.Read(p)
	if err != nil && err != io.EOF && fr.err == nil {
		fr.err = err
	}
	return n, err
}

// segmentReader streams one spill segment back in key order, holding a
// single in-flight entry in memory.
type segmentReader struct {
	batch  partialBatch
	raw    io.ReadCloser
	body   io.ReadCloser
	fault  *faultReader
	dec    *json.Decoder
	read   uint32
	head   tally.Entry
	valid  bool
	failed bool
}

// openSegment opens a spilled batch for sequential reads.
func openSegment(ctx context.Context, store TempStore, codec *compression.Codec, batch partialBatch) (*segmentReader, error) {
	raw, err := store.Open(ctx, batch.handle)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorrupt, "spill segment open failed")
	}

	body, err := codec.NewReader(raw)
	if err != nil {
		raw.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeCorrupt, "spill decompressor init failed")
	}

	fault := &faultReader{r: body}
	return &segmentReader{
		batch: batch,
		raw:   raw,
		body:  body,
		fault: fault,
		dec:   json.NewDecoder(bufio.NewReader(fault)),
	}, nil
}

// next advances to the following entry. Returns false at end of segment;
// read errors mark the reader failed and surface via err.
func (r *segmentReader) next() (bool, error) {
	var rec spillEntry
	if err := r.dec.Decode(&rec); err != nil {
		r.valid = false
		if err == io.EOF {
			if r.fault.err != nil {
				r.failed = true
				return false, errors.Wrap(r.fault.err, errors.ErrorTypeCorrupt, "spill segment read failed").
					WithDetail("sequence_no", r.batch.sequenceNo)
			}
			// A segment ending early means records were lost; dropping
			// them would silently corrupt counts.
			if r.read != r.batch.recordCount {
				r.failed = true
				return false, errors.New(errors.ErrorTypeCorrupt, "spill segment truncated").
					WithDetail("sequence_no", r.batch.sequenceNo).
					WithDetail("records_expected", r.batch.recordCount).
					WithDetail("records_read", r.read)
			}
			return false, nil
		}
		r.failed = true
		return false, errors.Wrap(err, errors.ErrorTypeCorrupt, "spill segment read failed")
	}

	r.read++
	r.head = tally.Entry{
		Key:   tally.Key{NGram: rec.NGram, Author: rec.Author},
		Count: rec.Count,
	}
	r.valid = true
	return true, nil
}

func (r *segmentReader) close() {
	if r.body != nil {
		r.body.Close()
	}
	if r.raw != nil {
		r.raw.Close()
	}
}

// mergeHeap is a min-heap of segment readers ordered by their in-flight
// entry's key, used by the k-way merge.
type mergeHeap []*segmentReader

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].head.Key.Less(h[j].head.Key) {
		return true
	}
	if h[j].head.Key.Less(h[i].head.Key) {
		return false
	}
	// Stable tie-break keeps merge order deterministic.
	return h[i].batch.sequenceNo < h[j].batch.sequenceNo
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(*segmentReader))
}

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
