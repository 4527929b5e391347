package engine

import (
	"container/heap"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gramforge/gramforge/pkg/compression"
	"github.com/gramforge/gramforge/pkg/errors"
	"github.com/gramforge/gramforge/pkg/tally"
)

func spillCodec(t *testing.T) *compression.Codec {
	t.Helper()
	codec, err := compression.NewCodec(compression.LZ4, compression.Default)
	require.NoError(t, err)
	return codec
}

func TestWriteSegment_RoundTrip(t *testing.T) {
	store := NewDiskTempStore(t.TempDir())
	codec := spillCodec(t)

	tl := tally.New()
	tl.Add(tally.Key{NGram: "zebra stripes", Author: "bob"}, 4)
	tl.Add(tally.Key{NGram: "apple pie", Author: "alice"}, 2)
	tl.Add(tally.Key{NGram: "apple pie", Author: "carol"}, 7)

	batch, bytes, err := writeSegment(context.Background(), store, codec, 3, tl)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), batch.sequenceNo)
	assert.Equal(t, uint32(3), batch.recordCount)
	assert.Positive(t, bytes)

	reader, err := openSegment(context.Background(), store, codec, batch)
	require.NoError(t, err)
	defer reader.close()

	// Entries come back in ascending key order regardless of tally
	// insertion order.
	var got []tally.Entry
	for {
		ok, err := reader.next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, reader.head)
	}

	assert.Equal(t, []tally.Entry{
		{Key: tally.Key{NGram: "apple pie", Author: "alice"}, Count: 2},
		{Key: tally.Key{NGram: "apple pie", Author: "carol"}, Count: 7},
		{Key: tally.Key{NGram: "zebra stripes", Author: "bob"}, Count: 4},
	}, got)

	require.NoError(t, store.Remove(batch.handle))
}

func TestWriteSegment_EmptyTally(t *testing.T) {
	store := NewDiskTempStore(t.TempDir())
	codec := spillCodec(t)

	batch, _, err := writeSegment(context.Background(), store, codec, 0, tally.New())
	require.NoError(t, err)
	assert.Zero(t, batch.recordCount)

	reader, err := openSegment(context.Background(), store, codec, batch)
	require.NoError(t, err)
	defer reader.close()

	ok, err := reader.next()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Remove(batch.handle))
}

func TestSegmentReader_GarbageSegmentFails(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskTempStore(dir)
	codec := spillCodec(t)

	path := filepath.Join(dir, "mangled.seg")
	require.NoError(t, os.WriteFile(path, []byte("not a segment"), 0o600))

	batch := partialBatch{sequenceNo: 2, recordCount: 3, handle: SegmentHandle(path)}
	reader, err := openSegment(context.Background(), store, codec, batch)
	require.NoError(t, err)
	defer reader.close()

	// The stream decoder reports reader failures as a plain end of
	// input; an unreadable segment must still surface as corruption,
	// never as a clean empty segment.
	ok, err := reader.next()
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorrupt))
}

func TestSegmentReader_TruncatedSegmentFails(t *testing.T) {
	store := NewDiskTempStore(t.TempDir())
	codec := spillCodec(t)

	tl := tally.New()
	tl.Add(tally.Key{NGram: "alpha", Author: "alice"}, 1)
	tl.Add(tally.Key{NGram: "beta", Author: "bob"}, 2)

	batch, _, err := writeSegment(context.Background(), store, codec, 0, tl)
	require.NoError(t, err)

	// A segment holding fewer records than its descriptor promises has
	// lost data; the reader must refuse to finish cleanly.
	batch.recordCount++

	reader, err := openSegment(context.Background(), store, codec, batch)
	require.NoError(t, err)
	defer reader.close()

	var got int
	var readErr error
	for {
		ok, err := reader.next()
		if err != nil {
			readErr = err
			break
		}
		if !ok {
			break
		}
		got++
	}

	assert.Equal(t, 2, got)
	require.Error(t, readErr)
	assert.True(t, errors.IsType(readErr, errors.ErrorTypeCorrupt))

	require.NoError(t, store.Remove(batch.handle))
}

func TestMergeHeap_TieBreaksBySequence(t *testing.T) {
	entry := tally.Entry{Key: tally.Key{NGram: "same", Author: "same"}, Count: 1}
	later := &segmentReader{batch: partialBatch{sequenceNo: 5}, head: entry}
	earlier := &segmentReader{batch: partialBatch{sequenceNo: 1}, head: entry}
	smaller := &segmentReader{
		batch: partialBatch{sequenceNo: 9},
		head:  tally.Entry{Key: tally.Key{NGram: "aaa", Author: "x"}, Count: 1},
	}

	h := mergeHeap{later, earlier, smaller}
	heap.Init(&h)

	assert.Same(t, smaller, heap.Pop(&h), "smallest key first")
	assert.Same(t, earlier, heap.Pop(&h), "equal keys ordered by sequence")
	assert.Same(t, later, heap.Pop(&h))
}

func TestDiskTempStore(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskTempStore(dir)

	handle, w, err := store.Create(context.Background())
	require.NoError(t, err)
	_, err = w.Write([]byte("segment data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := store.Open(context.Background(), handle)
	require.NoError(t, err)
	data := make([]byte, 32)
	n, _ := r.Read(data)
	require.NoError(t, r.Close())
	assert.Equal(t, "segment data", string(data[:n]))

	require.NoError(t, store.Remove(handle))
	_, err = os.Stat(string(handle))
	assert.True(t, os.IsNotExist(err))

	// Removing twice is not an error.
	require.NoError(t, store.Remove(handle))
}
