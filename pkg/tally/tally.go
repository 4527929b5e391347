// Package tally provides the aggregated n-gram count model shared by the
// analyzer and the processing engine.
package tally

import "sort"

// Key identifies one tally: an n-gram as produced by the analyzer, scoped
// to the author it was observed under.
type Key struct {
	NGram  string
	Author string
}

// Less orders keys lexicographically by (NGram, Author). Spill segments
// are written in this order so the merge phase can stream them.
func (k Key) Less(other Key) bool {
	if k.NGram != other.NGram {
		return k.NGram < other.NGram
	}
	return k.Author < other.Author
}

// Entry is one materialized tally record.
type Entry struct {
	Key   Key
	Count uint64
}

// Tally maps (ngram, author) keys to occurrence counts. The unique-key
// invariant holds by construction: a map admits at most one count per key.
type Tally map[Key]uint64

// New creates an empty tally.
func New() Tally {
	return make(Tally)
}

// Add increments the count for a key.
func (t Tally) Add(key Key, count uint64) {
	t[key] += count
}

// Merge folds other into t, summing counts key-wise. Addition is
// commutative, so merge order never affects the result.
func (t Tally) Merge(other Tally) {
	for key, count := range other {
		t[key] += count
	}
}

// Len returns the number of distinct keys.
func (t Tally) Len() int {
	return len(t)
}

// Entries returns all tally records in unspecified order.
func (t Tally) Entries() []Entry {
	entries := make([]Entry, 0, len(t))
	for key, count := range t {
		entries = append(entries, Entry{Key: key, Count: count})
	}
	return entries
}

// SortedEntries returns all tally records ordered by key.
func (t Tally) SortedEntries() []Entry {
	entries := t.Entries()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.Less(entries[j].Key)
	})
	return entries
}

// EstimateBytes approximates the in-memory footprint of the tally. Used
// only for pressure heuristics, never for correctness decisions.
func (t Tally) EstimateBytes() uint64 {
	var total uint64
	for key := range t {
		// Map overhead plus key strings plus the count.
		total += uint64(len(key.NGram)+len(key.Author)) + 48
	}
	return total
}
