// Package engine implements the memory-aware processing core of GramForge.
//
// # Pipeline
//
// A run flows through four stages, all owned by the Orchestrator:
//
//  1. Estimate: the RowSource reports an approximate row count and average
//     row size. Both are treated as hints, never as exact values.
//  2. Budget: a machine-class tier table maps total system memory to an
//     advisory allocation ceiling with warn and critical pressure
//     thresholds (see Budget).
//  3. Selection: the StrategySelector admits the run to exactly one tier;
//     borderline estimates land on the safer tier (see Tier).
//  4. Execution: StreamingAggregator runs the in-memory and chunked
//     tiers; ExternalSortExtractor runs the disk-backed external
//     sort-merge.
//
// The tier never changes mid-run. What adapts at runtime is a tier's
// internal working set: chunked runs shrink their chunk size when memory
// pressure crosses the warn threshold, and disk-backed runs shrink their
// spill batch size the same way.
//
// # Invariants
//
// Every tier produces the same output for the same input: one entry per
// (n-gram, author) key with its total count, emitted in ascending key
// order. Partial output is never produced; a failed or cancelled run
// leaves the sink incomplete only in the sense of missing batches, never
// of wrong counts. Disk-backed runs remove every temporary segment no
// later than run completion or abort, on success and failure alike.
package engine
