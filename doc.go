// Package gramforge provides a memory-aware engine for aggregating
// per-author token n-gram frequencies over message datasets of any size.
//
// GramForge probes available system memory at startup, derives an advisory
// allocation budget from a machine-class tier table, and adapts its
// processing strategy so that a run completes within that budget instead of
// exhausting the host:
//
//   - In-memory: the whole dataset is aggregated in a single pass.
//   - Chunked: the dataset is processed as memory-bounded row ranges whose
//     size shrinks under memory pressure.
//   - Disk-backed: a two-phase external sort-merge spills sorted partial
//     tallies to compressed temporary segments and streams them back
//     through a k-way merge.
//
// Whichever tier runs, the output is identical: every (n-gram, author) key
// appears exactly once with its total count, in ascending key order.
//
// # Quick Start
//
//	import (
//	    "context"
//	    "github.com/gramforge/gramforge/pkg/config"
//	    "github.com/gramforge/gramforge/pkg/engine"
//	    "github.com/gramforge/gramforge/pkg/progress"
//	    "github.com/gramforge/gramforge/pkg/sysmem"
//	)
//
//	monitor, _ := sysmem.NewSystemMonitor()
//	orch, _ := engine.NewOrchestrator(config.DefaultConfig(), monitor, logger)
//	result, err := orch.Execute(context.Background(), source, sink, progress.NopSink{})
//
// # Package Layout
//
//   - pkg/engine: budget, chunk planning, tier selection, and the three
//     tier executors behind a single orchestrator
//   - pkg/analyzer/ngram: tokenization and n-gram extraction
//   - pkg/columnar: the fixed-width batch format exchanged through the
//     engine
//   - pkg/tally: the (n-gram, author) count aggregate
//   - pkg/source, pkg/sink: CSV input and output adapters
//   - pkg/sysmem: system memory detection and synthetic monitors
//   - pkg/compression: spill segment compression codecs
//   - pkg/config, pkg/logger, pkg/metrics, pkg/errors: ambient concerns
package gramforge
