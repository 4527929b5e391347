// Package progress defines the progress-reporting contract between the
// processing engine and its UI collaborators.
package progress

import (
	"sync"

	"go.uber.org/zap"
)

// Event is one progress update. Total is nil when the executing component
// cannot bound the work ahead of time (the disk-backed spill phase reads
// until the source is drained).
type Event struct {
	Step      string
	Completed uint64
	Total     *uint64
}

// Sink consumes progress events. Implementations must tolerate frequent
// calls (once per chunk or batch) without meaningfully blocking the
// pipeline; the engine treats Publish as fire-and-forget.
type Sink interface {
	Publish(Event)
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(Event) {}

// LogSink writes progress events to a structured logger at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging to the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish implements Sink.
func (s *LogSink) Publish(ev Event) {
	fields := []zap.Field{
		zap.String("step", ev.Step),
		zap.Uint64("completed", ev.Completed),
	}
	if ev.Total != nil {
		fields = append(fields, zap.Uint64("total", *ev.Total))
	}
	s.logger.Debug("progress", fields...)
}

// MonotonicSink wraps a sink and enforces non-decreasing Completed values
// per step, so out-of-order worker completions never move progress
// backwards.
type MonotonicSink struct {
	next Sink

	mu   sync.Mutex
	high map[string]uint64
}

// NewMonotonicSink wraps next with monotonicity enforcement.
func NewMonotonicSink(next Sink) *MonotonicSink {
	return &MonotonicSink{next: next, high: make(map[string]uint64)}
}

// Publish implements Sink. Events with a Completed value below the high
// water mark for their step are clamped up, never dropped, so totals still
// flow through.
func (s *MonotonicSink) Publish(ev Event) {
	s.mu.Lock()
	if ev.Completed < s.high[ev.Step] {
		ev.Completed = s.high[ev.Step]
	} else {
		s.high[ev.Step] = ev.Completed
	}
	s.mu.Unlock()

	s.next.Publish(ev)
}
