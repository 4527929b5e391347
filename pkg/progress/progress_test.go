package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func TestMonotonicSink_ClampsBackwardProgress(t *testing.T) {
	capture := &captureSink{}
	sink := NewMonotonicSink(capture)

	// Out-of-order completions from parallel workers.
	sink.Publish(Event{Step: "spill", Completed: 3})
	sink.Publish(Event{Step: "spill", Completed: 1})
	sink.Publish(Event{Step: "spill", Completed: 5})

	require.Len(t, capture.events, 3)
	assert.Equal(t, uint64(3), capture.events[0].Completed)
	assert.Equal(t, uint64(3), capture.events[1].Completed, "backward progress must clamp to the high mark")
	assert.Equal(t, uint64(5), capture.events[2].Completed)
}

func TestMonotonicSink_StepsAreIndependent(t *testing.T) {
	capture := &captureSink{}
	sink := NewMonotonicSink(capture)

	sink.Publish(Event{Step: "spill", Completed: 10})
	sink.Publish(Event{Step: "merge", Completed: 2})

	require.Len(t, capture.events, 2)
	assert.Equal(t, uint64(2), capture.events[1].Completed, "merge starts from its own high mark")
}

func TestMonotonicSink_PassesTotalThrough(t *testing.T) {
	capture := &captureSink{}
	sink := NewMonotonicSink(capture)

	total := uint64(7)
	sink.Publish(Event{Step: "aggregate", Completed: 4, Total: &total})

	require.Len(t, capture.events, 1)
	require.NotNil(t, capture.events[0].Total)
	assert.Equal(t, uint64(7), *capture.events[0].Total)
}
