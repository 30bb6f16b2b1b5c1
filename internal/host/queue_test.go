package host

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/patchwork/internal/ir"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for _, id := range []ir.ModuleID{"A", "B", "C"} {
		require.True(t, q.Enqueue(Event{Type: EventSource, Module: id}))
	}

	for _, want := range []ir.ModuleID{"A", "B", "C"} {
		ev, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, ev.Module)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(Event{Type: EventSource, Module: "1"})
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(Event{Type: EventSource, Module: "2"}))
	assert.False(t, q.Drained(), "closed but not empty")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Drained())

	select {
	case <-q.Wait():
	default:
		t.Fatal("Wait should fire after Close")
	}
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(Event{Type: EventSource})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
}
