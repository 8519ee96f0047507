package historian

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmironenko/dnp3/internal/dnp3/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "historian.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreAppendAndRecent(t *testing.T) {
	store := openTestStore(t)

	rows := []StoredEvent{
		newStoredEvent(events.Record{Type: events.Binary, Class: events.Class2, Index: 5, Value: events.Value{Binary: true}, Variation: 2}, time.Now()),
		newStoredEvent(events.Record{Type: events.Analog, Class: events.Class1, Index: 7, Value: events.Value{Numeric: 12.5}, Variation: 1}, time.Now()),
	}
	require.NoError(t, store.Append(rows))

	recent, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "analog", recent[0].Type, "Recent orders newest first")
	assert.Equal(t, uint32(7), recent[0].Index)
}

func TestStoreAppendEmptyIsNoop(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.Append(nil))
	recent, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestSinkPersistsBatchesAsynchronously(t *testing.T) {
	store := openTestStore(t)
	sink := NewSink(store)
	defer sink.Close()

	sink.OnClear([]events.Record{
		{Type: events.Counter, Class: events.Class3, Index: 1, Value: events.Value{Numeric: 42}, Variation: 1},
	})

	require.Eventually(t, func() bool {
		rows, err := store.Recent(10)
		return err == nil && len(rows) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSinkDropsWhenQueueFull(t *testing.T) {
	store := openTestStore(t)
	sink := &Sink{store: store, batches: make(chan []events.Record), done: make(chan struct{})}
	close(sink.done)

	// No reader is running (run() was never started), so the unbuffered
	// channel send always falls to the default branch: OnClear must not
	// block the caller.
	done := make(chan struct{})
	go func() {
		sink.OnClear([]events.Record{{Type: events.Binary, Index: 1}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnClear blocked instead of dropping the batch")
	}
}
