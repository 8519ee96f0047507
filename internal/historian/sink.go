package historian

import (
	"time"

	"github.com/bmironenko/dnp3/internal/dnp3/events"
	"github.com/bmironenko/dnp3/internal/logger"
)

// batchQueueSize bounds how many ClearWritten batches can be pending before
// the sink starts dropping them; a historian falling behind must never
// apply backpressure to the strand that feeds it.
const batchQueueSize = 256

// Sink drains ClearWritten batches off a channel and writes them to a
// Store on its own goroutine, so a slow disk never touches the strand that
// calls events.Buffer.SetOnClear.
type Sink struct {
	store   *Store
	batches chan []events.Record
	done    chan struct{}
}

// NewSink starts the background writer goroutine.
func NewSink(store *Store) *Sink {
	s := &Sink{
		store:   store,
		batches: make(chan []events.Record, batchQueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// OnClear is installed via events.Buffer.SetOnClear. It must not block: a
// full queue means the historian is falling behind, and the batch is
// dropped rather than stalling the caller.
func (s *Sink) OnClear(records []events.Record) {
	select {
	case s.batches <- records:
	default:
		logger.Warn("historian queue full, dropping cleared-event batch", "count", len(records))
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for records := range s.batches {
		clearedAt := time.Now()
		rows := make([]StoredEvent, len(records))
		for i, r := range records {
			rows[i] = newStoredEvent(r, clearedAt)
		}
		if err := s.store.Append(rows); err != nil {
			logger.Error("historian failed to persist cleared events", "error", err)
		}
	}
}

// Close stops accepting new batches and waits for the writer goroutine to
// drain what is already queued.
func (s *Sink) Close() error {
	close(s.batches)
	<-s.done
	return s.store.Close()
}
