package outstation

import (
	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
	"github.com/bmironenko/dnp3/internal/dnp3/database"
	"github.com/bmironenko/dnp3/internal/dnp3/events"
)

// responseContext is the stateful cursor a multi-fragment READ response
// resumes from: which static types (and indices within a type) still need
// rendering, and whether the event buffer still has selected-unwritten
// records. A fresh READ replaces it; CONFIRM with more data pending asks it
// to render the next fragment.
type responseContext struct {
	staticTypes  []events.EventType
	staticCursor map[events.EventType]uint32
	staticDone   map[events.EventType]bool
	eventsWanted bool
	finished     bool
}

func newResponseContext(types []events.EventType, eventsWanted bool) *responseContext {
	rc := &responseContext{
		staticTypes:  append([]events.EventType(nil), types...),
		staticCursor: make(map[events.EventType]uint32),
		staticDone:   make(map[events.EventType]bool),
		eventsWanted: eventsWanted,
	}
	return rc
}

// buildFragment renders as much of the remaining static and event data into
// writer as fits, returning whether everything has now been written (i.e.
// this is the final fragment of the response).
func (rc *responseContext) buildFragment(writer *apdu.ResponseWriter, db database.Database) bool {
	loader := db.ResponseLoader()
	for _, t := range rc.staticTypes {
		if rc.staticDone[t] {
			continue
		}
		next, done := loader.LoadStatic(writer, t, rc.staticCursor[t])
		rc.staticCursor[t] = next
		rc.staticDone[t] = done
		if !done {
			return false
		}
	}

	if rc.eventsWanted {
		complete := db.Events().Load(writer)
		if !complete {
			return false
		}
	}
	rc.finished = true
	return true
}
