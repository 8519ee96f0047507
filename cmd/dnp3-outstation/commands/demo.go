package commands

import (
	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
	"github.com/bmironenko/dnp3/internal/dnp3/database"
	"github.com/bmironenko/dnp3/internal/dnp3/events"
)

// seedDemoPoints populates a handful of points across every static type so
// a freshly started outstation has something to read and report on.
func seedDemoPoints(db *database.Memory) {
	db.UpdatePoint(events.Binary, 0, events.Value{Binary: true, Flags: apdu.FlagOnline})
	db.UpdatePoint(events.Binary, 1, events.Value{Binary: false, Flags: apdu.FlagOnline})
	db.UpdatePoint(events.DoubleBitBinary, 0, events.Value{Binary: true, Flags: apdu.FlagOnline})
	db.UpdatePoint(events.Analog, 0, events.Value{Numeric: 72.5, Flags: apdu.FlagOnline})
	db.UpdatePoint(events.Analog, 1, events.Value{Numeric: 13.2, Flags: apdu.FlagOnline})
	db.UpdatePoint(events.Counter, 0, events.Value{Numeric: 0, Flags: apdu.FlagOnline})
	db.UpdatePoint(events.FrozenCounter, 0, events.Value{Numeric: 0, Flags: apdu.FlagOnline})
	db.UpdatePoint(events.BinaryOutputStatus, 0, events.Value{Binary: false, Flags: apdu.FlagOnline})
	db.UpdatePoint(events.AnalogOutputStatus, 0, events.Value{Numeric: 0, Flags: apdu.FlagOnline})
}
