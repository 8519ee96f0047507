package events

import "github.com/bmironenko/dnp3/internal/dnp3/apdu"

// groupFor returns the event object group this engine reports a type under.
// Variation is carried separately (selectedVariation on the record) since a
// master may have asked for a specific one via the READ request's qualifier.
func groupFor(t EventType) (byte, bool) {
	switch t {
	case Binary:
		return apdu.GroupBinaryInputEvent, true
	case DoubleBitBinary:
		return apdu.GroupDoubleBitBinaryEvent, true
	case Analog:
		return apdu.GroupAnalogInputEvent, true
	case Counter:
		return apdu.GroupCounterEvent, true
	case FrozenCounter:
		return apdu.GroupFrozenCounterEvent, true
	case BinaryOutputStatus:
		return apdu.GroupBinaryOutputEvent, true
	case AnalogOutputStatus:
		return apdu.GroupAnalogOutputEvent, true
	default:
		return 0, false
	}
}

// DefaultVariation returns the variation this engine defaults an event type
// to when a selection does not request a specific one.
func DefaultVariation(t EventType) byte {
	switch t {
	case Binary:
		return apdu.VarBinaryInputEventFlags
	case DoubleBitBinary:
		return apdu.VarDoubleBitBinaryEventFlags
	case Analog:
		return apdu.VarAnalogInputEvent32
	case Counter:
		return apdu.VarCounterEvent32
	case FrozenCounter:
		return apdu.VarFrozenCounterEvent32
	case BinaryOutputStatus:
		return apdu.VarBinaryOutputEventFlags
	case AnalogOutputStatus:
		return apdu.VarAnalogOutputEvent32
	default:
		return 0
	}
}

// objectSize returns the wire size of one event object for (t, variation).
// Every type this engine supports uses a single fixed-size rendering
// regardless of the requested variation (see DESIGN.md on the simplified
// object model), so variation is accepted but currently unused.
func objectSize(t EventType, _ byte) int {
	switch t {
	case Binary, DoubleBitBinary, BinaryOutputStatus:
		return 1
	case Analog, Counter, FrozenCounter, AnalogOutputStatus:
		return 5
	default:
		return 0
	}
}

func encodeEventValue(t EventType, _ byte, v Value) []byte {
	switch t {
	case Binary, DoubleBitBinary, BinaryOutputStatus:
		bv := apdu.BinaryValue{Value: v.Binary, Flags: v.Flags}
		return []byte{bv.Encode()}
	case Analog, Counter, FrozenCounter, AnalogOutputStatus:
		nv := apdu.NumericValue{Value: v.Numeric, Flags: v.Flags}
		enc := nv.Encode()
		return enc[:]
	default:
		return nil
	}
}
