// Package events implements the bounded sequence-of-events buffer that
// backs class-based event reporting for a DNP3 outstation.
package events

import "github.com/bmironenko/dnp3/internal/dnp3/apdu"

// EventType is the closed set of point kinds this engine generates events
// for.
type EventType int

const (
	Binary EventType = iota
	DoubleBitBinary
	Analog
	Counter
	FrozenCounter
	BinaryOutputStatus
	AnalogOutputStatus

	numEventTypes
)

func (t EventType) String() string {
	switch t {
	case Binary:
		return "Binary"
	case DoubleBitBinary:
		return "DoubleBitBinary"
	case Analog:
		return "Analog"
	case Counter:
		return "Counter"
	case FrozenCounter:
		return "FrozenCounter"
	case BinaryOutputStatus:
		return "BinaryOutputStatus"
	case AnalogOutputStatus:
		return "AnalogOutputStatus"
	default:
		return "Unknown"
	}
}

// Class is one of the three DNP3 event classes a point may be assigned to.
type Class int

const (
	Class1 Class = iota
	Class2
	Class3

	numClasses
)

// ClassField is a bitmask over Class1..Class3, used to select events for a
// response by class.
type ClassField uint8

const (
	ClassFieldNone   ClassField = 0
	ClassFieldClass1 ClassField = 1 << Class1
	ClassFieldClass2 ClassField = 1 << Class2
	ClassFieldClass3 ClassField = 1 << Class3
	ClassFieldAll    ClassField = ClassFieldClass1 | ClassFieldClass2 | ClassFieldClass3
)

// Contains reports whether c is set in the mask.
func (f ClassField) Contains(c Class) bool {
	return f&(1<<uint(c)) != 0
}

// Set returns the mask with c added.
func (f ClassField) Set(c Class) ClassField {
	return f | (1 << uint(c))
}

// Value is the tagged union of data an event record can carry: a boolean
// state for binary-family points, a numeric magnitude for analog/counter
// points, and the shared one-byte quality flags.
type Value struct {
	Binary  bool
	Numeric float64
	Flags   apdu.PointFlags
}

// EventBufferConfig gives the maximum number of retained events per type; a
// zero entry disables event generation for that type entirely.
type EventBufferConfig struct {
	MaxBinary             int
	MaxDoubleBitBinary    int
	MaxAnalog             int
	MaxCounter            int
	MaxFrozenCounter      int
	MaxBinaryOutputStatus int
	MaxAnalogOutputStatus int
}

// MaxFor returns the configured capacity for a single event type.
func (c EventBufferConfig) MaxFor(t EventType) int {
	switch t {
	case Binary:
		return c.MaxBinary
	case DoubleBitBinary:
		return c.MaxDoubleBitBinary
	case Analog:
		return c.MaxAnalog
	case Counter:
		return c.MaxCounter
	case FrozenCounter:
		return c.MaxFrozenCounter
	case BinaryOutputStatus:
		return c.MaxBinaryOutputStatus
	case AnalogOutputStatus:
		return c.MaxAnalogOutputStatus
	default:
		return 0
	}
}

func (c EventBufferConfig) capacity() int {
	total := 0
	for t := EventType(0); t < numEventTypes; t++ {
		total += c.MaxFor(t)
	}
	return total
}

// DefaultEventBufferConfig returns the conservative defaults this engine
// ships with: 100 slots per type, enough for demos and tests.
func DefaultEventBufferConfig() EventBufferConfig {
	return EventBufferConfig{
		MaxBinary:             100,
		MaxDoubleBitBinary:    100,
		MaxAnalog:             100,
		MaxCounter:            100,
		MaxFrozenCounter:      100,
		MaxBinaryOutputStatus: 100,
		MaxAnalogOutputStatus: 100,
	}
}

// EventCount is the two-dimensional (class, type) counter the event buffer
// maintains three independent instances of: total, selected, written.
type EventCount struct {
	cells [numClasses][numEventTypes]int
}

// Add adjusts the (class, type) cell by delta.
func (c *EventCount) Add(class Class, t EventType, delta int) {
	c.cells[class][t] += delta
}

// Get returns the (class, type) cell value.
func (c *EventCount) Get(class Class, t EventType) int {
	return c.cells[class][t]
}

// TotalForType sums a cell across all three classes.
func (c *EventCount) TotalForType(t EventType) int {
	sum := 0
	for class := Class(0); class < numClasses; class++ {
		sum += c.cells[class][t]
	}
	return sum
}

// TotalForClass sums a cell across all event types.
func (c *EventCount) TotalForClass(class Class) int {
	sum := 0
	for t := EventType(0); t < numEventTypes; t++ {
		sum += c.cells[class][t]
	}
	return sum
}

// Reset zeroes every cell.
func (c *EventCount) Reset() {
	for class := range c.cells {
		for t := range c.cells[class] {
			c.cells[class][t] = 0
		}
	}
}
