// Package database defines the external collaborator interfaces the
// outstation context consumes for static data, event classing and
// configuration, plus a default in-memory implementation suitable for
// demos, tests and small deployments.
package database

import (
	"sort"
	"sync"

	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
	"github.com/bmironenko/dnp3/internal/dnp3/command"
	"github.com/bmironenko/dnp3/internal/dnp3/events"
)

// StaticSelector iterates the current static value of every point of a
// given type, in ascending index order.
type StaticSelector interface {
	ForEachStatic(t events.EventType, fn func(index uint32, value events.Value))
}

// ResponseLoader renders the static points of a type into a response
// writer starting from index from, exactly as events.Buffer.Load does for
// event records. It returns the index to resume from on the next call and
// whether every point of the type has now been written; a multi-fragment
// response keeps calling with the returned index until done is true.
type ResponseLoader interface {
	LoadStatic(writer *apdu.ResponseWriter, t events.EventType, from uint32) (next uint32, done bool)
}

// ClassAssigner mutates the class a point's future events are reported
// under; backs the ASSIGN_CLASS function handler.
type ClassAssigner interface {
	AssignClass(t events.EventType, index uint32, class events.Class) error
}

// ConfigView is the subset of outstation configuration the database needs
// to know about, kept separate from the full Config struct so this package
// has no import-cycle on internal/outstation.
type ConfigView interface {
	TypesAllowedInClass0() []events.EventType
}

// Database is the full external collaborator the outstation context talks
// to: static/event data plus the command handler that executes controls.
type Database interface {
	StaticSelector() StaticSelector
	ResponseLoader() ResponseLoader
	ClassAssigner() ClassAssigner
	ConfigView() ConfigView
	Events() *events.Buffer
	Command() command.Handler
}

type point struct {
	value events.Value
	class events.Class
}

// Memory is a process-local Database backed by one map per type, keyed by
// point index. It is safe to call UpdatePoint from any goroutine;
// callers are expected to marshal access through the owning executor the
// same way a real field-device poller would.
type Memory struct {
	mu      sync.Mutex
	points  [7]map[uint32]*point
	buffer  *events.Buffer
	handler command.Handler
	class0  []events.EventType
}

// NewMemory builds an empty in-memory database over the given event buffer
// configuration. handler may be nil, in which case command.NopHandler is
// used.
func NewMemory(eventConfig events.EventBufferConfig, handler command.Handler) *Memory {
	if handler == nil {
		handler = command.NopHandler{}
	}
	m := &Memory{
		buffer:  events.NewBuffer(eventConfig),
		handler: handler,
		class0: []events.EventType{
			events.Binary, events.DoubleBitBinary, events.Analog,
			events.Counter, events.FrozenCounter,
			events.BinaryOutputStatus, events.AnalogOutputStatus,
		},
	}
	for t := range m.points {
		m.points[t] = make(map[uint32]*point)
	}
	return m
}

// UpdatePoint sets a point's current static value and appends a matching
// event under the point's assigned class. A point not seen before is
// created in Class1.
func (m *Memory) UpdatePoint(t events.EventType, index uint32, value events.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.points[t][index]
	if !ok {
		p = &point{class: events.Class1}
		m.points[t][index] = p
	}
	p.value = value
	m.buffer.Update(p.class, t, index, value, events.DefaultVariation(t))
}

// Events returns the point database's event buffer.
func (m *Memory) Events() *events.Buffer { return m.buffer }

// Command returns the point database's command handler.
func (m *Memory) Command() command.Handler { return m.handler }

func (m *Memory) StaticSelector() StaticSelector { return memoryView{m} }
func (m *Memory) ResponseLoader() ResponseLoader { return memoryView{m} }
func (m *Memory) ClassAssigner() ClassAssigner   { return memoryView{m} }
func (m *Memory) ConfigView() ConfigView         { return memoryView{m} }

type memoryView struct{ m *Memory }

func (v memoryView) ForEachStatic(t events.EventType, fn func(index uint32, value events.Value)) {
	v.m.mu.Lock()
	indices := sortedKeys(v.m.points[t])
	snapshot := make([]events.Value, len(indices))
	for i, idx := range indices {
		snapshot[i] = v.m.points[t][idx].value
	}
	v.m.mu.Unlock()

	for i, idx := range indices {
		fn(idx, snapshot[i])
	}
}

func (v memoryView) LoadStatic(writer *apdu.ResponseWriter, t events.EventType, from uint32) (uint32, bool) {
	group, variation, size, ok := staticObjectInfo(t)
	if !ok {
		return from, true
	}

	v.m.mu.Lock()
	all := sortedKeys(v.m.points[t])
	var indices []uint32
	for _, idx := range all {
		if idx >= from {
			indices = append(indices, idx)
		}
	}
	values := make(map[uint32]events.Value, len(indices))
	for _, idx := range indices {
		values[idx] = v.m.points[t][idx].value
	}
	v.m.mu.Unlock()

	if len(indices) == 0 {
		return from, true
	}
	written := writer.WriteIndexed(group, variation, indices, size, func(idx uint32) []byte {
		return encodeStaticValue(t, values[idx])
	})
	if written == len(indices) {
		return indices[len(indices)-1] + 1, true
	}
	if written == 0 {
		return from, false
	}
	return indices[written-1] + 1, false
}

func (v memoryView) AssignClass(t events.EventType, index uint32, class events.Class) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	p, ok := v.m.points[t][index]
	if !ok {
		p = &point{}
		v.m.points[t][index] = p
	}
	p.class = class
	return nil
}

func (v memoryView) TypesAllowedInClass0() []events.EventType {
	return v.m.class0
}

func sortedKeys(m map[uint32]*point) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func staticObjectInfo(t events.EventType) (group, variation byte, size int, ok bool) {
	switch t {
	case events.Binary:
		return apdu.GroupBinaryInput, apdu.VarBinaryInputFlags, 1, true
	case events.DoubleBitBinary:
		return apdu.GroupDoubleBitBinary, apdu.VarDoubleBitBinaryFlags, 1, true
	case events.Analog:
		return apdu.GroupAnalogInput, apdu.VarAnalogInput32, 5, true
	case events.Counter:
		return apdu.GroupCounter, apdu.VarCounter32, 5, true
	case events.FrozenCounter:
		return apdu.GroupFrozenCounter, apdu.VarFrozenCounter32, 5, true
	case events.BinaryOutputStatus:
		return apdu.GroupBinaryOutputStatus, apdu.VarBinaryOutputStatusFlags, 1, true
	case events.AnalogOutputStatus:
		return apdu.GroupAnalogOutputStatus, apdu.VarAnalogOutputStatus32, 5, true
	default:
		return 0, 0, 0, false
	}
}

func encodeStaticValue(t events.EventType, v events.Value) []byte {
	switch t {
	case events.Binary, events.DoubleBitBinary, events.BinaryOutputStatus:
		bv := apdu.BinaryValue{Value: v.Binary, Flags: v.Flags}
		return []byte{bv.Encode()}
	case events.Analog, events.Counter, events.FrozenCounter, events.AnalogOutputStatus:
		nv := apdu.NumericValue{Value: v.Numeric, Flags: v.Flags}
		enc := nv.Encode()
		return enc[:]
	default:
		return nil
	}
}
