package events

import "github.com/bmironenko/dnp3/internal/dnp3/apdu"

const sentinel = -1

// record is one SOE arena slot. Links are indices into Buffer.records so
// the list survives without per-node heap allocation and removal stays O(1).
type record struct {
	inUse             bool
	prev, next        int
	Type              EventType
	Class             Class
	Index             uint32
	Value             Value
	DefaultVariation  byte
	SelectedVariation byte
	Selected          bool
	Written           bool
}

// Record is a read-only snapshot of one cleared event, handed to an
// OnClear callback. It exists so a sink outside the strand (a historian)
// can observe what was removed without holding a reference into the
// arena itself.
type Record struct {
	Type      EventType
	Class     Class
	Index     uint32
	Value     Value
	Variation byte
}

// Buffer is the bounded, arena-backed sequence-of-events store described by
// the engine's event-buffer component: every operation below assumes
// single-threaded (strand-confined) access and takes no lock.
type Buffer struct {
	config   EventBufferConfig
	records  []record
	freeList []int
	head     int
	tail     int

	total    EventCount
	selected EventCount
	written  EventCount
	overflow bool

	onClear func([]Record)
}

// SetOnClear installs a callback invoked synchronously from ClearWritten
// with every record removed in that call, oldest first. The callback runs
// on the strand like everything else touching the buffer, so it must not
// block; a historian sink is expected to hand the slice to a channel and
// return immediately.
func (b *Buffer) SetOnClear(fn func([]Record)) {
	b.onClear = fn
}

// NewBuffer allocates an arena sized to the sum of the configured per-type
// capacities.
func NewBuffer(config EventBufferConfig) *Buffer {
	n := config.capacity()
	b := &Buffer{
		config:   config,
		records:  make([]record, n),
		freeList: make([]int, n),
		head:     sentinel,
		tail:     sentinel,
	}
	for i := 0; i < n; i++ {
		b.freeList[i] = n - 1 - i
	}
	return b
}

// Overflow reports whether the latch set by a past eviction is still armed.
func (b *Buffer) Overflow() bool { return b.overflow }

// Total, Selected and Written expose read-only views of the three counters
// for metrics and IIN assembly.
func (b *Buffer) Total() EventCount    { return b.total }
func (b *Buffer) Selected() EventCount { return b.selected }
func (b *Buffer) Written() EventCount  { return b.written }

// Update appends a new event of the given type/class, evicting the oldest
// record of the same type first if the type is at its configured capacity
// or the arena has no free slot.
func (b *Buffer) Update(class Class, t EventType, index uint32, value Value, defaultVariation byte) {
	limit := b.config.MaxFor(t)
	if limit == 0 {
		return
	}
	if b.total.TotalForType(t) >= limit || len(b.freeList) == 0 {
		b.evictOldest(t)
		b.overflow = true
	}

	slot := b.allocSlot()
	b.records[slot] = record{
		inUse:            true,
		prev:             b.tail,
		next:             sentinel,
		Type:             t,
		Class:            class,
		Index:            index,
		Value:            value,
		DefaultVariation: defaultVariation,
	}
	if b.tail != sentinel {
		b.records[b.tail].next = slot
	}
	b.tail = slot
	if b.head == sentinel {
		b.head = slot
	}
	b.total.Add(class, t, 1)
}

func (b *Buffer) allocSlot() int {
	n := len(b.freeList) - 1
	slot := b.freeList[n]
	b.freeList = b.freeList[:n]
	return slot
}

func (b *Buffer) evictOldest(t EventType) {
	for slot := b.head; slot != sentinel; slot = b.records[slot].next {
		if b.records[slot].Type != t {
			continue
		}
		r := b.records[slot]
		b.total.Add(r.Class, r.Type, -1)
		if r.Selected {
			b.selected.Add(r.Class, r.Type, -1)
		}
		if r.Written {
			b.written.Add(r.Class, r.Type, -1)
		}
		b.removeSlot(slot)
		return
	}
}

func (b *Buffer) removeSlot(slot int) {
	r := b.records[slot]
	if r.prev != sentinel {
		b.records[r.prev].next = r.next
	} else {
		b.head = r.next
	}
	if r.next != sentinel {
		b.records[r.next].prev = r.prev
	} else {
		b.tail = r.prev
	}
	b.records[slot] = record{}
	b.freeList = append(b.freeList, slot)
}

// SelectAllByClass marks every unselected record whose class is in mask as
// selected, using each record's default variation. Returns the number
// newly selected.
func (b *Buffer) SelectAllByClass(mask ClassField) int {
	count := 0
	for slot := b.head; slot != sentinel; slot = b.records[slot].next {
		r := &b.records[slot]
		if r.Selected || !mask.Contains(r.Class) {
			continue
		}
		r.Selected = true
		r.SelectedVariation = r.DefaultVariation
		b.selected.Add(r.Class, r.Type, 1)
		count++
	}
	return count
}

// SelectByType marks up to max unselected records of type t as selected,
// using variation if nonzero or each record's default variation otherwise.
// Returns the number newly selected.
func (b *Buffer) SelectByType(t EventType, max int, variation byte) int {
	count := 0
	for slot := b.head; slot != sentinel && count < max; slot = b.records[slot].next {
		r := &b.records[slot]
		if r.Type != t || r.Selected {
			continue
		}
		v := variation
		if v == 0 {
			v = r.DefaultVariation
		}
		r.Selected = true
		r.SelectedVariation = v
		b.selected.Add(r.Class, r.Type, 1)
		count++
	}
	return count
}

// SelectAllByType marks every unselected record of type t as selected.
func (b *Buffer) SelectAllByType(t EventType, variation byte) int {
	return b.SelectByType(t, b.total.TotalForType(t), variation)
}

// Unselect clears the Selected and Written flags on every record and zeroes
// the selected/written counters. Used on a fresh READ request and on
// channel reset.
func (b *Buffer) Unselect() {
	for slot := b.head; slot != sentinel; slot = b.records[slot].next {
		r := &b.records[slot]
		r.Selected = false
		r.Written = false
	}
	b.selected.Reset()
	b.written.Reset()
}

// Load emits object headers for every selected-not-written record, grouping
// consecutive records that share (type, selectedVariation), until either
// the writer runs out of room or every selected record has been written.
// Emitted records have Written set and the written counter incremented.
// Returns true if every selected record was written.
func (b *Buffer) Load(writer *apdu.ResponseWriter) bool {
	for {
		slot := b.firstSelectedUnwritten()
		if slot == sentinel {
			return true
		}
		t := b.records[slot].Type
		variation := b.records[slot].SelectedVariation
		group, _ := groupFor(t)

		var batch []int
		for s := slot; s != sentinel; s = b.records[s].next {
			r := &b.records[s]
			if !r.Selected || r.Written {
				continue
			}
			if r.Type != t || r.SelectedVariation != variation {
				continue
			}
			batch = append(batch, s)
		}
		if len(batch) == 0 {
			return true
		}

		indices := make([]uint32, len(batch))
		for i, s := range batch {
			indices[i] = b.records[s].Index
		}
		size := objectSize(t, variation)
		n := writer.WriteIndexed(group, variation, indices, size, func(idx uint32) []byte {
			for _, s := range batch {
				if b.records[s].Index == idx {
					return encodeEventValue(t, variation, b.records[s].Value)
				}
			}
			return make([]byte, size)
		})
		if n == 0 {
			return false
		}
		for i := 0; i < n; i++ {
			s := batch[i]
			r := &b.records[s]
			r.Written = true
			b.written.Add(r.Class, r.Type, 1)
		}
		if n < len(batch) {
			return false
		}
	}
}

func (b *Buffer) firstSelectedUnwritten() int {
	for slot := b.head; slot != sentinel; slot = b.records[slot].next {
		r := &b.records[slot]
		if r.Selected && !r.Written {
			return slot
		}
	}
	return sentinel
}

// ClearWritten removes every written record from the arena, decrements the
// total counters by the removed amounts, and clears the overflow latch if
// every configured type now has spare capacity.
func (b *Buffer) ClearWritten() {
	var toRemove []int
	for slot := b.head; slot != sentinel; slot = b.records[slot].next {
		if b.records[slot].Written {
			toRemove = append(toRemove, slot)
		}
	}

	var cleared []Record
	if b.onClear != nil && len(toRemove) > 0 {
		cleared = make([]Record, 0, len(toRemove))
	}
	for _, slot := range toRemove {
		r := b.records[slot]
		b.total.Add(r.Class, r.Type, -1)
		b.selected.Add(r.Class, r.Type, -1)
		b.written.Add(r.Class, r.Type, -1)
		if cleared != nil {
			cleared = append(cleared, Record{
				Type: r.Type, Class: r.Class, Index: r.Index,
				Value: r.Value, Variation: r.SelectedVariation,
			})
		}
		b.removeSlot(slot)
	}
	if cleared != nil {
		b.onClear(cleared)
	}

	if b.overflow && b.hasSpareCapacityForAllTypes() {
		b.overflow = false
	}
}

func (b *Buffer) hasSpareCapacityForAllTypes() bool {
	for t := EventType(0); t < numEventTypes; t++ {
		limit := b.config.MaxFor(t)
		if limit == 0 {
			continue
		}
		if b.total.TotalForType(t) >= limit {
			return false
		}
	}
	return true
}

// UnwrittenClassField returns the set of classes that still have at least
// one present-but-unwritten event, i.e. total - written > 0 for that class.
func (b *Buffer) UnwrittenClassField() ClassField {
	var f ClassField
	for class := Class(0); class < numClasses; class++ {
		if b.total.TotalForClass(class)-b.written.TotalForClass(class) > 0 {
			f = f.Set(class)
		}
	}
	return f
}
