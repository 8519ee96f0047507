package events

import (
	"testing"

	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
	"github.com/stretchr/testify/assert"
)

func newTestBuffer(binaryCap int) *Buffer {
	cfg := EventBufferConfig{MaxBinary: binaryCap}
	return NewBuffer(cfg)
}

func TestUpdateAndSelectAllByClassRoundTrip(t *testing.T) {
	b := newTestBuffer(10)
	b.Update(Class1, Binary, 1, Value{Binary: true}, apdu.VarBinaryInputEventFlags)
	b.Update(Class2, Binary, 2, Value{Binary: false}, apdu.VarBinaryInputEventFlags)

	n := b.SelectAllByClass(ClassFieldAll)
	assert.Equal(t, 2, n)

	w := apdu.NewResponseWriter(256)
	complete := b.Load(w)
	assert.True(t, complete)

	b.ClearWritten()
	assert.Equal(t, 0, b.Total().TotalForType(Binary))
}

// Scenario: event overflow (spec.md §8, scenario 3).
func TestOverflowEvictsOldestOfType(t *testing.T) {
	b := newTestBuffer(3)
	for idx := uint32(1); idx <= 4; idx++ {
		b.Update(Class1, Binary, idx, Value{Binary: true}, apdu.VarBinaryInputEventFlags)
	}

	assert.True(t, b.Overflow())
	assert.Equal(t, 3, b.Total().TotalForType(Binary))

	var surviving []uint32
	for slot := b.head; slot != sentinel; slot = b.records[slot].next {
		surviving = append(surviving, b.records[slot].Index)
	}
	assert.Equal(t, []uint32{2, 3, 4}, surviving)

	assert.True(t, b.UnwrittenClassField().Contains(Class1))
}

func TestOverflowClearsOnlyWhenSpareCapacityForAllTypes(t *testing.T) {
	b := newTestBuffer(2)
	b.Update(Class1, Binary, 1, Value{Binary: true}, apdu.VarBinaryInputEventFlags)
	b.Update(Class1, Binary, 2, Value{Binary: true}, apdu.VarBinaryInputEventFlags)
	b.Update(Class1, Binary, 3, Value{Binary: true}, apdu.VarBinaryInputEventFlags)
	assert.True(t, b.Overflow())

	b.SelectAllByClass(ClassFieldAll)
	w := apdu.NewResponseWriter(256)
	b.Load(w)
	b.ClearWritten()

	assert.False(t, b.Overflow())
}

func TestOnClearReceivesRemovedRecords(t *testing.T) {
	b := newTestBuffer(10)
	b.Update(Class2, Binary, 5, Value{Binary: true}, apdu.VarBinaryInputEventFlags)

	var cleared []Record
	b.SetOnClear(func(r []Record) { cleared = append(cleared, r...) })

	b.SelectAllByClass(ClassFieldAll)
	w := apdu.NewResponseWriter(256)
	b.Load(w)
	b.ClearWritten()

	a := assert.New(t)
	a.Len(cleared, 1)
	a.Equal(uint32(5), cleared[0].Index)
	a.Equal(Class2, cleared[0].Class)
	a.Equal(Binary, cleared[0].Type)

	cleared = nil
	b.ClearWritten()
	a.Empty(cleared)
}

func TestUnselectResetsSelectionState(t *testing.T) {
	b := newTestBuffer(10)
	b.Update(Class1, Binary, 1, Value{Binary: true}, apdu.VarBinaryInputEventFlags)
	b.SelectAllByClass(ClassFieldAll)
	assert.Equal(t, 1, b.Selected().TotalForType(Binary))

	b.Unselect()
	assert.Equal(t, 0, b.Selected().TotalForType(Binary))
	assert.Equal(t, 1, b.Total().TotalForType(Binary))
}

func TestSelectionIsIdempotent(t *testing.T) {
	b := newTestBuffer(10)
	b.Update(Class1, Binary, 1, Value{Binary: true}, apdu.VarBinaryInputEventFlags)

	first := b.SelectAllByClass(ClassFieldAll)
	second := b.SelectAllByClass(ClassFieldAll)
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

// P1: 0 <= written <= selected <= total <= maxFor(type), for every class/type.
func TestCountInvariantP1(t *testing.T) {
	b := newTestBuffer(5)
	for i := uint32(1); i <= 3; i++ {
		b.Update(Class1, Binary, i, Value{Binary: true}, apdu.VarBinaryInputEventFlags)
	}
	b.SelectByType(Binary, 2, 0)

	w := apdu.NewResponseWriter(256)
	b.Load(w)

	for class := Class(0); class < numClasses; class++ {
		written := b.Written().Get(class, Binary)
		selected := b.Selected().Get(class, Binary)
		total := b.Total().Get(class, Binary)
		assert.LessOrEqual(t, 0, written)
		assert.LessOrEqual(t, written, selected)
		assert.LessOrEqual(t, selected, total)
	}
	assert.LessOrEqual(t, b.Total().TotalForType(Binary), 5)
}
