// Package historian persists cleared SOE (sequence-of-events) records to a
// SQLite store once a master has confirmed receipt. It never sits on the
// outstation's strand: the event buffer hands it a batch through a channel,
// and a background goroutine drains that channel into the database.
package historian

import (
	"strconv"
	"time"

	"github.com/bmironenko/dnp3/internal/dnp3/events"
)

// StoredEvent is the persisted row for one cleared SOE record.
type StoredEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ClearedAt time.Time `gorm:"index;not null" json:"cleared_at"`
	Type      string    `gorm:"size:32;not null" json:"type"`
	Class     string    `gorm:"size:16;not null" json:"class"`
	Index     uint32    `gorm:"not null" json:"index"`
	Variation byte      `gorm:"not null" json:"variation"`
	Value     string    `gorm:"type:text" json:"value"`
}

// TableName names the table explicitly rather than let gorm pluralize it.
func (StoredEvent) TableName() string {
	return "historian_events"
}

func newStoredEvent(r events.Record, clearedAt time.Time) StoredEvent {
	return StoredEvent{
		ClearedAt: clearedAt,
		Type:      eventTypeName(r.Type),
		Class:     classAssignerName(r.Class),
		Index:     r.Index,
		Variation: r.Variation,
		Value:     formatValue(r.Value),
	}
}

func eventTypeName(t events.EventType) string {
	switch t {
	case events.Binary:
		return "binary"
	case events.DoubleBitBinary:
		return "double_bit_binary"
	case events.Analog:
		return "analog"
	case events.Counter:
		return "counter"
	case events.FrozenCounter:
		return "frozen_counter"
	case events.BinaryOutputStatus:
		return "binary_output_status"
	case events.AnalogOutputStatus:
		return "analog_output_status"
	default:
		return "unknown"
	}
}

func classAssignerName(c events.Class) string {
	switch c {
	case events.Class1:
		return "class1"
	case events.Class2:
		return "class2"
	case events.Class3:
		return "class3"
	default:
		return "unknown"
	}
}

func formatValue(v events.Value) string {
	if v.Binary {
		return "true"
	}
	return strconv.FormatFloat(v.Numeric, 'g', -1, 64)
}
