// Package outstation implements the DNP3 outstation application context:
// the fragment-driven state machine that sequences solicited and
// unsolicited responses over a lower layer, against a point database.
package outstation

import (
	"time"

	"github.com/bmironenko/dnp3/internal/dnp3/events"
)

// IndexMode selects whether point indices are assumed contiguous from zero
// (letting READ-by-class responses omit explicit indices in some wire
// variations) or discontiguous (always index-prefixed).
type IndexMode int

const (
	Contiguous IndexMode = iota
	Discontiguous
)

// Config is the full configuration surface a deployment tunes per channel.
type Config struct {
	IndexMode             IndexMode
	MaxControlsPerRequest uint16
	SelectTimeout         time.Duration
	SolConfirmTimeout     time.Duration
	UnsolConfirmTimeout   time.Duration
	UnsolRetryTimeout     time.Duration
	MaxTxFragSize         int
	MaxRxFragSize         int
	AllowUnsolicited      bool
	IgnoreRepeatReads     bool
	TypesAllowedInClass0  []events.EventType
	UnsolClassMask        events.ClassField
}

// DefaultConfig returns the conservative defaults named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		IndexMode:             Contiguous,
		MaxControlsPerRequest: 16,
		SelectTimeout:         10 * time.Second,
		SolConfirmTimeout:     5 * time.Second,
		UnsolConfirmTimeout:   5 * time.Second,
		UnsolRetryTimeout:     5 * time.Second,
		MaxTxFragSize:         2048,
		MaxRxFragSize:         2048,
		AllowUnsolicited:      false,
		IgnoreRepeatReads:     true,
		TypesAllowedInClass0: []events.EventType{
			events.Binary, events.DoubleBitBinary, events.Analog,
			events.Counter, events.FrozenCounter,
			events.BinaryOutputStatus, events.AnalogOutputStatus,
		},
		UnsolClassMask: events.ClassFieldAll,
	}
}
