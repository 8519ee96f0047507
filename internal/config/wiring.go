package config

import (
	"github.com/bmironenko/dnp3/internal/dnp3/events"
	"github.com/bmironenko/dnp3/internal/dnp3/outstation"
)

// ToOutstationConfig builds an outstation.Config from the loaded
// configuration, starting from outstation.DefaultConfig for the fields
// this engine does not expose as operator-tunable (index mode, max
// controls per request, class 0 membership).
func (c OutstationConfig) ToOutstationConfig() outstation.Config {
	cfg := outstation.DefaultConfig()
	cfg.SelectTimeout = c.SelectTimeout
	cfg.SolConfirmTimeout = c.SolConfirmTimeout
	cfg.UnsolConfirmTimeout = c.UnsolConfirmTimeout
	cfg.UnsolRetryTimeout = c.UnsolRetryTimeout
	cfg.MaxTxFragSize = c.MaxTxFragSize
	cfg.MaxRxFragSize = c.MaxRxFragSize
	cfg.AllowUnsolicited = c.AllowUnsolicited
	cfg.IgnoreRepeatReads = c.IgnoreRepeatReads
	return cfg
}

// ToEventBufferConfig builds an events.EventBufferConfig from the loaded
// per-type capacities.
func (c EventsConfig) ToEventBufferConfig() events.EventBufferConfig {
	return events.EventBufferConfig{
		MaxBinary:             c.MaxBinary,
		MaxDoubleBitBinary:    c.MaxDoubleBitBinary,
		MaxAnalog:             c.MaxAnalog,
		MaxCounter:            c.MaxCounter,
		MaxFrozenCounter:      c.MaxFrozenCounter,
		MaxBinaryOutputStatus: c.MaxBinaryOutputStatus,
		MaxAnalogOutputStatus: c.MaxAnalogOutputStatus,
	}
}
