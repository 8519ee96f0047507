package outstation

import (
	"time"

	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
)

// LowerLayer is the external collaborator that owns the physical or
// transport-level send path. BeginTransmit is asynchronous: the context
// resumes only when the lower layer later calls OnSendResult.
type LowerLayer interface {
	BeginTransmit(data []byte)
}

// RestartSupport distinguishes whether COLD/WARM_RESTART is answered at
// all and, if so, with what granularity of delay.
type RestartSupport int

const (
	RestartUnsupported RestartSupport = iota
	RestartSupportedCoarse
	RestartSupportedFine
)

// Application is the external collaborator that answers questions only the
// embedding program knows: extra IIN bits to merge in, restart behavior,
// and whether it wants ASSIGN_CLASS requests honored.
type Application interface {
	ApplicationIIN() apdu.IINField
	ColdRestartSupport() RestartSupport
	WarmRestart() RestartSupport
	PerformColdRestart() time.Duration
	PerformWarmRestart() time.Duration
	SupportsAssignClass() bool
	RecordCurrentTime(t time.Time)
}

// Metrics is an optional observability collaborator. A nil Metrics means
// zero overhead: every call site below guards on it before recording
// anything, the same nil-safe pattern the ambient metrics package uses for
// every collector it exposes.
type Metrics interface {
	FragmentReceived()
	FragmentDropped(reason string)
	ResponseSent(kind string)
	ConfirmTimeout(channel string)
}

// NopApplication answers every query with "unsupported"/disabled defaults;
// useful for demos that exercise only READ and the control path.
type NopApplication struct{}

func (NopApplication) ApplicationIIN() apdu.IINField         { return apdu.EmptyIIN() }
func (NopApplication) ColdRestartSupport() RestartSupport    { return RestartUnsupported }
func (NopApplication) WarmRestart() RestartSupport           { return RestartUnsupported }
func (NopApplication) PerformColdRestart() time.Duration     { return 0 }
func (NopApplication) PerformWarmRestart() time.Duration     { return 0 }
func (NopApplication) SupportsAssignClass() bool             { return false }
func (NopApplication) RecordCurrentTime(time.Time)           {}
