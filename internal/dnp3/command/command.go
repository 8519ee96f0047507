// Package command defines the control objects a DNP3 outstation executes
// (CROB and the analog output command variations) and the collaborator
// interface an application implements to back them.
package command

import "github.com/bmironenko/dnp3/internal/dnp3/apdu"

// OperateType distinguishes how an operate-style request reached the
// command handler, since some applications treat a two-phase
// select-before-operate more conservatively than a direct operate.
type OperateType int

const (
	SelectBeforeOperate OperateType = iota
	DirectOperate
	DirectOperateNoAck
)

// ControlRelayOutputBlock is the CROB control object (group 12 variation 1).
type ControlRelayOutputBlock = apdu.CROB

// AnalogOutput is the analog output control object (group 41, variations 1-4).
type AnalogOutput = apdu.AnalogOutput

// Handler is the external collaborator that actually performs control
// operations against field hardware or simulated points. Select must never
// have an observable side effect beyond validating and reserving the
// control; Operate performs it.
type Handler interface {
	SelectCROB(control ControlRelayOutputBlock, index uint32) apdu.CommandStatus
	OperateCROB(control ControlRelayOutputBlock, index uint32, opType OperateType) apdu.CommandStatus

	SelectAnalogOutput(control AnalogOutput, index uint32, variation byte) apdu.CommandStatus
	OperateAnalogOutput(control AnalogOutput, index uint32, variation byte, opType OperateType) apdu.CommandStatus
}

// NopHandler rejects every control as NotSupported. Useful as a safe
// default for a database that exposes no controllable points.
type NopHandler struct{}

func (NopHandler) SelectCROB(apdu.CROB, uint32) apdu.CommandStatus { return apdu.CommandStatusNotSupported }
func (NopHandler) OperateCROB(apdu.CROB, uint32, OperateType) apdu.CommandStatus {
	return apdu.CommandStatusNotSupported
}
func (NopHandler) SelectAnalogOutput(apdu.AnalogOutput, uint32, byte) apdu.CommandStatus {
	return apdu.CommandStatusNotSupported
}
func (NopHandler) OperateAnalogOutput(apdu.AnalogOutput, uint32, byte, OperateType) apdu.CommandStatus {
	return apdu.CommandStatusNotSupported
}
