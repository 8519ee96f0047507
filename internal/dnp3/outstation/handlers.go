package outstation

import (
	"time"

	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
	"github.com/bmironenko/dnp3/internal/dnp3/command"
	"github.com/bmironenko/dnp3/internal/dnp3/events"
)

// resolveReadSelection interprets a READ request's selection headers into
// the static types it asks for (including class-0 expansion) and the event
// class mask it asks for, per spec.md §4.7.
func (c *Context) resolveReadSelection(headers []apdu.ObjectHeader) ([]events.EventType, events.ClassField, bool) {
	var types []events.EventType
	mask := events.ClassFieldNone

	for _, h := range headers {
		if h.Group == apdu.GroupClass0Data {
			switch h.Variation {
			case apdu.VarClass0:
				types = append(types, c.cfg.TypesAllowedInClass0...)
			case apdu.VarClass1:
				mask = mask.Set(events.Class1)
			case apdu.VarClass2:
				mask = mask.Set(events.Class2)
			case apdu.VarClass3:
				mask = mask.Set(events.Class3)
			default:
				return nil, 0, false
			}
			continue
		}
		t, known := groupToEventType(h.Group)
		if !known {
			return nil, 0, false
		}
		types = append(types, t)
	}
	return types, mask, true
}

// groupToEventType maps a static object group number to the event type it
// reports under. Only the seven groups this engine's database knows about
// are recognized.
func groupToEventType(group byte) (events.EventType, bool) {
	switch group {
	case apdu.GroupBinaryInput:
		return events.Binary, true
	case apdu.GroupDoubleBitBinary:
		return events.DoubleBitBinary, true
	case apdu.GroupAnalogInput:
		return events.Analog, true
	case apdu.GroupCounter:
		return events.Counter, true
	case apdu.GroupFrozenCounter:
		return events.FrozenCounter, true
	case apdu.GroupBinaryOutputStatus:
		return events.BinaryOutputStatus, true
	case apdu.GroupAnalogOutputStatus:
		return events.AnalogOutputStatus, true
	default:
		return 0, false
	}
}

// handleWrite applies the two object types this engine accepts on WRITE:
// clearing IIN bits (Group80Var1) and recording the master's current time
// (Group50Var1).
func (c *Context) handleWrite(objects []byte) apdu.IINField {
	groups, perr := apdu.ParsePayloadHeaders(objects, apdu.DefaultObjectSizer)
	if perr != nil {
		return perr.Kind.IIN()
	}

	iin := apdu.EmptyIIN()
	for _, g := range groups {
		switch g.Header.Group {
		case apdu.GroupIINClear:
			for i, idx := range g.Indices {
				// Index 7 is DEVICE_RESTART; clearing it is the only way
				// this bit ever comes down, by design.
				if idx != 7 || len(g.Payload[i]) == 0 {
					continue
				}
				if g.Payload[i][0]&0x01 != 0 {
					c.iin = c.iin.Clear(apdu.IINDeviceRestart)
				}
			}
		case apdu.GroupTimeAndDate:
			for _, payload := range g.Payload {
				ms, err := apdu.DecodeTimeAndDate(payload)
				if err != nil {
					continue
				}
				c.app.RecordCurrentTime(time.UnixMilli(ms))
			}
		default:
			iin = iin.Set(apdu.IINParamError)
		}
	}
	return iin
}

// handleSelect validates and reserves controls without operating them,
// storing the select for a subsequent OPERATE to match only when every
// control in it succeeded.
func (c *Context) handleSelect(header apdu.Header, objects []byte) (apdu.IINField, []byte) {
	iin, echo := c.executeSelectControls(objects)
	if iin != apdu.EmptyIIN() {
		return iin, echo
	}
	// The status is the last byte of every echoed CROB and analog output.
	groups, _ := apdu.ParsePayloadHeaders(echo, apdu.DefaultObjectSizer)
	for _, g := range groups {
		for _, p := range g.Payload {
			if len(p) > 0 && apdu.CommandStatus(p[len(p)-1]) != apdu.CommandStatusSuccess {
				return iin, echo
			}
		}
	}
	c.selectTable.store(header.Control.SEQ, objects, c.exec.Now())
	return iin, echo
}

func (c *Context) executeSelectControls(objects []byte) (apdu.IINField, []byte) {
	groups, perr := apdu.ParsePayloadHeaders(objects, apdu.DefaultObjectSizer)
	if perr != nil {
		return perr.Kind.IIN(), nil
	}
	writer := apdu.NewResponseWriter(c.cfg.MaxTxFragSize)
	for _, g := range groups {
		switch g.Header.Group {
		case apdu.GroupCROB:
			if !echoCROBGroup(writer, g, c.cfg.MaxControlsPerRequest, func(crob apdu.CROB, idx uint32) apdu.CommandStatus {
				return c.db.Command().SelectCROB(crob, idx)
			}) {
				return apdu.NewIIN(apdu.IINParamError), nil
			}
		case apdu.GroupAnalogOutputCommand:
			if !echoAOBGroup(writer, g, c.cfg.MaxControlsPerRequest, func(aob apdu.AnalogOutput, idx uint32, variation byte) apdu.CommandStatus {
				return c.db.Command().SelectAnalogOutput(aob, idx, variation)
			}) {
				return apdu.NewIIN(apdu.IINParamError), nil
			}
		default:
			return apdu.NewIIN(apdu.IINObjectUnknown), nil
		}
	}
	return apdu.EmptyIIN(), writer.Bytes()
}

// handleOperateSBO validates the pending select before performing the
// requested controls, per spec.md §8 scenario 2.
func (c *Context) handleOperateSBO(header apdu.Header, objects []byte) (apdu.IINField, []byte) {
	status := c.selectTable.validate(header.Control.SEQ, objects, c.exec.Now(), c.cfg.SelectTimeout)
	c.selectTable.clear()
	if status != apdu.CommandStatusSuccess {
		return c.echoControlsWithStatus(objects, status)
	}
	return c.executeControls(objects, command.SelectBeforeOperate)
}

// handleDirectOperate performs the requested controls immediately, with no
// preceding select.
func (c *Context) handleDirectOperate(objects []byte, opType command.OperateType) (apdu.IINField, []byte) {
	return c.executeControls(objects, opType)
}

func (c *Context) executeControls(objects []byte, opType command.OperateType) (apdu.IINField, []byte) {
	groups, perr := apdu.ParsePayloadHeaders(objects, apdu.DefaultObjectSizer)
	if perr != nil {
		return perr.Kind.IIN(), nil
	}
	writer := apdu.NewResponseWriter(c.cfg.MaxTxFragSize)
	for _, g := range groups {
		switch g.Header.Group {
		case apdu.GroupCROB:
			if !echoCROBGroup(writer, g, c.cfg.MaxControlsPerRequest, func(crob apdu.CROB, idx uint32) apdu.CommandStatus {
				return c.db.Command().OperateCROB(crob, idx, opType)
			}) {
				return apdu.NewIIN(apdu.IINParamError), nil
			}
		case apdu.GroupAnalogOutputCommand:
			if !echoAOBGroup(writer, g, c.cfg.MaxControlsPerRequest, func(aob apdu.AnalogOutput, idx uint32, variation byte) apdu.CommandStatus {
				return c.db.Command().OperateAnalogOutput(aob, idx, variation, opType)
			}) {
				return apdu.NewIIN(apdu.IINParamError), nil
			}
		default:
			return apdu.NewIIN(apdu.IINObjectUnknown), nil
		}
	}
	return apdu.EmptyIIN(), writer.Bytes()
}

// echoControlsWithStatus re-decodes the request's controls and echoes them
// back with a fixed status, without calling into the command handler; used
// when an OPERATE fails select validation.
func (c *Context) echoControlsWithStatus(objects []byte, status apdu.CommandStatus) (apdu.IINField, []byte) {
	groups, perr := apdu.ParsePayloadHeaders(objects, apdu.DefaultObjectSizer)
	if perr != nil {
		return perr.Kind.IIN(), nil
	}
	writer := apdu.NewResponseWriter(c.cfg.MaxTxFragSize)
	for _, g := range groups {
		switch g.Header.Group {
		case apdu.GroupCROB:
			if !echoCROBGroup(writer, g, c.cfg.MaxControlsPerRequest, func(apdu.CROB, uint32) apdu.CommandStatus { return status }) {
				return apdu.NewIIN(apdu.IINParamError), nil
			}
		case apdu.GroupAnalogOutputCommand:
			if !echoAOBGroup(writer, g, c.cfg.MaxControlsPerRequest, func(apdu.AnalogOutput, uint32, byte) apdu.CommandStatus { return status }) {
				return apdu.NewIIN(apdu.IINParamError), nil
			}
		default:
			return apdu.NewIIN(apdu.IINObjectUnknown), nil
		}
	}
	return apdu.EmptyIIN(), writer.Bytes()
}

// echoCROBGroup runs exec for every CROB in g and writes the echo back,
// but only after checking both that the full echo fits in writer's
// remaining capacity and that g doesn't exceed the configured per-request
// control cap — spec.md §4.7's "no side effects on overflow" rule, so exec
// (the real SELECT/OPERATE side effect) never runs for a group that can't
// be echoed back in full. Returns false without calling exec at all if
// either check fails.
func echoCROBGroup(writer *apdu.ResponseWriter, g apdu.ObjectGroup, maxControls uint16, exec func(apdu.CROB, uint32) apdu.CommandStatus) bool {
	if maxControls > 0 && len(g.Indices) > int(maxControls) {
		return false
	}
	size, _ := apdu.DefaultObjectSizer(apdu.GroupCROB, apdu.VarCROB)
	if !writer.FitsIndexed(g.Indices, size) {
		return false
	}
	crobs := make(map[uint32]apdu.CROB, len(g.Indices))
	statuses := make(map[uint32]apdu.CommandStatus, len(g.Indices))
	for i, idx := range g.Indices {
		crob, _ := apdu.DecodeCROB(g.Payload[i])
		crobs[idx] = crob
		statuses[idx] = exec(crob, idx)
	}
	writer.WriteIndexed(apdu.GroupCROB, apdu.VarCROB, g.Indices, size, func(idx uint32) []byte {
		crob := crobs[idx]
		crob.Status = statuses[idx]
		b := crob.Encode()
		return b[:]
	})
	return true
}

// echoAOBGroup is echoCROBGroup's analog-output-command counterpart; see
// its doc comment for the overflow/cap check this performs before exec.
func echoAOBGroup(writer *apdu.ResponseWriter, g apdu.ObjectGroup, maxControls uint16, exec func(apdu.AnalogOutput, uint32, byte) apdu.CommandStatus) bool {
	if maxControls > 0 && len(g.Indices) > int(maxControls) {
		return false
	}
	variation := g.Header.Variation
	size, err := apdu.DefaultObjectSizer(apdu.GroupAnalogOutputCommand, variation)
	if err != nil {
		return true
	}
	if !writer.FitsIndexed(g.Indices, size) {
		return false
	}
	aobs := make(map[uint32]apdu.AnalogOutput, len(g.Indices))
	statuses := make(map[uint32]apdu.CommandStatus, len(g.Indices))
	for i, idx := range g.Indices {
		aob, _ := apdu.DecodeAOB(variation, g.Payload[i])
		aobs[idx] = aob
		statuses[idx] = exec(aob, idx, variation)
	}
	writer.WriteIndexed(apdu.GroupAnalogOutputCommand, variation, g.Indices, size, func(idx uint32) []byte {
		aob := aobs[idx]
		aob.Status = statuses[idx]
		b, _ := aob.Encode(variation)
		return b
	})
	return true
}

// handleRestart answers COLD_RESTART/WARM_RESTART. Both the coarse and fine
// restart-support levels render the same two-byte delay object; this engine
// does not distinguish the wider fine-resolution encoding. The request body
// must be empty; a non-empty body is rejected with PARAM_ERROR without
// touching restart support at all.
func (c *Context) handleRestart(objects []byte, support RestartSupport, perform func() time.Duration) (apdu.IINField, []byte) {
	if len(objects) != 0 {
		return apdu.NewIIN(apdu.IINParamError), nil
	}
	if support == RestartUnsupported {
		return apdu.NewIIN(apdu.IINFuncNotSupported), nil
	}
	return apdu.EmptyIIN(), encodeDelayObject(perform())
}

// handleDelayMeasure answers DELAY_MEASURE with a zero propagation delay;
// this engine has no notion of link-layer round-trip time to report. The
// request body must be empty; a non-empty body is rejected with
// PARAM_ERROR.
func (c *Context) handleDelayMeasure(objects []byte) (apdu.IINField, []byte) {
	if len(objects) != 0 {
		return apdu.NewIIN(apdu.IINParamError), nil
	}
	return apdu.EmptyIIN(), encodeDelayObject(0)
}

func encodeDelayObject(d time.Duration) []byte {
	writer := apdu.NewResponseWriter(apdu.ResponseHeaderSize + 8)
	ms := uint16(d / time.Millisecond)
	writer.WriteRange(apdu.GroupDelayMeasurement, apdu.VarDelayMeasurementFine, 0, 1, 2, func(uint32) []byte {
		return []byte{byte(ms), byte(ms >> 8)}
	})
	return writer.Bytes()
}

// handleAssignClass reassigns the class of the points named by alternating
// (target-selection, class) header pairs, per spec.md §4.7.
func (c *Context) handleAssignClass(objects []byte) apdu.IINField {
	if !c.app.SupportsAssignClass() {
		return apdu.NewIIN(apdu.IINFuncNotSupported)
	}
	headers, perr := apdu.ParseSelectionHeaders(objects)
	if perr != nil {
		return perr.Kind.IIN()
	}

	for i := 0; i+1 < len(headers); i += 2 {
		sel, cls := headers[i], headers[i+1]
		t, ok := groupToEventType(sel.Group)
		if !ok {
			continue
		}
		class, ok := classFromAssignHeader(cls)
		if !ok {
			continue
		}
		for _, idx := range c.resolveAssignIndices(sel, t) {
			_ = c.db.ClassAssigner().AssignClass(t, idx, class)
		}
	}
	return apdu.EmptyIIN()
}

func (c *Context) resolveAssignIndices(h apdu.ObjectHeader, t events.EventType) []uint32 {
	if h.Qualifier.IsRange() {
		indices := make([]uint32, 0, h.Stop-h.Start+1)
		for idx := h.Start; idx <= h.Stop; idx++ {
			indices = append(indices, idx)
		}
		return indices
	}
	var indices []uint32
	c.db.StaticSelector().ForEachStatic(t, func(idx uint32, _ events.Value) {
		indices = append(indices, idx)
	})
	return indices
}

func classFromAssignHeader(h apdu.ObjectHeader) (events.Class, bool) {
	if h.Group != apdu.GroupClass0Data {
		return 0, false
	}
	switch h.Variation {
	case apdu.VarClass1:
		return events.Class1, true
	case apdu.VarClass2:
		return events.Class2, true
	case apdu.VarClass3:
		return events.Class3, true
	default:
		return 0, false
	}
}

// handleEnableUnsolicited turns on unsolicited reporting for the requested
// classes, intersected with what configuration permits.
func (c *Context) handleEnableUnsolicited(objects []byte) apdu.IINField {
	if !c.cfg.AllowUnsolicited {
		return apdu.NewIIN(apdu.IINFuncNotSupported)
	}
	mask, perr := parseClassSelectionMask(objects)
	if perr != nil {
		return perr.Kind.IIN()
	}
	c.unsolMask |= mask & c.cfg.UnsolClassMask
	return apdu.EmptyIIN()
}

// handleDisableUnsolicited turns off unsolicited reporting for the
// requested classes.
func (c *Context) handleDisableUnsolicited(objects []byte) apdu.IINField {
	mask, perr := parseClassSelectionMask(objects)
	if perr != nil {
		return perr.Kind.IIN()
	}
	c.unsolMask &^= mask
	return apdu.EmptyIIN()
}

func parseClassSelectionMask(objects []byte) (events.ClassField, *apdu.ParseError) {
	headers, perr := apdu.ParseSelectionHeaders(objects)
	if perr != nil {
		return events.ClassFieldNone, perr
	}
	mask := events.ClassFieldNone
	for _, h := range headers {
		if h.Group != apdu.GroupClass0Data {
			continue
		}
		switch h.Variation {
		case apdu.VarClass0:
			mask = events.ClassFieldAll
		case apdu.VarClass1:
			mask = mask.Set(events.Class1)
		case apdu.VarClass2:
			mask = mask.Set(events.Class2)
		case apdu.VarClass3:
			mask = mask.Set(events.Class3)
		}
	}
	return mask, nil
}
