package outstation

import (
	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
	"github.com/bmironenko/dnp3/internal/dnp3/command"
	"github.com/bmironenko/dnp3/internal/dnp3/database"
	"github.com/bmironenko/dnp3/internal/dnp3/events"
	"github.com/bmironenko/dnp3/internal/dnp3/executor"
	"github.com/bmironenko/dnp3/internal/logger"
)

type channelState int

const (
	stateIdle channelState = iota
	stateConfirmWait
)

type solChannel struct {
	state          channelState
	seq            uint8
	isTransmitting bool
	txBuffer       []byte
	confirmTimer   *executor.TimerHandle
}

type unsolChannel struct {
	state          channelState
	seq            uint8
	isTransmitting bool
	txBuffer       []byte
	confirmTimer   *executor.TimerHandle
	completedNull  bool
}

// Context is the outstation application context: the fragment-driven state
// machine described in spec.md §4. Every exported entry point is safe to
// call from any goroutine; internally it always runs on exec's strand.
type Context struct {
	exec    *executor.Executor
	cfg     Config
	db      database.Database
	app     Application
	lower   LowerLayer
	metrics Metrics

	online bool
	iin    apdu.IINField // sticky bits: DEVICE_RESTART, NEED_TIME, config errors...

	sol   solChannel
	unsol unsolChannel

	history     history
	deferred    deferredRequest
	selectTable selectEntry

	respCtx   *responseContext
	unsolMask events.ClassField // classes ENABLE_UNSOLICITED has turned on; empty until requested
}

// New constructs a Context. The DEVICE_RESTART indication is set at
// construction and only ever cleared by a WRITE of Group80Var1 index 7
// whose value byte has bit 0x01 set, per the decision recorded in DESIGN.md.
func New(exec *executor.Executor, cfg Config, db database.Database, app Application, lower LowerLayer) *Context {
	if app == nil {
		app = NopApplication{}
	}
	return &Context{
		exec:  exec,
		cfg:   cfg,
		db:    db,
		app:   app,
		lower: lower,
		iin:   apdu.NewIIN(apdu.IINDeviceRestart),
	}
}

// OnLowerLayerUp resets all per-channel state and brings the channel
// online, per spec.md §3 "Lifecycle".
func (c *Context) OnLowerLayerUp() {
	c.exec.Post(func() {
		if c.online {
			return
		}
		c.online = true
		c.resetChannelState()
		c.checkForTaskStart()
	})
}

// OnLowerLayerDown resets all per-channel state and takes the channel
// offline.
func (c *Context) OnLowerLayerDown() {
	c.exec.Post(func() {
		if !c.online {
			return
		}
		c.online = false
		c.resetChannelState()
	})
}

func (c *Context) resetChannelState() {
	c.sol = solChannel{}
	c.unsol = unsolChannel{}
	c.history.reset()
	c.deferred = deferredRequest{}
	c.selectTable.clear()
	c.respCtx = nil
	c.unsolMask = events.ClassFieldNone
	c.db.Events().Unselect()
}

// OnReceive is the fragment pipeline entry point, spec.md §4.5.
func (c *Context) OnReceive(data []byte) {
	c.exec.Post(func() {
		c.onReceiveStrand(data)
	})
}

func (c *Context) onReceiveStrand(data []byte) {
	if !c.online {
		return
	}

	if c.metrics != nil {
		c.metrics.FragmentReceived()
	}

	header, objects, err := apdu.ParseRequestHeader(data)
	if err != nil {
		logger.Warn("dnp3: dropping malformed fragment", "error", err)
		if c.metrics != nil {
			c.metrics.FragmentDropped("parse_error")
		}
		return
	}
	if !header.Control.IsFirAndFin() || header.Control.CON {
		logger.Warn("dnp3: dropping fragment violating FIR/FIN/CON gating", "control", header.Control.String())
		if c.metrics != nil {
			c.metrics.FragmentDropped("fir_fin_con_gating")
		}
		return
	}

	if apdu.IsNoAckFuncCode(header.Function) {
		c.executeNoAck(header, objects)
		c.checkForTaskStart()
		return
	}

	if c.sol.isTransmitting || c.unsol.isTransmitting {
		c.deferred.set(data)
		c.checkForTaskStart()
		return
	}

	if header.Function == apdu.FuncConfirm {
		c.onConfirm(header)
		c.checkForTaskStart()
		return
	}

	c.onReceiveSolRequest(header, objects)
	c.checkForTaskStart()
}

// onReceiveSolRequest applies the repeat-request rule (§4.6) and otherwise
// dispatches to the function handler table (§4.7).
func (c *Context) onReceiveSolRequest(header apdu.Header, objects []byte) {
	seq := header.Control.SEQ
	if c.history.matches(seq, objects) {
		if header.Function == apdu.FuncRead {
			if c.cfg.IgnoreRepeatReads {
				return
			}
		} else {
			c.retransmitLastSolResponse()
			return
		}
	}

	c.history.store(seq, objects)
	c.dispatch(header, objects)
}

func (c *Context) retransmitLastSolResponse() {
	if len(c.sol.txBuffer) == 0 {
		return
	}
	c.beginSolTransmit(c.sol.txBuffer, false)
}

// OnSendResult is the lower layer's completion callback for the fragment
// most recently passed to BeginTransmit.
func (c *Context) OnSendResult(success bool) {
	c.exec.Post(func() {
		c.onSendResultStrand(success)
	})
}

// SetMetrics installs an observability collaborator. Safe to call before
// the channel is brought up; nil disables metrics collection.
func (c *Context) SetMetrics(m Metrics) {
	c.metrics = m
}

// NotifyDataChanged asks the context to reconsider starting an unsolicited
// cycle, for callers (a field-device poller, the simulate-event CLI
// command) that update the database from outside the strand and need the
// new data to actually get reported.
func (c *Context) NotifyDataChanged() {
	c.exec.Post(func() {
		c.checkForTaskStart()
	})
}

func (c *Context) onSendResultStrand(success bool) {
	if c.sol.isTransmitting {
		c.sol.isTransmitting = false
	}
	if c.unsol.isTransmitting {
		c.unsol.isTransmitting = false
	}
	// Open Question (i): a failed send never rewinds a sequence counter;
	// the channel simply becomes free to retransmit or start the next
	// cycle, see DESIGN.md.
	_ = success
	c.checkForTaskStart()
}

// checkForTaskStart drains a deferred request (if nothing is transmitting)
// and then considers starting an unsolicited cycle, per spec.md §4.5.
func (c *Context) checkForTaskStart() {
	if !c.sol.isTransmitting && !c.unsol.isTransmitting {
		if data, ok := c.deferred.take(); ok {
			c.onReceiveStrand(data)
			return
		}
	}
	c.checkForUnsolTransmit()
}

func (c *Context) canTransmit() bool {
	return !c.sol.isTransmitting && !c.unsol.isTransmitting
}

func (c *Context) beginSolTransmit(fragment []byte, armConfirm bool) {
	c.sol.isTransmitting = true
	c.sol.txBuffer = append(c.sol.txBuffer[:0], fragment...)
	if armConfirm {
		c.armSolConfirmTimeout()
	}
	if c.metrics != nil {
		c.metrics.ResponseSent("solicited")
	}
	c.lower.BeginTransmit(fragment)
}

func (c *Context) beginUnsolTransmit(fragment []byte) {
	c.unsol.isTransmitting = true
	c.unsol.txBuffer = append(c.unsol.txBuffer[:0], fragment...)
	c.armUnsolConfirmTimeout()
	if c.metrics != nil {
		c.metrics.ResponseSent("unsolicited")
	}
	c.lower.BeginTransmit(fragment)
}

func (c *Context) armSolConfirmTimeout() {
	c.sol.confirmTimer = c.exec.StartAfter(c.cfg.SolConfirmTimeout, func() {
		c.onSolConfirmTimeout()
	})
}

func (c *Context) armUnsolConfirmTimeout() {
	c.unsol.confirmTimer = c.exec.StartAfter(c.cfg.UnsolConfirmTimeout, func() {
		c.onUnsolConfirmTimeout()
	})
}

func (c *Context) currentIIN() apdu.IINField {
	dynamic := apdu.EmptyIIN()
	unwritten := c.db.Events().UnwrittenClassField()
	if unwritten.Contains(events.Class1) {
		dynamic = dynamic.Set(apdu.IINClass1Events)
	}
	if unwritten.Contains(events.Class2) {
		dynamic = dynamic.Set(apdu.IINClass2Events)
	}
	if unwritten.Contains(events.Class3) {
		dynamic = dynamic.Set(apdu.IINClass3Events)
	}
	if c.db.Events().Overflow() {
		dynamic = dynamic.Set(apdu.IINEventBufferOverflow)
	}
	return c.iin.Or(dynamic).Or(c.app.ApplicationIIN())
}

// assembleFragment renders a full response fragment: control byte, function
// code, two IIN octets, then the object section.
func (c *Context) assembleFragment(function apdu.FunctionCode, seq uint8, fir, fin, con, uns bool, iin apdu.IINField, objects []byte) []byte {
	ctrl := apdu.NewControlField(fir, fin, con, uns, seq)
	iinBytes := iin.Bytes()
	out := make([]byte, 0, apdu.ResponseHeaderSize+len(objects))
	out = append(out, ctrl.Encode(), byte(function), iinBytes[0], iinBytes[1])
	out = append(out, objects...)
	return out
}

// executeNoAck runs a function code that never produces a response,
// regardless of whatever else the channel is doing.
func (c *Context) executeNoAck(header apdu.Header, objects []byte) {
	switch header.Function {
	case apdu.FuncDirectOperateNoAck:
		_, _ = c.handleDirectOperate(objects, command.DirectOperateNoAck)
	default:
		logger.Debug("dnp3: ignoring unsupported no-ack function", "function", header.Function.String())
	}
}

// dispatch routes a fresh (non-repeat) solicited request to its handler and
// sends the resulting response, per spec.md §4.7.
func (c *Context) dispatch(header apdu.Header, objects []byte) {
	switch header.Function {
	case apdu.FuncRead:
		c.startSolRead(objects)
	case apdu.FuncWrite:
		iin := c.handleWrite(objects)
		c.sendSimpleSolResponse(iin, nil)
	case apdu.FuncSelect:
		iin, echo := c.handleSelect(header, objects)
		c.sendSimpleSolResponse(iin, echo)
	case apdu.FuncOperate:
		iin, echo := c.handleOperateSBO(header, objects)
		c.sendSimpleSolResponse(iin, echo)
	case apdu.FuncDirectOperate:
		iin, echo := c.handleDirectOperate(objects, command.DirectOperate)
		c.sendSimpleSolResponse(iin, echo)
	case apdu.FuncColdRestart:
		iin, echo := c.handleRestart(objects, c.app.ColdRestartSupport(), c.app.PerformColdRestart)
		c.sendSimpleSolResponse(iin, echo)
	case apdu.FuncWarmRestart:
		iin, echo := c.handleRestart(objects, c.app.WarmRestart(), c.app.PerformWarmRestart)
		c.sendSimpleSolResponse(iin, echo)
	case apdu.FuncDelayMeasure:
		iin, echo := c.handleDelayMeasure(objects)
		c.sendSimpleSolResponse(iin, echo)
	case apdu.FuncAssignClass:
		iin := c.handleAssignClass(objects)
		c.sendSimpleSolResponse(iin, nil)
	case apdu.FuncEnableUnsolicited:
		iin := c.handleEnableUnsolicited(objects)
		c.sendSimpleSolResponse(iin, nil)
	case apdu.FuncDisableUnsolicited:
		iin := c.handleDisableUnsolicited(objects)
		c.sendSimpleSolResponse(iin, nil)
	default:
		c.sendSimpleSolResponse(apdu.NewIIN(apdu.IINFuncNotSupported), nil)
	}
}

// sendSimpleSolResponse sends a single-fragment solicited response that
// never itself requests a confirm: WRITE/SELECT/OPERATE/restart/etc. echoes
// are all small enough to fit one fragment and carry no event data.
func (c *Context) sendSimpleSolResponse(iin apdu.IINField, objects []byte) {
	frag := c.assembleFragment(apdu.FuncResponse, c.sol.seq, true, true, false, false, c.currentIIN().Or(iin), objects)
	c.sol.seq = apdu.NextSeq(c.sol.seq)
	c.beginSolTransmit(frag, false)
}

// startSolRead parses a READ request's selection headers, selects the
// matching static types and/or event classes, and begins sending the
// (possibly multi-fragment) response.
func (c *Context) startSolRead(objects []byte) {
	selHeaders, perr := apdu.ParseSelectionHeaders(objects)
	if perr != nil {
		c.sendSimpleSolResponse(perr.Kind.IIN(), nil)
		return
	}

	types, classMask, ok := c.resolveReadSelection(selHeaders)
	if !ok {
		c.sendSimpleSolResponse(apdu.NewIIN(apdu.IINObjectUnknown), nil)
		return
	}

	eventsWanted := classMask != events.ClassFieldNone
	if eventsWanted {
		c.db.Events().SelectAllByClass(classMask)
	}

	c.respCtx = newResponseContext(types, eventsWanted)
	c.sendNextSolReadFragment(true)
}

// sendNextSolReadFragment renders and transmits the next fragment of the
// in-progress READ response, requesting confirm whenever more fragments
// remain or the response carries event data (so ClearWritten only runs
// once the master has acknowledged receipt, per invariant P5).
func (c *Context) sendNextSolReadFragment(first bool) {
	capacity := c.cfg.MaxTxFragSize - apdu.ResponseHeaderSize
	writer := apdu.NewResponseWriter(capacity)
	done := c.respCtx.buildFragment(writer, c.db)

	con := !done || c.respCtx.eventsWanted
	frag := c.assembleFragment(apdu.FuncResponse, c.sol.seq, first, done, con, false, c.currentIIN(), writer.Bytes())

	if !con {
		c.sol.seq = apdu.NextSeq(c.sol.seq)
		c.respCtx = nil
		c.beginSolTransmit(frag, false)
		return
	}

	c.sol.state = stateConfirmWait
	c.beginSolTransmit(frag, true)
}

// onConfirm routes an incoming CONFIRM fragment to the channel it belongs
// to, per its UNS bit.
func (c *Context) onConfirm(header apdu.Header) {
	if header.Control.UNS {
		c.onUnsolConfirm(header)
		return
	}
	c.onSolConfirm(header)
}

func (c *Context) onSolConfirm(header apdu.Header) {
	if c.sol.state != stateConfirmWait || !apdu.SeqEquals(header.Control.SEQ, c.sol.seq) {
		return
	}
	c.cancelSolConfirmTimer()
	c.sol.state = stateIdle
	c.db.Events().ClearWritten()
	c.sol.seq = apdu.NextSeq(c.sol.seq)

	if c.respCtx == nil {
		return
	}
	if c.respCtx.finished {
		c.respCtx = nil
		return
	}
	c.sendNextSolReadFragment(false)
}

func (c *Context) onSolConfirmTimeout() {
	if c.sol.state != stateConfirmWait {
		return
	}
	c.sol.state = stateIdle
	c.sol.confirmTimer = nil
	c.respCtx = nil
	c.db.Events().Unselect()
	if c.metrics != nil {
		c.metrics.ConfirmTimeout("solicited")
	}
	c.checkForTaskStart()
}

func (c *Context) cancelSolConfirmTimer() {
	if c.sol.confirmTimer != nil {
		c.sol.confirmTimer.Cancel()
		c.sol.confirmTimer = nil
	}
}

func (c *Context) onUnsolConfirm(header apdu.Header) {
	if c.unsol.state != stateConfirmWait || !apdu.SeqEquals(header.Control.SEQ, c.unsol.seq) {
		return
	}
	c.cancelUnsolConfirmTimer()
	c.unsol.state = stateIdle
	c.unsol.seq = apdu.NextSeq(c.unsol.seq)
	if !c.unsol.completedNull {
		c.unsol.completedNull = true
	} else {
		c.db.Events().ClearWritten()
	}
}

func (c *Context) onUnsolConfirmTimeout() {
	if c.unsol.state != stateConfirmWait {
		return
	}
	c.unsol.state = stateIdle
	c.unsol.confirmTimer = nil
	if c.unsol.completedNull {
		c.db.Events().Unselect()
	}
	if c.metrics != nil {
		c.metrics.ConfirmTimeout("unsolicited")
	}
	c.exec.StartAfter(c.cfg.UnsolRetryTimeout, func() {
		c.checkForTaskStart()
	})
}

func (c *Context) cancelUnsolConfirmTimer() {
	if c.unsol.confirmTimer != nil {
		c.unsol.confirmTimer.Cancel()
		c.unsol.confirmTimer = nil
	}
}

// checkForUnsolTransmit considers starting (or continuing) an unsolicited
// cycle: the one-time NULL handshake first, then class-driven reporting of
// whatever classes ENABLE_UNSOLICITED has turned on, per spec.md §4.4.
func (c *Context) checkForUnsolTransmit() {
	if !c.online || !c.cfg.AllowUnsolicited || !c.canTransmit() || c.unsol.state == stateConfirmWait {
		return
	}

	if !c.unsol.completedNull {
		c.sendUnsolNull()
		return
	}

	pending := c.db.Events().UnwrittenClassField()
	if pending&c.unsolMask == events.ClassFieldNone {
		return
	}

	c.db.Events().SelectAllByClass(c.unsolMask)
	capacity := c.cfg.MaxTxFragSize - apdu.ResponseHeaderSize
	writer := apdu.NewResponseWriter(capacity)
	c.db.Events().Load(writer)

	frag := c.assembleFragment(apdu.FuncUnsolicitedResponse, c.unsol.seq, true, true, true, true, c.currentIIN(), writer.Bytes())
	c.unsol.state = stateConfirmWait
	c.beginUnsolTransmit(frag)
}

func (c *Context) sendUnsolNull() {
	frag := c.assembleFragment(apdu.FuncUnsolicitedResponse, c.unsol.seq, true, true, true, true, c.currentIIN(), nil)
	c.unsol.state = stateConfirmWait
	c.beginUnsolTransmit(frag)
}
