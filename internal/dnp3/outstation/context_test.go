package outstation

import (
	"sync"
	"testing"
	"time"

	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
	"github.com/bmironenko/dnp3/internal/dnp3/command"
	"github.com/bmironenko/dnp3/internal/dnp3/database"
	"github.com/bmironenko/dnp3/internal/dnp3/events"
	"github.com/bmironenko/dnp3/internal/dnp3/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLower captures every fragment BeginTransmit receives so a test can
// read it back without a real socket.
type fakeLower struct {
	sent chan []byte
}

func newFakeLower() *fakeLower {
	return &fakeLower{sent: make(chan []byte, 16)}
}

func (f *fakeLower) BeginTransmit(data []byte) {
	f.sent <- append([]byte(nil), data...)
}

func (f *fakeLower) recv(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-f.sent:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no fragment transmitted")
		return nil
	}
}

// fakeHandler counts select/operate calls so tests can assert a control
// fired exactly once despite a repeated request.
type fakeHandler struct {
	mu               sync.Mutex
	selectCROBCalls  int
	operateCROBCalls int
}

func (h *fakeHandler) SelectCROB(apdu.CROB, uint32) apdu.CommandStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selectCROBCalls++
	return apdu.CommandStatusSuccess
}

func (h *fakeHandler) OperateCROB(apdu.CROB, uint32, command.OperateType) apdu.CommandStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.operateCROBCalls++
	return apdu.CommandStatusSuccess
}

func (h *fakeHandler) SelectAnalogOutput(apdu.AnalogOutput, uint32, byte) apdu.CommandStatus {
	return apdu.CommandStatusNotSupported
}

func (h *fakeHandler) OperateAnalogOutput(apdu.AnalogOutput, uint32, byte, command.OperateType) apdu.CommandStatus {
	return apdu.CommandStatusNotSupported
}

func (h *fakeHandler) counts() (selects, operates int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selectCROBCalls, h.operateCROBCalls
}

// fakeApp records the arguments the handlers pass to Application so a test
// can assert on them without exposing Context internals beyond the package.
type fakeApp struct {
	mu           sync.Mutex
	recordedTime time.Time
	coldSupport  RestartSupport
	coldDelay    time.Duration
	assignClass  bool
}

func (a *fakeApp) ApplicationIIN() apdu.IINField { return apdu.EmptyIIN() }
func (a *fakeApp) ColdRestartSupport() RestartSupport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coldSupport
}
func (a *fakeApp) WarmRestart() RestartSupport { return RestartUnsupported }
func (a *fakeApp) PerformColdRestart() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.coldDelay
}
func (a *fakeApp) PerformWarmRestart() time.Duration { return 0 }
func (a *fakeApp) SupportsAssignClass() bool          { return a.assignClass }
func (a *fakeApp) RecordCurrentTime(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordedTime = t
}

func (a *fakeApp) lastRecordedTime() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordedTime
}

func (a *fakeApp) setColdRestartSupport(s RestartSupport) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.coldSupport = s
}

func newTestOutstation(t *testing.T, mutate func(*Config), handler command.Handler, app Application) (*Context, *fakeLower, *database.Memory, *executor.Executor) {
	t.Helper()
	exec := executor.New()
	t.Cleanup(func() {
		exec.InitiateShutdown()
		exec.WaitForShutdown()
	})

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	db := database.NewMemory(events.DefaultEventBufferConfig(), handler)
	lower := newFakeLower()
	ctx := New(exec, cfg, db, app, lower)
	return ctx, lower, db, exec
}

// assembleRequest renders a request fragment: control byte, function code,
// then raw object bytes.
func assembleRequest(fir, fin, con, uns bool, seq uint8, fn apdu.FunctionCode, objects []byte) []byte {
	ctrl := apdu.NewControlField(fir, fin, con, uns, seq)
	out := make([]byte, 0, 2+len(objects))
	out = append(out, ctrl.Encode(), byte(fn))
	out = append(out, objects...)
	return out
}

// crobObjects renders a single index-prefixed group12var1 object header
// wrapping one CROB, as SELECT/OPERATE/DIRECT_OPERATE requests carry it.
func crobObjects(index uint32, code apdu.ControlCode) []byte {
	crob := apdu.CROB{Code: code, Count: 1}
	enc := crob.Encode()
	out := []byte{apdu.GroupCROB, apdu.VarCROB, byte(apdu.Q8BitCountIndex), 1, byte(index)}
	return append(out, enc[:]...)
}

type parsedResponse struct {
	ctrl    apdu.ControlField
	fn      apdu.FunctionCode
	iin     apdu.IINField
	objects []byte
}

func parseResponse(t *testing.T, frag []byte) parsedResponse {
	t.Helper()
	require.GreaterOrEqual(t, len(frag), apdu.ResponseHeaderSize)
	return parsedResponse{
		ctrl:    apdu.DecodeControlField(frag[0]),
		fn:      apdu.FunctionCode(frag[1]),
		iin:     apdu.DecodeIIN(frag[2], frag[3]),
		objects: frag[apdu.ResponseHeaderSize:],
	}
}

func firstCROBStatus(t *testing.T, objects []byte) apdu.CommandStatus {
	t.Helper()
	groups, perr := apdu.ParsePayloadHeaders(objects, apdu.DefaultObjectSizer)
	require.Nil(t, perr)
	require.NotEmpty(t, groups)
	require.NotEmpty(t, groups[0].Payload)
	crob, err := apdu.DecodeCROB(groups[0].Payload[0])
	require.NoError(t, err)
	return crob.Status
}

// Scenario: repeat control idempotence (spec.md §8 scenario 1 / invariant
// P4). An exact repeat of a non-READ request must retransmit the prior
// response instead of re-executing the control.
func TestDirectOperateRepeatIsIdempotent(t *testing.T) {
	handler := &fakeHandler{}
	ctx, lower, _, _ := newTestOutstation(t, nil, handler, NopApplication{})
	ctx.OnLowerLayerUp()

	req := assembleRequest(true, true, false, false, 0, apdu.FuncDirectOperate, crobObjects(0, apdu.ControlCodeLatchOn))

	ctx.OnReceive(req)
	frag1 := lower.recv(t)
	ctx.OnSendResult(true)

	resp1 := parseResponse(t, frag1)
	assert.Equal(t, apdu.FuncResponse, resp1.fn)
	assert.Equal(t, apdu.CommandStatusSuccess, firstCROBStatus(t, resp1.objects))
	_, operates := handler.counts()
	assert.Equal(t, 1, operates)

	ctx.OnReceive(req)
	frag2 := lower.recv(t)
	ctx.OnSendResult(true)

	assert.Equal(t, frag1, frag2)
	_, operates = handler.counts()
	assert.Equal(t, 1, operates, "a repeated request must not re-execute the control")
}

// Scenario: select/operate window (spec.md §8 scenario 2). A SELECT
// reserves a control; a matching OPERATE within the timeout performs it,
// an expired or mismatched OPERATE is rejected without touching the
// command handler.
func TestSelectOperateWindow(t *testing.T) {
	handler := &fakeHandler{}
	ctx, lower, _, exec := newTestOutstation(t, func(c *Config) {
		c.SelectTimeout = 30 * time.Millisecond
	}, handler, NopApplication{})
	clock := time.Now()
	exec.SetClock(func() time.Time { return clock })
	ctx.OnLowerLayerUp()

	objects := crobObjects(5, apdu.ControlCodeLatchOn)

	ctx.OnReceive(assembleRequest(true, true, false, false, 0, apdu.FuncSelect, objects))
	selResp := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	assert.Equal(t, apdu.CommandStatusSuccess, firstCROBStatus(t, selResp.objects))

	ctx.OnReceive(assembleRequest(true, true, false, false, 1, apdu.FuncOperate, objects))
	operResp := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	assert.Equal(t, apdu.CommandStatusSuccess, firstCROBStatus(t, operResp.objects))

	selects, operates := handler.counts()
	assert.Equal(t, 1, selects)
	assert.Equal(t, 1, operates)

	// A select that is allowed to expire must fail the following operate
	// without ever reaching the command handler.
	ctx.OnReceive(assembleRequest(true, true, false, false, 2, apdu.FuncSelect, objects))
	lower.recv(t)
	ctx.OnSendResult(true)

	// Advance the strand's clock past SelectTimeout instead of sleeping the
	// wall clock, so the timeout path is exercised deterministically.
	clock = clock.Add(50 * time.Millisecond)

	ctx.OnReceive(assembleRequest(true, true, false, false, 3, apdu.FuncOperate, objects))
	timeoutResp := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	assert.Equal(t, apdu.CommandStatusTimeout, firstCROBStatus(t, timeoutResp.objects))

	selects, operates = handler.counts()
	assert.Equal(t, 2, selects)
	assert.Equal(t, 1, operates, "a timed-out select must not let operate execute")

	// An OPERATE with nothing selected (the previous attempt already
	// cleared the slot) is rejected the same way.
	ctx.OnReceive(assembleRequest(true, true, false, false, 9, apdu.FuncOperate, objects))
	noSelectResp := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	assert.Equal(t, apdu.CommandStatusNoSelect, firstCROBStatus(t, noSelectResp.objects))
}

// Scenario: unsolicited null handshake followed by class-driven event
// reporting, per spec.md §4.4 and §8.
func TestUnsolicitedNullHandshakeThenEventReport(t *testing.T) {
	ctx, lower, db, exec := newTestOutstation(t, func(c *Config) {
		c.AllowUnsolicited = true
	}, nil, NopApplication{})
	ctx.OnLowerLayerUp()

	nullFrag := lower.recv(t)
	nullResp := parseResponse(t, nullFrag)
	assert.Equal(t, apdu.FuncUnsolicitedResponse, nullResp.fn)
	assert.True(t, nullResp.ctrl.FIR && nullResp.ctrl.FIN && nullResp.ctrl.CON && nullResp.ctrl.UNS)
	assert.Empty(t, nullResp.objects)
	ctx.OnSendResult(true)

	ctx.OnReceive(assembleRequest(true, true, false, true, nullResp.ctrl.SEQ, apdu.FuncConfirm, nil))

	enableObjects := []byte{apdu.GroupClass0Data, apdu.VarClass1, byte(apdu.QAllObjects)}
	ctx.OnReceive(assembleRequest(true, true, false, false, 0, apdu.FuncEnableUnsolicited, enableObjects))
	enableResp := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	assert.False(t, enableResp.iin.IsSet(apdu.IINFuncNotSupported))
	assert.False(t, enableResp.iin.IsSet(apdu.IINParamError))

	db.UpdatePoint(events.Binary, 1, events.Value{Binary: true})
	ctx.NotifyDataChanged()

	evtFrag := lower.recv(t)
	evtResp := parseResponse(t, evtFrag)
	assert.Equal(t, apdu.FuncUnsolicitedResponse, evtResp.fn)
	assert.True(t, evtResp.ctrl.CON && evtResp.ctrl.UNS)
	assert.NotEmpty(t, evtResp.objects)
	ctx.OnSendResult(true)

	ctx.OnReceive(assembleRequest(true, true, false, true, evtResp.ctrl.SEQ, apdu.FuncConfirm, nil))

	exec.BlockFor(func() {
		assert.Equal(t, 0, db.Events().Total().TotalForType(events.Binary), "confirm must clear the written event")
	})
}

// Scenario: a fragment that arrives while a response is already in flight
// is deferred and processed once the channel frees up, per spec.md §4.5.
func TestDeferredFragmentRunsAfterInFlightResponseCompletes(t *testing.T) {
	handler := &fakeHandler{}
	ctx, lower, _, _ := newTestOutstation(t, nil, handler, NopApplication{})
	ctx.OnLowerLayerUp()

	req1 := assembleRequest(true, true, false, false, 0, apdu.FuncDirectOperate, crobObjects(0, apdu.ControlCodeLatchOn))
	req2 := assembleRequest(true, true, false, false, 1, apdu.FuncDirectOperate, crobObjects(1, apdu.ControlCodeLatchOff))

	ctx.OnReceive(req1)
	ctx.OnReceive(req2) // posted while req1's response is still in flight; must be deferred

	frag1 := lower.recv(t)
	resp1 := parseResponse(t, frag1)
	assert.Equal(t, apdu.CommandStatusSuccess, firstCROBStatus(t, resp1.objects))
	ctx.OnSendResult(true) // frees the channel, drains the deferred req2

	frag2 := lower.recv(t)
	resp2 := parseResponse(t, frag2)
	assert.Equal(t, apdu.CommandStatusSuccess, firstCROBStatus(t, resp2.objects))
	ctx.OnSendResult(true)

	_, operates := handler.counts()
	assert.Equal(t, 2, operates)
}

// Scenario: a READ of pending class-1 events requests confirm; if the
// master never confirms, the channel returns to idle and the event buffer
// is unselected so the records remain available for the next READ.
func TestSolicitedConfirmTimeoutUnselectsEvents(t *testing.T) {
	ctx, lower, db, exec := newTestOutstation(t, func(c *Config) {
		c.SolConfirmTimeout = 20 * time.Millisecond
	}, nil, NopApplication{})
	ctx.OnLowerLayerUp()

	db.UpdatePoint(events.Binary, 1, events.Value{Binary: true})

	readObjects := []byte{apdu.GroupClass0Data, apdu.VarClass1, byte(apdu.QAllObjects)}
	ctx.OnReceive(assembleRequest(true, true, false, false, 0, apdu.FuncRead, readObjects))

	frag := lower.recv(t)
	resp := parseResponse(t, frag)
	assert.True(t, resp.ctrl.CON, "a response carrying event data must request confirm")
	ctx.OnSendResult(true)

	time.Sleep(60 * time.Millisecond)

	exec.BlockFor(func() {
		assert.Equal(t, stateIdle, ctx.sol.state)
		assert.Nil(t, ctx.respCtx)
		assert.Equal(t, 0, db.Events().Selected().TotalForType(events.Binary))
		assert.Equal(t, 1, db.Events().Total().TotalForType(events.Binary), "the unconfirmed event is not lost, only unselected")
	})
}

// WRITE of Group80Var1 index 7 clears the sticky DEVICE_RESTART indication;
// WRITE of Group50Var1 records the master's current time.
func TestWriteClearsDeviceRestartAndRecordsTime(t *testing.T) {
	app := &fakeApp{}
	ctx, lower, _, exec := newTestOutstation(t, nil, nil, app)
	ctx.OnLowerLayerUp()

	clearIIN := []byte{apdu.GroupIINClear, apdu.VarIINClear, byte(apdu.Q8BitCountIndex), 1, 7, 0x01}

	ms := int64(1_700_000_000_000)
	timeBytes := apdu.EncodeTimeAndDate(ms)
	timeObj := append([]byte{apdu.GroupTimeAndDate, apdu.VarTimeAndDate, byte(apdu.Q8BitStartStop), 0, 0}, timeBytes[:]...)

	objects := append(append([]byte{}, clearIIN...), timeObj...)
	ctx.OnReceive(assembleRequest(true, true, false, false, 0, apdu.FuncWrite, objects))

	resp := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	assert.False(t, resp.iin.IsSet(apdu.IINDeviceRestart))
	assert.False(t, resp.iin.IsSet(apdu.IINParamError))

	exec.BlockFor(func() {
		assert.False(t, ctx.iin.IsSet(apdu.IINDeviceRestart))
	})
	assert.Equal(t, ms, app.lastRecordedTime().UnixMilli())
}

// COLD_RESTART answers with the configured delay when supported, and
// FUNC_NOT_SUPPORTED when the application declines it.
func TestColdRestartHonorsApplicationSupport(t *testing.T) {
	app := &fakeApp{coldSupport: RestartSupportedCoarse, coldDelay: 2 * time.Second}
	ctx, lower, _, _ := newTestOutstation(t, nil, nil, app)
	ctx.OnLowerLayerUp()

	ctx.OnReceive(assembleRequest(true, true, false, false, 0, apdu.FuncColdRestart, nil))
	resp := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	assert.False(t, resp.iin.IsSet(apdu.IINFuncNotSupported))
	require.Len(t, resp.objects, 7) // 3-byte header prefix + 2-byte range + 2-byte delay value

	app.setColdRestartSupport(RestartUnsupported)
	ctx.OnReceive(assembleRequest(true, true, false, false, 1, apdu.FuncColdRestart, nil))
	resp2 := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	assert.True(t, resp2.iin.IsSet(apdu.IINFuncNotSupported))
}

// DISABLE_UNSOLICITED turns off reporting for the requested class even
// while a channel is actively enabled, so a later update stays silent.
func TestDisableUnsolicitedStopsReporting(t *testing.T) {
	ctx, lower, db, _ := newTestOutstation(t, func(c *Config) {
		c.AllowUnsolicited = true
	}, nil, NopApplication{})
	ctx.OnLowerLayerUp()

	nullResp := parseResponse(t, lower.recv(t))
	ctx.OnSendResult(true)
	ctx.OnReceive(assembleRequest(true, true, false, true, nullResp.ctrl.SEQ, apdu.FuncConfirm, nil))

	allClasses := []byte{apdu.GroupClass0Data, apdu.VarClass0, byte(apdu.QAllObjects)}
	ctx.OnReceive(assembleRequest(true, true, false, false, 0, apdu.FuncEnableUnsolicited, allClasses))
	lower.recv(t)
	ctx.OnSendResult(true)

	ctx.OnReceive(assembleRequest(true, true, false, false, 1, apdu.FuncDisableUnsolicited, allClasses))
	lower.recv(t)
	ctx.OnSendResult(true)

	db.UpdatePoint(events.Binary, 1, events.Value{Binary: true})
	ctx.NotifyDataChanged()

	select {
	case frag := <-lower.sent:
		t.Fatalf("unexpected unsolicited transmit after disable: %x", frag)
	case <-time.After(100 * time.Millisecond):
	}
}
