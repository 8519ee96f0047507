package apdu

// FunctionCode identifies the application-layer operation requested or the
// kind of response being carried, per IEEE 1815 Table 4-1.
type FunctionCode byte

const (
	FuncConfirm             FunctionCode = 0x00
	FuncRead                FunctionCode = 0x01
	FuncWrite               FunctionCode = 0x02
	FuncSelect              FunctionCode = 0x03
	FuncOperate             FunctionCode = 0x04
	FuncDirectOperate       FunctionCode = 0x05
	FuncDirectOperateNoAck  FunctionCode = 0x06
	FuncImmedFreeze         FunctionCode = 0x07
	FuncImmedFreezeNoAck    FunctionCode = 0x08
	FuncFreezeClear         FunctionCode = 0x09
	FuncFreezeClearNoAck    FunctionCode = 0x0A
	FuncFreezeAtTime        FunctionCode = 0x0B
	FuncFreezeAtTimeNoAck   FunctionCode = 0x0C
	FuncColdRestart         FunctionCode = 0x0D
	FuncWarmRestart         FunctionCode = 0x0E
	FuncInitializeData      FunctionCode = 0x0F
	FuncInitializeApp       FunctionCode = 0x10
	FuncStartApp            FunctionCode = 0x11
	FuncStopApp             FunctionCode = 0x12
	FuncSaveConfig          FunctionCode = 0x13
	FuncEnableUnsolicited   FunctionCode = 0x14
	FuncDisableUnsolicited  FunctionCode = 0x15
	FuncAssignClass         FunctionCode = 0x16
	FuncDelayMeasure        FunctionCode = 0x17
	FuncRecordCurrentTime   FunctionCode = 0x18
	FuncOpenFile            FunctionCode = 0x19
	FuncCloseFile           FunctionCode = 0x1A
	FuncDeleteFile          FunctionCode = 0x1B
	FuncGetFileInfo         FunctionCode = 0x1C
	FuncAuthenticateFile    FunctionCode = 0x1D
	FuncAbortFile           FunctionCode = 0x1E
	FuncActivateConfig      FunctionCode = 0x1F
	FuncAuthenticateReq     FunctionCode = 0x20
	FuncAuthenticateErr     FunctionCode = 0x21
	FuncResponse            FunctionCode = 0x81
	FuncUnsolicitedResponse FunctionCode = 0x82
	FuncAuthenticateResp    FunctionCode = 0x83
)

var functionNames = map[FunctionCode]string{
	FuncConfirm:             "CONFIRM",
	FuncRead:                "READ",
	FuncWrite:               "WRITE",
	FuncSelect:              "SELECT",
	FuncOperate:             "OPERATE",
	FuncDirectOperate:       "DIRECT_OPERATE",
	FuncDirectOperateNoAck:  "DIRECT_OPERATE_NO_ACK",
	FuncColdRestart:         "COLD_RESTART",
	FuncWarmRestart:         "WARM_RESTART",
	FuncEnableUnsolicited:   "ENABLE_UNSOLICITED",
	FuncDisableUnsolicited:  "DISABLE_UNSOLICITED",
	FuncAssignClass:         "ASSIGN_CLASS",
	FuncDelayMeasure:        "DELAY_MEASURE",
	FuncResponse:            "RESPONSE",
	FuncUnsolicitedResponse: "UNSOLICITED_RESPONSE",
}

func (f FunctionCode) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsNoAckFuncCode reports whether a function never produces a response and
// so must be processed even while a transmission is already in flight.
func IsNoAckFuncCode(f FunctionCode) bool {
	switch f {
	case FuncDirectOperateNoAck, FuncImmedFreezeNoAck, FuncFreezeClearNoAck, FuncFreezeAtTimeNoAck:
		return true
	default:
		return false
	}
}
