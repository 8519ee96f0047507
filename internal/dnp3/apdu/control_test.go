package apdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControlFieldRoundTrip(t *testing.T) {
	cases := []ControlField{
		NewControlField(true, true, false, false, 0),
		NewControlField(true, false, true, true, 15),
		NewControlField(false, true, false, false, 7),
	}
	for _, c := range cases {
		decoded := DecodeControlField(c.Encode())
		assert.Equal(t, c, decoded)
	}
}

func TestControlFieldIsFirAndFin(t *testing.T) {
	assert.True(t, NewControlField(true, true, false, false, 3).IsFirAndFin())
	assert.False(t, NewControlField(true, false, false, false, 3).IsFirAndFin())
}

func TestSeqHelpers(t *testing.T) {
	assert.True(t, SeqEquals(3, 19)) // equal mod 16
	assert.False(t, SeqEquals(3, 4))
	assert.Equal(t, uint8(0), NextSeq(15))
	assert.Equal(t, uint8(5), NextSeq(4))
}

func TestParseRequestHeader(t *testing.T) {
	control := NewControlField(true, true, false, false, 2).Encode()
	frag := []byte{control, byte(FuncRead), 0x01, 0x02, 0x06}

	h, rest, err := ParseRequestHeader(frag)
	assert.NoError(t, err)
	assert.Equal(t, FuncRead, h.Function)
	assert.True(t, h.Control.IsFirAndFin())
	assert.Equal(t, []byte{0x01, 0x02, 0x06}, rest)
}

func TestParseRequestHeaderTooShort(t *testing.T) {
	_, _, err := ParseRequestHeader([]byte{0x00})
	assert.Error(t, err)
}

func TestIINRoundTrip(t *testing.T) {
	f := NewIIN(IINDeviceRestart, IINNeedTime, IINParamError)
	b := f.Bytes()
	decoded := DecodeIIN(b[0], b[1])
	assert.Equal(t, f, decoded)
	assert.True(t, decoded.IsSet(IINDeviceRestart))
	assert.False(t, decoded.IsSet(IINClass1Events))

	cleared := decoded.Clear(IINDeviceRestart)
	assert.False(t, cleared.IsSet(IINDeviceRestart))
}
