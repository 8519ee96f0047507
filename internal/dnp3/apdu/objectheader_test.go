package apdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSelectionHeadersRange(t *testing.T) {
	body := []byte{GroupBinaryInput, VarBinaryInputFlags, byte(Q8BitStartStop), 0x00, 0x05}
	headers, perr := ParseSelectionHeaders(body)
	assert.Nil(t, perr)
	if assert.Len(t, headers, 1) {
		assert.Equal(t, uint32(0), headers[0].Start)
		assert.Equal(t, uint32(5), headers[0].Stop)
		assert.Equal(t, uint32(6), headers[0].Count)
	}
}

func TestParseSelectionHeadersAllObjects(t *testing.T) {
	body := []byte{GroupClass0Data, VarClass0, byte(QAllObjects)}
	headers, perr := ParseSelectionHeaders(body)
	assert.Nil(t, perr)
	if assert.Len(t, headers, 1) {
		assert.Equal(t, uint32(0), headers[0].Count)
	}
}

func TestParsePayloadHeadersCROBIndexed(t *testing.T) {
	crob := CROB{Code: ControlCodeLatchOn, Count: 1, OnTimeMS: 1000, OffTimeMS: 0, Status: CommandStatusSuccess}
	enc := crob.Encode()

	body := []byte{GroupCROB, VarCROB, byte(Q8BitCountIndex), 0x01, 0x05}
	body = append(body, enc[:]...)

	groups, perr := ParsePayloadHeaders(body, DefaultObjectSizer)
	assert.Nil(t, perr)
	if assert.Len(t, groups, 1) {
		assert.Equal(t, []uint32{5}, groups[0].Indices)
		decoded, err := DecodeCROB(groups[0].Payload[0])
		assert.NoError(t, err)
		assert.Equal(t, crob, decoded)
	}
}

func TestParsePayloadHeadersAOBRange(t *testing.T) {
	aob := AnalogOutput{Value: 42, Status: CommandStatusSuccess}
	enc, err := aob.Encode(1)
	assert.NoError(t, err)

	body := []byte{GroupAnalogOutputCommand, 1, byte(Q8BitStartStop), 0x02, 0x02}
	body = append(body, enc...)

	groups, perr := ParsePayloadHeaders(body, DefaultObjectSizer)
	assert.Nil(t, perr)
	if assert.Len(t, groups, 1) {
		assert.Equal(t, []uint32{2}, groups[0].Indices)
		decoded, derr := DecodeAOB(1, groups[0].Payload[0])
		assert.NoError(t, derr)
		assert.Equal(t, aob, decoded)
	}
}

func TestParsePayloadHeadersUnknownGroup(t *testing.T) {
	body := []byte{99, 1, byte(Q8BitCount), 0x01}
	_, perr := ParsePayloadHeaders(body, DefaultObjectSizer)
	assert.NotNil(t, perr)
	assert.Equal(t, ParseErrorObjectUnknown, perr.Kind)
}

func TestResponseWriterRangeSplitsWhenFull(t *testing.T) {
	w := NewResponseWriter(headerPrefixSize + 2 + 5*2) // room for exactly 2 numeric points
	written := w.WriteRange(GroupAnalogInput, VarAnalogInput32, 0, 5, 5, func(i uint32) []byte {
		v := NumericValue{Value: float64(i)}
		enc := v.Encode()
		return enc[:]
	})
	assert.Equal(t, 2, written)
	assert.LessOrEqual(t, len(w.Bytes()), w.capacity)
}

func TestResponseWriterIndexedRoundTrip(t *testing.T) {
	w := NewResponseWriter(256)
	indices := []uint32{1, 3, 7}
	written := w.WriteIndexed(GroupBinaryInputEvent, VarBinaryInputEventFlags, indices, 1, func(idx uint32) []byte {
		return []byte{BinaryValue{Value: idx%2 == 0}.Encode()}
	})
	assert.Equal(t, 3, written)

	out, perr := ParsePayloadHeaders(w.Bytes(), func(g, v byte) (int, error) {
		return 1, nil
	})
	assert.Nil(t, perr)
	if assert.Len(t, out, 1) {
		assert.Equal(t, indices, out[0].Indices)
	}
}
