package apdu

import "encoding/binary"

// ResponseWriter accumulates object headers and payload into a
// capacity-bounded buffer, splitting output across DNP3 fragments is the
// caller's job: WriteRange/WriteIndexed simply stop and report how many
// objects fit, so a response that does not fit in one fragment can resume
// writing into the next.
type ResponseWriter struct {
	buf      []byte
	capacity int
}

// NewResponseWriter allocates a writer bounded to capacity bytes.
func NewResponseWriter(capacity int) *ResponseWriter {
	return &ResponseWriter{capacity: capacity}
}

// Remaining reports how many bytes are left before the writer is full.
func (w *ResponseWriter) Remaining() int {
	return w.capacity - len(w.buf)
}

// Bytes returns the bytes written so far.
func (w *ResponseWriter) Bytes() []byte {
	return w.buf
}

// Reset empties the writer while keeping its capacity.
func (w *ResponseWriter) Reset() {
	w.buf = w.buf[:0]
}

// WriteRange appends a contiguous-range object header (group, variation,
// qualifier 0x00 or 0x01) covering as many of the n objects starting at
// firstIndex as fit in the remaining capacity. encodeAt(i) renders the
// payload for absolute index i. It returns the number of objects written;
// a return value less than n means the caller must start a new fragment
// for the remainder.
func (w *ResponseWriter) WriteRange(group, variation byte, firstIndex uint32, n int, objSize int, encodeAt func(i uint32) []byte) int {
	if n == 0 {
		return 0
	}
	qualifier := Q8BitStartStop
	rangeSize := 2
	lastIndex := firstIndex + uint32(n) - 1
	if lastIndex > 0xFF {
		qualifier = Q16BitStartStop
		rangeSize = 4
	}
	headerSize := headerPrefixSize + rangeSize
	if w.Remaining() < headerSize+objSize {
		return 0
	}

	maxFit := (w.Remaining() - headerSize) / objSize
	count := n
	if count > maxFit {
		count = maxFit
	}
	if count <= 0 {
		return 0
	}

	w.buf = append(w.buf, group, variation, byte(qualifier))
	stop := firstIndex + uint32(count) - 1
	if qualifier == Q8BitStartStop {
		w.buf = append(w.buf, byte(firstIndex), byte(stop))
	} else {
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(firstIndex))
		w.buf = append(w.buf, tmp[0], tmp[1])
		binary.LittleEndian.PutUint16(tmp[:], uint16(stop))
		w.buf = append(w.buf, tmp[0], tmp[1])
	}
	for i := uint32(0); i < uint32(count); i++ {
		w.buf = append(w.buf, encodeAt(firstIndex+i)...)
	}
	return count
}

// FitsIndexed reports whether a WriteIndexed call with the same arguments
// would write every one of indices without truncating, i.e. whether the
// full set fits in the remaining capacity. Callers that must not perform a
// side effect (like a control operation) unless the whole echo fits use
// this to check before acting, rather than after writing a truncated echo.
func (w *ResponseWriter) FitsIndexed(indices []uint32, objSize int) bool {
	if len(indices) == 0 {
		return true
	}
	idxWidth, countSize := 1, 1
	for _, idx := range indices {
		if idx > 0xFF {
			idxWidth, countSize = 2, 2
			break
		}
	}
	headerSize := headerPrefixSize + countSize
	perObj := idxWidth + objSize
	return w.Remaining() >= headerSize+len(indices)*perObj
}

// WriteIndexed appends an index-prefixed object header covering as many of
// the given indices as fit in the remaining capacity, encoding each via
// encode. Used for event objects, whose indices are rarely contiguous.
// Returns the number of indices written.
func (w *ResponseWriter) WriteIndexed(group, variation byte, indices []uint32, objSize int, encode func(idx uint32) []byte) int {
	if len(indices) == 0 {
		return 0
	}
	qualifier := Q8BitCountIndex
	countSize, idxWidth := 1, 1
	for _, idx := range indices {
		if idx > 0xFF {
			qualifier = Q16BitCountIndex
			countSize, idxWidth = 2, 2
			break
		}
	}
	headerSize := headerPrefixSize + countSize
	perObj := idxWidth + objSize
	if w.Remaining() < headerSize+perObj {
		return 0
	}

	maxFit := (w.Remaining() - headerSize) / perObj
	count := len(indices)
	if count > maxFit {
		count = maxFit
	}
	if count <= 0 {
		return 0
	}

	w.buf = append(w.buf, group, variation, byte(qualifier))
	if countSize == 1 {
		w.buf = append(w.buf, byte(count))
	} else {
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(count))
		w.buf = append(w.buf, tmp[0], tmp[1])
	}
	for i := 0; i < count; i++ {
		idx := indices[i]
		if idxWidth == 1 {
			w.buf = append(w.buf, byte(idx))
		} else {
			var tmp [2]byte
			binary.LittleEndian.PutUint16(tmp[:], uint16(idx))
			w.buf = append(w.buf, tmp[0], tmp[1])
		}
		w.buf = append(w.buf, encode(idx)...)
	}
	return count
}

// WriteEmptyHeader appends a group/variation/all-objects header with no
// payload, used for the class-0..3 "read everything of this class" request
// echo and for DELAY_MEASURE's empty response body marker objects.
func (w *ResponseWriter) WriteEmptyHeader(group, variation byte) bool {
	if w.Remaining() < headerPrefixSize {
		return false
	}
	w.buf = append(w.buf, group, variation, byte(QAllObjects))
	return true
}
