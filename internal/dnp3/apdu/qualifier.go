package apdu

import (
	"encoding/binary"
	"fmt"
)

// QualifierCode selects how the range or count that follows a group/variation
// pair is encoded, per IEEE 1815 Table 4-4 (the subset this engine uses).
type QualifierCode byte

const (
	Q8BitStartStop   QualifierCode = 0x00
	Q16BitStartStop  QualifierCode = 0x01
	QAllObjects      QualifierCode = 0x06
	Q8BitCount       QualifierCode = 0x07
	Q16BitCount      QualifierCode = 0x08
	Q8BitCountIndex  QualifierCode = 0x17
	Q16BitCountIndex QualifierCode = 0x28
)

// IsIndexPrefixed reports whether each object in the header is preceded by
// its own index (used by command and class-assignment objects).
func (q QualifierCode) IsIndexPrefixed() bool {
	return q == Q8BitCountIndex || q == Q16BitCountIndex
}

// IsRange reports whether the header encodes a contiguous start/stop index range.
func (q QualifierCode) IsRange() bool {
	return q == Q8BitStartStop || q == Q16BitStartStop
}

// IsCountOnly reports whether the header carries only a count, with no index
// information at all (used for class/event selection headers).
func (q QualifierCode) IsCountOnly() bool {
	return q == Q8BitCount || q == Q16BitCount
}

// ObjectHeader is one decoded (group, variation, qualifier, range|count)
// prefix within a request or response's object section.
type ObjectHeader struct {
	Group     byte
	Variation byte
	Qualifier QualifierCode
	Start     uint32 // valid when Qualifier.IsRange()
	Stop      uint32 // valid when Qualifier.IsRange()
	Count     uint32 // number of objects described by this header
}

// headerPrefixSize returns the number of bytes consumed by group+variation+qualifier.
const headerPrefixSize = 3

// decodeHeaderPrefix reads (group, variation, qualifier) from the front of buf.
func decodeHeaderPrefix(buf []byte) (ObjectHeader, []byte, error) {
	if len(buf) < headerPrefixSize {
		return ObjectHeader{}, nil, fmt.Errorf("apdu: truncated object header prefix")
	}
	h := ObjectHeader{
		Group:     buf[0],
		Variation: buf[1],
		Qualifier: QualifierCode(buf[2]),
	}
	return h, buf[headerPrefixSize:], nil
}

// decodeRangeOrCount fills in Start/Stop/Count on h by consuming the
// qualifier-specific trailer from buf, returning the remainder.
func decodeRangeOrCount(h ObjectHeader, buf []byte) (ObjectHeader, []byte, error) {
	switch h.Qualifier {
	case QAllObjects:
		h.Count = 0
		return h, buf, nil
	case Q8BitStartStop:
		if len(buf) < 2 {
			return h, nil, fmt.Errorf("apdu: truncated 8-bit range")
		}
		h.Start, h.Stop = uint32(buf[0]), uint32(buf[1])
		h.Count = h.Stop - h.Start + 1
		return h, buf[2:], nil
	case Q16BitStartStop:
		if len(buf) < 4 {
			return h, nil, fmt.Errorf("apdu: truncated 16-bit range")
		}
		h.Start = uint32(binary.LittleEndian.Uint16(buf[0:2]))
		h.Stop = uint32(binary.LittleEndian.Uint16(buf[2:4]))
		h.Count = h.Stop - h.Start + 1
		return h, buf[4:], nil
	case Q8BitCount, Q8BitCountIndex:
		if len(buf) < 1 {
			return h, nil, fmt.Errorf("apdu: truncated 8-bit count")
		}
		h.Count = uint32(buf[0])
		return h, buf[1:], nil
	case Q16BitCount, Q16BitCountIndex:
		if len(buf) < 2 {
			return h, nil, fmt.Errorf("apdu: truncated 16-bit count")
		}
		h.Count = uint32(binary.LittleEndian.Uint16(buf[0:2]))
		return h, buf[2:], nil
	default:
		return h, nil, fmt.Errorf("apdu: unsupported qualifier 0x%02X", byte(h.Qualifier))
	}
}

// indexWidth returns the byte width of a per-object index prefix for the
// given qualifier (0 if the qualifier carries no per-object index).
func indexWidth(q QualifierCode) int {
	switch q {
	case Q8BitCountIndex:
		return 1
	case Q16BitCountIndex:
		return 2
	default:
		return 0
	}
}

func decodeIndex(q QualifierCode, buf []byte) (uint32, []byte, error) {
	w := indexWidth(q)
	if len(buf) < w {
		return 0, nil, fmt.Errorf("apdu: truncated object index")
	}
	switch w {
	case 1:
		return uint32(buf[0]), buf[1:], nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(buf[0:2])), buf[2:], nil
	default:
		return 0, buf, nil
	}
}
