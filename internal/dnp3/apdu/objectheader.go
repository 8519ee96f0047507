package apdu

// ObjectGroup is one parsed object header together with the per-object
// payload bytes it prefixes, when the qualifier carries object data.
type ObjectGroup struct {
	Header  ObjectHeader
	Indices []uint32 // object index for each entry, synthesized from a range or read from an index prefix
	Payload [][]byte // raw bytes for each entry; empty slices when the qualifier carries no payload
}

// ParseSelectionHeaders walks a READ request body (or any other header list
// that carries no object payload, such as an ENABLE_UNSOLICITED class list)
// into a flat slice of object headers.
func ParseSelectionHeaders(body []byte) ([]ObjectHeader, *ParseError) {
	var out []ObjectHeader
	for len(body) > 0 {
		h, rest, err := decodeHeaderPrefix(body)
		if err != nil {
			return nil, newParseError(ParseErrorFormat, err.Error())
		}
		h, rest, err = decodeRangeOrCount(h, rest)
		if err != nil {
			return nil, newParseError(ParseErrorFormat, err.Error())
		}
		out = append(out, h)
		body = rest
	}
	return out, nil
}

// ObjectSizer returns the fixed wire size of one object of the given
// group/variation, or an error if the engine does not support it.
type ObjectSizer func(group, variation byte) (int, error)

// ParsePayloadHeaders walks a header list whose qualifiers carry per-object
// payload data (WRITE, SELECT, OPERATE, DIRECT_OPERATE, ASSIGN_CLASS
// bodies), using sizeOf to know how many bytes each object occupies.
func ParsePayloadHeaders(body []byte, sizeOf ObjectSizer) ([]ObjectGroup, *ParseError) {
	var out []ObjectGroup
	for len(body) > 0 {
		h, rest, err := decodeHeaderPrefix(body)
		if err != nil {
			return nil, newParseError(ParseErrorFormat, err.Error())
		}
		h, rest, err = decodeRangeOrCount(h, rest)
		if err != nil {
			return nil, newParseError(ParseErrorFormat, err.Error())
		}

		objSize, sizeErr := sizeOf(h.Group, h.Variation)
		if sizeErr != nil {
			return nil, newParseError(ParseErrorObjectUnknown, sizeErr.Error())
		}

		group := ObjectGroup{Header: h}
		switch {
		case h.Qualifier.IsRange():
			for idx := h.Start; idx <= h.Stop; idx++ {
				if len(rest) < objSize {
					return nil, newParseError(ParseErrorFormat, "apdu: truncated object payload")
				}
				group.Indices = append(group.Indices, idx)
				group.Payload = append(group.Payload, rest[:objSize])
				rest = rest[objSize:]
			}
		case h.Qualifier.IsIndexPrefixed():
			for i := uint32(0); i < h.Count; i++ {
				idx, r2, idxErr := decodeIndex(h.Qualifier, rest)
				if idxErr != nil {
					return nil, newParseError(ParseErrorFormat, idxErr.Error())
				}
				rest = r2
				if len(rest) < objSize {
					return nil, newParseError(ParseErrorFormat, "apdu: truncated object payload")
				}
				group.Indices = append(group.Indices, idx)
				group.Payload = append(group.Payload, rest[:objSize])
				rest = rest[objSize:]
			}
		default:
			return nil, newParseError(ParseErrorParamError, "apdu: qualifier unsupported for object payload")
		}

		out = append(out, group)
		body = rest
	}
	return out, nil
}

// defaultObjectSizer maps the group/variation pairs this engine accepts as
// command or write payloads to their fixed wire size.
func defaultObjectSizer(group, variation byte) (int, error) {
	switch {
	case group == GroupCROB && variation == VarCROB:
		return crobSize, nil
	case group == GroupAnalogOutputCommand:
		return AOBSize(variation)
	case group == GroupIINClear && variation == VarIINClear:
		return 1, nil
	case group == GroupTimeAndDate && variation == VarTimeAndDate:
		return timeAndDateSize, nil
	case group == GroupClass0Data:
		return 0, nil // class-assignment objects carry no payload, only indices
	default:
		return 0, newParseError(ParseErrorObjectUnknown, "apdu: unsupported group/variation for payload")
	}
}

// DefaultObjectSizer is the ObjectSizer used by the outstation for WRITE,
// SELECT, OPERATE, DIRECT_OPERATE and ASSIGN_CLASS bodies.
var DefaultObjectSizer ObjectSizer = defaultObjectSizer
