package apdu

import "fmt"

// RequestHeaderSize is the length in bytes of a request fragment's
// application-layer header: one control octet followed by the function code.
const RequestHeaderSize = 2

// ResponseHeaderSize is RequestHeaderSize plus the two IIN octets that
// precede a response's object data.
const ResponseHeaderSize = RequestHeaderSize + 2

// Header is the parsed two-byte application header of a request fragment.
type Header struct {
	Control  ControlField
	Function FunctionCode
}

func (h Header) String() string {
	return fmt.Sprintf("%s FUNC=%s", h.Control, h.Function)
}

// ParseRequestHeader decodes the control byte and function code from the
// front of a request fragment. It returns an error when the fragment is
// shorter than RequestHeaderSize.
func ParseRequestHeader(fragment []byte) (Header, []byte, error) {
	if len(fragment) < RequestHeaderSize {
		return Header{}, nil, fmt.Errorf("apdu: fragment too short for header: %d bytes", len(fragment))
	}
	h := Header{
		Control:  DecodeControlField(fragment[0]),
		Function: FunctionCode(fragment[1]),
	}
	return h, fragment[RequestHeaderSize:], nil
}
