// Package apdu implements the DNP3 (IEEE 1815) application-layer protocol
// data unit: the two-byte request/response header, object header qualifiers,
// function codes and internal indication bits.
package apdu

import "fmt"

// ControlField is the single byte that precedes the function code and
// carries the FIR/FIN/CON/UNS flags plus the 4-bit sequence number.
type ControlField struct {
	FIR bool
	FIN bool
	CON bool
	UNS bool
	SEQ uint8 // 0..15
}

const (
	bitFIR = 0x80
	bitFIN = 0x40
	bitCON = 0x20
	bitUNS = 0x10
)

// NewControlField builds a control field, masking SEQ to 4 bits.
func NewControlField(fir, fin, con, uns bool, seq uint8) ControlField {
	return ControlField{FIR: fir, FIN: fin, CON: con, UNS: uns, SEQ: seq & 0x0F}
}

// IsFirAndFin reports whether both FIR and FIN are set, i.e. this is a
// single-fragment message.
func (c ControlField) IsFirAndFin() bool {
	return c.FIR && c.FIN
}

// Encode renders the control field to its wire byte.
//
// Layout (MSB to LSB): FIR FIN CON UNS SEQ[3:0]
func (c ControlField) Encode() byte {
	var b byte
	if c.FIR {
		b |= bitFIR
	}
	if c.FIN {
		b |= bitFIN
	}
	if c.CON {
		b |= bitCON
	}
	if c.UNS {
		b |= bitUNS
	}
	b |= c.SEQ & 0x0F
	return b
}

// DecodeControlField parses a control field from its wire byte.
func DecodeControlField(b byte) ControlField {
	return ControlField{
		FIR: b&bitFIR != 0,
		FIN: b&bitFIN != 0,
		CON: b&bitCON != 0,
		UNS: b&bitUNS != 0,
		SEQ: b & 0x0F,
	}
}

func (c ControlField) String() string {
	return fmt.Sprintf("FIR=%t FIN=%t CON=%t UNS=%t SEQ=%d", c.FIR, c.FIN, c.CON, c.UNS, c.SEQ)
}

// SeqEquals compares two sequence numbers modulo 16.
func SeqEquals(a, b uint8) bool {
	return (a & 0x0F) == (b & 0x0F)
}

// NextSeq increments a sequence number modulo 16.
func NextSeq(s uint8) uint8 {
	return (s + 1) & 0x0F
}
