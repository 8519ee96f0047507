package outstation

import (
	"bytes"
	"time"

	"github.com/bmironenko/dnp3/internal/dnp3/apdu"
)

// history remembers the last fully processed solicited request, letting the
// channel detect an exact repeat and apply the idempotence rule (§4.6)
// instead of re-executing side effects.
type history struct {
	valid   bool
	seq     uint8
	objects []byte
}

func (h *history) matches(seq uint8, objects []byte) bool {
	return h.valid && apdu.SeqEquals(h.seq, seq) && bytes.Equal(h.objects, objects)
}

func (h *history) store(seq uint8, objects []byte) {
	h.valid = true
	h.seq = seq
	h.objects = append(h.objects[:0], objects...)
}

func (h *history) reset() {
	h.valid = false
	h.objects = h.objects[:0]
}

// deferredRequest is the single-slot mailbox for a fragment that arrived
// while a response was still in flight.
type deferredRequest struct {
	pending bool
	data    []byte
}

func (d *deferredRequest) set(data []byte) {
	d.pending = true
	d.data = append(d.data[:0], data...)
}

func (d *deferredRequest) take() ([]byte, bool) {
	if !d.pending {
		return nil, false
	}
	data := d.data
	d.pending = false
	d.data = nil
	return data, true
}

// selectEntry is the single-slot select-before-operate record: the last
// successful SELECT, awaiting a matching OPERATE within selectTimeout.
type selectEntry struct {
	valid     bool
	seq       uint8
	timestamp time.Time
	objects   []byte
}

func (s *selectEntry) store(seq uint8, objects []byte, now time.Time) {
	s.valid = true
	s.seq = seq
	s.timestamp = now
	s.objects = append(s.objects[:0], objects...)
}

func (s *selectEntry) clear() {
	s.valid = false
	s.objects = s.objects[:0]
}

// validate checks an OPERATE request's sequence number and object payload
// against the stored SELECT, per spec.md §4.7/§8 scenario 2.
func (s *selectEntry) validate(seq uint8, objects []byte, now time.Time, timeout time.Duration) apdu.CommandStatus {
	if !s.valid {
		return apdu.CommandStatusNoSelect
	}
	if now.Sub(s.timestamp) > timeout {
		return apdu.CommandStatusTimeout
	}
	if seq != apdu.NextSeq(s.seq) {
		return apdu.CommandStatusNoSelect
	}
	if !bytes.Equal(s.objects, objects) {
		return apdu.CommandStatusNoSelect
	}
	return apdu.CommandStatusSuccess
}
