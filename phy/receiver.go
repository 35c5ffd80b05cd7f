package phy

import "github.com/ehrlich-b/go-busmsg/wire"

// rxState enumerates the framing states.
type rxState int

const (
	stateIdle    rxState = iota // waiting for a preamble
	statePayload                // collecting payload and CRC bytes
)

// Receiver is the framing validator: a byte-at-a-time state machine that
// delimits frames on the raw byte stream, checks the header and the
// trailing CRC, and drives the Sink accordingly. Every Sink call happens
// with the gate held, so a driver can feed InByte straight from its
// receive loop.
//
// The CRC is folded in as bytes arrive; the frame is never buffered
// outside the sink.
type Receiver struct {
	gate *Gate
	sink Sink

	state  rxState
	header [wire.HeaderSize]byte
	got    int
	remain int
	crc    uint16
	tail   [wire.CRCSize]byte
}

// NewReceiver creates a framing receiver driving sink under gate.
func NewReceiver(gate *Gate, sink Sink) *Receiver {
	return &Receiver{gate: gate, sink: sink}
}

// InByte feeds one received byte through the framing state machine.
// Called from the driver's receive goroutine only.
func (r *Receiver) InByte(b byte) {
	r.gate.mu.Lock()
	defer r.gate.mu.Unlock()

	switch r.state {
	case stateIdle:
		if r.got == 0 {
			if b != wire.Preamble {
				// Noise between frames; resynchronise on the
				// next preamble.
				return
			}
			r.got++
			r.crc = wire.CRC16Init
			return
		}

		// Header byte.
		r.header[r.got-1] = b
		r.sink.SetData(b)
		r.crc = wire.CRC16Update(r.crc, b)
		r.got++
		if r.got <= wire.HeaderSize {
			return
		}

		var h wire.Header
		if err := wire.UnmarshalHeader(r.header[:], &h); err != nil || !h.Sane() {
			r.sink.ValidHeader(false, 0)
			r.reset()
			return
		}
		r.sink.ValidHeader(true, int(h.Size))
		r.remain = int(h.Size) + wire.CRCSize
		r.state = statePayload

	case statePayload:
		r.sink.SetData(b)
		if r.remain > wire.CRCSize {
			r.crc = wire.CRC16Update(r.crc, b)
		} else {
			r.tail[wire.CRCSize-r.remain] = b
		}
		r.remain--
		if r.remain > 0 {
			return
		}

		want := uint16(r.tail[0]) | uint16(r.tail[1])<<8
		if want == r.crc {
			r.sink.EndMsg()
		} else {
			r.sink.InvalidMsg()
		}
		r.reset()
	}
}

// InBytes feeds a run of received bytes.
func (r *Receiver) InBytes(p []byte) {
	for _, b := range p {
		r.InByte(b)
	}
}

// Abort abandons any frame in progress (line break, bus reset).
func (r *Receiver) Abort() {
	r.gate.mu.Lock()
	defer r.gate.mu.Unlock()
	if r.got > 0 || r.state == statePayload {
		r.sink.InvalidMsg()
	}
	r.reset()
}

func (r *Receiver) reset() {
	r.state = stateIdle
	r.got = 0
	r.remain = 0
}
