package alloc

import "github.com/ehrlich-b/go-busmsg/wire"

// Producer surface. Everything in this file runs in the receive context:
// it preempts the main loop and is never preempted by it, so no masking
// happens here. The framing layer guarantees the call order
// SetData×N, ValidHeader, SetData×M, then EndMsg or InvalidMsg.

// SetData writes one received byte at the cursor. No bounds check: the
// cursor discipline in ValidHeader and EndMsg guarantees the reserved
// region is inside the buffer.
func (a *Allocator) SetData(b byte) {
	a.buf[a.dataPtr] = b
	a.dataPtr++
}

// ValidHeader is called once the fixed-size header has been received and
// checked by the framing layer. valid=false discards the header in place
// and reuses the slot for the next frame. valid=true fixes the frame's
// estimated end from the declared payload size, relocating the frame to
// the buffer start when it cannot finish at the tail.
func (a *Allocator) ValidHeader(valid bool, dataSize int) {
	if !valid {
		a.dataPtr = a.currentMsg
		return
	}

	end := a.currentMsg + wire.HeaderSize + dataSize + wire.CRCSize
	if end > len(a.buf) {
		// The frame cannot finish before the buffer end. Leave the
		// header bytes at the tail for the main loop to move and
		// continue the frame at offset 0.
		a.copyFrom = a.currentMsg
		a.copyPend = true
		a.currentMsg = 0
		a.dataPtr = wire.HeaderSize
		end = wire.HeaderSize + dataSize + wire.CRCSize
	}
	a.dataEnd = end

	// The region now claimed may cover the frame a consumer is reading.
	if a.usedValid && a.usedMsg >= a.currentMsg && a.usedMsg <= end {
		a.usedValid = false
		a.countDrop()
	}
}

// InvalidMsg abandons the in-progress frame: the bytes written so far are
// reclaimed and the slot is reused.
func (a *Allocator) InvalidMsg() {
	a.reclaim(a.currentMsg, a.dataPtr)
	a.dataPtr = a.currentMsg
	a.dataEnd = a.currentMsg + wire.HeaderSize + wire.CRCSize
	if a.currentMsg == 0 {
		// The abandoned frame was the one a pending header copy was
		// re-homed for; the copy has nothing to complete any more.
		a.copyPend = false
	}
}

// EndMsg finishes the in-progress frame (CRC bytes included) and queues
// it for interpretation, then parks the cursor for the next frame.
func (a *Allocator) EndMsg() {
	a.reclaim(a.currentMsg, a.dataPtr)

	if a.obs != nil {
		a.obs.ObserveRx(uint64(a.dataPtr - a.currentMsg))
	}
	a.pushMsg(a.currentMsg)

	// Park the cursor past this frame. The CRC bytes are not part of
	// the next frame's slot.
	if a.dataPtr+wire.HeaderSize+wire.CRCSize > len(a.buf) {
		// Not even a minimal frame fits before the end.
		a.dataPtr = 0
	} else if a.buf[a.dataPtr]%2 == 0 {
		// Historical alignment step: the next slot starts one byte
		// further when the byte under the cursor is even. Note this
		// reads the data value, not the address.
		a.dataPtr++
	}
	a.currentMsg = a.dataPtr
	a.dataEnd = a.currentMsg + wire.HeaderSize + wire.CRCSize

	// Pre-clear the landing zone of the next header.
	a.reclaim(a.currentMsg, a.dataEnd)
}

// pushMsg queues a completed frame offset, evicting the oldest pending
// frame when the stack is full. Runs in the receive context or under the
// IRQ mask.
func (a *Allocator) pushMsg(off int) {
	if off < 0 || off >= len(a.buf) {
		panic("busmsg: message offset outside buffer")
	}
	if a.msgNb == len(a.msgTasks) {
		a.slideMsg(0, nogate)
		a.countDrop()
		if a.log != nil {
			a.log.Debugf("pending stack full, oldest frame dropped")
		}
	}
	a.msgTasks[a.msgNb] = off
	a.msgNb++
}
