package alloc

// Transmit staging. Outbound frames are staged inside the same buffer as
// reception so the UART driver reads from one place, which means staging
// must coexist with a frame that is half-way through being received: the
// cursor is relocated under the IRQ mask, then the in-flight bytes follow
// it outside the critical section.

// reserve claims size bytes at the reception cursor for a locally staged
// frame, relocating the in-progress reception behind (or wrapped around)
// the claimed region. On success, the reception cursor points at an
// equivalent slot elsewhere, the in-flight bytes have moved with it, and
// the returned offset is safe to fill.
func (a *Allocator) reserve(size int) (int, error) {
	if size > len(a.buf) {
		return 0, ErrFrameTooLarge
	}

	a.hal.MaskIRQ()
	prog := a.dataPtr - a.currentMsg
	est := a.dataEnd - a.currentMsg
	if size+est > len(a.buf) {
		a.hal.UnmaskIRQ()
		return 0, ErrNoSpace
	}

	oldCur := a.currentMsg
	var off int
	switch {
	case a.currentMsg+size > len(a.buf):
		// The staged frame cannot finish at the cursor: stage it at
		// the start and re-home the reception right after it.
		off = 0
		a.currentMsg = size
		a.dataPtr = size + prog
		a.dataEnd = size + est
		a.reclaim(0, a.dataEnd)
	case a.currentMsg+size+est > len(a.buf):
		// The staged frame fits but the receiving frame's estimated
		// tail does not: wrap the reception to the start.
		off = a.currentMsg
		a.currentMsg = 0
		a.dataPtr = prog
		a.dataEnd = est
		a.reclaim(off, off+size)
		a.reclaim(0, est)
	default:
		off = a.currentMsg
		a.currentMsg += size
		a.dataPtr += size
		a.dataEnd += size
		a.reclaim(off, a.dataEnd)
	}
	a.hal.UnmaskIRQ()

	// Reception may already be running into the new slot; the bytes
	// being moved all sit below its write cursor.
	if prog > 0 {
		copy(a.buf[a.currentMsg:a.currentMsg+prog], a.buf[oldCur:oldCur+prog])
	}
	return off, nil
}

// txHeadBytes is staged first so a driver polling the stack mid-push can
// begin transmission immediately.
const txHeadBytes = 3

// StageTx stages a complete frame for transmission and queues it on the
// transmit stack. A full stack evicts its oldest staged frame.
func (a *Allocator) StageTx(frame []byte) error {
	size := len(frame)
	if size == 0 {
		return ErrNoTask
	}
	off, err := a.reserve(size)
	if err != nil {
		return err
	}

	head := txHeadBytes
	if size < head {
		head = size
	}
	copy(a.buf[off:], frame[:head])

	a.hal.MaskIRQ()
	if a.txNb == len(a.txTasks) {
		a.slideTx(0, nogate)
		a.countDrop()
		if a.log != nil {
			a.log.Debugf("transmit stack full, oldest frame dropped")
		}
	}
	a.txTasks[a.txNb] = txTask{off: off, size: size}
	a.txNb++
	a.hal.UnmaskIRQ()

	copy(a.buf[off+head:], frame[head:])

	if a.obs != nil {
		a.obs.ObserveTx(uint64(size))
	}
	return nil
}

// SetMessage stages a locally-generated frame as if it had been received
// from the bus, queueing it directly for interpretation.
func (a *Allocator) SetMessage(frame []byte) error {
	off, err := a.reserve(len(frame))
	if err != nil {
		return err
	}
	copy(a.buf[off:], frame)

	a.hal.MaskIRQ()
	a.pushMsg(off)
	a.hal.UnmaskIRQ()
	return nil
}

// TxTask is a view of staged outbound bytes.
type TxTask struct {
	a    *Allocator
	off  int
	size int
}

// Offset returns the staged frame's buffer offset.
func (t TxTask) Offset() int {
	return t.off
}

// Size returns the staged frame's length in bytes.
func (t TxTask) Size() int {
	return t.size
}

// Bytes returns the staged bytes.
func (t TxTask) Bytes() []byte {
	return t.a.buf[t.off : t.off+t.size]
}

// TxCount returns the number of staged transmissions.
func (a *Allocator) TxCount() int {
	return a.txNb
}

// PeekTx returns the oldest staged transmission without removing it.
// The driver pulls it with PopTx once the bytes are on the wire.
func (a *Allocator) PeekTx() (TxTask, error) {
	if a.txNb == 0 {
		return TxTask{}, ErrNoTask
	}
	t := a.txTasks[0]
	return TxTask{a: a, off: t.off, size: t.size}, nil
}

// PopTx dequeues the oldest staged transmission.
func (a *Allocator) PopTx() {
	if a.txNb == 0 {
		return
	}
	a.slideTx(0, a.hal)
}
