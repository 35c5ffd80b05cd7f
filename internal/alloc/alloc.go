// Package alloc implements the single-buffer message allocator at the
// heart of go-busmsg.
//
// Every inbound byte is written in place into one fixed-size buffer, and
// completed frames are handed to consumers as views into that same buffer;
// nothing is ever copied out or heap-allocated per message. Bounded task
// stacks carry buffer offsets between the receive context and the main
// loop, and space for new data is reclaimed by evicting the oldest tasks
// that still point into the region about to be overwritten.
//
// Two execution contexts touch the allocator. The receive context (an
// interrupt handler on firmware, the port's receive goroutine here) calls
// SetData, ValidHeader, EndMsg and InvalidMsg; it preempts the main
// context and is never preempted by it. The main context calls everything
// else. The only synchronisation primitive is the HAL's interrupt mask,
// taken for the shortest possible regions; the allocator never masks from
// the receive context itself.
package alloc

import (
	"fmt"

	"github.com/ehrlich-b/go-busmsg/internal/constants"
	"github.com/ehrlich-b/go-busmsg/internal/interfaces"
	"github.com/ehrlich-b/go-busmsg/wire"
)

// EndpointRef identifies a local endpoint in delivery tasks. The
// allocator treats it as an opaque routing key.
type EndpointRef uint16

// deliveryTask pairs a frame offset with the endpoint it is routed to.
type deliveryTask struct {
	off int
	ep  EndpointRef
}

// txTask points at bytes staged for transmission.
type txTask struct {
	off  int
	size int
}

// nopHAL is used when no HAL is configured (single-context operation,
// typically tests).
type nopHAL struct{}

func (nopHAL) MaskIRQ()   {}
func (nopHAL) UnmaskIRQ() {}

// nogate is passed to stack slides that already run exclusively (receive
// context, or main context under the IRQ mask).
var nogate interfaces.HAL = nopHAL{}

// Config carries allocator construction parameters.
type Config struct {
	// BufferSize is the message buffer capacity in bytes.
	// Defaults to constants.DefaultBufferSize.
	BufferSize int

	// MaxTasks is the capacity of each task stack.
	// Defaults to constants.DefaultMaxTasks.
	MaxTasks int

	// HAL provides the interrupt mask. May be nil when the allocator is
	// only ever driven from one goroutine.
	HAL interfaces.HAL

	// Logger for debug output (may be nil).
	Logger interfaces.Logger

	// Observer receives statistics callbacks (may be nil).
	Observer interfaces.Observer
}

// Allocator owns the message buffer, the reception cursor and the three
// task stacks.
type Allocator struct {
	hal interfaces.HAL
	log interfaces.Logger
	obs interfaces.Observer

	buf []byte

	// Reception cursor. currentMsg is the start of the frame being
	// received, dataPtr the next byte to write, dataEnd the estimated
	// end of the frame (exclusive). Owned by the receive context;
	// relocated by the main context only under the IRQ mask.
	currentMsg int
	dataPtr    int
	dataEnd    int

	// Deferred header copy: when a header lands at the buffer tail and
	// its frame cannot fit there, the receive context re-homes the
	// cursor to offset 0 and leaves the already-received header bytes
	// behind for the main loop to move.
	copyFrom int
	copyPend bool

	// Task stacks. The count fields double as the index of the next
	// free slot.
	msgTasks []int
	msgNb    int
	epTasks  []deliveryTask
	epNb     int
	txTasks  []txTask
	txNb     int

	// usedMsg is the offset of the frame a consumer is currently
	// reading, if any. The reclaimer invalidates it when its bytes are
	// about to be overwritten.
	usedMsg   int
	usedValid bool

	// Statistics. drops saturates; watermarks are monotone.
	drops       uint8
	msgPeak     uint8
	deliverPeak uint8
}

// New creates an allocator.
func New(config Config) (*Allocator, error) {
	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = constants.DefaultBufferSize
	}
	maxTasks := config.MaxTasks
	if maxTasks <= 0 {
		maxTasks = constants.DefaultMaxTasks
	}
	if bufSize < 2*wire.MinFrameSize {
		return nil, fmt.Errorf("buffer size %d too small: need at least %d", bufSize, 2*wire.MinFrameSize)
	}

	hal := config.HAL
	if hal == nil {
		hal = nopHAL{}
	}

	a := &Allocator{
		hal:      hal,
		log:      config.Logger,
		obs:      config.Observer,
		buf:      make([]byte, bufSize),
		msgTasks: make([]int, maxTasks),
		epTasks:  make([]deliveryTask, maxTasks),
		txTasks:  make([]txTask, maxTasks),
	}
	a.dataEnd = wire.HeaderSize + wire.CRCSize

	if a.log != nil {
		a.log.Debugf("allocator ready: buffer=%dB stacks=%d", bufSize, maxTasks)
	}
	return a, nil
}

// Loop performs main-context housekeeping. Call it once per main-loop
// tick: it raises the pending-message watermark and completes any
// deferred header copy so reception can finish the relocated frame.
func (a *Allocator) Loop() {
	pct := uint8(constants.WatermarkScale * a.msgNb / len(a.msgTasks))
	if pct > a.msgPeak {
		a.msgPeak = pct
		if a.obs != nil {
			a.obs.ObserveMsgWatermark(pct)
		}
	}

	if a.copyPend {
		copy(a.buf[:wire.HeaderSize], a.buf[a.copyFrom:a.copyFrom+wire.HeaderSize])
		a.copyPend = false
	}
}

// IsEmpty reports whether the allocator holds no data at all: no pending
// tasks of any kind and no reception in progress.
func (a *Allocator) IsEmpty() bool {
	return a.msgNb == 0 && a.epNb == 0 && a.txNb == 0 && a.dataPtr == a.currentMsg
}

// CurrentOffset returns the buffer offset the next (or in-progress) frame
// starts at.
func (a *Allocator) CurrentOffset() int {
	return a.currentMsg
}

// BufferSize returns the capacity of the message buffer.
func (a *Allocator) BufferSize() int {
	return len(a.buf)
}

// DropCount returns the saturating count of tasks evicted before
// consumption.
func (a *Allocator) DropCount() uint8 {
	return a.drops
}

// Watermarks returns the high-water occupancy percentages of the
// pending-message and delivery stacks.
func (a *Allocator) Watermarks() (msg, delivery uint8) {
	return a.msgPeak, a.deliverPeak
}

// CopyPending reports whether a deferred header copy is armed. Exposed
// for observability; cleared by Loop.
func (a *Allocator) CopyPending() bool {
	return a.copyPend
}

// countDrop bumps the saturating drop counter.
func (a *Allocator) countDrop() {
	if a.drops < constants.MaxDropCount {
		a.drops++
	}
	if a.obs != nil {
		a.obs.ObserveDrop()
	}
}

// Frame is a zero-copy view of a complete frame inside the buffer.
// The view stays readable until the storage is reclaimed for newer data;
// a consumer holding a view across main-loop ticks must pull it through
// the delivery surface so eviction can be detected.
type Frame struct {
	a   *Allocator
	off int
}

// Valid reports whether f refers to a frame at all.
func (f Frame) Valid() bool {
	return f.a != nil
}

// Offset returns the frame's start offset within the buffer.
func (f Frame) Offset() int {
	return f.off
}

// Header decodes the frame's header.
func (f Frame) Header() wire.Header {
	var h wire.Header
	// The offset was bounds-checked when the task was queued.
	_ = wire.UnmarshalHeader(f.a.buf[f.off:], &h)
	return h
}

// Bytes returns the complete frame: header, payload and CRC.
func (f Frame) Bytes() []byte {
	h := f.Header()
	end := f.off + h.FrameLen()
	if end > len(f.a.buf) {
		// Storage was reclaimed and overwritten with an implausible
		// header; there is no frame here any more.
		return nil
	}
	return f.a.buf[f.off:end]
}

// Payload returns the frame's payload bytes.
func (f Frame) Payload() []byte {
	h := f.Header()
	end := f.off + wire.HeaderSize + int(h.Size)
	if end > len(f.a.buf) {
		return nil
	}
	return f.a.buf[f.off+wire.HeaderSize : end]
}

// frameAt materialises a view for a queued offset.
func (a *Allocator) frameAt(off int) Frame {
	if off < 0 || off >= len(a.buf) {
		panic(fmt.Sprintf("busmsg: frame offset %d outside buffer", off))
	}
	return Frame{a: a, off: off}
}
