package alloc

import (
	"github.com/ehrlich-b/go-busmsg/internal/constants"
	"github.com/ehrlich-b/go-busmsg/internal/interfaces"
	"github.com/ehrlich-b/go-busmsg/wire"
)

// Task stacks are bounded FIFOs backed by arrays: push writes at the
// count index, dequeue slides every newer entry left by one. When the
// main context slides, the receive context may preempt it between any
// two shifts and push or reclaim; the gate is therefore taken around
// each individual shift, not around the whole slide, to bound the
// worst-case receive latency. Receive-context callers (and main-context
// callers already under the mask) pass nogate.

// slideMsg removes pending-frame entry i.
func (a *Allocator) slideMsg(i int, gate interfaces.HAL) {
	for j := i + 1; j < a.msgNb; j++ {
		gate.MaskIRQ()
		a.msgTasks[j-1] = a.msgTasks[j]
		gate.UnmaskIRQ()
	}
	gate.MaskIRQ()
	a.msgNb--
	a.msgTasks[a.msgNb] = 0
	gate.UnmaskIRQ()
}

// slideEp removes delivery entry i.
func (a *Allocator) slideEp(i int, gate interfaces.HAL) {
	for j := i + 1; j < a.epNb; j++ {
		gate.MaskIRQ()
		a.epTasks[j-1] = a.epTasks[j]
		gate.UnmaskIRQ()
	}
	gate.MaskIRQ()
	a.epNb--
	a.epTasks[a.epNb] = deliveryTask{}
	gate.UnmaskIRQ()
}

// slideTx removes staged-transmission entry i.
func (a *Allocator) slideTx(i int, gate interfaces.HAL) {
	for j := i + 1; j < a.txNb; j++ {
		gate.MaskIRQ()
		a.txTasks[j-1] = a.txTasks[j]
		gate.UnmaskIRQ()
	}
	gate.MaskIRQ()
	a.txNb--
	a.txTasks[a.txNb] = txTask{}
	gate.UnmaskIRQ()
}

// Interpretation surface (main context).

// PendingCount returns the number of frames waiting for interpretation.
func (a *Allocator) PendingCount() int {
	return a.msgNb
}

// PullPending dequeues the oldest completed frame for interpretation.
func (a *Allocator) PullPending() (Frame, error) {
	if a.msgNb == 0 {
		return Frame{}, ErrNoMessage
	}
	f := a.frameAt(a.msgTasks[0])
	a.slideMsg(0, a.hal)
	return f, nil
}

// AllocDelivery queues a frame for delivery to one endpoint. The routing
// layer calls it once per matching endpoint, so several delivery tasks
// may reference the same frame. A full stack evicts its oldest entry.
func (a *Allocator) AllocDelivery(ep EndpointRef, f Frame) {
	a.hal.MaskIRQ()
	if a.epNb == len(a.epTasks) {
		a.slideEp(0, nogate)
		a.countDrop()
		if a.log != nil {
			a.log.Debugf("delivery stack full, oldest task dropped")
		}
	}
	a.epTasks[a.epNb] = deliveryTask{off: f.off, ep: ep}
	a.epNb++

	pct := uint8(constants.WatermarkScale * a.epNb / len(a.epTasks))
	if pct > a.deliverPeak {
		a.deliverPeak = pct
		if a.obs != nil {
			a.obs.ObserveDeliveryWatermark(pct)
		}
	}
	a.hal.UnmaskIRQ()
}

// Delivery surface (main context).

// DeliveryCount returns the number of queued delivery tasks.
func (a *Allocator) DeliveryCount() int {
	return a.epNb
}

// PullByEndpoint dequeues the oldest delivery task for ep and marks its
// frame as the consumer's in-use view.
func (a *Allocator) PullByEndpoint(ep EndpointRef) (Frame, error) {
	for i := 0; i < a.epNb; i++ {
		if a.epTasks[i].ep != ep {
			continue
		}
		f := a.frameAt(a.epTasks[i].off)
		a.hal.MaskIRQ()
		a.usedMsg = f.off
		a.usedValid = true
		a.hal.UnmaskIRQ()
		a.slideEp(i, a.hal)
		return f, nil
	}
	return Frame{}, ErrNoTask
}

// PullByIndex dequeues delivery task i and marks its frame as the
// consumer's in-use view.
func (a *Allocator) PullByIndex(i int) (Frame, error) {
	if i >= a.epNb {
		return Frame{}, ErrBadIndex
	}
	f := a.frameAt(a.epTasks[i].off)
	a.hal.MaskIRQ()
	a.usedMsg = f.off
	a.usedValid = true
	a.hal.UnmaskIRQ()
	a.slideEp(i, a.hal)
	return f, nil
}

// DeliveryTask is a read-only snapshot of a queued delivery.
type DeliveryTask struct {
	Endpoint EndpointRef
	Frame    Frame
}

// PeekDelivery returns delivery task i without removing it.
func (a *Allocator) PeekDelivery(i int) (DeliveryTask, error) {
	if i >= a.epNb {
		return DeliveryTask{}, ErrBadIndex
	}
	t := a.epTasks[i]
	return DeliveryTask{Endpoint: t.ep, Frame: a.frameAt(t.off)}, nil
}

// DeliveryCmd returns the command of the frame behind delivery task i.
func (a *Allocator) DeliveryCmd(i int) (wire.Command, error) {
	if i >= a.epNb {
		return 0, ErrBadIndex
	}
	return a.frameAt(a.epTasks[i].off).Header().Cmd, nil
}

// DeliverySource returns the source ID of the frame behind delivery
// task i.
func (a *Allocator) DeliverySource(i int) (uint16, error) {
	if i >= a.epNb {
		return 0, ErrBadIndex
	}
	return a.frameAt(a.epTasks[i].off).Header().Source, nil
}

// DeliverySize returns the payload size of the frame behind delivery
// task i.
func (a *Allocator) DeliverySize(i int) (uint16, error) {
	if i >= a.epNb {
		return 0, ErrBadIndex
	}
	return a.frameAt(a.epTasks[i].off).Header().Size, nil
}

// ClearDeliveries removes every delivery task referencing f. Used when a
// downstream decision invalidates a whole fan-out.
func (a *Allocator) ClearDeliveries(f Frame) {
	i := 0
	for i < a.epNb {
		if a.epTasks[i].off == f.off {
			a.slideEp(i, a.hal)
			continue
		}
		i++
	}
}

// ReleaseUsed signals that the consumer is done reading the frame it
// last pulled.
func (a *Allocator) ReleaseUsed() {
	a.hal.MaskIRQ()
	a.usedValid = false
	a.hal.UnmaskIRQ()
}

// UsedFrame returns the consumer's current in-use view, if it is still
// valid. A view that has been invalidated by the reclaimer reports
// ErrNoTask; the storage was reused and the read must be abandoned.
func (a *Allocator) UsedFrame() (Frame, error) {
	if !a.usedValid {
		return Frame{}, ErrNoTask
	}
	return a.frameAt(a.usedMsg), nil
}
