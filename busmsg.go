// Package busmsg provides the main API for bus-messaging nodes built on
// the single-buffer message allocator. A Node owns one allocator and one
// physical-layer driver; application code registers endpoints on the
// node and exchanges frames through them.
package busmsg

import (
	"github.com/ehrlich-b/go-busmsg/internal/alloc"
	"github.com/ehrlich-b/go-busmsg/internal/interfaces"
	"github.com/ehrlich-b/go-busmsg/internal/logging"
	"github.com/ehrlich-b/go-busmsg/phy"
	"github.com/ehrlich-b/go-busmsg/wire"
)

// Logger is the logging interface the node and its parts write through.
type Logger = interfaces.Logger

// Phy is a physical-layer driver: it owns the receive context and the
// wire. The loopback and serial drivers implement it.
type Phy interface {
	// Gate returns the driver's interrupt-mask primitive; the node's
	// allocator synchronises through it.
	Gate() *phy.Gate

	// Attach wires the allocator's producer surface into the driver's
	// receive context.
	Attach(sink phy.Sink)

	// Transmit puts one complete frame on the wire (the driver adds
	// the preamble).
	Transmit(frame []byte) error

	Close() error
}

// Params contains parameters for creating a node
type Params struct {
	// BufferSize is the message buffer capacity in bytes
	// (default: DefaultBufferSize).
	BufferSize int

	// MaxTasks is the capacity of each task stack
	// (default: DefaultMaxTasks).
	MaxTasks int

	// Logger for debug output (default: the package logger).
	Logger Logger

	// Observer receives statistics callbacks (default: none).
	Observer Observer
}

// DefaultParams returns node parameters with library defaults.
func DefaultParams() Params {
	return Params{
		BufferSize: DefaultBufferSize,
		MaxTasks:   DefaultMaxTasks,
	}
}

// Node is one participant on the bus.
type Node struct {
	phy    Phy
	a      *alloc.Allocator
	log    Logger
	closed bool

	endpoints []*Endpoint
}

// NewNode creates a node over the given driver and attaches its
// allocator to the driver's receive context.
func NewNode(p Phy, params Params) (*Node, error) {
	log := params.Logger
	if log == nil {
		log = logging.Default()
	}

	var obs interfaces.Observer
	if params.Observer != nil {
		obs = params.Observer
	}

	a, err := alloc.New(alloc.Config{
		BufferSize: params.BufferSize,
		MaxTasks:   params.MaxTasks,
		HAL:        p.Gate(),
		Logger:     log,
		Observer:   obs,
	})
	if err != nil {
		return nil, WrapError("INIT", ErrCodeNoSpace, err)
	}

	n := &Node{phy: p, a: a, log: log}
	p.Attach(a)
	return n, nil
}

// Endpoint is an addressable destination inside the node.
type Endpoint struct {
	node *Node
	ref  alloc.EndpointRef

	// ID is the endpoint's unique bus address.
	ID uint16

	// Type groups endpoints for type-targeted frames.
	Type uint16
}

// NewEndpoint registers an endpoint on the node.
func (n *Node) NewEndpoint(id, typ uint16) (*Endpoint, error) {
	if n.closed {
		return nil, NewError("ENDPOINT", ErrCodeClosed, "")
	}
	for _, e := range n.endpoints {
		if e.ID == id {
			return nil, NewError("ENDPOINT", ErrCodeDuplicateID, "")
		}
	}
	e := &Endpoint{
		node: n,
		ref:  alloc.EndpointRef(len(n.endpoints)),
		ID:   id,
		Type: typ,
	}
	n.endpoints = append(n.endpoints, e)
	return e, nil
}

// Loop runs one main-loop tick: allocator housekeeping, interpretation
// of completed frames into per-endpoint deliveries, and draining of
// staged transmissions onto the wire. Call it from a single goroutine.
func (n *Node) Loop() error {
	if n.closed {
		return NewError("LOOP", ErrCodeClosed, "")
	}
	n.a.Loop()

	// Interpret every frame completed since the last tick.
	for {
		f, err := n.a.PullPending()
		if err != nil {
			break
		}
		n.route(f)
	}

	// Put staged frames on the wire, oldest first.
	for {
		t, err := n.a.PeekTx()
		if err != nil {
			break
		}
		if err := n.phy.Transmit(t.Bytes()); err != nil {
			return WrapError("TRANSMIT", ErrCodeTransmit, err)
		}
		n.a.PopTx()
	}
	return nil
}

// route fans a completed frame out to every matching endpoint.
func (n *Node) route(f alloc.Frame) {
	h := f.Header()
	matched := false
	for _, e := range n.endpoints {
		if !e.matches(h) {
			continue
		}
		n.a.AllocDelivery(e.ref, f)
		matched = true
	}
	if !matched && n.log != nil {
		n.log.Debugf("no endpoint for frame: target=%d mode=%s", h.Target, h.TargetMode)
	}
}

func (e *Endpoint) matches(h wire.Header) bool {
	switch h.TargetMode {
	case wire.IDMode, wire.IDAckMode:
		return h.Target == e.ID
	case wire.TypeMode:
		return h.Target == e.Type
	case wire.BroadcastMode:
		return true
	}
	return false
}

// Received is a frame delivered to an endpoint. Header is a decoded
// copy; Payload is a view into the message buffer that stays valid until
// Release is called or the storage is reclaimed for newer traffic.
type Received struct {
	Header  wire.Header
	Payload []byte
	node    *Node
}

// Release signals that the payload view is no longer being read.
func (r *Received) Release() {
	r.node.a.ReleaseUsed()
}

// Receive pulls the oldest frame delivered to the endpoint. It returns
// ErrNoTask when nothing is queued; callers retry on the next tick.
func (e *Endpoint) Receive() (*Received, error) {
	f, err := e.node.a.PullByEndpoint(e.ref)
	if err != nil {
		return nil, err
	}
	return &Received{
		Header:  f.Header(),
		Payload: f.Payload(),
		node:    e.node,
	}, nil
}

// Pending returns the number of frames queued for the endpoint.
func (e *Endpoint) Pending() int {
	count := 0
	for i := 0; i < e.node.a.DeliveryCount(); i++ {
		t, err := e.node.a.PeekDelivery(i)
		if err != nil {
			break
		}
		if t.Endpoint == e.ref {
			count++
		}
	}
	return count
}

// Send stages a frame from this endpoint. The frame goes out on the next
// Loop tick.
func (e *Endpoint) Send(target uint16, mode wire.TargetMode, cmd wire.Command, payload []byte) error {
	if len(payload) > MaxDataSize {
		return NewError("SEND", ErrCodeFrameTooLarge, "")
	}
	frame := wire.BuildFrame(wire.Header{
		Source:     e.ID,
		Target:     target,
		TargetMode: mode,
		Cmd:        cmd,
	}, payload)
	if err := e.node.a.StageTx(frame); err != nil {
		return WrapError("SEND", ErrCodeNoSpace, err)
	}
	return nil
}

// Inject stages a locally-generated frame as if it had been received
// from the bus; it is routed on the next Loop tick.
func (n *Node) Inject(h wire.Header, payload []byte) error {
	if len(payload) > MaxDataSize {
		return NewError("INJECT", ErrCodeFrameTooLarge, "")
	}
	if err := n.a.SetMessage(wire.BuildFrame(h, payload)); err != nil {
		return WrapError("INJECT", ErrCodeNoSpace, err)
	}
	return nil
}

// Stats returns a point-in-time snapshot of the allocator's memory
// statistics.
func (n *Node) Stats() MemoryStats {
	msg, delivery := n.a.Watermarks()
	return MemoryStats{
		MsgStackRatio:      msg,
		DeliveryStackRatio: delivery,
		DropCount:          n.a.DropCount(),
		PendingMessages:    n.a.PendingCount(),
		PendingDeliveries:  n.a.DeliveryCount(),
		StagedTransmits:    n.a.TxCount(),
	}
}

// IsEmpty reports whether the node's allocator holds no data at all.
func (n *Node) IsEmpty() bool {
	return n.a.IsEmpty()
}

// Close shuts the node down. The allocator's contents are abandoned.
func (n *Node) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	return n.phy.Close()
}
