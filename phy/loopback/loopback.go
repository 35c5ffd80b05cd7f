// Package loopback provides an in-memory bus for go-busmsg: every byte
// a port transmits is heard by every other port on the bus, the way a
// half-duplex wired bus behaves. It is the driver the integration tests
// and the demo run on; real deployments use a hardware phy instead.
package loopback

import (
	"errors"
	"sync"

	"github.com/ehrlich-b/go-busmsg/phy"
	"github.com/ehrlich-b/go-busmsg/wire"
)

// ErrClosed is returned by Transmit on a closed port.
var ErrClosed = errors.New("loopback: port closed")

// rxQueueDepth bounds the per-port inbound byte-run queue.
const rxQueueDepth = 64

// Bus connects loopback ports. Transmission is serialised: one frame
// finishes before the next starts, matching the half-duplex medium this
// stands in for.
type Bus struct {
	mu    sync.Mutex
	ports []*Port
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// NewPort attaches a new port to the bus. The port is inert until a
// sink is attached.
func (b *Bus) NewPort() *Port {
	p := &Port{
		bus:   b,
		rx:    make(chan []byte, rxQueueDepth),
		flush: make(chan chan struct{}),
		done:  make(chan struct{}),
	}
	b.mu.Lock()
	b.ports = append(b.ports, p)
	b.mu.Unlock()
	return p
}

// Close shuts down every port on the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	ports := append([]*Port(nil), b.ports...)
	b.mu.Unlock()
	for _, p := range ports {
		_ = p.Close()
	}
	return nil
}

// Port is one node's attachment point. Its receive goroutine is the
// node's receive context: bytes heard on the bus run through the framing
// receiver with the port's gate held.
type Port struct {
	bus  *Bus
	gate phy.Gate
	rcvr *phy.Receiver

	rx    chan []byte
	flush chan chan struct{}
	done  chan struct{}

	closeOnce sync.Once
	started   bool
}

// Gate returns the port's interrupt-mask primitive.
func (p *Port) Gate() *phy.Gate {
	return &p.gate
}

// Attach wires the allocator's producer surface to the port and starts
// the receive goroutine.
func (p *Port) Attach(sink phy.Sink) {
	p.rcvr = phy.NewReceiver(&p.gate, sink)
	if !p.started {
		p.started = true
		go p.rxLoop()
	}
}

// rxLoop is the receive context: it drains inbound byte runs into the
// framing receiver until the port closes.
func (p *Port) rxLoop() {
	for {
		select {
		case run := <-p.rx:
			p.rcvr.InBytes(run)
		case ack := <-p.flush:
			// Finish every run already queued before acknowledging.
			for len(p.rx) > 0 {
				p.rcvr.InBytes(<-p.rx)
			}
			close(ack)
		case <-p.done:
			return
		}
	}
}

// Transmit puts one staged frame on the wire: the preamble, then the
// frame bytes, heard by every other port.
func (p *Port) Transmit(frame []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	run := make([]byte, 0, len(frame)+1)
	run = append(run, wire.Preamble)
	run = append(run, frame...)

	p.bus.mu.Lock()
	peers := append([]*Port(nil), p.bus.ports...)
	p.bus.mu.Unlock()

	for _, peer := range peers {
		if peer == p {
			continue
		}
		select {
		case peer.rx <- run:
		case <-peer.done:
		}
	}
	return nil
}

// Close detaches the port from the bus and stops its receive context.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		p.bus.mu.Lock()
		for i, q := range p.bus.ports {
			if q == p {
				p.bus.ports = append(p.bus.ports[:i], p.bus.ports[i+1:]...)
				break
			}
		}
		p.bus.mu.Unlock()
	})
	return nil
}

// Drain blocks until every byte run queued so far has been processed by
// the receive context. Tests use it to make delivery deterministic.
func (p *Port) Drain() {
	for {
		ack := make(chan struct{})
		select {
		case p.flush <- ack:
			<-ack
		case <-p.done:
			return
		}
		if len(p.rx) == 0 {
			return
		}
	}
}
