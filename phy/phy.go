// Package phy holds the pieces shared by go-busmsg physical-layer
// drivers: the interrupt-mask gate that stands in for the MCU's IRQ
// enable bit, and the framing state machine that turns raw bus bytes
// into allocator producer calls.
package phy

import "sync"

// Sink is the allocator's producer surface, driven from the receive
// context. The framing layer guarantees the call order SetData×N,
// ValidHeader, SetData×M, then EndMsg or InvalidMsg.
type Sink interface {
	SetData(b byte)
	ValidHeader(valid bool, dataSize int)
	EndMsg()
	InvalidMsg()
}

// Gate implements the interrupt mask over a mutex. The driver's receive
// goroutine holds the gate while it invokes the sink, which makes each
// receive step atomic with respect to main-context critical sections —
// the software equivalent of an interrupt that cannot be preempted.
//
// The zero value is ready to use. Masking is not reentrant; the
// allocator upholds this by never masking from the receive context.
type Gate struct {
	mu sync.Mutex
}

// MaskIRQ enters a critical section: the receive context cannot run
// until UnmaskIRQ.
func (g *Gate) MaskIRQ() {
	g.mu.Lock()
}

// UnmaskIRQ leaves the critical section.
func (g *Gate) UnmaskIRQ() {
	g.mu.Unlock()
}
