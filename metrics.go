package busmsg

import "sync/atomic"

// MemoryStats is a point-in-time snapshot of the allocator's memory
// statistics, as reported by Node.Stats.
type MemoryStats struct {
	// MsgStackRatio is the high-water occupancy of the pending-message
	// stack, in percent. Monotone non-decreasing.
	MsgStackRatio uint8

	// DeliveryStackRatio is the high-water occupancy of the delivery
	// stack, in percent. Monotone non-decreasing.
	DeliveryStackRatio uint8

	// DropCount counts tasks evicted before consumption. Saturates at
	// MaxDropCount.
	DropCount uint8

	// Current stack occupancies.
	PendingMessages   int
	PendingDeliveries int
	StagedTransmits   int
}

// Observer allows pluggable statistics collection. Implementations must
// be safe to call from the receive context.
type Observer interface {
	// ObserveDrop is called each time a pending task or an in-use view
	// is evicted before consumption.
	ObserveDrop()

	// ObserveMsgWatermark is called when the pending-message stack
	// watermark rises, with the new percentage.
	ObserveMsgWatermark(pct uint8)

	// ObserveDeliveryWatermark is called when the delivery stack
	// watermark rises, with the new percentage.
	ObserveDeliveryWatermark(pct uint8)

	// ObserveRx is called once per completed inbound frame.
	ObserveRx(bytes uint64)

	// ObserveTx is called once per staged outbound frame.
	ObserveTx(bytes uint64)
}

// Metrics tracks traffic and memory-pressure statistics for a node
type Metrics struct {
	// Frame counters
	RxFrames atomic.Uint64 // Completed inbound frames
	TxFrames atomic.Uint64 // Staged outbound frames

	// Byte counters
	RxBytes atomic.Uint64 // Total bytes received into the buffer
	TxBytes atomic.Uint64 // Total bytes staged for transmission

	// Memory pressure
	Drops             atomic.Uint64 // Evictions before consumption (not saturating)
	MsgWatermark      atomic.Uint32 // Pending-message stack high water, percent
	DeliveryWatermark atomic.Uint32 // Delivery stack high water, percent
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	RxFrames uint64
	TxFrames uint64
	RxBytes  uint64
	TxBytes  uint64

	Drops             uint64
	MsgWatermark      uint8
	DeliveryWatermark uint8
}

// Snapshot creates a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RxFrames:          m.RxFrames.Load(),
		TxFrames:          m.TxFrames.Load(),
		RxBytes:           m.RxBytes.Load(),
		TxBytes:           m.TxBytes.Load(),
		Drops:             m.Drops.Load(),
		MsgWatermark:      uint8(m.MsgWatermark.Load()),
		DeliveryWatermark: uint8(m.DeliveryWatermark.Load()),
	}
}

// Reset resets all metrics counters (useful for testing)
func (m *Metrics) Reset() {
	m.RxFrames.Store(0)
	m.TxFrames.Store(0)
	m.RxBytes.Store(0)
	m.TxBytes.Store(0)
	m.Drops.Store(0)
	m.MsgWatermark.Store(0)
	m.DeliveryWatermark.Store(0)
}

// ObserveDrop implements Observer
func (m *Metrics) ObserveDrop() {
	m.Drops.Add(1)
}

// ObserveMsgWatermark implements Observer
func (m *Metrics) ObserveMsgWatermark(pct uint8) {
	storeMax(&m.MsgWatermark, uint32(pct))
}

// ObserveDeliveryWatermark implements Observer
func (m *Metrics) ObserveDeliveryWatermark(pct uint8) {
	storeMax(&m.DeliveryWatermark, uint32(pct))
}

// ObserveRx implements Observer
func (m *Metrics) ObserveRx(bytes uint64) {
	m.RxFrames.Add(1)
	m.RxBytes.Add(bytes)
}

// ObserveTx implements Observer
func (m *Metrics) ObserveTx(bytes uint64) {
	m.TxFrames.Add(1)
	m.TxBytes.Add(bytes)
}

// storeMax raises v to x if x is larger.
func storeMax(v *atomic.Uint32, x uint32) {
	for {
		current := v.Load()
		if x <= current {
			return
		}
		if v.CompareAndSwap(current, x) {
			return
		}
	}
}

// NoOpObserver is a no-op implementation of Observer
type NoOpObserver struct{}

func (NoOpObserver) ObserveDrop()                      {}
func (NoOpObserver) ObserveMsgWatermark(uint8)         {}
func (NoOpObserver) ObserveDeliveryWatermark(uint8)    {}
func (NoOpObserver) ObserveRx(uint64)                  {}
func (NoOpObserver) ObserveTx(uint64)                  {}

// Compile-time interface checks
var _ Observer = (*Metrics)(nil)
var _ Observer = (*NoOpObserver)(nil)
