// Package interfaces provides internal interface definitions for go-busmsg.
// These are separate from the public interfaces to avoid circular imports
// between the main package and internal packages.
package interfaces

// HAL is the hardware abstraction the allocator synchronises through.
// MaskIRQ brackets a critical section during which the receive path must
// not run; UnmaskIRQ ends it. This is the only lock primitive in the
// library.
//
// The allocator never masks from the receive context itself: producer-side
// entry points (SetData, ValidHeader, EndMsg, InvalidMsg) are specified as
// running with the receive path already exclusive, so implementations do
// not need to support nested masking.
type HAL interface {
	MaskIRQ()
	UnmaskIRQ()
}

// Logger interface for optional logging.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer interface for allocator statistics collection.
// Implementations must be safe to call from the receive context.
type Observer interface {
	// ObserveDrop is called each time a pending task or an in-use view
	// is evicted before consumption.
	ObserveDrop()

	// ObserveMsgWatermark is called when the pending-message stack
	// occupancy watermark rises, with the new percentage.
	ObserveMsgWatermark(pct uint8)

	// ObserveDeliveryWatermark is called when the delivery stack
	// occupancy watermark rises, with the new percentage.
	ObserveDeliveryWatermark(pct uint8)

	// ObserveRx is called once per completed inbound frame.
	ObserveRx(bytes uint64)

	// ObserveTx is called once per staged outbound frame.
	ObserveTx(bytes uint64)
}
