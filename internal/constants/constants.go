package constants

// Default configuration constants
const (
	// DefaultBufferSize is the default message buffer capacity in bytes.
	// Sized for a handful of maximum-size frames plus transmit staging
	// headroom; small nodes shrink this, gateways grow it.
	DefaultBufferSize = 4096

	// DefaultMaxTasks is the default capacity of each task stack
	// (pending messages, per-endpoint deliveries, staged transmissions).
	DefaultMaxTasks = 10

	// MaxDataSize is the upper clamp on frame payload bytes. A header
	// declaring more than this is rejected by the framing layer before
	// any payload byte is accepted.
	MaxDataSize = 128

	// MaxDropCount is the ceiling of the saturating drop counter.
	// Once reached, further drops are no longer distinguishable.
	MaxDropCount = 255
)

// WatermarkScale is the scale of stack occupancy watermarks (percent).
const WatermarkScale = 100
