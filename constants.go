package busmsg

import "github.com/ehrlich-b/go-busmsg/internal/constants"

// Re-export constants for public API
const (
	DefaultBufferSize = constants.DefaultBufferSize
	DefaultMaxTasks   = constants.DefaultMaxTasks
	MaxDataSize       = constants.MaxDataSize
	MaxDropCount      = constants.MaxDropCount
)
