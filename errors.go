package busmsg

import (
	"fmt"

	"github.com/ehrlich-b/go-busmsg/internal/alloc"
)

// Error represents a structured busmsg error with context
type Error struct {
	Op    string    // Operation that failed (e.g., "SEND", "RECEIVE")
	Node  uint16    // Node ID (0 if not applicable)
	Code  ErrorCode // High-level error category
	Msg   string    // Human-readable message
	Inner error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return fmt.Sprintf("busmsg: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("busmsg: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support by error code
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeNoMessage     ErrorCode = "no message available"
	ErrCodeNoTask        ErrorCode = "no task available"
	ErrCodeNoSpace       ErrorCode = "not enough buffer space"
	ErrCodeFrameTooLarge ErrorCode = "frame too large"
	ErrCodeBadIndex      ErrorCode = "index out of range"
	ErrCodeBadFrame      ErrorCode = "malformed frame"
	ErrCodeDuplicateID   ErrorCode = "duplicate endpoint id"
	ErrCodeClosed        ErrorCode = "node closed"
	ErrCodeTransmit      ErrorCode = "transmit failed"
)

// Allocator status sentinels, re-exported for callers that match on them
// with errors.Is. Pulls on an empty stack return these; callers retry on
// the next loop tick.
var (
	ErrNoMessage     = alloc.ErrNoMessage
	ErrNoTask        = alloc.ErrNoTask
	ErrNoSpace       = alloc.ErrNoSpace
	ErrBadIndex      = alloc.ErrBadIndex
	ErrFrameTooLarge = alloc.ErrFrameTooLarge
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// WrapError wraps an inner error with operation context
func WrapError(op string, code ErrorCode, inner error) *Error {
	return &Error{
		Op:    op,
		Code:  code,
		Inner: inner,
	}
}
