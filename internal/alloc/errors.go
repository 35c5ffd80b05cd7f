package alloc

import "errors"

// Status sentinels. The allocator's contract is best-effort delivery:
// every recoverable failure reduces to "nothing available" or "no space",
// and callers retry on the next loop tick.
var (
	// ErrNoMessage: no completed frame is waiting for interpretation.
	ErrNoMessage = errors.New("no message to interpret")

	// ErrNoTask: the requested stack slot or endpoint has no entry.
	ErrNoTask = errors.New("no task available")

	// ErrNoSpace: the requested region cannot be claimed.
	ErrNoSpace = errors.New("not enough buffer space")

	// ErrBadIndex: a peek or pull named a slot past the stack top.
	ErrBadIndex = errors.New("task index out of range")

	// ErrFrameTooLarge: a staged frame exceeds what the buffer can
	// ever hold.
	ErrFrameTooLarge = errors.New("frame larger than buffer")
)

// errRange marks a reclaim range extending past the buffer; callers that
// can wrap do so, everyone else treats it as ErrNoSpace.
var errRange = ErrNoSpace
