// Package wire defines the on-bus frame layout for go-busmsg.
// A frame is a fixed-size little-endian header, up to MaxDataSize payload
// bytes, and a trailing 16-bit CRC over header and payload.
package wire

import "github.com/ehrlich-b/go-busmsg/internal/constants"

// Frame layout sizes in bytes.
const (
	// HeaderSize is the fixed wire size of Header.
	HeaderSize = 8

	// CRCSize is the size of the trailing frame CRC.
	CRCSize = 2

	// MaxFrameSize is the largest complete frame the bus carries.
	MaxFrameSize = HeaderSize + constants.MaxDataSize + CRCSize

	// MinFrameSize is the smallest complete frame (empty payload).
	MinFrameSize = HeaderSize + CRCSize
)

// Preamble opens every frame on the wire. It is consumed by the framing
// layer and never enters the message buffer.
const Preamble = 0x7E

// TargetMode selects how Target is interpreted by the routing layer.
type TargetMode uint8

const (
	// IDMode targets the single endpoint whose ID equals Target.
	IDMode TargetMode = iota

	// IDAckMode is IDMode with an acknowledgement requested.
	IDAckMode

	// TypeMode targets every endpoint whose type equals Target.
	TypeMode

	// BroadcastMode targets every endpoint on the bus; Target is ignored.
	BroadcastMode

	// targetModeCount bounds the valid mode space.
	targetModeCount
)

// Valid reports whether m is a defined target mode.
func (m TargetMode) Valid() bool {
	return m < targetModeCount
}

func (m TargetMode) String() string {
	switch m {
	case IDMode:
		return "id"
	case IDAckMode:
		return "id+ack"
	case TypeMode:
		return "type"
	case BroadcastMode:
		return "broadcast"
	}
	return "invalid"
}

// Command identifies the operation a frame requests.
type Command uint8

// Core command space. Applications extend from CmdUserBase upward.
const (
	CmdNoop Command = iota
	CmdEcho
	CmdEchoReply
	CmdIdentify
	CmdIdentifyReply

	// CmdUserBase is the first command value free for application use.
	CmdUserBase Command = 0x40
)

// Header is the fixed-size frame header.
//
// Wire layout (little-endian):
//
//	offset 0: Source     uint16
//	offset 2: Target     uint16
//	offset 4: TargetMode uint8
//	offset 5: Cmd        uint8
//	offset 6: Size       uint16  (payload bytes, excludes header and CRC)
type Header struct {
	Source     uint16
	Target     uint16
	TargetMode TargetMode
	Cmd        Command
	Size       uint16
}

// FrameLen returns the total wire length of a frame carrying this header.
func (h Header) FrameLen() int {
	return HeaderSize + int(h.Size) + CRCSize
}

// Sane reports whether the header can describe a receivable frame:
// a defined target mode and a payload within the bus clamp.
func (h Header) Sane() bool {
	return h.TargetMode.Valid() && int(h.Size) <= constants.MaxDataSize
}
