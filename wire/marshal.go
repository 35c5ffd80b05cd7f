package wire

import (
	"encoding/binary"
	"errors"
)

// ErrInsufficientData is returned when a buffer is too short for the
// structure being decoded.
var ErrInsufficientData = errors.New("insufficient data")

// MarshalHeader encodes h into its 8-byte wire form.
func MarshalHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, h)
	return buf
}

// PutHeader encodes h into buf, which must hold at least HeaderSize bytes.
func PutHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Source)
	binary.LittleEndian.PutUint16(buf[2:4], h.Target)
	buf[4] = byte(h.TargetMode)
	buf[5] = byte(h.Cmd)
	binary.LittleEndian.PutUint16(buf[6:8], h.Size)
}

// UnmarshalHeader decodes an 8-byte wire header.
func UnmarshalHeader(data []byte, h *Header) error {
	if len(data) < HeaderSize {
		return ErrInsufficientData
	}

	h.Source = binary.LittleEndian.Uint16(data[0:2])
	h.Target = binary.LittleEndian.Uint16(data[2:4])
	h.TargetMode = TargetMode(data[4])
	h.Cmd = Command(data[5])
	h.Size = binary.LittleEndian.Uint16(data[6:8])

	return nil
}

// BuildFrame assembles a complete frame: header, payload, CRC.
// The header's Size field is set from len(payload).
func BuildFrame(h Header, payload []byte) []byte {
	h.Size = uint16(len(payload))
	frame := make([]byte, h.FrameLen())
	PutHeader(frame, h)
	copy(frame[HeaderSize:], payload)
	crc := CRC16(frame[:HeaderSize+len(payload)])
	binary.LittleEndian.PutUint16(frame[HeaderSize+len(payload):], crc)
	return frame
}

// SplitFrame decodes a complete frame into header and payload and checks
// the trailing CRC.
func SplitFrame(frame []byte) (Header, []byte, error) {
	var h Header
	if err := UnmarshalHeader(frame, &h); err != nil {
		return Header{}, nil, err
	}
	if len(frame) < h.FrameLen() {
		return Header{}, nil, ErrInsufficientData
	}
	body := frame[:HeaderSize+int(h.Size)]
	want := binary.LittleEndian.Uint16(frame[HeaderSize+int(h.Size):])
	if CRC16(body) != want {
		return Header{}, nil, ErrBadCRC
	}
	return h, frame[HeaderSize : HeaderSize+int(h.Size)], nil
}
