//go:build linux

package serial

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-busmsg/phy"
	"github.com/ehrlich-b/go-busmsg/wire"
)

// Port drives a half-duplex serial bus through a tty device. The read
// goroutine is the node's receive context; Transmit writes the preamble
// and the frame and relies on the UART's own ordering for turnaround.
type Port struct {
	fd   int
	gate phy.Gate
	rcvr *phy.Receiver

	closeOnce sync.Once
	done      chan struct{}
	started   bool
}

// baudFlags maps supported bit rates to termios speed flags.
var baudFlags = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	500000:  unix.B500000,
	1000000: unix.B1000000,
}

// Open opens the tty at path and configures it raw at the given baud
// rate: 8N1, no flow control, no echo, reads returning as soon as one
// byte is available.
func Open(path string, baud int) (*Port, error) {
	speed, ok := baudFlags[baud]
	if !ok {
		return nil, fmt.Errorf("serial: unsupported baud rate %d", baud)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}

	tio, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: get termios: %w", err)
	}

	tio.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	tio.Oflag &^= unix.OPOST
	tio.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	tio.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	tio.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	tio.Cflag = tio.Cflag&^unix.CBAUD | speed
	tio.Ispeed = speed
	tio.Ospeed = speed

	// Block until at least one byte; the read loop does its own
	// shutdown handling.
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, tio); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: set termios: %w", err)
	}
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: flush: %w", err)
	}

	return &Port{fd: fd, done: make(chan struct{})}, nil
}

// Gate returns the port's interrupt-mask primitive.
func (p *Port) Gate() *phy.Gate {
	return &p.gate
}

// Attach wires the allocator's producer surface to the port and starts
// the read goroutine.
func (p *Port) Attach(sink phy.Sink) {
	p.rcvr = phy.NewReceiver(&p.gate, sink)
	if !p.started {
		p.started = true
		go p.readLoop()
	}
}

// readLoop is the receive context: one blocking read at a time, each
// byte run fed through the framing receiver.
func (p *Port) readLoop() {
	buf := make([]byte, 256)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		n, err := unix.Read(p.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			// Device gone or closed under us; a frame in progress
			// is abandoned.
			p.rcvr.Abort()
			return
		}
		p.rcvr.InBytes(buf[:n])
	}
}

// Transmit writes the preamble and one complete frame to the tty.
func (p *Port) Transmit(frame []byte) error {
	out := make([]byte, 0, len(frame)+1)
	out = append(out, wire.Preamble)
	out = append(out, frame...)
	for len(out) > 0 {
		n, err := unix.Write(p.fd, out)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("serial: write: %w", err)
		}
		out = out[n:]
	}
	return nil
}

// Close stops the read loop and closes the device.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = unix.Close(p.fd)
	})
	return err
}
