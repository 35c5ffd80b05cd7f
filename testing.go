package busmsg

import (
	"sync"

	"github.com/ehrlich-b/go-busmsg/phy"
	"github.com/ehrlich-b/go-busmsg/wire"
)

// MockPhy provides a mock implementation of Phy for testing. Transmitted
// frames are recorded instead of put on a wire, and inbound traffic is
// injected with Feed: the calling goroutine acts as the receive context.
type MockPhy struct {
	gate phy.Gate
	rcvr *phy.Receiver

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

// NewMockPhy creates a new mock driver.
func NewMockPhy() *MockPhy {
	return &MockPhy{}
}

// Gate implements the Phy interface
func (m *MockPhy) Gate() *phy.Gate {
	return &m.gate
}

// Attach implements the Phy interface
func (m *MockPhy) Attach(sink phy.Sink) {
	m.rcvr = phy.NewReceiver(&m.gate, sink)
}

// Transmit implements the Phy interface; the frame is recorded.
func (m *MockPhy) Transmit(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return NewError("TRANSMIT", ErrCodeClosed, "")
	}
	m.sent = append(m.sent, append([]byte(nil), frame...))
	return nil
}

// Close implements the Phy interface
func (m *MockPhy) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Feed injects one complete frame as inbound traffic, preamble included.
func (m *MockPhy) Feed(frame []byte) {
	m.rcvr.InByte(wire.Preamble)
	m.rcvr.InBytes(frame)
}

// FeedRaw injects arbitrary inbound bytes (noise, partial frames).
func (m *MockPhy) FeedRaw(p []byte) {
	m.rcvr.InBytes(p)
}

// Sent returns copies of the frames transmitted so far.
func (m *MockPhy) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount returns the number of frames transmitted so far.
func (m *MockPhy) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// Compile-time interface check
var _ Phy = (*MockPhy)(nil)
