package busmsg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-busmsg/phy/loopback"
	"github.com/ehrlich-b/go-busmsg/wire"
)

func newTestNode(t *testing.T) (*Node, *MockPhy) {
	t.Helper()
	phy := NewMockPhy()
	n, err := NewNode(phy, Params{BufferSize: 512, MaxTasks: 8})
	require.NoError(t, err)
	return n, phy
}

func TestNewEndpointDuplicateID(t *testing.T) {
	n, _ := newTestNode(t)

	_, err := n.NewEndpoint(1, 0)
	require.NoError(t, err)

	_, err = n.NewEndpoint(1, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, NewError("", ErrCodeDuplicateID, ""))
}

func TestSendStagesAndTransmits(t *testing.T) {
	n, phy := newTestNode(t)
	ep, err := n.NewEndpoint(1, 0)
	require.NoError(t, err)

	require.NoError(t, ep.Send(2, wire.IDMode, wire.CmdEcho, []byte{1, 2, 3}))
	assert.Equal(t, 0, phy.SentCount(), "frame leaves on the next tick")

	require.NoError(t, n.Loop())
	require.Equal(t, 1, phy.SentCount())

	h, payload, err := wire.SplitFrame(phy.Sent()[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(1), h.Source)
	assert.Equal(t, uint16(2), h.Target)
	assert.Equal(t, wire.CmdEcho, h.Cmd)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestSendRejectsOversizePayload(t *testing.T) {
	n, _ := newTestNode(t)
	ep, err := n.NewEndpoint(1, 0)
	require.NoError(t, err)

	err = ep.Send(2, wire.IDMode, wire.CmdEcho, make([]byte, MaxDataSize+1))
	assert.ErrorIs(t, err, NewError("", ErrCodeFrameTooLarge, ""))
}

func TestReceiveByID(t *testing.T) {
	n, phy := newTestNode(t)
	ep, err := n.NewEndpoint(4, 0)
	require.NoError(t, err)

	frame := wire.BuildFrame(wire.Header{
		Source:     9,
		Target:     4,
		TargetMode: wire.IDMode,
		Cmd:        wire.CmdEcho,
	}, []byte("ping"))
	phy.Feed(frame)
	require.NoError(t, n.Loop())

	in, err := ep.Receive()
	require.NoError(t, err)
	assert.Equal(t, uint16(9), in.Header.Source)
	assert.Equal(t, []byte("ping"), in.Payload)
	in.Release()

	_, err = ep.Receive()
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestRouteByType(t *testing.T) {
	n, phy := newTestNode(t)

	motorA, err := n.NewEndpoint(1, 20)
	require.NoError(t, err)
	motorB, err := n.NewEndpoint(2, 20)
	require.NoError(t, err)
	sensor, err := n.NewEndpoint(3, 21)
	require.NoError(t, err)

	frame := wire.BuildFrame(wire.Header{
		Source:     9,
		Target:     20,
		TargetMode: wire.TypeMode,
	}, []byte{0x7F})
	phy.Feed(frame)
	require.NoError(t, n.Loop())

	assert.Equal(t, 1, motorA.Pending())
	assert.Equal(t, 1, motorB.Pending())
	assert.Equal(t, 0, sensor.Pending())

	for _, ep := range []*Endpoint{motorA, motorB} {
		in, err := ep.Receive()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x7F}, in.Payload)
		in.Release()
	}
}

func TestRouteBroadcast(t *testing.T) {
	n, phy := newTestNode(t)
	a, _ := n.NewEndpoint(1, 0)
	b, _ := n.NewEndpoint(2, 1)

	phy.Feed(wire.BuildFrame(wire.Header{
		TargetMode: wire.BroadcastMode,
	}, nil))
	require.NoError(t, n.Loop())

	assert.Equal(t, 1, a.Pending())
	assert.Equal(t, 1, b.Pending())
}

func TestInjectRoutesLocally(t *testing.T) {
	n, _ := newTestNode(t)
	ep, err := n.NewEndpoint(6, 0)
	require.NoError(t, err)

	require.NoError(t, n.Inject(wire.Header{
		Source:     6,
		Target:     6,
		TargetMode: wire.IDMode,
		Cmd:        wire.CmdIdentify,
	}, []byte("self")))
	require.NoError(t, n.Loop())

	in, err := ep.Receive()
	require.NoError(t, err)
	assert.Equal(t, wire.CmdIdentify, in.Header.Cmd)
	assert.Equal(t, []byte("self"), in.Payload)
	in.Release()
}

func TestStatsReflectTraffic(t *testing.T) {
	phy := NewMockPhy()
	metrics := NewMetrics()
	n, err := NewNode(phy, Params{BufferSize: 512, MaxTasks: 8, Observer: metrics})
	require.NoError(t, err)
	ep, err := n.NewEndpoint(4, 0)
	require.NoError(t, err)

	assert.True(t, n.IsEmpty())

	frame := wire.BuildFrame(wire.Header{
		Target:     4,
		TargetMode: wire.IDMode,
	}, []byte{1, 2})
	phy.Feed(frame)
	assert.False(t, n.IsEmpty())
	require.NoError(t, n.Loop())

	stats := n.Stats()
	assert.Equal(t, 1, stats.PendingDeliveries)
	assert.Equal(t, uint8(0), stats.DropCount)
	assert.NotZero(t, stats.MsgStackRatio)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.RxFrames)
	assert.Equal(t, uint64(len(frame)), snap.RxBytes)

	in, err := ep.Receive()
	require.NoError(t, err)
	in.Release()
}

func TestLoopbackEchoRoundTrip(t *testing.T) {
	bus := loopback.NewBus()
	defer bus.Close()

	reqPort := bus.NewPort()
	respPort := bus.NewPort()
	params := Params{BufferSize: 512, MaxTasks: 8}

	requester, err := NewNode(reqPort, params)
	require.NoError(t, err)
	responder, err := NewNode(respPort, params)
	require.NoError(t, err)

	reqEP, err := requester.NewEndpoint(1, 0)
	require.NoError(t, err)
	respEP, err := responder.NewEndpoint(2, 0)
	require.NoError(t, err)

	require.NoError(t, reqEP.Send(2, wire.IDMode, wire.CmdEcho, []byte("marco")))
	require.NoError(t, requester.Loop())
	respPort.Drain()
	require.NoError(t, responder.Loop())

	in, err := respEP.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte("marco"), in.Payload)
	source := in.Header.Source
	in.Release()

	require.NoError(t, respEP.Send(source, wire.IDMode, wire.CmdEchoReply, []byte("polo")))
	require.NoError(t, responder.Loop())
	reqPort.Drain()
	require.NoError(t, requester.Loop())

	reply, err := reqEP.Receive()
	require.NoError(t, err)
	assert.Equal(t, wire.CmdEchoReply, reply.Header.Cmd)
	assert.Equal(t, []byte("polo"), reply.Payload)
	reply.Release()
}

func TestClosedNode(t *testing.T) {
	n, _ := newTestNode(t)
	require.NoError(t, n.Close())

	err := n.Loop()
	require.Error(t, err)
	assert.ErrorIs(t, err, NewError("", ErrCodeClosed, ""))

	_, err = n.NewEndpoint(1, 0)
	require.Error(t, err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, ErrCodeClosed, e.Code)
}
