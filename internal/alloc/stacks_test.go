package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-busmsg/wire"
)

// pullFrames drives count distinct frames in and pulls them, returning
// the pulled views (the storage stays live until overwritten).
func pullFrames(t *testing.T, a *Allocator, count int) []Frame {
	t.Helper()
	out := make([]Frame, count)
	for i := range out {
		drive(a, testFrame(byte(100+i), 2))
		f, err := a.PullPending()
		require.NoError(t, err)
		out[i] = f
	}
	return out
}

func TestDeliveryFIFOPerEndpoint(t *testing.T) {
	a, _ := newTestAlloc(t, 256, 8)
	frames := pullFrames(t, a, 4)

	// Interleave two endpoints.
	a.AllocDelivery(1, frames[0])
	a.AllocDelivery(2, frames[1])
	a.AllocDelivery(1, frames[2])
	a.AllocDelivery(2, frames[3])
	assert.Equal(t, 4, a.DeliveryCount())

	f, err := a.PullByEndpoint(1)
	require.NoError(t, err)
	assert.Equal(t, frames[0].Offset(), f.Offset())

	f, err = a.PullByEndpoint(1)
	require.NoError(t, err)
	assert.Equal(t, frames[2].Offset(), f.Offset())

	_, err = a.PullByEndpoint(1)
	assert.ErrorIs(t, err, ErrNoTask)

	f, err = a.PullByEndpoint(2)
	require.NoError(t, err)
	assert.Equal(t, frames[1].Offset(), f.Offset())
	assert.Equal(t, 1, a.DeliveryCount())
}

func TestPullByIndex(t *testing.T) {
	a, _ := newTestAlloc(t, 256, 8)
	frames := pullFrames(t, a, 3)
	for i, f := range frames {
		a.AllocDelivery(EndpointRef(i), f)
	}

	f, err := a.PullByIndex(1)
	require.NoError(t, err)
	assert.Equal(t, frames[1].Offset(), f.Offset())
	assert.Equal(t, 2, a.DeliveryCount())

	_, err = a.PullByIndex(2)
	assert.ErrorIs(t, err, ErrBadIndex)
}

func TestPeeksDoNotRemove(t *testing.T) {
	a, _ := newTestAlloc(t, 256, 8)
	frames := pullFrames(t, a, 2)
	a.AllocDelivery(5, frames[0])
	a.AllocDelivery(6, frames[1])

	task, err := a.PeekDelivery(0)
	require.NoError(t, err)
	assert.Equal(t, EndpointRef(5), task.Endpoint)
	assert.Equal(t, frames[0].Offset(), task.Frame.Offset())

	cmd, err := a.DeliveryCmd(1)
	require.NoError(t, err)
	assert.Equal(t, wire.CmdNoop, cmd)

	src, err := a.DeliverySource(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), src)

	size, err := a.DeliverySize(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), size)

	assert.Equal(t, 2, a.DeliveryCount())

	_, err = a.PeekDelivery(2)
	assert.ErrorIs(t, err, ErrBadIndex)
	_, err = a.DeliveryCmd(2)
	assert.ErrorIs(t, err, ErrBadIndex)
	_, err = a.DeliverySource(2)
	assert.ErrorIs(t, err, ErrBadIndex)
	_, err = a.DeliverySize(2)
	assert.ErrorIs(t, err, ErrBadIndex)
}

func TestClearDeliveriesFanOut(t *testing.T) {
	a, _ := newTestAlloc(t, 256, 8)
	frames := pullFrames(t, a, 2)

	// One frame fanned out to three endpoints, another to one.
	a.AllocDelivery(1, frames[0])
	a.AllocDelivery(2, frames[0])
	a.AllocDelivery(1, frames[1])
	a.AllocDelivery(3, frames[0])
	require.Equal(t, 4, a.DeliveryCount())

	a.ClearDeliveries(frames[0])
	assert.Equal(t, 1, a.DeliveryCount())

	task, err := a.PeekDelivery(0)
	require.NoError(t, err)
	assert.Equal(t, frames[1].Offset(), task.Frame.Offset())
	assert.Equal(t, EndpointRef(1), task.Endpoint)
}

func TestReleaseUsed(t *testing.T) {
	a, _ := newTestAlloc(t, 256, 8)
	frames := pullFrames(t, a, 1)
	a.AllocDelivery(1, frames[0])

	f, err := a.PullByEndpoint(1)
	require.NoError(t, err)
	_, err = a.UsedFrame()
	require.NoError(t, err)
	assert.Equal(t, f.Offset(), frames[0].Offset())

	a.ReleaseUsed()
	_, err = a.UsedFrame()
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestDeliveryOverflowEvictsOldest(t *testing.T) {
	a, _ := newTestAlloc(t, 256, 4)
	frames := pullFrames(t, a, 5)
	for _, f := range frames {
		a.AllocDelivery(7, f)
	}

	assert.Equal(t, 4, a.DeliveryCount())
	assert.Equal(t, uint8(1), a.DropCount())

	f, err := a.PullByEndpoint(7)
	require.NoError(t, err)
	assert.Equal(t, frames[1].Offset(), f.Offset())
}

func TestDeliveryWatermark(t *testing.T) {
	a, _ := newTestAlloc(t, 256, 4)
	frames := pullFrames(t, a, 3)

	a.AllocDelivery(1, frames[0])
	_, delivery := a.Watermarks()
	assert.Equal(t, uint8(25), delivery)

	a.AllocDelivery(1, frames[1])
	a.AllocDelivery(1, frames[2])
	_, delivery = a.Watermarks()
	assert.Equal(t, uint8(75), delivery)

	// Draining never lowers the watermark.
	for {
		if _, err := a.PullByEndpoint(1); err != nil {
			break
		}
	}
	_, delivery = a.Watermarks()
	assert.Equal(t, uint8(75), delivery)
}
