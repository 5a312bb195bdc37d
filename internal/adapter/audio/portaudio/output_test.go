package portaudio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/pcm"
	"github.com/tejashwikalptaru/gomixer/internal/logger"
	"github.com/tejashwikalptaru/gomixer/internal/testutil"
)

// fakeDevice records every buffer written. When gate is set, Write signals
// entered and blocks on gate.
type fakeDevice struct {
	buf     []int16
	gate    chan struct{}
	entered chan struct{}

	mu      sync.Mutex
	written [][]int16
	closed  bool
}

func (d *fakeDevice) Write() error {
	if d.gate != nil {
		d.entered <- struct{}{}
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, append([]int16(nil), d.buf...))
	return nil
}

func (d *fakeDevice) Stop() error { return nil }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) writes() [][]int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]int16(nil), d.written...)
}

// fakeOpener hands out devices per opening order.
type fakeOpener struct {
	mu      sync.Mutex
	gates   map[int]chan struct{}
	entered chan struct{}
	devices []*fakeDevice
}

func (o *fakeOpener) open(frames, channels, _ int) ([]int16, outputDevice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := &fakeDevice{buf: make([]int16, frames*channels), gate: o.gates[len(o.devices)], entered: o.entered}
	o.devices = append(o.devices, d)
	return d.buf, d, nil
}

func (o *fakeOpener) device(i int) *fakeDevice {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.devices[i]
}

func TestOutputSink_BuffersUntilFull(t *testing.T) {
	opener := &fakeOpener{}
	sink := newOutputSink(logger.NewTestLogger(), opener.open)

	half := make([]float32, minOutputFrames/2)
	half[0] = 0.5
	require.NoError(t, sink.Write(1, make([]float32, 10), 1, 48000))
	dev := opener.device(0)
	assert.Len(t, dev.buf, minOutputFrames, "small first writes get the minimum buffer")
	assert.Empty(t, dev.writes())

	require.NoError(t, sink.Write(1, half, 1, 48000))
	require.NoError(t, sink.Write(1, half, 1, 48000))
	writes := dev.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, int16(16383), writes[0][10])

	// Layout is fixed by the first write
	require.NoError(t, sink.Write(1, make([]float32, 256), 2, 48000))
	assert.Len(t, dev.writes(), 1)

	require.NoError(t, sink.CloseSession(1))
	assert.True(t, dev.closed)
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Write(1, half, 1, 48000), pcm.ErrClosed)
}

func TestOutputSink_SessionsDoNotBlockEachOther(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	opener := &fakeOpener{gates: map[int]chan struct{}{0: gate}, entered: entered}
	sink := newOutputSink(logger.NewTestLogger(), opener.open)

	full := make([]float32, minOutputFrames)
	blocked := make(chan error, 1)
	go func() { blocked <- sink.Write(1, full, 1, 48000) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("session 1 never reached its device write")
	}

	done := make(chan error, 1)
	go func() { done <- sink.Write(2, full, 1, 48000) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session 2 waited on session 1's device write")
	}
	assert.Len(t, opener.device(1).writes(), 1)

	close(gate)
	require.NoError(t, <-blocked)
	assert.Len(t, opener.device(0).writes(), 1)
	require.NoError(t, sink.Close())
}
