package proc

import (
	"context"
	"encoding/binary"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameProvider_PassesFramesThrough(t *testing.T) {
	p := newFrameProvider(context.Background(), nil)
	p.PushFrame([]byte{1, 2, 3})

	f, err := p.ProvideOpusFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, f)
}

func TestFrameProvider_DrainsSilenceThenEOF(t *testing.T) {
	var finished atomic.Int32
	p := newFrameProvider(context.Background(), func() { finished.Add(1) })
	p.PushFrame([]byte{9})
	p.PushFrame(nil)

	f, err := p.ProvideOpusFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, f)

	silences := 0
	for {
		f, err = p.ProvideOpusFrame()
		if err != nil {
			break
		}
		assert.Equal(t, OpusSilence, f)
		silences++
	}
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int(SilenceDuration/(20*time.Millisecond))+1, silences)
	assert.Equal(t, int32(1), finished.Load())

	p.Close()
	assert.Equal(t, int32(1), finished.Load())
}

func TestFrameProvider_SilenceWhileStarved(t *testing.T) {
	p := newFrameProvider(context.Background(), nil)

	f, err := p.ProvideOpusFrame()
	require.NoError(t, err)
	assert.Equal(t, OpusSilence, f)
}

func TestFrameProvider_PauseBlocksUntilResume(t *testing.T) {
	p := newFrameProvider(context.Background(), nil)
	assert.False(t, p.Paused())
	assert.False(t, p.Resume())

	require.True(t, p.Pause())
	assert.False(t, p.Pause())
	assert.True(t, p.Paused())

	p.PushFrame([]byte{7})
	got := make(chan []byte, 1)
	go func() {
		f, _ := p.ProvideOpusFrame()
		got <- f
	}()

	select {
	case <-got:
		t.Fatal("frame provided while paused")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, p.Resume())
	select {
	case f := <-got:
		assert.Equal(t, []byte{7}, f)
	case <-time.After(time.Second):
		t.Fatal("frame not provided after resume")
	}
}

func TestFrameProvider_CancelEndsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var finished atomic.Bool
	p := newFrameProvider(ctx, func() { finished.Store(true) })
	p.Pause()
	cancel()

	_, err := p.ProvideOpusFrame()
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, finished.Load())

	// Pushing after cancel must not block.
	p.PushFrame([]byte{1})
}

func TestApplyGain(t *testing.T) {
	samples := []int16{1000, -1000, 30000, -30000}
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}

	applyGain(data, 2)

	got := make([]int16, len(samples))
	for i := range got {
		got[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	assert.Equal(t, []int16{2000, -2000, 32767, -32768}, got)

	applyGain(data, 0)
	for _, b := range data {
		assert.Zero(t, b)
	}
}
