package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, *Queues, *fakeGateway) {
	t.Helper()
	settings, err := NewSettingsManager(context.Background(), nil, nil)
	require.NoError(t, err)
	queues := NewQueues()
	gw := newFakeGateway()
	c := NewController(gw, queues, settings, ControllerOptions{CacheDir: t.TempDir()})
	return c, queues, gw
}

func TestController_OpenRejoinsStoredChannel(t *testing.T) {
	c, queues, gw := newTestController(t)
	queues.SetVoiceChannel(testServer, testChannel)

	stream, err := c.Open(context.Background(), testServer, Song{ID: "a"}, nil)
	require.NoError(t, err)
	live, ok := gw.ConnectedChannel(testServer)
	require.True(t, ok)
	assert.Equal(t, testChannel, live)

	assert.False(t, c.IsPlaying(testServer))
	c.Adopt(testServer, stream)
	assert.True(t, c.IsPlaying(testServer))
	assert.Equal(t, StatePlaying, c.State(testServer))
}

func TestController_OpenSkipsRejoinWhenSuperseded(t *testing.T) {
	c, queues, gw := newTestController(t)
	queues.SetVoiceChannel(testServer, testChannel)

	_, err := c.Open(context.Background(), testServer, Song{ID: "a"}, func() bool { return false })
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.False(t, c.Connected(testServer))
	assert.Zero(t, gw.joins)
	assert.Zero(t, gw.streamCount())
}

func TestController_OpenLeavesWhenSupersededDuringJoin(t *testing.T) {
	c, queues, gw := newTestController(t)
	queues.SetVoiceChannel(testServer, testChannel)

	calls := 0
	valid := func() bool {
		calls++
		return calls == 1
	}
	_, err := c.Open(context.Background(), testServer, Song{ID: "a"}, valid)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, 1, gw.joins)
	assert.False(t, c.Connected(testServer))
	assert.Zero(t, gw.streamCount())
}

func TestController_AdoptStopsPreviousStream(t *testing.T) {
	c, queues, gw := newTestController(t)
	queues.SetVoiceChannel(testServer, testChannel)
	ctx := context.Background()

	first, err := c.Open(ctx, testServer, Song{ID: "a"}, nil)
	require.NoError(t, err)
	c.Adopt(testServer, first)

	second, err := c.Open(ctx, testServer, Song{ID: "b"}, nil)
	require.NoError(t, err)
	assert.True(t, gw.streams[0].stopped)
	c.Adopt(testServer, second)
	assert.False(t, gw.streams[1].stopped)
	assert.True(t, c.IsPlaying(testServer))
}
