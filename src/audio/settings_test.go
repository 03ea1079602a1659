package audio

import (
	"context"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsManager_Defaults(t *testing.T) {
	m, err := NewSettingsManager(context.Background(), nil, nil)
	require.NoError(t, err)
	s := m.Get()
	assert.Equal(t, 50.0, s.Volume)
	assert.Equal(t, 3700, s.MaxLength)
	assert.True(t, s.QueueMode)
	assert.Zero(t, m.MaxCacheMB())
	assert.Equal(t, 50, s.VoteThreshold)
}

func TestSettingsManager_LegacyVolumeScaled(t *testing.T) {
	legacy := DefaultSettings()
	legacy.Volume = 0.4
	store := &memSettings{s: legacy}
	m, err := NewSettingsManager(context.Background(), store, nil)
	require.NoError(t, err)

	ss := m.Server(context.Background(), 7)
	assert.InDelta(t, 40.0, ss.Volume, 0.001)
	assert.Equal(t, 1, store.saves)
	assert.InDelta(t, 40.0, store.s.Servers[snowflake.ID(7)].Volume, 0.001)

	// Existing entries are returned as stored.
	again := m.Server(context.Background(), 7)
	assert.Equal(t, ss, again)
	assert.Equal(t, 1, store.saves)
}

func TestSettingsManager_UpdatePersists(t *testing.T) {
	store := &memSettings{s: DefaultSettings()}
	m, err := NewSettingsManager(context.Background(), store, nil)
	require.NoError(t, err)

	s, err := m.Update(context.Background(), func(s *Settings) { s.MaxLength = 120 })
	require.NoError(t, err)
	assert.Equal(t, 120, s.MaxLength)
	assert.Equal(t, 120, store.s.MaxLength)

	ss, err := m.UpdateServer(context.Background(), 9, func(ss *ServerSettings) { ss.Volume = 80 })
	require.NoError(t, err)
	assert.Equal(t, 80.0, ss.Volume)
	assert.Equal(t, 80.0, m.Server(context.Background(), 9).Volume)
	assert.Equal(t, 80.0, store.s.Servers[snowflake.ID(9)].Volume)

	// Callers get copies.
	got := m.Get()
	got.Servers[9] = ServerSettings{}
	assert.Equal(t, 80.0, m.Get().Servers[9].Volume)
}
