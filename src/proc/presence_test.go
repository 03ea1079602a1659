package proc

import (
	"testing"

	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/stretchr/testify/assert"
)

func TestPresenceCandidates(t *testing.T) {
	snaps := []audio.QueueSnapshot{
		{ServerID: 1, NowPlaying: &audio.Song{ID: "a", Title: "Song A"}, Main: []string{"x", "y"}},
		{ServerID: 2, NowPlaying: &audio.Song{ID: "b"}, Temp: []string{"z"}},
		{ServerID: 3},
	}

	got := presenceCandidates(snaps, 5_000_000)
	assert.Equal(t, []string{
		"Song A",
		"b",
		"music in 2 servers",
		"3 queued songs",
		"5.0 MB of cached audio",
	}, got)

	assert.Empty(t, presenceCandidates(nil, 0))
}

func TestPickPresence(t *testing.T) {
	assert.Equal(t, defaultPresence, pickPresence(nil, ""))
	assert.Equal(t, "only", pickPresence([]string{"only"}, "only"))

	for range 20 {
		assert.Equal(t, "b", pickPresence([]string{"a", "b"}, "a"))
	}
}
