package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLocator(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"search text", "never gonna give you up", "[SEARCH:]never gonna give you up", nil},
		{"already a search", "[SEARCH:]lofi", "[SEARCH:]lofi", nil},
		{"youtube radio params stripped", "https://www.youtube.com/watch?v=abc&list=RDabc&index=2", "https://www.youtube.com/watch?v=abc", nil},
		{"youtube playlist kept", "https://www.youtube.com/playlist?list=PL123", "https://www.youtube.com/playlist?list=PL123", nil},
		{"soundcloud", "https://soundcloud.com/artist/track", "https://soundcloud.com/artist/track", nil},
		{"unknown host", "https://example.com/song.mp3", "", ErrInvalidLocator},
		{"empty", "   ", "", ErrInvalidLocator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLocator(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocatorShapes(t *testing.T) {
	assert.True(t, IsYouTubeURL("youtu.be/abc"))
	assert.True(t, IsYouTubeURL("https://m.youtube.com/watch?v=abc"))
	assert.True(t, IsYouTubePlaylist("https://www.youtube.com/playlist?list=PL1"))
	assert.False(t, IsYouTubePlaylist("https://www.youtube.com/watch?v=abc"))
	assert.True(t, IsSoundCloudPlaylist("https://soundcloud.com/artist/sets/album"))
	assert.False(t, IsSoundCloudPlaylist("https://soundcloud.com/artist/track"))
	assert.True(t, IsSearch(SearchMarker+"x"))
	assert.False(t, IsPlayable("dir/file.mp3"))
}

func TestSongRequeue(t *testing.T) {
	assert.Equal(t, "https://youtube.com/watch?v=a", Song{ID: "a", URL: "stream", WebpageURL: "https://youtube.com/watch?v=a"}.Requeue())
	assert.Equal(t, "mix/song.mp3", Song{ID: "mix/song.mp3", URL: "/data/mix/song.mp3", Local: true}.Requeue())
	assert.Equal(t, "stream", Song{ID: "a", URL: "stream"}.Requeue())
}
