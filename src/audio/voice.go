package audio

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// StreamOptions configure a new playback stream.
type StreamOptions struct {
	// Volume is a gain factor, 1.0 is unchanged.
	Volume  float64
	Bitrate int
}

// Stream is one live playback handle bound to a voice connection.
type Stream interface {
	Start() error
	Stop()
	Pause()
	Resume()
	IsPlaying() bool
	IsDone() bool
}

// VoiceGateway is the real-time voice client the controller drives.
type VoiceGateway interface {
	// Join connects to channel, moving if already connected elsewhere in
	// the guild.
	Join(ctx context.Context, guild, channel snowflake.ID) error
	Disconnect(ctx context.Context, guild snowflake.ID) error
	// ConnectedChannel returns the live voice channel of the guild.
	ConnectedChannel(guild snowflake.ID) (snowflake.ID, bool)
	CreateStream(guild snowflake.ID, path string, opts StreamOptions) (Stream, error)
}

// StatusSetter publishes the now playing title on the voice channel.
type StatusSetter interface {
	SetVoiceStatus(ctx context.Context, channel snowflake.ID, status string) error
}
