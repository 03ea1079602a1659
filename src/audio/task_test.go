package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type panicSource struct{}

func (panicSource) Metadata(context.Context, string, time.Duration) (Song, error) {
	panic("boom")
}

func (panicSource) Download(_ context.Context, s Song) (Song, error) { return s, nil }

type stubSource struct {
	song        Song
	metaErr     error
	downloadErr error
}

func (s stubSource) Metadata(context.Context, string, time.Duration) (Song, error) {
	return s.song, s.metaErr
}

func (s stubSource) Download(context.Context, Song) (Song, error) {
	return s.song, s.downloadErr
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(TaskIdle, TaskResolving))
	assert.True(t, CanTransition(TaskResolving, TaskLengthExceeded))
	assert.True(t, CanTransition(TaskDownloading, TaskReady))
	assert.False(t, CanTransition(TaskIdle, TaskReady))
	assert.False(t, CanTransition(TaskDownloading, TaskLengthExceeded))
	assert.False(t, CanTransition(TaskReady, TaskResolving))
	assert.False(t, CanTransition(TaskFailed, TaskIdle))
}

func TestTask_RunWithDownload(t *testing.T) {
	task := NewTask("https://youtu.be/a", 0, true)
	task.Run(context.Background(), stubSource{song: Song{ID: "a"}})

	song, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", song.ID)
	assert.Equal(t, TaskReady, task.State())
}

func TestTask_MetadataOnly(t *testing.T) {
	task := NewTask("https://youtu.be/a", 0, false)
	task.Run(context.Background(), stubSource{song: Song{ID: "a"}, downloadErr: errors.New("must not download")})

	_, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TaskReady, task.State())
}

func TestTask_LengthExceeded(t *testing.T) {
	lerr := &LengthError{ID: "a", Duration: 500 * time.Second, Max: 100 * time.Second}
	task := NewTask("https://youtu.be/a", 100*time.Second, true)
	task.Run(context.Background(), stubSource{song: Song{ID: "a"}, metaErr: lerr})

	song, err := task.WaitMetadata(context.Background())
	assert.ErrorIs(t, err, ErrMaximumLength)
	assert.Equal(t, "a", song.ID)
	assert.Equal(t, TaskLengthExceeded, task.State())
}

func TestTask_DownloadFailure(t *testing.T) {
	task := NewTask("https://youtu.be/a", 0, true)
	task.Run(context.Background(), stubSource{song: Song{ID: "a"}, downloadErr: ErrResolutionFailed})

	_, err := task.Wait(context.Background())
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.Equal(t, TaskFailed, task.State())
}

func TestTask_PanicBecomesFailure(t *testing.T) {
	task := NewTask("https://youtu.be/a", 0, true)
	require.NotPanics(t, func() { task.Run(context.Background(), panicSource{}) })

	_, err := task.Wait(context.Background())
	assert.ErrorIs(t, err, ErrResolutionFailed)
	assert.Equal(t, TaskFailed, task.State())
}

func TestTask_WaitHonoursContext(t *testing.T) {
	task := NewTask("https://youtu.be/a", 0, true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, TaskIdle, task.State())
}
