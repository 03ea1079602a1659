package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState is a download task's position in its lifecycle.
type TaskState int

const (
	TaskIdle TaskState = iota
	TaskResolving
	TaskDownloading
	TaskReady
	TaskFailed
	TaskLengthExceeded
)

func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskResolving:
		return "resolving"
	case TaskDownloading:
		return "downloading"
	case TaskReady:
		return "ready"
	case TaskFailed:
		return "failed"
	case TaskLengthExceeded:
		return "length exceeded"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

func (s TaskState) Terminal() bool {
	return s == TaskReady || s == TaskFailed || s == TaskLengthExceeded
}

var taskTransitions = map[TaskState][]TaskState{
	TaskIdle:        {TaskResolving},
	TaskResolving:   {TaskDownloading, TaskReady, TaskFailed, TaskLengthExceeded},
	TaskDownloading: {TaskReady, TaskFailed},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to TaskState) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var errBadTransition = errors.New("invalid task transition")

// SongSource is the part of the Fetcher a task drives.
type SongSource interface {
	Metadata(ctx context.Context, locator string, max time.Duration) (Song, error)
	Download(ctx context.Context, song Song) (Song, error)
}

// Task resolves one locator and optionally downloads it. Waiters are woken
// by closed channels: metadata once the song (or a failure) is known, done
// once the task reaches a terminal state.
type Task struct {
	ID          uuid.UUID
	Locator     string
	MaxDuration time.Duration
	WantsFile   bool

	mu       sync.Mutex
	state    TaskState
	song     Song
	hasSong  bool
	err      error
	metadata chan struct{}
	done     chan struct{}
}

func NewTask(locator string, max time.Duration, wantsFile bool) *Task {
	return &Task{
		ID:          uuid.New(),
		Locator:     locator,
		MaxDuration: max,
		WantsFile:   wantsFile,
		metadata:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// newTaskFor is a file task for a song whose metadata is already known. Run
// goes straight to the download.
func newTaskFor(locator string, max time.Duration, song Song) *Task {
	t := NewTask(locator, max, true)
	t.song, t.hasSong = song, true
	close(t.metadata)
	return t
}

func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Song returns the resolved metadata, if any is known yet.
func (t *Task) Song() (Song, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.song, t.hasSong
}

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) transition(to TaskState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(to)
}

func (t *Task) transitionLocked(to TaskState) error {
	if !CanTransition(t.state, to) {
		return fmt.Errorf("%w: %s -> %s", errBadTransition, t.state, to)
	}
	t.state = to
	if to.Terminal() {
		t.closeMetadataLocked()
		close(t.done)
	}
	return nil
}

func (t *Task) closeMetadataLocked() {
	select {
	case <-t.metadata:
	default:
		close(t.metadata)
	}
}

func (t *Task) setSong(song Song) {
	t.mu.Lock()
	t.song, t.hasSong = song, true
	t.closeMetadataLocked()
	t.mu.Unlock()
}

func (t *Task) fail(song Song, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		return
	}
	if song.ID != "" {
		t.song, t.hasSong = song, true
	}
	t.err = err
	to := TaskFailed
	if errors.Is(err, ErrMaximumLength) {
		to = TaskLengthExceeded
	}
	if t.state == TaskDownloading && to == TaskLengthExceeded {
		to = TaskFailed
	}
	if t.state == TaskIdle {
		t.state = TaskResolving
	}
	_ = t.transitionLocked(to)
}

// Run executes the task to completion. Panics from the source are captured
// and reported as task failure.
func (t *Task) Run(ctx context.Context, src SongSource) {
	defer func() {
		if r := recover(); r != nil {
			t.fail(Song{}, fmt.Errorf("%w: task panic: %v\n%s", ErrResolutionFailed, r, debug.Stack()))
		}
	}()

	if err := t.transition(TaskResolving); err != nil {
		return
	}
	song, known := t.Song()
	if !known {
		var err error
		if song, err = src.Metadata(ctx, t.Locator, t.MaxDuration); err != nil {
			t.fail(song, err)
			return
		}
		t.setSong(song)
	}

	if !t.WantsFile {
		_ = t.transition(TaskReady)
		return
	}
	if err := t.transition(TaskDownloading); err != nil {
		return
	}
	song, err := src.Download(ctx, song)
	if err != nil {
		t.fail(song, err)
		return
	}
	t.mu.Lock()
	t.song = song
	_ = t.transitionLocked(TaskReady)
	t.mu.Unlock()
}

// WaitMetadata blocks until the song metadata is known, the task fails, or
// ctx ends.
func (t *Task) WaitMetadata(ctx context.Context) (Song, error) {
	select {
	case <-t.metadata:
	case <-ctx.Done():
		return Song{}, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.song, t.err
	}
	return t.song, nil
}

// Wait blocks until the task is terminal or ctx ends.
func (t *Task) Wait(ctx context.Context) (Song, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return Song{}, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.song, t.err
}
