package proc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/kokoro-audio/src/audio"
	"github.com/leeineian/kokoro-audio/src/sys"
)

var (
	OpusSilence     = []byte{0xf8, 0xff, 0xfe}
	SilenceDuration = 1 * time.Second
)

const frameWait = 500 * time.Millisecond

// frameProvider hands transcoded Opus frames to the voice connection. A nil
// frame marks the end of the input; it is followed by SilenceDuration of
// silence frames before the provider reports io.EOF.
type frameProvider struct {
	frames   chan []byte
	ctx      context.Context
	onFinish func()
	once     sync.Once

	pauseMu   sync.RWMutex
	pauseChan chan struct{} // closed while playing

	draining      bool
	silenceFrames int
}

var _ voice.OpusFrameProvider = (*frameProvider)(nil)

func newFrameProvider(ctx context.Context, onFinish func()) *frameProvider {
	p := &frameProvider{
		frames:    make(chan []byte, 100),
		ctx:       ctx,
		onFinish:  onFinish,
		pauseChan: make(chan struct{}),
	}
	close(p.pauseChan)
	return p
}

func (p *frameProvider) Close() {
	p.once.Do(func() {
		if p.onFinish != nil {
			p.onFinish()
		}
	})
}

func (p *frameProvider) PushFrame(f []byte) {
	select {
	case p.frames <- f:
	case <-p.ctx.Done():
	}
}

// Pause blocks ProvideOpusFrame until Resume. It reports whether the state
// changed.
func (p *frameProvider) Pause() bool {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	select {
	case <-p.pauseChan:
		p.pauseChan = make(chan struct{})
		return true
	default:
		return false
	}
}

func (p *frameProvider) Resume() bool {
	p.pauseMu.Lock()
	defer p.pauseMu.Unlock()
	select {
	case <-p.pauseChan:
		return false
	default:
		close(p.pauseChan)
		return true
	}
}

func (p *frameProvider) Paused() bool {
	p.pauseMu.RLock()
	defer p.pauseMu.RUnlock()
	select {
	case <-p.pauseChan:
		return false
	default:
		return true
	}
}

func (p *frameProvider) ProvideOpusFrame() ([]byte, error) {
	p.pauseMu.RLock()
	pauseChan := p.pauseChan
	p.pauseMu.RUnlock()

	select {
	case <-pauseChan:
	case <-p.ctx.Done():
		p.Close()
		return nil, io.EOF
	}

	if p.draining {
		target := int(SilenceDuration.Milliseconds() / 20)
		if p.silenceFrames < target {
			p.silenceFrames++
			return OpusSilence, nil
		}
		p.Close()
		return nil, io.EOF
	}

	select {
	case f := <-p.frames:
		if f == nil {
			p.draining = true
			return OpusSilence, nil
		}
		return f, nil
	case <-p.ctx.Done():
		p.Close()
		return nil, io.EOF
	case <-time.After(frameWait):
		return OpusSilence, nil
	}
}

// Stream plays one file on a guild's voice connection.
type Stream struct {
	transport *VoiceTransport
	guildID   snowflake.ID
	conn      voice.Conn
	path      string
	opts      audio.StreamOptions

	ctx      context.Context
	cancel   context.CancelFunc
	provider *frameProvider

	started  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

var _ audio.Stream = (*Stream)(nil)

func newStream(t *VoiceTransport, guildID snowflake.ID, conn voice.Conn, path string, opts audio.StreamOptions) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		transport: t,
		guildID:   guildID,
		conn:      conn,
		path:      path,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.provider = newFrameProvider(ctx, s.finish)
	return s
}

// Start opens the file and begins sending frames. Decoding errors after
// this point end the stream early instead of failing Start.
func (s *Stream) Start() error {
	if s.started.Swap(true) {
		return errors.New("stream already started")
	}

	t := NewAstiavTranscoder(s.opts)
	if err := t.OpenInput(s.path); err != nil {
		t.Close()
		return err
	}
	if err := t.SetupDecoder(); err != nil {
		t.Close()
		return err
	}
	if err := t.SetupEncoder(); err != nil {
		t.Close()
		return err
	}

	go func() {
		defer t.Close()
		if err := t.Transcode(s.ctx, s.provider.PushFrame); err != nil && !errors.Is(err, context.Canceled) {
			sys.LogVoice(sys.MsgVoiceTranscodeFailed, s.path, err)
		}
	}()

	trySetOpusFrameProvider(s.conn, s.provider)
	trySetSpeaking(s.ctx, s.conn, voice.SpeakingFlagMicrophone)
	return nil
}

func (s *Stream) Stop() {
	s.cancel()
	s.finish()
}

func (s *Stream) Pause() {
	s.provider.Pause()
}

func (s *Stream) Resume() {
	s.provider.Resume()
}

func (s *Stream) IsPlaying() bool {
	return s.started.Load() && !s.IsDone() && !s.provider.Paused()
}

func (s *Stream) IsDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Stream) finish() {
	s.doneOnce.Do(func() {
		close(s.done)
		s.cancel()
		// finish may run on the connection's sender goroutine, which must
		// not be the one detaching the provider.
		go s.transport.release(s)
	})
}

func trySetOpusFrameProvider(conn voice.Conn, provider voice.OpusFrameProvider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	conn.SetOpusFrameProvider(provider)
	return true
}

func trySetSpeaking(ctx context.Context, conn voice.Conn, flags voice.SpeakingFlags) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	conn.SetSpeaking(ctx, flags)
	return true
}
