package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Run starts the background loops. They stop when ctx ends or Close is
// called.
func (p *Player) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	loops := []func(context.Context){
		p.queueLoop,
		p.idleLoop,
		p.cacheLoop,
		p.reloadMonitor,
	}
	for _, loop := range loops {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			loop(ctx)
		}()
	}
}

// Close stops the loops, every stream and waits for in-flight downloads.
func (p *Player) Close() {
	if p.closed.Swap(true) {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.ctrl.StopAll()
	p.coord.Close()

	p.sleepMu.Lock()
	for id, t := range p.sleeps {
		t.Stop()
		delete(p.sleeps, id)
	}
	p.sleepMu.Unlock()
}

func (p *Player) alive(ctx context.Context) bool {
	return ctx.Err() == nil && !p.closed.Load()
}

// sleep waits d and reports whether the loop should continue.
func (p *Player) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return p.alive(ctx)
	}
}

// queueLoop advances every server with pending work, one advance per
// server per tick.
func (p *Player) queueLoop(ctx context.Context) {
	for p.alive(ctx) {
		var wg sync.WaitGroup
		for _, server := range p.queues.PendingServers() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.safeAdvance(ctx, server)
			}()
		}
		wg.Wait()
		if !p.sleep(ctx, p.opts.QueueInterval) {
			return
		}
	}
}

func (p *Player) safeAdvance(ctx context.Context, server snowflake.ID) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(fmt.Sprintf(msgAdvancePanic, server, r, debug.Stack()))
		}
	}()
	p.advance(ctx, server)
}

// advance starts the next song when the server is idle, or prefetches the
// one after it while something plays.
func (p *Player) advance(ctx context.Context, server snowflake.ID) {
	maxLen := p.maxDuration()

	if p.ctrl.IsPlaying(server) {
		next, ok := p.queues.PeekNext(server)
		if ok && p.coord.Current(server) != nil {
			p.coord.Prefetch(ctx, server, next, maxLen)
		}
		return
	}

	p.genMu.Lock()
	gen := p.gens[server]
	p.queues.RequeueFinished(server)
	locator, fromMain, ok := p.queues.PopNext(server)
	p.genMu.Unlock()
	if !ok {
		return
	}
	valid := func() bool { return p.generation(server) == gen }

	song, err := p.coord.EnsureReady(ctx, server, locator, maxLen)
	if err == nil && !valid() {
		err = ErrSuperseded
	}
	if err != nil {
		p.abandon(server, gen)
		p.logAdvanceError(server, locator, err)
		return
	}
	stream, err := p.ctrl.Open(ctx, server, song, valid)
	if err != nil {
		p.abandon(server, gen)
		p.logAdvanceError(server, locator, err)
		return
	}
	if !p.commit(server, gen, stream, song, fromMain) {
		p.logAdvanceError(server, locator, ErrSuperseded)
		return
	}
	p.logger.Info(fmt.Sprintf(msgNowPlaying, song, song.ID, server))
	p.publishStatus(ctx, server, song)
}

// commit installs stream and records song as playing unless the server was
// reset since gen. A superseded stream is stopped.
func (p *Player) commit(server snowflake.ID, gen uint64, stream Stream, song Song, fromMain bool) bool {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	if p.gens[server] != gen {
		stream.Stop()
		return false
	}
	p.ctrl.Adopt(server, stream)
	p.queues.SetNowPlaying(server, &song, fromMain)
	return true
}

// abandon clears the now playing slot after a failed start, unless a newer
// generation owns the server by now.
func (p *Player) abandon(server snowflake.ID, gen uint64) {
	p.genMu.Lock()
	defer p.genMu.Unlock()
	if p.gens[server] == gen {
		p.queues.SetNowPlaying(server, nil, false)
	}
}

func (p *Player) logAdvanceError(server snowflake.ID, locator string, err error) {
	switch {
	case errors.Is(err, ErrMaximumLength):
		p.logger.Warn(fmt.Sprintf(msgSkippingTooLong, locator, server, err))
	case errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		p.logger.Debug(fmt.Sprintf(msgDroppedStale, locator, server))
	default:
		p.logger.Error(fmt.Sprintf(msgFailedToPlay, locator, server, err))
	}
}

type idleObservation int

const (
	observedIdle idleObservation = iota
	observedPlaying
	observedPaused
)

// idleTracker remembers since when each server has been idle.
type idleTracker struct {
	timeout time.Duration
	since   map[snowflake.ID]time.Time
}

func newIdleTracker(timeout time.Duration) *idleTracker {
	return &idleTracker{timeout: timeout, since: make(map[snowflake.ID]time.Time)}
}

// observe records the server's state at now and reports whether it has
// been idle for longer than the timeout. A paused server keeps its clock.
func (t *idleTracker) observe(server snowflake.ID, o idleObservation, now time.Time) bool {
	switch o {
	case observedPlaying:
		delete(t.since, server)
		return false
	case observedIdle:
		if _, ok := t.since[server]; !ok {
			t.since[server] = now
		}
	}
	since, ok := t.since[server]
	if ok && now.Sub(since) > t.timeout {
		delete(t.since, server)
		return true
	}
	return false
}

func (t *idleTracker) forget(server snowflake.ID) {
	delete(t.since, server)
}

func (p *Player) idleObservation(server snowflake.ID) idleObservation {
	switch {
	case p.ctrl.Active(server):
		return observedPlaying
	case p.ctrl.IsPlaying(server):
		return observedPaused
	default:
		return observedIdle
	}
}

func (p *Player) idleLoop(ctx context.Context) {
	tracker := newIdleTracker(p.opts.IdleTimeout)
	for p.sleep(ctx, p.opts.IdleInterval) {
		now := time.Now()
		for _, server := range p.queues.ServerIDs() {
			if !p.ctrl.Connected(server) {
				tracker.forget(server)
				continue
			}
			if !tracker.observe(server, p.idleObservation(server), now) {
				continue
			}
			p.logger.Info(fmt.Sprintf(msgIdleDisconnect, server, p.opts.IdleTimeout))
			p.clearStatus(ctx, server)
			p.supersede(server, func() { p.queues.SetNowPlaying(server, nil, false) })
			if err := p.ctrl.Disconnect(ctx, server); err != nil {
				p.logger.Warn(fmt.Sprintf(msgIdleDisconnectFail, server, err))
			}
		}
	}
}

func (p *Player) cacheLoop(ctx context.Context) {
	if !p.sleep(ctx, p.opts.CacheGrace) {
		return
	}
	for p.alive(ctx) {
		if p.cache.TooLarge() {
			p.logger.Debug(fmt.Sprintf(msgCacheTooLarge, p.cache.SizeMB(), p.cache.MaxMB()))
			p.cache.Sweep(false)
		}
		if !p.sleep(ctx, p.opts.CacheInterval) {
			return
		}
	}
}

// reloadMonitor silences every stream once the player is torn down.
func (p *Player) reloadMonitor(ctx context.Context) {
	<-ctx.Done()
	p.ctrl.StopAll()
}
