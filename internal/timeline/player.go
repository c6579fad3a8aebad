package timeline

import (
	"context"
	"sync"
	"time"

	appLog "playamap/internal/log"
)

// DefaultInterval is the wall-clock cadence of playback ticks.
const DefaultInterval = 100 * time.Millisecond

// TickFunc advances simulated time by stepMinutes. Engines pass a function
// that also re-derives the active event set.
type TickFunc func(stepMinutes int)

// Player drives a Cursor from a ticker goroutine. The cursor itself never
// owns a timer; Player is the host side of that split.
//
// Ticks are best-effort: under load a tick may fire late, and each one
// advances by exactly one step regardless of how late it was.
type Player struct {
	cursor   *Cursor
	interval time.Duration
	tick     TickFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayer builds a stopped player. If tick is nil the cursor is advanced
// directly.
func NewPlayer(c *Cursor, interval time.Duration, tick TickFunc) *Player {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if tick == nil {
		tick = func(step int) { c.Advance(step) }
	}
	return &Player{cursor: c, interval: interval, tick: tick}
}

// Interval returns the tick cadence.
func (p *Player) Interval() time.Duration { return p.interval }

// Start begins playback. Starting a running player is a no-op. The step
// size is read from the cursor on every tick, so SetStep takes effect
// without a restart.
func (p *Player) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil && !closed(p.done) {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.cursor.setRunning(true)

	go p.run(runCtx, done)
	appLog.Debug("playback started", "interval", p.interval, "step", p.cursor.Step())
}

// run exits when Stop cancels it or when the parent context ends; either way
// the cursor stops reporting running before done is closed.
func (p *Player) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.cursor.setRunning(false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(p.cursor.Step())
		}
	}
}

// Stop halts playback and waits for the tick goroutine to exit, so no tick
// lands after Stop returns. The cursor keeps its last value. Stop must not
// be called from inside the tick function.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
	p.cursor.setRunning(false)
	appLog.Debug("playback stopped", "instant", p.cursor.Instant().Format(time.RFC3339))
}

// Toggle flips between running and stopped and reports the new state.
func (p *Player) Toggle(ctx context.Context) bool {
	if p.Running() {
		p.Stop()
		return false
	}
	p.Start(ctx)
	return true
}

// Running reports whether the tick goroutine is active.
func (p *Player) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil && !closed(p.done)
}

func closed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
