package timeline

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultSteps are the selectable playback speeds in simulated minutes per tick.
var DefaultSteps = []int{1, 2, 5, 10}

// Window is the playback range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow validates that end is after start.
func NewWindow(start, end time.Time) (Window, error) {
	if !end.After(start) {
		return Window{}, fmt.Errorf("timeline: window end %s is not after start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return Window{Start: start, End: end}, nil
}

// Len is the length of the window.
func (w Window) Len() time.Duration { return w.End.Sub(w.Start) }

// Minutes is the window length in whole minutes, as shown on a slider.
func (w Window) Minutes() int { return int(w.Len() / time.Minute) }

// Cursor is the current simulated instant plus playback state. All methods
// are safe for concurrent use.
type Cursor struct {
	mu      sync.RWMutex
	window  Window
	instant time.Time
	steps   []int
	step    int
	running bool
}

// NewCursor places the cursor at the window start. step must be one of steps.
func NewCursor(w Window, steps []int, step int) (*Cursor, error) {
	if !w.End.After(w.Start) {
		return nil, errors.New("timeline: empty window")
	}
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	for _, s := range steps {
		if s <= 0 {
			return nil, fmt.Errorf("timeline: step %d must be positive", s)
		}
	}
	c := &Cursor{
		window:  w,
		instant: w.Start,
		steps:   append([]int(nil), steps...),
	}
	if err := c.SetStep(step); err != nil {
		return nil, err
	}
	return c, nil
}

// Window returns the playback window.
func (c *Cursor) Window() Window {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window
}

// Instant returns the current instant.
func (c *Cursor) Instant() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instant
}

// Offset is the distance of the instant from the window start.
func (c *Cursor) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instant.Sub(c.window.Start)
}

// SetInstant moves the cursor without clamping or wrapping; the scrubber
// bounds the value.
func (c *Cursor) SetInstant(t time.Time) {
	c.mu.Lock()
	c.instant = t
	c.mu.Unlock()
}

// SetOffsetMinutes moves the cursor to start + minutes, as a slider does.
func (c *Cursor) SetOffsetMinutes(minutes int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instant = c.window.Start.Add(time.Duration(minutes) * time.Minute)
	return c.instant
}

// Advance moves the cursor forward by stepMinutes. When the new offset
// reaches or passes the window length the cursor restarts at the window
// start; the overshoot is discarded rather than carried over.
func (c *Cursor) Advance(stepMinutes int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	offset := c.instant.Sub(c.window.Start) + time.Duration(stepMinutes)*time.Minute
	if offset >= c.window.Len() {
		offset = 0
	}
	c.instant = c.window.Start.Add(offset)
	return c.instant
}

// Reset moves the cursor back to the window start.
func (c *Cursor) Reset() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instant = c.window.Start
	return c.instant
}

// Step returns the current step size in minutes.
func (c *Cursor) Step() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

// Steps returns the selectable step sizes.
func (c *Cursor) Steps() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int(nil), c.steps...)
}

// SetStep selects a step size. It must be one of the configured options.
// A running player picks it up on its next tick.
func (c *Cursor) SetStep(step int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.steps {
		if s == step {
			c.step = step
			return nil
		}
	}
	return fmt.Errorf("timeline: step %d is not one of %v", step, c.steps)
}

// CycleStep selects the next step option, wrapping to the first.
func (c *Cursor) CycleStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := 0
	for i, s := range c.steps {
		if s == c.step {
			next = (i + 1) % len(c.steps)
			break
		}
	}
	c.step = c.steps[next]
	return c.step
}

// Running reports whether a player is currently advancing the cursor.
func (c *Cursor) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Cursor) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}
