package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/geo/r2"

	"playamap/internal/geocode"
	appLog "playamap/internal/log"
	"playamap/internal/model"
	"playamap/internal/timeline"
)

// Options configures an Engine.
type Options struct {
	Calibration geocode.Calibration
	Window      timeline.Window
	Steps       []int
	Step        int
	Daylight    timeline.Daylight
}

// ActiveEvent is one live event with the showing that makes it live and, if
// its hosting camp resolved, its map position.
type ActiveEvent struct {
	Event      model.Event
	Occurrence model.Occurrence
	Coordinate r2.Point
	Located    bool
}

// Snapshot is everything a renderer needs for one instant.
type Snapshot struct {
	Instant  time.Time
	Offset   time.Duration
	Running  bool
	Step     int
	Darkness float64
	Active   []ActiveEvent
}

// Located counts the active events that have a map position.
func (s Snapshot) Located() int {
	n := 0
	for _, a := range s.Active {
		if a.Located {
			n++
		}
	}
	return n
}

// Engine owns the temporal cursor and an immutable view of the loaded data.
// Data is swapped wholesale by Reload; readers never see a partial load.
type Engine struct {
	resolver *geocode.Resolver
	cursor   *timeline.Cursor
	daylight timeline.Daylight

	mu     sync.RWMutex
	events []model.Event
	camps  map[string]model.Camp
	index  *geocode.Index
	diags  []geocode.Diagnostic

	subsMu sync.Mutex
	subs   []func(Snapshot)
}

// New builds the resolver, the cursor and the camp location index.
func New(opts Options, events []model.Event, camps []model.Camp) (*Engine, error) {
	resolver, err := geocode.NewResolver(opts.Calibration)
	if err != nil {
		return nil, fmt.Errorf("engine: calibration %q: %w", opts.Calibration.Name, err)
	}
	cursor, err := timeline.NewCursor(opts.Window, opts.Steps, opts.Step)
	if err != nil {
		return nil, fmt.Errorf("engine: cursor: %w", err)
	}

	if opts.Daylight.SunsetEnd == 0 {
		opts.Daylight = timeline.DefaultDaylight(opts.Daylight.Location)
	}

	e := &Engine{
		resolver: resolver,
		cursor:   cursor,
		daylight: opts.Daylight,
	}
	e.Reload(events, camps)
	return e, nil
}

// Reload replaces the event and camp data and rebuilds the location index.
func (e *Engine) Reload(events []model.Event, camps []model.Camp) {
	index, diags := geocode.BuildIndex(camps, e.resolver)

	byUID := make(map[string]model.Camp, len(camps))
	for _, c := range camps {
		if c.UID != "" {
			byUID[c.UID] = c
		}
	}

	evs := make([]model.Event, len(events))
	copy(evs, events)

	e.mu.Lock()
	e.events = evs
	e.camps = byUID
	e.index = index
	e.diags = diags
	e.mu.Unlock()

	appLog.Info("engine data loaded", "events", len(evs), "camps", len(camps), "mapped_camps", index.Len())
	e.notify(e.Snapshot())
}

// Cursor exposes the temporal cursor, mostly for wiring a Player.
func (e *Engine) Cursor() *timeline.Cursor { return e.cursor }

// Resolver returns the location resolver.
func (e *Engine) Resolver() *geocode.Resolver { return e.resolver }

// Index returns the current camp location index.
func (e *Engine) Index() *geocode.Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index
}

// Diagnostics lists camps that could not be placed on the last load.
func (e *Engine) Diagnostics() []geocode.Diagnostic {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]geocode.Diagnostic(nil), e.diags...)
}

// Events returns the loaded events.
func (e *Engine) Events() []model.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Event(nil), e.events...)
}

// Camp looks up a camp by uid.
func (e *Engine) Camp(uid string) (model.Camp, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.camps[uid]
	return c, ok
}

// Locate places an event at its hosting camp. Events without a hosting camp,
// or whose camp did not resolve, have no position.
func (e *Engine) Locate(ev model.Event) (r2.Point, bool) {
	if ev.HostedByCamp == "" {
		return r2.Point{}, false
	}
	return e.Index().Lookup(ev.HostedByCamp)
}

// OnChange registers fn to receive a snapshot after every cursor move or
// reload. fn runs synchronously on the goroutine that moved the cursor.
func (e *Engine) OnChange(fn func(Snapshot)) {
	e.subsMu.Lock()
	e.subs = append(e.subs, fn)
	e.subsMu.Unlock()
}

func (e *Engine) notify(s Snapshot) {
	e.subsMu.Lock()
	subs := append([]func(Snapshot){}, e.subs...)
	e.subsMu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

// SetInstant moves the cursor and returns the re-derived snapshot.
func (e *Engine) SetInstant(t time.Time) Snapshot {
	e.cursor.SetInstant(t)
	return e.changed()
}

// SetOffsetMinutes moves the cursor to window start + minutes.
func (e *Engine) SetOffsetMinutes(minutes int) Snapshot {
	e.cursor.SetOffsetMinutes(minutes)
	return e.changed()
}

// Advance steps the cursor forward, wrapping at the window end.
func (e *Engine) Advance(stepMinutes int) Snapshot {
	e.cursor.Advance(stepMinutes)
	return e.changed()
}

// Reset moves the cursor back to the window start.
func (e *Engine) Reset() Snapshot {
	e.cursor.Reset()
	return e.changed()
}

func (e *Engine) changed() Snapshot {
	s := e.Snapshot()
	e.notify(s)
	return s
}

// Snapshot derives the active set at the cursor's instant.
func (e *Engine) Snapshot() Snapshot {
	return e.SnapshotAt(e.cursor.Instant())
}

// SnapshotAt derives the active set at an arbitrary instant without moving
// the cursor.
func (e *Engine) SnapshotAt(instant time.Time) Snapshot {
	e.mu.RLock()
	events := e.events
	index := e.index
	e.mu.RUnlock()

	active := make([]ActiveEvent, 0)
	for _, ev := range events {
		occ, ok := timeline.CurrentOccurrence(instant, ev)
		if !ok {
			continue
		}
		a := ActiveEvent{Event: ev, Occurrence: occ}
		if ev.HostedByCamp != "" {
			a.Coordinate, a.Located = index.Lookup(ev.HostedByCamp)
		}
		active = append(active, a)
	}

	return Snapshot{
		Instant:  instant,
		Offset:   instant.Sub(e.cursor.Window().Start),
		Running:  e.cursor.Running(),
		Step:     e.cursor.Step(),
		Darkness: e.daylight.Darkness(instant),
		Active:   active,
	}
}
