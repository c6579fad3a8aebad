package engine

import (
	"fmt"
	"strings"
	"time"

	"playamap/internal/model"
	"playamap/internal/timeline"
)

// Detail is the hover/status view of one event.
type Detail struct {
	Title       string
	TypeAbbr    string
	TypeLabel   string
	Showing     *model.Occurrence
	Location    string
	Description string
}

// Describe builds the status line for ev at instant: the title with its
// hosting camp, the showing that is live at instant, and where it is. The
// showing is given in the city time zone.
func (e *Engine) Describe(ev model.Event, instant time.Time) Detail {
	d := Detail{
		Title:       ev.Title,
		TypeAbbr:    ev.TypeAbbr(),
		TypeLabel:   "Event",
		Description: ev.Description,
	}
	if ev.Type != nil && ev.Type.Label != "" {
		d.TypeLabel = ev.Type.Label
	}

	if occ, ok := timeline.CurrentOccurrence(instant, ev); ok {
		if loc := e.daylight.Location; loc != nil {
			occ = model.Occurrence{Start: occ.Start.In(loc), End: occ.End.In(loc)}
		}
		d.Showing = &occ
	}

	if ev.HostedByCamp != "" {
		camp, ok := e.Camp(ev.HostedByCamp)
		if ok {
			d.Title += " (" + camp.Name + ")"
			if camp.LocationString != "" {
				d.Location = camp.LocationString
				if camp.Location != nil && camp.Location.ExactLocation != "" {
					d.Location += " (" + camp.Location.ExactLocation + ")"
				}
			}
		}
	} else if ev.OtherLocation != "" {
		d.Location = ev.OtherLocation
	}

	return d
}

// String renders the detail as a single status bar line.
func (d Detail) String() string {
	parts := make([]string, 0, 3)
	if d.Showing != nil {
		parts = append(parts, fmt.Sprintf("%s - %s",
			d.Showing.Start.Format("Mon Jan 2 3:04 PM"),
			d.Showing.End.Format("3:04 PM")))
	}
	if d.Location != "" {
		parts = append(parts, d.Location)
	}
	if d.Description != "" {
		parts = append(parts, d.Description)
	}
	return d.Title + " [" + d.TypeLabel + "] " + strings.Join(parts, " • ")
}
