package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"playamap/internal/model"
)

// ExportItem is one showing to publish.
type ExportItem struct {
	Event      model.Event
	Occurrence model.Occurrence
	// Location is the human-readable place, e.g. "7:30 & D (facing Man)".
	Location string
}

// Export writes items as a PUBLISH calendar, one VEVENT per showing. Each
// VEVENT's UID combines the event uid and the showing start so calendar
// clients keep repeated showings apart.
func Export(w io.Writer, items []ExportItem, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//playamap//active events//EN")

	for _, it := range items {
		start := it.Occurrence.Start.UTC()
		ve := cal.AddEvent(it.Event.UID + "@" + start.Format("20060102T150405Z"))
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(start)
		ve.SetEndAt(it.Occurrence.End.UTC())
		ve.SetSummary(it.Event.Title)
		if it.Event.Description != "" {
			ve.SetDescription(it.Event.Description)
		}
		if it.Location != "" {
			ve.SetLocation(it.Location)
		}
		if it.Event.Type != nil && it.Event.Type.Label != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, it.Event.Type.Label)
		}
		if it.Event.HostedByCamp != "" {
			ve.SetProperty(PropertyCampUID, it.Event.HostedByCamp)
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}
