package model

import "time"

// Occurrence is one scheduled showing of an Event. Both Start and End are
// inclusive when deciding whether the event is live.
type Occurrence struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// Contains reports whether t falls inside the closed interval [Start, End].
func (o Occurrence) Contains(t time.Time) bool {
	return !t.Before(o.Start) && !t.After(o.End)
}

// EventType is the category attached to an event by the event directory.
type EventType struct {
	Abbr  string `json:"abbr"`
	Label string `json:"label"`
}

// Event is an immutable scheduled event. Everything except UID, Occurrences
// and HostedByCamp is opaque metadata passed through to consumers.
type Event struct {
	UID   string `json:"uid"`
	Title string `json:"title"`

	Description   string     `json:"description,omitempty"`
	Type          *EventType `json:"event_type,omitempty"`
	HostedByCamp  string     `json:"hosted_by_camp,omitempty"`
	OtherLocation string     `json:"other_location,omitempty"`

	Occurrences []Occurrence `json:"occurrence_set"`
}

// TypeAbbr returns the event type abbreviation, or "othr" when none is set.
func (e Event) TypeAbbr() string {
	if e.Type == nil || e.Type.Abbr == "" {
		return "othr"
	}
	return e.Type.Abbr
}

// LocationDescriptor is the raw textual address of a camp. One of Frontage
// and Intersection is normally a clock time ("7:30") and the other an arc
// street ("D", "Esplanade").
type LocationDescriptor struct {
	Frontage      string `json:"frontage,omitempty"`
	Intersection  string `json:"intersection,omitempty"`
	ExactLocation string `json:"exact_location,omitempty"`
}

// Camp is a theme camp record from the camp directory.
type Camp struct {
	UID            string              `json:"uid"`
	Name           string              `json:"name"`
	Location       *LocationDescriptor `json:"location,omitempty"`
	LocationString string              `json:"location_string,omitempty"`
}
