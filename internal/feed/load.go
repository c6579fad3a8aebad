package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"playamap/internal/ics"
	appLog "playamap/internal/log"
	"playamap/internal/model"
)

// rawEvent mirrors the event directory export. Older exports carry only a
// numeric event_id.
type rawEvent struct {
	UID           string           `json:"uid"`
	EventID       int              `json:"event_id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	EventType     *model.EventType `json:"event_type"`
	HostedByCamp  string           `json:"hosted_by_camp"`
	OtherLocation string           `json:"other_location"`
	OccurrenceSet []rawOccurrence  `json:"occurrence_set"`
}

type rawOccurrence struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// DecodeEvents parses an event directory export. Unusable occurrences are
// logged and skipped; the event itself is kept even if none remain.
func DecodeEvents(body []byte) ([]model.Event, error) {
	var raw []rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("feed: decode events: %w", err)
	}

	out := make([]model.Event, 0, len(raw))
	for _, r := range raw {
		ev := model.Event{
			UID:           r.UID,
			Title:         r.Title,
			Description:   r.Description,
			Type:          r.EventType,
			HostedByCamp:  r.HostedByCamp,
			OtherLocation: r.OtherLocation,
		}
		if ev.UID == "" && r.EventID != 0 {
			ev.UID = strconv.Itoa(r.EventID)
		}

		for _, ro := range r.OccurrenceSet {
			occ, err := parseOccurrence(ro)
			if err != nil {
				appLog.Warn("skipping occurrence", "event", ev.UID, "title", ev.Title, "reason", err)
				continue
			}
			ev.Occurrences = append(ev.Occurrences, occ)
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseOccurrence(ro rawOccurrence) (model.Occurrence, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(ro.StartTime))
	if err != nil {
		return model.Occurrence{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(ro.EndTime))
	if err != nil {
		return model.Occurrence{}, fmt.Errorf("end_time: %w", err)
	}
	if end.Before(start) {
		return model.Occurrence{}, fmt.Errorf("end_time %s is before start_time %s", ro.EndTime, ro.StartTime)
	}
	return model.Occurrence{Start: start, End: end}, nil
}

// DecodeCamps parses a camp directory export.
func DecodeCamps(body []byte) ([]model.Camp, error) {
	var camps []model.Camp
	if err := json.Unmarshal(body, &camps); err != nil {
		return nil, fmt.Errorf("feed: decode camps: %w", err)
	}
	return camps, nil
}

// Dataset is one complete, consistent load.
type Dataset struct {
	Events []model.Event
	Camps  []model.Camp
}

// Loader fetches and decodes the directory exports plus any extra ICS
// calendars.
type Loader struct {
	Fetcher *Fetcher
	Events  Source
	Camps   Source
	ICS     []Source

	// Range bounds ICS recurrence expansion, normally the playback window.
	RangeStart time.Time
	RangeEnd   time.Time
	Location   *time.Location
}

// Load returns the full dataset or an error; it never returns a partial
// directory load. A failing ICS calendar is logged and left out, since those
// only add events on top of the directory.
func (l *Loader) Load(ctx context.Context) (Dataset, error) {
	var ds Dataset

	evRes, err := l.Fetcher.Fetch(ctx, l.Events)
	if err != nil {
		return ds, err
	}
	events, err := DecodeEvents(evRes.Body)
	if err != nil {
		return ds, err
	}

	campRes, err := l.Fetcher.Fetch(ctx, l.Camps)
	if err != nil {
		return ds, err
	}
	camps, err := DecodeCamps(campRes.Body)
	if err != nil {
		return ds, err
	}

	if len(l.ICS) > 0 {
		extra := l.loadICS(ctx, camps)
		events = append(events, extra...)
	}

	appLog.Info("feed load completed", "events", len(events), "camps", len(camps), "ics_sources", len(l.ICS))
	return Dataset{Events: events, Camps: camps}, nil
}

func (l *Loader) loadICS(ctx context.Context, camps []model.Camp) []model.Event {
	byName := make(map[string]string, len(camps))
	for _, c := range camps {
		if c.Name != "" && c.UID != "" {
			byName[strings.ToLower(strings.TrimSpace(c.Name))] = c.UID
		}
	}

	var parsed []ics.ParsedEvent
	for _, src := range l.ICS {
		res, err := l.Fetcher.Fetch(ctx, src)
		if err != nil {
			appLog.Error("ics source fetch failed", err, "id", src.ID)
			continue
		}
		evs, err := ics.ParseICS(src.ID, res.Body)
		if err != nil {
			continue
		}
		parsed = append(parsed, evs...)
	}

	res, err := ics.Expand(parsed, ics.ExpandConfig{
		DisplayLocation: l.Location,
		RangeStart:      l.RangeStart,
		RangeEnd:        l.RangeEnd,
		CampUIDByName:   byName,
	})
	if err != nil {
		appLog.Error("ics expand failed", err)
		return nil
	}
	return res.Events
}
