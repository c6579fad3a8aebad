package ics

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "playamap/internal/log"
	"playamap/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the zone occurrences are converted into. If nil,
	// time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the occurrences kept; normally the
	// playback window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero means the default.
	MaxOccurrencesPerEvent int

	// CampUIDByName maps lower-cased camp names to uids so a VEVENT whose
	// LOCATION names a camp is hosted there.
	CampUIDByName map[string]string
}

// ExpandResult is the set of events built from a calendar.
type ExpandResult struct {
	Events []model.Event
	// TruncatedEvents records UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// Expand groups VEVENTs by UID and turns each group into one model.Event
// whose occurrences cover the configured range, handling RRULE, EXDATE and
// RECURRENCE-ID overrides. Events with no occurrence in range are dropped.
// Output order follows first appearance in the input.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("ics: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	var order []string
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	for _, uid := range order {
		baseEvents := baseByUID[uid]
		ov := overridesByUID[uid]
		truncated := false

		var occs []model.Occurrence
		for _, ev := range baseEvents {
			o, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			occs = append(occs, o...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("ics: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		if len(occs) == 0 {
			continue
		}

		sort.SliceStable(occs, func(i, j int) bool { return occs[i].Start.Before(occs[j].Start) })
		result.Events = append(result.Events, toEvent(baseEvents[0], occs, cfg))
	}

	return result, nil
}

func toEvent(ev ParsedEvent, occs []model.Occurrence, cfg ExpandConfig) model.Event {
	out := model.Event{
		UID:         ev.UID,
		Title:       ev.Summary,
		Description: ev.Description,
		Occurrences: occs,
	}
	if ev.Category != "" {
		out.Type = &model.EventType{Abbr: strings.ToLower(ev.Category), Label: ev.Category}
	}

	switch {
	case ev.CampUID != "":
		out.HostedByCamp = ev.CampUID
	case cfg.CampUIDByName[strings.ToLower(strings.TrimSpace(ev.Location))] != "":
		out.HostedByCamp = cfg.CampUIDByName[strings.ToLower(strings.TrimSpace(ev.Location))]
	default:
		out.OtherLocation = ev.Location
	}
	return out
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Occurrence {
	start, end := ev.Start, ev.End
	if o, ok := findOverrideForStart(overrides, start); ok {
		start, end = o.Start, o.End
	}
	if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Occurrence{makeOccurrence(start, end, cfg.DisplayLocation)}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Occurrence, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event duration so a showing that started
	// before the range but is still running is kept.
	dur := ev.End.Sub(ev.Start)
	rangeStart := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)

	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.Occurrence, 0, len(occTimes))
	for _, occStart := range occTimes {
		occEnd := occStart.Add(dur)
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			occStart, occEnd = o.Start, o.End
		}
		if !timeRangesOverlap(occStart, occEnd, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, makeOccurrence(occStart, occEnd, cfg.DisplayLocation))
	}
	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeOccurrence(start, end time.Time, displayLoc *time.Location) model.Occurrence {
	return model.Occurrence{Start: start.In(displayLoc), End: end.In(displayLoc)}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
