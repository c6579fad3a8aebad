package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playamap/internal/model"
)

const sampleCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:yoga
DTSTAMP:20250801T000000Z
SUMMARY:Sunrise Yoga
DTSTART:20250825T130000Z
DTEND:20250825T140000Z
RRULE:FREQ=DAILY;COUNT=5
EXDATE:20250827T130000Z
LOCATION:Dusty Rhinos
CATEGORIES:Workshop
END:VEVENT
BEGIN:VEVENT
UID:yoga
DTSTAMP:20250801T000000Z
RECURRENCE-ID:20250826T130000Z
SUMMARY:Sunrise Yoga (late)
DTSTART:20250826T140000Z
DTEND:20250826T150000Z
END:VEVENT
BEGIN:VEVENT
UID:burn
DTSTAMP:20250801T000000Z
SUMMARY:Man Burn
DTSTART:20250831T040000Z
DTEND:20250831T060000Z
LOCATION:The Man
X-CAMP-UID:camp-x
END:VEVENT
BEGIN:VEVENT
UID:old
DTSTAMP:20240801T000000Z
SUMMARY:Last Year
DTSTART:20240825T130000Z
DTEND:20240825T140000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func utc(month time.Month, day, hour int) time.Time {
	return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
}

func TestParseICS(t *testing.T) {
	events, err := ParseICS("test", crlf(sampleCalendar))
	require.NoError(t, err)
	require.Len(t, events, 4)

	yoga := events[0]
	assert.Equal(t, "yoga", yoga.UID)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", yoga.RawRRule)
	assert.Equal(t, "Workshop", yoga.Category)
	require.Len(t, yoga.ExDates, 1)
	assert.True(t, yoga.ExDates[0].Equal(utc(time.August, 27, 13)))

	override := events[1]
	assert.True(t, override.IsOverride)
	require.NotNil(t, override.Recurrence)
	assert.True(t, override.Recurrence.Equal(utc(time.August, 26, 13)))

	assert.Equal(t, "camp-x", events[2].CampUID)
}

func TestParseICSRejectsEmpty(t *testing.T) {
	_, err := ParseICS("test", nil)
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	parsed, err := ParseICS("test", crlf(sampleCalendar))
	require.NoError(t, err)

	res, err := Expand(parsed, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      utc(time.August, 24, 7),
		RangeEnd:        utc(time.September, 2, 4),
		CampUIDByName:   map[string]string{"dusty rhinos": "camp-d"},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Empty(t, res.TruncatedEvents)

	yoga := res.Events[0]
	assert.Equal(t, "Sunrise Yoga", yoga.Title)
	assert.Equal(t, "camp-d", yoga.HostedByCamp)
	require.NotNil(t, yoga.Type)
	assert.Equal(t, "workshop", yoga.Type.Abbr)

	want := []model.Occurrence{
		{Start: utc(time.August, 25, 13), End: utc(time.August, 25, 14)},
		{Start: utc(time.August, 26, 14), End: utc(time.August, 26, 15)},
		{Start: utc(time.August, 28, 13), End: utc(time.August, 28, 14)},
		{Start: utc(time.August, 29, 13), End: utc(time.August, 29, 14)},
	}
	require.Len(t, yoga.Occurrences, len(want))
	for i := range want {
		assert.True(t, want[i].Start.Equal(yoga.Occurrences[i].Start), "start %d", i)
		assert.True(t, want[i].End.Equal(yoga.Occurrences[i].End), "end %d", i)
	}

	burn := res.Events[1]
	assert.Equal(t, "camp-x", burn.HostedByCamp)
	assert.Empty(t, burn.OtherLocation)
}

func TestExpandCapsRunawayRules(t *testing.T) {
	ev := ParsedEvent{
		UID:      "hourly",
		Start:    utc(time.August, 24, 0),
		End:      utc(time.August, 24, 0).Add(30 * time.Minute),
		RawRRule: "FREQ=HOURLY",
	}
	res, err := Expand([]ParsedEvent{ev}, ExpandConfig{
		RangeStart:             utc(time.August, 24, 0),
		RangeEnd:               utc(time.August, 30, 0),
		MaxOccurrencesPerEvent: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hourly"}, res.TruncatedEvents)
	require.Len(t, res.Events, 1)
	assert.Len(t, res.Events[0].Occurrences, 10)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	_, err := Expand(nil, ExpandConfig{RangeStart: utc(time.August, 25, 0), RangeEnd: utc(time.August, 24, 0)})
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	occ := model.Occurrence{Start: utc(time.August, 25, 13), End: utc(time.August, 25, 14)}
	items := []ExportItem{{
		Event: model.Event{
			UID:          "ev-1",
			Title:        "Sunrise Yoga",
			Description:  "Bring a mat.",
			Type:         &model.EventType{Abbr: "work", Label: "Class"},
			HostedByCamp: "camp-d",
		},
		Occurrence: occ,
		Location:   "7:30 & D",
	}}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, items, utc(time.August, 25, 13)))
	assert.Contains(t, buf.String(), "METHOD:PUBLISH")

	parsed, err := ParseICS("export", buf.Bytes())
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	got := parsed[0]
	assert.Equal(t, "ev-1@20250825T130000Z", got.UID)
	assert.Equal(t, "Sunrise Yoga", got.Summary)
	assert.Equal(t, "7:30 & D", got.Location)
	assert.Equal(t, "camp-d", got.CampUID)
	assert.Equal(t, "Class", got.Category)
	assert.True(t, got.Start.Equal(occ.Start))
	assert.True(t, got.End.Equal(occ.End))
}
