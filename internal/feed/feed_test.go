package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventsJSON = `[
  {
    "uid": "ev-1",
    "title": "Sunrise Yoga",
    "event_type": {"abbr": "work", "label": "Class/Workshop"},
    "hosted_by_camp": "camp-d",
    "occurrence_set": [
      {"start_time": "2025-08-25T06:00:00-07:00", "end_time": "2025-08-25T07:00:00-07:00"},
      {"start_time": "garbage", "end_time": "2025-08-26T07:00:00-07:00"}
    ]
  },
  {
    "event_id": 42,
    "title": "Temple Walk",
    "other_location": "The Temple",
    "occurrence_set": []
  }
]`

const campsJSON = `[
  {
    "uid": "camp-d",
    "name": "Dusty Rhinos",
    "location_string": "7:30 & D",
    "location": {"frontage": "7:30", "intersection": "D", "exact_location": "facing Man"}
  },
  {"uid": "camp-none", "name": "Unplaced"}
]`

const calendarICS = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:talk\r\nDTSTAMP:20250801T000000Z\r\nSUMMARY:Talk\r\n" +
	"DTSTART:20250826T180000Z\r\nDTEND:20250826T190000Z\r\nLOCATION:Dusty Rhinos\r\n" +
	"END:VEVENT\r\nEND:VCALENDAR\r\n"

func TestDecodeEvents(t *testing.T) {
	events, err := DecodeEvents([]byte(eventsJSON))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "ev-1", events[0].UID)
	assert.Equal(t, "work", events[0].TypeAbbr())
	require.Len(t, events[0].Occurrences, 1)
	assert.Equal(t, 7, events[0].Occurrences[0].End.Hour())

	assert.Equal(t, "42", events[1].UID)
	assert.Empty(t, events[1].Occurrences)
	assert.Equal(t, "othr", events[1].TypeAbbr())
}

func TestDecodeCamps(t *testing.T) {
	camps, err := DecodeCamps([]byte(campsJSON))
	require.NoError(t, err)
	require.Len(t, camps, 2)
	require.NotNil(t, camps[0].Location)
	assert.Equal(t, "facing Man", camps[0].Location.ExactLocation)
	assert.Nil(t, camps[1].Location)

	_, err = DecodeCamps([]byte(`{"not": "a list"}`))
	assert.Error(t, err)
}

func TestFetchRemoteUsesETag(t *testing.T) {
	var hits, revalidated atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			revalidated.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(campsJSON))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "camps", URL: srv.URL + "/camps.json?token=secret"}

	first, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), revalidated.Load())
}

func TestFetchRemoteFallsBackToCache(t *testing.T) {
	fail := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(eventsJSON))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "events", URL: srv.URL}

	_, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	_, err = NewFetcher(t.TempDir(), srv.Client()).Fetch(context.Background(), src)
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/path/x.json?token=abc"))
	assert.Equal(t, "feed://...(redacted)", redactURL("data/events.json"))
}

func TestLoaderLocalFilesWithICS(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		return p
	}

	l := &Loader{
		Fetcher:    NewFetcher(filepath.Join(dir, "cache"), nil),
		Events:     Source{ID: "events", URL: write("events.json", eventsJSON)},
		Camps:      Source{ID: "camps", URL: write("camps.json", campsJSON)},
		ICS:        []Source{{ID: "talks", URL: write("talks.ics", calendarICS)}, {ID: "missing", URL: filepath.Join(dir, "nope.ics")}},
		RangeStart: time.Date(2025, time.August, 24, 7, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2025, time.September, 2, 4, 0, 0, 0, time.UTC),
		Location:   time.UTC,
	}

	ds, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Camps, 2)
	require.Len(t, ds.Events, 3)
	assert.Equal(t, "talk", ds.Events[2].UID)
	assert.Equal(t, "camp-d", ds.Events[2].HostedByCamp)
}

func TestLoaderFailsWithoutCamps(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(p, []byte(eventsJSON), 0o600))

	l := &Loader{
		Fetcher: NewFetcher(filepath.Join(dir, "cache"), nil),
		Events:  Source{ID: "events", URL: p},
		Camps:   Source{ID: "camps", URL: filepath.Join(dir, "missing.json")},
	}
	_, err := l.Load(context.Background())
	assert.Error(t, err)
}
