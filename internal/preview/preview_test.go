package preview

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playamap/internal/engine"
	"playamap/internal/model"
)

func snapshot() engine.Snapshot {
	at := time.Date(2025, time.August, 25, 12, 0, 0, 0, time.UTC)
	occ := model.Occurrence{Start: at.Add(-time.Hour), End: at.Add(time.Hour)}
	return engine.Snapshot{
		Instant: at,
		Step:    10,
		Active: []engine.ActiveEvent{
			{Event: model.Event{UID: "a", Title: "Yoga", Type: &model.EventType{Abbr: "work"}}, Occurrence: occ, Coordinate: r2.Point{X: 0.3, Y: 0.6}, Located: true},
			{Event: model.Event{UID: "b", Title: "Party"}, Occurrence: occ, Coordinate: r2.Point{X: 0.7, Y: 0.2}, Located: true},
			{Event: model.Event{UID: "c", Title: "Nowhere"}, Occurrence: occ},
		},
	}
}

func TestChartGroupsByType(t *testing.T) {
	center := r2.Point{X: 0.5, Y: 0.5}
	sc := Chart(snapshot(), ChartOptions{Center: &center})

	var names []string
	for _, s := range sc.MultiSeries {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"othr", "work", "center"}, names)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, snapshot(), ChartOptions{Width: 600, Height: 600}))

	html := buf.String()
	assert.Contains(t, html, "3 events happening now")
	assert.Contains(t, html, "Yoga")
	assert.NotContains(t, html, "Nowhere")
}

func TestCapturePNGRequiresURL(t *testing.T) {
	_, err := CapturePNG(context.Background(), CaptureOptions{})
	assert.Error(t, err)
}
