package geocode

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"playamap/internal/model"
)

const eps = 1e-12

func newMeasured(t *testing.T) *Resolver {
	t.Helper()
	cal, ok := Builtin(Measured2025)
	require.True(t, ok)
	r, err := NewResolver(cal)
	require.NoError(t, err)
	return r
}

func TestTableNormalization(t *testing.T) {
	for _, name := range BuiltinNames() {
		t.Run(name, func(t *testing.T) {
			cal, ok := Builtin(name)
			require.True(t, ok)
			table, err := NewTable(cal.Streets, cal.MapScale)
			require.NoError(t, err)

			entries := table.Entries()
			require.Len(t, entries, len(cal.Streets))
			for i := 1; i < len(entries); i++ {
				assert.Greater(t, entries[i].Ratio, entries[i-1].Ratio, "ring %s", entries[i].Code)
			}
			assert.Equal(t, cal.MapScale, entries[len(entries)-1].Ratio)
			assert.Equal(t, Esplanade, entries[0].Code)
		})
	}
}

func TestTableRejectsBadDistances(t *testing.T) {
	tests := []struct {
		name    string
		streets []Street
		scale   float64
	}{
		{"empty", nil, 0.4},
		{"zero scale", []Street{{"A", 1}}, 0},
		{"not increasing", []Street{{"A", 100}, {"B", 100}}, 0.4},
		{"decreasing", []Street{{"A", 200}, {"B", 100}}, 0.4},
		{"negative", []Street{{"A", -1}}, 0.4},
		{"duplicate", []Street{{"A", 1}, {"A", 2}}, 0.4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTable(tc.streets, tc.scale)
			assert.Error(t, err)
		})
	}
}

func TestResolveFacingManExample(t *testing.T) {
	r := newMeasured(t)

	got, err := r.Resolve(model.LocationDescriptor{
		Frontage:      "7:30",
		Intersection:  "D",
		ExactLocation: "facing Man",
	})
	require.NoError(t, err)

	d, ok := r.Table().Ratio("D")
	require.True(t, ok)
	radius := d + 0.005
	angle := 7.5 / 12 * 2 * math.Pi

	assert.InDelta(t, 0.475+radius*math.Sin(angle), got.X, eps)
	assert.InDelta(t, 0.43-radius*math.Cos(angle), got.Y, eps)
	assert.InDelta(t, radius, got.Sub(r.Center()).Norm(), eps)
}

func TestResolveFacingMountainMovesInward(t *testing.T) {
	r := newMeasured(t)
	base, err := r.Resolve(model.LocationDescriptor{Frontage: "C", Intersection: "4:15"})
	require.NoError(t, err)
	in, err := r.Resolve(model.LocationDescriptor{Frontage: "C", Intersection: "4:15", ExactLocation: "Mid-block, FACING MOUNTAIN"})
	require.NoError(t, err)

	assert.InDelta(t, base.Sub(r.Center()).Norm()-0.005, in.Sub(r.Center()).Norm(), eps)
}

func TestResolveCenterCamp(t *testing.T) {
	r := newMeasured(t)
	want := r2.Point{X: 0.5, Y: 0.58}

	for _, desc := range []model.LocationDescriptor{
		{Frontage: "Center Camp Plaza"},
		{Frontage: "Center Camp Plaza", Intersection: "Z"},
		{Frontage: "6:00", Intersection: "center camp plaza", ExactLocation: "facing Man"},
	} {
		got, err := r.Resolve(desc)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestResolveTwelveOClockIsUp(t *testing.T) {
	r := newMeasured(t)
	got, err := r.Resolve(model.LocationDescriptor{Frontage: "Esplanade", Intersection: "12:00"})
	require.NoError(t, err)

	esp, _ := r.Table().Ratio(Esplanade)
	assert.InDelta(t, 0.475, got.X, eps)
	assert.InDelta(t, 0.43-esp, got.Y, eps)
}

func TestResolveUnresolvable(t *testing.T) {
	r := newMeasured(t)
	tests := []struct {
		name string
		desc model.LocationDescriptor
		want error
	}{
		{"missing intersection", model.LocationDescriptor{Frontage: "7:30"}, ErrMissingField},
		{"missing frontage", model.LocationDescriptor{Intersection: "D"}, ErrMissingField},
		{"both times", model.LocationDescriptor{Frontage: "7:30", Intersection: "8:00"}, ErrAmbiguousRadial},
		{"no times", model.LocationDescriptor{Frontage: "D", Intersection: "Esplanade"}, ErrNoRadial},
		{"hour out of range", model.LocationDescriptor{Frontage: "13:00", Intersection: "D"}, ErrNoRadial},
		{"unknown letter", model.LocationDescriptor{Frontage: "7:30", Intersection: "Z"}, ErrNoStreet},
		{"in range but uncalibrated", model.LocationDescriptor{Frontage: "L", Intersection: "7:30"}, ErrStreetNotCalibrated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(tc.desc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			var ue *UnresolvableError
			require.True(t, errors.As(err, &ue))
			assert.NotEmpty(t, ue.Field)
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := newMeasured(t)
	desc := model.LocationDescriptor{Frontage: "Jericho", Intersection: "9:45 Plaza", ExactLocation: "corner"}
	a, errA := r.Resolve(desc)
	b, errB := r.Resolve(desc)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestClockAngleMonotonicAndWraps(t *testing.T) {
	prev := -1.0
	for h := 1; h <= 11; h++ {
		for m := 0; m < 60; m++ {
			a := ClockAngle(h, m).Radians()
			assert.Greater(t, a, prev, "%d:%02d", h, m)
			prev = a
		}
	}

	minute := 2 * math.Pi / (12 * 60)
	before := ClockAngle(11, 59).Radians()
	at := ClockAngle(12, 0).Radians()
	assert.Equal(t, 0.0, at)
	gap := math.Mod(at-before+2*math.Pi, 2*math.Pi)
	assert.InDelta(t, minute, gap, eps)

	// 12:30 sits between 0:00 and 1:00.
	assert.InDelta(t, 0.5/12*2*math.Pi, ClockAngle(12, 30).Radians(), eps)
	assert.Less(t, ClockAngle(12, 30).Radians(), ClockAngle(1, 0).Radians())
}

func TestClassify(t *testing.T) {
	r := newMeasured(t)
	tests := []struct {
		in   string
		want FieldKind
	}{
		{"", FieldEmpty},
		{"  ", FieldEmpty},
		{"Center Camp Plaza", FieldCenterMarker},
		{"7:30", FieldClockTime},
		{"10:00 Portal", FieldClockTime},
		{"13:00", FieldUnrecognized},
		{"7:3", FieldUnrecognized},
		{"Esplanade", FieldStreet},
		{"Dickens", FieldStreet},
		{"Z", FieldUnrecognized},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, r.Classify(tc.in), "%q", tc.in)
	}

	assert.True(t, r.IsCenterMarker("center camp"))
	assert.False(t, r.IsCenterMarker("Centerville"))
}

func TestParseStreetPrefersNamedRing(t *testing.T) {
	r := newMeasured(t)

	code, ok := r.ParseStreet("Esplanade & A")
	require.True(t, ok)
	assert.Equal(t, Esplanade, code)

	code, ok = r.ParseStreet("kilgore")
	require.True(t, ok)
	assert.Equal(t, StreetCode("K"), code)
}

func TestBuildIndex(t *testing.T) {
	r := newMeasured(t)
	camps := []model.Camp{
		{UID: "a1", Name: "Ok Camp", Location: &model.LocationDescriptor{Frontage: "7:30", Intersection: "D"}},
		{UID: "a2", Name: "Nowhere", Location: &model.LocationDescriptor{Frontage: "7:30", Intersection: "Z"}},
		{UID: "a3", Name: "Unplaced"},
		{UID: "a4", Name: "Plaza", Location: &model.LocationDescriptor{Frontage: "Center Camp Plaza"}},
	}

	ix, diags := BuildIndex(camps, r)

	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, 4, ix.Total())
	assert.Equal(t, []string{"a1", "a4"}, ix.UIDs())

	_, ok := ix.Lookup("a2")
	assert.False(t, ok)

	require.Len(t, diags, 2)
	assert.Equal(t, "a2", diags[0].CampUID)
	assert.ErrorIs(t, diags[0].Err, ErrNoStreet)
	assert.ErrorIs(t, diags[1].Err, ErrNoLocation)
}

func TestBuildIndexReportsCampWithoutUID(t *testing.T) {
	r := newMeasured(t)
	camps := []model.Camp{
		{Name: "Anonymous", Location: &model.LocationDescriptor{Frontage: "7:30", Intersection: "D"}},
	}

	ix, diags := BuildIndex(camps, r)

	assert.Equal(t, 0, ix.Len())
	require.Len(t, diags, 1)
	assert.Equal(t, "Anonymous", diags[0].CampName)
	assert.ErrorIs(t, diags[0].Err, ErrMissingUID)
}

func TestNewResolverRejectsBadCalibration(t *testing.T) {
	cal, _ := Builtin(BlockDimensions)
	cal.LetterRange = "L-A"
	_, err := NewResolver(cal)
	assert.Error(t, err)

	cal, _ = Builtin(BlockDimensions)
	cal.Facing = []FacingRule{{Marker: "facing man", Direction: "sideways"}}
	_, err = NewResolver(cal)
	assert.Error(t, err)
}
