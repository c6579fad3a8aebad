package geocode

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/s1"

	"playamap/internal/model"
)

// Reasons a descriptor cannot be placed on the map.
var (
	ErrNoLocation          = errors.New("camp has no location")
	ErrMissingUID          = errors.New("camp has no uid")
	ErrMissingField        = errors.New("frontage or intersection missing")
	ErrAmbiguousRadial     = errors.New("both fields look like clock times")
	ErrNoRadial            = errors.New("neither field is a clock time")
	ErrNoStreet            = errors.New("no street code in arc field")
	ErrStreetNotCalibrated = errors.New("street code missing from calibration table")
)

// UnresolvableError carries the reason along with the offending field.
type UnresolvableError struct {
	Reason error
	Field  string
	Value  string
}

func (e *UnresolvableError) Error() string {
	if e.Field == "" {
		return "geocode: " + e.Reason.Error()
	}
	return fmt.Sprintf("geocode: %s (%s=%q)", e.Reason, e.Field, e.Value)
}

func (e *UnresolvableError) Unwrap() error { return e.Reason }

func unresolvable(reason error, field, value string) error {
	return &UnresolvableError{Reason: reason, Field: field, Value: value}
}

// Resolver converts location descriptors into map coordinates for one
// calibration. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	cal   Calibration
	table *Table
	g     grammar
}

// NewResolver validates the calibration and builds its normalized table.
func NewResolver(cal Calibration) (*Resolver, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	table, err := NewTable(cal.Streets, cal.MapScale)
	if err != nil {
		return nil, err
	}
	lo, hi, err := parseLetterRange(cal.LetterRange)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		cal:   cal,
		table: table,
		g: grammar{
			centerMarker: cal.CenterArea.Marker,
			named:        table.namedCodes(),
			lo:           lo,
			hi:           hi,
		},
	}, nil
}

// Calibration returns the calibration the resolver was built from.
func (r *Resolver) Calibration() Calibration { return r.cal }

// Table returns the normalized street table.
func (r *Resolver) Table() *Table { return r.table }

// Center is the map position of the Man.
func (r *Resolver) Center() r2.Point {
	return r2.Point{X: r.cal.CenterX, Y: r.cal.CenterY}
}

// Classify reports what kind of field a descriptor string is.
func (r *Resolver) Classify(field string) FieldKind {
	return r.g.classify(field)
}

// IsCenterMarker reports whether the field names the center area.
func (r *Resolver) IsCenterMarker(field string) bool {
	return r.g.isCenterMarker(field)
}

// ParseStreet extracts the street code from an arc field.
func (r *Resolver) ParseStreet(field string) (StreetCode, bool) {
	return r.g.parseStreet(field)
}

// ClockAngle converts a clock position to an angle measured clockwise from
// 12:00 (straight up). 12:MM is treated as 0:MM so the result is in [0, 2π).
func ClockAngle(hour, minute int) s1.Angle {
	total := float64(hour%12) + float64(minute)/60
	return s1.Angle(total / 12 * 2 * math.Pi)
}

// Polar places a point at angle/radius around center, with y growing down.
func Polar(center r2.Point, angle s1.Angle, radius float64) r2.Point {
	a := angle.Radians()
	return r2.Point{
		X: center.X + radius*math.Sin(a),
		Y: center.Y - radius*math.Cos(a),
	}
}

// Resolve converts a descriptor into a coordinate. Every failure is an
// *UnresolvableError wrapping one of the Err* reasons.
func (r *Resolver) Resolve(desc model.LocationDescriptor) (r2.Point, error) {
	if r.g.isCenterMarker(desc.Frontage) || r.g.isCenterMarker(desc.Intersection) {
		return r2.Point{X: r.cal.CenterArea.X, Y: r.cal.CenterArea.Y}, nil
	}

	if strings.TrimSpace(desc.Frontage) == "" {
		return r2.Point{}, unresolvable(ErrMissingField, "frontage", desc.Frontage)
	}
	if strings.TrimSpace(desc.Intersection) == "" {
		return r2.Point{}, unresolvable(ErrMissingField, "intersection", desc.Intersection)
	}

	fh, fm, frontageIsTime := ParseClockTime(desc.Frontage)
	ih, im, intersectionIsTime := ParseClockTime(desc.Intersection)

	var (
		hour, minute       int
		arcField, arcValue string
	)
	switch {
	case frontageIsTime && intersectionIsTime:
		return r2.Point{}, unresolvable(ErrAmbiguousRadial, "frontage", desc.Frontage)
	case frontageIsTime:
		hour, minute = fh, fm
		arcField, arcValue = "intersection", desc.Intersection
	case intersectionIsTime:
		hour, minute = ih, im
		arcField, arcValue = "frontage", desc.Frontage
	default:
		return r2.Point{}, unresolvable(ErrNoRadial, "frontage", desc.Frontage)
	}

	street, ok := r.g.parseStreet(arcValue)
	if !ok {
		return r2.Point{}, unresolvable(ErrNoStreet, arcField, arcValue)
	}
	radius, ok := r.table.Ratio(street)
	if !ok {
		return r2.Point{}, unresolvable(ErrStreetNotCalibrated, arcField, string(street))
	}

	radius += r.facingOffset(desc.ExactLocation)

	return Polar(r.Center(), ClockAngle(hour, minute), radius), nil
}

// facingOffset returns the signed radial adjustment for an exact location.
// The first matching rule wins.
func (r *Resolver) facingOffset(exact string) float64 {
	if exact == "" {
		return 0
	}
	lower := strings.ToLower(exact)
	for _, rule := range r.cal.Facing {
		if rule.Marker != "" && strings.Contains(lower, strings.ToLower(rule.Marker)) {
			return rule.Direction.sign() * r.cal.FacingOffset
		}
	}
	return 0
}
