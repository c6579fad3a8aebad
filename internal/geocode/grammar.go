package geocode

import (
	"regexp"
	"strconv"
	"strings"
)

// FieldKind classifies one descriptor field.
type FieldKind int

const (
	FieldEmpty FieldKind = iota
	FieldCenterMarker
	FieldClockTime
	FieldStreet
	FieldUnrecognized
)

func (k FieldKind) String() string {
	switch k {
	case FieldEmpty:
		return "empty"
	case FieldCenterMarker:
		return "center-marker"
	case FieldClockTime:
		return "clock-time"
	case FieldStreet:
		return "street"
	default:
		return "unrecognized"
	}
}

// H:MM or HH:MM at the start of the field, not followed by another digit.
var clockTimeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?:\D|$)`)

// ParseClockTime reads a leading clock position such as "7:30" or
// "10:00 Portal". Hours must be 1-12 and minutes 00-59.
func ParseClockTime(field string) (hour, minute int, ok bool) {
	m := clockTimeRe.FindStringSubmatch(strings.TrimSpace(field))
	if m == nil {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// IsClockTime reports whether the field is a radial (clock) field.
func IsClockTime(field string) bool {
	_, _, ok := ParseClockTime(field)
	return ok
}

// grammar holds the calibration-derived vocabulary for classifying fields.
type grammar struct {
	centerMarker string
	named        []StreetCode
	lo, hi       byte
}

func (g grammar) isCenterMarker(field string) bool {
	if g.centerMarker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(field), strings.ToLower(g.centerMarker))
}

// parseStreet finds the street code in an arc field. Named rings win over
// letters. Otherwise the first letter inside the range is taken, wherever it
// appears: "Dickens" and "D" both give D, but so would an unrelated word
// that happens to contain an in-range letter first.
func (g grammar) parseStreet(field string) (StreetCode, bool) {
	lower := strings.ToLower(field)
	for _, name := range g.named {
		if strings.Contains(lower, strings.ToLower(string(name))) {
			return name, true
		}
	}
	for i := 0; i < len(field); i++ {
		c := field[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c >= g.lo && c <= g.hi {
			return StreetCode(string(c)), true
		}
	}
	return "", false
}

func (g grammar) classify(field string) FieldKind {
	switch {
	case strings.TrimSpace(field) == "":
		return FieldEmpty
	case g.isCenterMarker(field):
		return FieldCenterMarker
	case IsClockTime(field):
		return FieldClockTime
	}
	if _, ok := g.parseStreet(field); ok {
		return FieldStreet
	}
	return FieldUnrecognized
}
