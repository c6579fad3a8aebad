package geocode

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// StreetCode names one concentric arc street: the named innermost ring
// ("Esplanade") or a single upper-case letter.
type StreetCode string

const Esplanade StreetCode = "Esplanade"

// IsLetter reports whether the code is a single-letter street.
func (c StreetCode) IsLetter() bool {
	return len(c) == 1
}

// Street is one measured ring: distance from the city center in feet.
type Street struct {
	Code StreetCode `yaml:"code" json:"code"`
	Feet float64    `yaml:"feet" json:"feet"`
}

// Direction moves a camp off the nominal street radius.
type Direction string

const (
	Inward  Direction = "inward"
	Outward Direction = "outward"
)

func (d Direction) sign() float64 {
	switch d {
	case Inward:
		return -1
	case Outward:
		return 1
	default:
		return 0
	}
}

// FacingRule applies the calibration's facing offset when Marker appears
// (case-insensitively) in a camp's exact location.
type FacingRule struct {
	Marker    string    `yaml:"marker" json:"marker"`
	Direction Direction `yaml:"direction" json:"direction"`
}

// CenterArea is the plaza that bypasses the clock/street grid entirely.
type CenterArea struct {
	Marker string  `yaml:"marker" json:"marker"`
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
}

// Calibration is the full set of constants that maps the city grid onto the
// rendered map image. Coordinates are fractions of the image, origin top-left.
type Calibration struct {
	Name string `yaml:"name" json:"name"`

	// CenterX / CenterY locate the Man on the image.
	CenterX float64 `yaml:"center_x" json:"center_x"`
	CenterY float64 `yaml:"center_y" json:"center_y"`

	// MapScale is the normalized radius of the outermost street.
	MapScale float64 `yaml:"map_scale" json:"map_scale"`

	FacingOffset float64      `yaml:"facing_offset" json:"facing_offset"`
	Facing       []FacingRule `yaml:"facing" json:"facing"`

	CenterArea CenterArea `yaml:"center_area" json:"center_area"`

	// LetterRange bounds street letter tokens, e.g. "A-L". A letter inside
	// the range but missing from Streets is reported as not calibrated.
	LetterRange string `yaml:"letter_range" json:"letter_range"`

	// Streets are ordered innermost to outermost.
	Streets []Street `yaml:"streets" json:"streets"`
}

// TableEntry is one normalized ring.
type TableEntry struct {
	Code  StreetCode
	Feet  float64
	Ratio float64
}

// Table is the normalized street → radius mapping. It is immutable once built.
type Table struct {
	entries []TableEntry
	byCode  map[StreetCode]float64
	scale   float64
}

// NewTable normalizes measured distances so that the outermost street sits at
// exactly mapScale. Distances must be non-negative and strictly increasing.
func NewTable(streets []Street, mapScale float64) (*Table, error) {
	if len(streets) == 0 {
		return nil, errors.New("calibration: no streets")
	}
	if mapScale <= 0 {
		return nil, fmt.Errorf("calibration: map scale must be positive, got %v", mapScale)
	}

	byCode := make(map[StreetCode]float64, len(streets))
	prev := -1.0
	for _, s := range streets {
		if s.Code == "" {
			return nil, errors.New("calibration: street with empty code")
		}
		if _, dup := byCode[s.Code]; dup {
			return nil, fmt.Errorf("calibration: duplicate street %q", s.Code)
		}
		if s.Feet < 0 {
			return nil, fmt.Errorf("calibration: street %q has negative distance", s.Code)
		}
		if s.Feet <= prev {
			return nil, fmt.Errorf("calibration: street %q (%v ft) is not beyond the previous ring (%v ft)", s.Code, s.Feet, prev)
		}
		prev = s.Feet
		byCode[s.Code] = 0
	}

	outer := streets[len(streets)-1].Feet
	entries := make([]TableEntry, len(streets))
	for i, s := range streets {
		r := s.Feet / outer * mapScale
		entries[i] = TableEntry{Code: s.Code, Feet: s.Feet, Ratio: r}
		byCode[s.Code] = r
	}

	return &Table{entries: entries, byCode: byCode, scale: mapScale}, nil
}

// Ratio returns the normalized radius of a street.
func (t *Table) Ratio(code StreetCode) (float64, bool) {
	r, ok := t.byCode[code]
	return r, ok
}

// Entries returns the rings innermost first.
func (t *Table) Entries() []TableEntry {
	out := make([]TableEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Scale is the configured map-scale factor.
func (t *Table) Scale() float64 { return t.scale }

// namedCodes returns multi-letter street names, innermost first.
func (t *Table) namedCodes() []StreetCode {
	var out []StreetCode
	for _, e := range t.entries {
		if !e.Code.IsLetter() {
			out = append(out, e.Code)
		}
	}
	return out
}

// parseLetterRange turns "A-L" into its bounds.
func parseLetterRange(s string) (byte, byte, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 || s[1] != '-' {
		return 0, 0, fmt.Errorf("calibration: letter range %q is not of the form A-L", s)
	}
	lo, hi := s[0], s[2]
	if lo < 'A' || hi > 'Z' || lo > hi {
		return 0, 0, fmt.Errorf("calibration: letter range %q is invalid", s)
	}
	return lo, hi, nil
}

// Validate checks the calibration without building a resolver.
func (c Calibration) Validate() error {
	if _, err := NewTable(c.Streets, c.MapScale); err != nil {
		return err
	}
	if _, _, err := parseLetterRange(c.LetterRange); err != nil {
		return err
	}
	if c.FacingOffset < 0 {
		return fmt.Errorf("calibration: facing offset must not be negative, got %v", c.FacingOffset)
	}
	for _, f := range c.Facing {
		if f.Direction.sign() == 0 {
			return fmt.Errorf("calibration: facing rule %q has unknown direction %q", f.Marker, f.Direction)
		}
	}
	return nil
}

// Built-in calibration names.
const (
	Measured2025    = "2025-measured"
	BlockDimensions = "block-dimensions"
)

// Builtin returns a copy of a named built-in calibration.
func Builtin(name string) (Calibration, bool) {
	switch name {
	case Measured2025:
		return measured2025(), true
	case BlockDimensions:
		return blockDimensions(), true
	}
	return Calibration{}, false
}

// BuiltinNames lists the built-in calibrations.
func BuiltinNames() []string {
	names := []string{Measured2025, BlockDimensions}
	sort.Strings(names)
	return names
}

func defaultFacing() []FacingRule {
	// A camp "facing Man" sits on the outer side of its street.
	return []FacingRule{
		{Marker: "facing man", Direction: Outward},
		{Marker: "facing mountain", Direction: Inward},
	}
}

// measured2025 uses per-street distances taken from the surveyed map.
// Kilgore comes from the 11,510 ft city diameter.
func measured2025() Calibration {
	return Calibration{
		Name:         Measured2025,
		CenterX:      0.475,
		CenterY:      0.43,
		MapScale:     0.455,
		FacingOffset: 0.005,
		Facing:       defaultFacing(),
		CenterArea:   CenterArea{Marker: "Center Camp", X: 0.5, Y: 0.58},
		LetterRange:  "A-L",
		Streets: []Street{
			{Esplanade, 2500},
			{"A", 2930},
			{"B", 3210},
			{"C", 3490},
			{"D", 3770},
			{"E", 4050},
			{"F", 4530},
			{"G", 4810},
			{"H", 5090},
			{"I", 5370},
			{"J", 5550},
			{"K", 5755},
		},
	}
}

// blockDimensions derives distances from the published block depths:
// Esplanade at 2,500 ft, a 400 ft Atwood block, 250 ft blocks through I,
// then 150 ft blocks out to K.
func blockDimensions() Calibration {
	return Calibration{
		Name:         BlockDimensions,
		CenterX:      0.5,
		CenterY:      0.5,
		MapScale:     0.455,
		FacingOffset: 0.015,
		Facing:       defaultFacing(),
		CenterArea:   CenterArea{Marker: "Center Camp", X: 0.5, Y: 0.58},
		LetterRange:  "A-L",
		Streets: []Street{
			{Esplanade, 2500},
			{"A", 2900},
			{"B", 3150},
			{"C", 3400},
			{"D", 3650},
			{"E", 3900},
			{"F", 4150},
			{"G", 4400},
			{"H", 4650},
			{"I", 4900},
			{"J", 5050},
			{"K", 5200},
		},
	}
}
