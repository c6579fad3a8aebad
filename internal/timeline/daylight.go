package timeline

import "time"

// Daylight describes the sunrise and sunset fades as offsets from local
// midnight.
type Daylight struct {
	SunriseStart time.Duration
	SunriseEnd   time.Duration
	SunsetStart  time.Duration
	SunsetEnd    time.Duration

	// Location is the zone whose wall clock the offsets refer to.
	Location *time.Location
}

// DefaultDaylight fades in from 06:00 to 06:30 and out from 19:30 to 20:00.
func DefaultDaylight(loc *time.Location) Daylight {
	return Daylight{
		SunriseStart: 6 * time.Hour,
		SunriseEnd:   6*time.Hour + 30*time.Minute,
		SunsetStart:  19*time.Hour + 30*time.Minute,
		SunsetEnd:    20 * time.Hour,
		Location:     loc,
	}
}

// Darkness returns 1 at night, 0 during the day, and a linear ramp across the
// sunrise and sunset windows. Only hours and minutes of the local time count.
func (d Daylight) Darkness(t time.Time) float64 {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	now := time.Duration(lt.Hour())*time.Hour + time.Duration(lt.Minute())*time.Minute

	switch {
	case now < d.SunriseStart || now >= d.SunsetEnd:
		return 1
	case now >= d.SunriseEnd && now < d.SunsetStart:
		return 0
	case now < d.SunriseEnd:
		return 1 - ratio(now-d.SunriseStart, d.SunriseEnd-d.SunriseStart)
	default:
		return ratio(now-d.SunsetStart, d.SunsetEnd-d.SunsetStart)
	}
}

func ratio(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 1
	}
	return float64(part) / float64(whole)
}
