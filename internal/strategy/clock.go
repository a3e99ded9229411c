package strategy

import (
	"fmt"
	"time"
)

// ParseClock converts an "HH:MM" wall-clock string into an offset since midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// MustClock is ParseClock for compile-time-known constants.
func MustClock(s string) time.Duration {
	d, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return d
}

// clockOffset returns the time-of-day offset of ts, evaluated in loc when one
// is configured and in the timestamp's own location otherwise. Windows are
// decided on the data's clock, not wall time, so replay behaves like live.
func clockOffset(ts time.Time, loc *time.Location) time.Duration {
	if loc != nil {
		ts = ts.In(loc)
	}
	return time.Duration(ts.Hour())*time.Hour +
		time.Duration(ts.Minute())*time.Minute +
		time.Duration(ts.Second())*time.Second +
		time.Duration(ts.Nanosecond())
}
