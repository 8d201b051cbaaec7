package timing

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrInvalidTimeFormat is returned when a time-of-day string is not HH:MM:SS or
// HH:MM:SS.ffffff, or when one of its fields is out of range.
var ErrInvalidTimeFormat = errors.New("invalid time format (expected HH:MM:SS or HH:MM:SS.ffffff)")

var timeOfDayPattern = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}(\.\d{1,6})?$`)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%06d", t.Hour, t.Minute, t.Second, t.Nanosecond/1000)
}

// ParseTimeOfDay parses "HH:MM:SS" or "HH:MM:SS.ffffff" (1 to 6 fraction digits).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !timeOfDayPattern.MatchString(s) {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}

	// time.Parse accepts a fractional second after the seconds field even when the
	// layout does not mention it, and range-checks every field.
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q (%v)", ErrInvalidTimeFormat, s, err)
	}

	return TimeOfDay{
		Hour:       t.Hour(),
		Minute:     t.Minute(),
		Second:     t.Second(),
		Nanosecond: t.Nanosecond(),
	}, nil
}

// On returns the instant at which this time of day occurs on the calendar date of
// day, interpreted in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, t.Nanosecond, day.Location())
}

// Resolve converts a local wall-clock time of day into an absolute instant on
// today's date. It never rolls over to the next day: a time that already passed
// resolves to an instant in the past.
func Resolve(localTimeOfDay string, today time.Time) (time.Time, error) {
	tod, err := ParseTimeOfDay(localTimeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	return tod.On(today), nil
}
