package domain

import (
	"fmt"
	"time"
)

// Activity is one logged reply. LoggedAt is immutable; only Description
// changes, and only through the edit session flow.
type Activity struct {
	ID          string
	UserID      int64
	LoggedAt    time.Time // UTC
	Description string
}

// Day returns the local calendar date the activity falls on in loc.
// The day key is derived at read time, so a timezone change retroactively
// reshapes which day an old activity appears under.
func (a *Activity) Day(loc *time.Location) LocalDate {
	return DateOf(a.LoggedAt, loc)
}

const localDateLayout = "2006-01-02"

// LocalDate is a calendar date string (YYYY-MM-DD) interpreted in a user's
// current timezone. The format sorts lexicographically in date order.
type LocalDate string

// ParseLocalDate validates a YYYY-MM-DD string.
func ParseLocalDate(s string) (LocalDate, error) {
	if _, err := time.Parse(localDateLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadDate, s)
	}
	return LocalDate(s), nil
}

// DateOf returns the local date of t in loc.
func DateOf(t time.Time, loc *time.Location) LocalDate {
	return LocalDate(t.In(loc).Format(localDateLayout))
}

// AddDays shifts the date by n calendar days.
func (d LocalDate) AddDays(n int) LocalDate {
	t, err := time.Parse(localDateLayout, string(d))
	if err != nil {
		return d
	}
	return LocalDate(t.AddDate(0, 0, n).Format(localDateLayout))
}

func (d LocalDate) String() string { return string(d) }

// DayBounds returns the UTC instants [start, end) spanning the local day d
// in loc. time.Date normalizes across DST transitions, so a 23- or 25-hour
// day yields the correct bounds.
func DayBounds(d LocalDate, loc *time.Location) (start, end time.Time) {
	t, err := time.Parse(localDateLayout, string(d))
	if err != nil {
		return time.Time{}, time.Time{}
	}
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC()
}
