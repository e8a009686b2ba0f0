package domain

import "time"

// User represents per-chat tracking settings and scheduling state.
// All hours are local-time hours in the user's timezone and are
// reinterpreted against the current TZ on every scheduling decision.
type User struct {
	ID        int64
	Username  string
	FirstName string
	CreatedAt time.Time // UTC

	TZ              string // IANA name
	PollStartHour   int    // inclusive, 0..23
	PollEndHour     int    // exclusive, 0..23, > PollStartHour
	ReportHour      int    // 0..23
	PollIntervalMin int

	LastPollAt        *time.Time // UTC, nil until the first poll fires
	LastReportDate    LocalDate  // local date a report was last delivered on, "" if never
	EditingActivityID string     // pending edit session target, "" when idle
}

// Location resolves the user's timezone.
func (u *User) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(u.TZ)
	if err != nil {
		return nil, ErrBadTimezone
	}
	return loc, nil
}

// PollInterval returns the poll interval as a duration, falling back to
// 30 minutes if the stored value is unusable.
func (u *User) PollInterval() time.Duration {
	if u.PollIntervalMin <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(u.PollIntervalMin) * time.Minute
}
