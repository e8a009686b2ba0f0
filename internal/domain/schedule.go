package domain

import (
	"fmt"
	"time"
)

// PollDue reports whether an activity prompt should fire at now.
//
// The window is half-open: a 9–21 window polls 09:00 through 20:59 local
// time. Outside the window nothing fires and the watermark stays untouched,
// so re-entering the window next day resumes on the interval boundary
// rather than carrying a mid-interval remainder over. A nil watermark fires
// immediately inside the window. Redundant ticks are no-ops because the
// watermark advances on every fire, giving at most one poll per interval
// regardless of tick jitter.
func PollDue(now time.Time, u *User, loc *time.Location) bool {
	h := now.In(loc).Hour()
	if h < u.PollStartHour || h >= u.PollEndHour {
		return false
	}
	if u.LastPollAt == nil {
		return true
	}
	return now.Sub(*u.LastPollAt) >= u.PollInterval()
}

// ReportDue reports whether a daily report should be delivered at now.
// reportDate is the local day the report covers (yesterday, the day that has
// just fully elapsed); watermark is today's local date, to be recorded once
// delivery succeeds.
//
// The date-equality check suppresses repeats when the report hour occurs
// twice (DST fall-back or redundant ticks). The catch-up branch fires once
// when the exact hour was missed entirely: process downtime across the
// boundary, or a DST spring-forward gap swallowing the hour. A user who has
// never been delivered a report has nothing to catch up and only fires at
// the exact hour.
func ReportDue(now time.Time, u *User, loc *time.Location) (reportDate, watermark LocalDate, due bool) {
	local := now.In(loc)
	today := DateOf(now, loc)
	if u.LastReportDate == today {
		return "", "", false
	}

	fire := local.Hour() == u.ReportHour
	if !fire && u.LastReportDate != "" && u.LastReportDate < today && local.Hour() > u.ReportHour {
		fire = true
	}
	if !fire {
		return "", "", false
	}
	return today.AddDays(-1), today, true
}

// ValidateWindow checks poll window bounds: both hours in 0..23 and
// start strictly before end.
func ValidateWindow(start, end int) error {
	if start < 0 || start > 23 || end < 0 || end > 23 {
		return fmt.Errorf("%w: hours must be 0..23", ErrInvalidWindow)
	}
	if start >= end {
		return fmt.Errorf("%w: start %d >= end %d", ErrInvalidWindow, start, end)
	}
	return nil
}

// ValidateHour checks a single local-time hour.
func ValidateHour(h int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("%w: %d", ErrBadHour, h)
	}
	return nil
}

// ValidateTZ checks that tz is a valid IANA location and returns its
// canonical name.
func ValidateTZ(tz string) (string, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadTimezone, tz)
	}
	return loc.String(), nil
}

// FormatHour renders an hour as HH:00.
func FormatHour(h int) string {
	return fmt.Sprintf("%02d:00", h)
}
