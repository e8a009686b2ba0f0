package domain

import (
	"errors"
	"testing"
	"time"
)

// helper: build a time in given tz and return its UTC
func mustLocalUTC(t *testing.T, tz string, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func mustLoc(t *testing.T, tz string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

func TestPollDue_WindowAndInterval(t *testing.T) {
	u := &User{
		ID:              1,
		TZ:              "Asia/Almaty",
		PollStartHour:   9,
		PollEndHour:     21,
		PollIntervalMin: 30,
	}
	loc := mustLoc(t, u.TZ)

	at := func(hh, mm int) time.Time {
		return mustLocalUTC(t, u.TZ, 2025, time.May, 5, hh, mm)
	}

	if PollDue(at(8, 59), u, loc) {
		t.Fatal("08:59 is before the window, no poll should fire")
	}
	if !PollDue(at(9, 0), u, loc) {
		t.Fatal("09:00 with no watermark should fire")
	}
	fired := at(9, 0)
	u.LastPollAt = &fired

	if PollDue(at(9, 15), u, loc) {
		t.Fatal("09:15 is within the interval, no poll should fire")
	}
	if !PollDue(at(9, 30), u, loc) {
		t.Fatal("09:30 should fire, interval elapsed")
	}
}

func TestPollDue_EndHourExclusive(t *testing.T) {
	u := &User{TZ: "Asia/Almaty", PollStartHour: 9, PollEndHour: 21, PollIntervalMin: 30}
	loc := mustLoc(t, u.TZ)

	if !PollDue(mustLocalUTC(t, u.TZ, 2025, time.May, 5, 20, 59), u, loc) {
		t.Fatal("20:59 is inside a 9-21 window")
	}
	if PollDue(mustLocalUTC(t, u.TZ, 2025, time.May, 5, 21, 0), u, loc) {
		t.Fatal("21:00 is outside a 9-21 window")
	}
}

func TestPollDue_OutsideWindowLeavesWatermark(t *testing.T) {
	u := &User{TZ: "UTC", PollStartHour: 9, PollEndHour: 21, PollIntervalMin: 30}
	loc := mustLoc(t, u.TZ)

	// Last poll fired at the end of yesterday's window. Overnight ticks do
	// nothing; the first in-window tick next morning fires on the interval
	// check, not a carryover.
	last := time.Date(2025, time.May, 5, 20, 30, 0, 0, time.UTC)
	u.LastPollAt = &last

	if PollDue(time.Date(2025, time.May, 6, 3, 0, 0, 0, time.UTC), u, loc) {
		t.Fatal("03:00 is outside the window")
	}
	if !PollDue(time.Date(2025, time.May, 6, 9, 0, 0, 0, time.UTC), u, loc) {
		t.Fatal("next morning 09:00 should fire")
	}
}

func TestReportDue_ExactHour(t *testing.T) {
	u := &User{TZ: "Asia/Almaty", ReportHour: 8}
	loc := mustLoc(t, u.TZ)

	now := mustLocalUTC(t, u.TZ, 2025, time.May, 6, 8, 5)
	reportDate, watermark, due := ReportDue(now, u, loc)
	if !due {
		t.Fatal("report should be due at the report hour")
	}
	if reportDate != "2025-05-05" {
		t.Fatalf("report should cover yesterday, got %s", reportDate)
	}
	if watermark != "2025-05-06" {
		t.Fatalf("watermark should be today, got %s", watermark)
	}
}

func TestReportDue_SuppressedAfterDelivery(t *testing.T) {
	u := &User{TZ: "Asia/Almaty", ReportHour: 8, LastReportDate: "2025-05-06"}
	loc := mustLoc(t, u.TZ)

	// Same hour, later tick: already delivered today.
	if _, _, due := ReportDue(mustLocalUTC(t, u.TZ, 2025, time.May, 6, 8, 35), u, loc); due {
		t.Fatal("second tick in the report hour must not deliver again")
	}
	// Later in the day, watermark still today: the catch-up branch must not
	// fire either.
	if _, _, due := ReportDue(mustLocalUTC(t, u.TZ, 2025, time.May, 6, 15, 0), u, loc); due {
		t.Fatal("catch-up must not fire for an already delivered day")
	}
}

func TestReportDue_CatchUpAfterDowntime(t *testing.T) {
	// Report hour 8, process down from local 07:00 to 09:00. First tick
	// after restart at 09:00 delivers exactly one catch-up report.
	u := &User{TZ: "Asia/Almaty", ReportHour: 8, LastReportDate: "2025-05-05"}
	loc := mustLoc(t, u.TZ)

	now := mustLocalUTC(t, u.TZ, 2025, time.May, 6, 9, 0)
	reportDate, watermark, due := ReportDue(now, u, loc)
	if !due {
		t.Fatal("missed report hour should be caught up")
	}
	if reportDate != "2025-05-05" || watermark != "2025-05-06" {
		t.Fatalf("got reportDate=%s watermark=%s", reportDate, watermark)
	}

	u.LastReportDate = watermark
	if _, _, due := ReportDue(now.Add(time.Minute), u, loc); due {
		t.Fatal("catch-up must deliver only once")
	}
}

func TestReportDue_SpringForwardGap(t *testing.T) {
	// America/New_York 2025-03-09: 02:00 local does not exist. A report
	// hour of 2 is caught up by the first tick at or after 03:00.
	u := &User{TZ: "America/New_York", ReportHour: 2, LastReportDate: "2025-03-08"}
	loc := mustLoc(t, u.TZ)

	now := mustLocalUTC(t, u.TZ, 2025, time.March, 9, 3, 0)
	reportDate, _, due := ReportDue(now, u, loc)
	if !due {
		t.Fatal("skipped report hour should be caught up after the gap")
	}
	if reportDate != "2025-03-08" {
		t.Fatalf("report should cover the elapsed day, got %s", reportDate)
	}
}

func TestReportDue_NeverDeliveredFiresOnlyAtHour(t *testing.T) {
	u := &User{TZ: "UTC", ReportHour: 8}
	loc := mustLoc(t, u.TZ)

	if _, _, due := ReportDue(time.Date(2025, time.May, 6, 12, 0, 0, 0, time.UTC), u, loc); due {
		t.Fatal("a user with no watermark has nothing to catch up")
	}
	if _, _, due := ReportDue(time.Date(2025, time.May, 6, 8, 0, 0, 0, time.UTC), u, loc); !due {
		t.Fatal("a user with no watermark fires at the exact hour")
	}
}

func TestActivityDay_FollowsCurrentTimezone(t *testing.T) {
	// Logged at 20:00 UTC: still May 5 in UTC, already May 6 in Almaty
	// (UTC+5). The stored instant never changes; the day key does.
	a := &Activity{LoggedAt: time.Date(2025, time.May, 5, 20, 0, 0, 0, time.UTC)}

	if got := a.Day(time.UTC); got != "2025-05-05" {
		t.Fatalf("UTC day: got %s", got)
	}
	if got := a.Day(mustLoc(t, "Asia/Almaty")); got != "2025-05-06" {
		t.Fatalf("Almaty day: got %s", got)
	}
}

func TestDayBounds_DSTTransition(t *testing.T) {
	loc := mustLoc(t, "Europe/Berlin")

	start, end := DayBounds("2025-03-30", loc) // spring forward, 23-hour day
	if got := end.Sub(start); got != 23*time.Hour {
		t.Fatalf("expected a 23-hour day, got %s", got)
	}
	start, end = DayBounds("2025-10-26", loc) // fall back, 25-hour day
	if got := end.Sub(start); got != 25*time.Hour {
		t.Fatalf("expected a 25-hour day, got %s", got)
	}
}

func TestValidateWindow(t *testing.T) {
	if err := ValidateWindow(9, 21); err != nil {
		t.Fatalf("9-21 is valid: %v", err)
	}
	if err := ValidateWindow(21, 9); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("start >= end must fail, got %v", err)
	}
	if err := ValidateWindow(9, 9); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("zero-length window must fail, got %v", err)
	}
	if err := ValidateWindow(-1, 21); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("negative hour must fail, got %v", err)
	}
	if err := ValidateWindow(9, 24); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("hour 24 must fail, got %v", err)
	}
}

func TestValidateTZ(t *testing.T) {
	name, err := ValidateTZ("Asia/Almaty")
	if err != nil || name != "Asia/Almaty" {
		t.Fatalf("got %q, %v", name, err)
	}
	if _, err := ValidateTZ("Mars/Olympus"); !errors.Is(err, ErrBadTimezone) {
		t.Fatalf("bogus tz must fail, got %v", err)
	}
}

func TestParseLocalDate(t *testing.T) {
	if _, err := ParseLocalDate("2025-05-06"); err != nil {
		t.Fatalf("valid date rejected: %v", err)
	}
	if _, err := ParseLocalDate("06.05.2025"); !errors.Is(err, ErrBadDate) {
		t.Fatalf("invalid date accepted, got %v", err)
	}
}
