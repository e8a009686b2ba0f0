package domain

import "errors"

var (
	// ErrNotFound marks an unknown user or activity reference.
	ErrNotFound = errors.New("not found")
	// ErrNoPendingEdit marks a replacement submitted with no active session.
	ErrNoPendingEdit = errors.New("no pending edit")
	// ErrInvalidWindow marks a poll window with start >= end or an hour
	// outside 0..23.
	ErrInvalidWindow = errors.New("invalid poll window")
	// ErrBadHour marks an hour outside 0..23.
	ErrBadHour = errors.New("hour out of range")
	// ErrBadTimezone marks an unrecognized IANA timezone name.
	ErrBadTimezone = errors.New("unknown timezone")
	// ErrBadDate marks a date not in YYYY-MM-DD form.
	ErrBadDate = errors.New("invalid date")
)
