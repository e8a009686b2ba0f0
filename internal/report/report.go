// Package report assembles a user's activities for one local day into an
// ordered view and a flat text export.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/asdmr/chronor/internal/domain"
)

// Entry is one activity in a report, keyed by a 1-based ordinal usable as an
// edit reference.
type Entry struct {
	Ordinal  int
	Activity domain.Activity
	Local    time.Time // LoggedAt converted into the viewer's timezone
}

// Report is the ordered view of one local day.
type Report struct {
	Date    domain.LocalDate
	Entries []Entry
}

// Build converts a fetched activity set into a report. Activities are
// ordered by UTC instant ascending; local times use loc, the viewer's
// current timezone. An empty set is a valid report.
func Build(date domain.LocalDate, loc *time.Location, acts []domain.Activity) *Report {
	sorted := make([]domain.Activity, len(acts))
	copy(sorted, acts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LoggedAt.Before(sorted[j].LoggedAt)
	})

	r := &Report{Date: date, Entries: make([]Entry, 0, len(sorted))}
	for i, a := range sorted {
		r.Entries = append(r.Entries, Entry{
			Ordinal:  i + 1,
			Activity: a,
			Local:    a.LoggedAt.In(loc),
		})
	}
	return r
}

// Empty reports whether the day has no activities.
func (r *Report) Empty() bool { return len(r.Entries) == 0 }

// Render returns the flat plain-text report: a header line followed by one
// "HH:MM  description" line per activity, chronological. An empty day
// renders as an explicit no-activities notice.
func (r *Report) Render() string {
	if r.Empty() {
		return fmt.Sprintf("No recorded activities for %s.", r.Date)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Activity log for %s\n", r.Date)
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%s  %s\n", e.Local.Format("15:04"), e.Activity.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Export returns the report as file contents for the .txt attachment.
func (r *Report) Export() []byte {
	return []byte(r.Render() + "\n")
}

// Filename returns the attachment name for the exported report.
func (r *Report) Filename() string {
	return fmt.Sprintf("activity_report_%s.txt", r.Date)
}
