// Package tracker is the interaction core: user lifecycle and settings,
// inbound reply routing, the per-user edit session state machine, and
// report assembly over the store.
package tracker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/asdmr/chronor/internal/clock"
	"github.com/asdmr/chronor/internal/domain"
	"github.com/asdmr/chronor/internal/report"
	"github.com/asdmr/chronor/internal/store"
)

// Defaults are applied to a user on first contact.
type Defaults struct {
	TZ              string
	PollStartHour   int
	PollEndHour     int
	ReportHour      int
	PollIntervalMin int
}

// Tracker owns per-user interaction state. Replies and edit transitions for
// one user are serialized behind that user's lock, so a reply can never be
// interpreted as both a fresh log entry and a pending edit submission.
type Tracker struct {
	repo     store.Repo
	clk      clock.Clock
	log      *zap.Logger
	defaults Defaults

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(repo store.Repo, clk clock.Clock, log *zap.Logger, defaults Defaults) *Tracker {
	return &Tracker{
		repo:     repo,
		clk:      clk,
		log:      log,
		defaults: defaults,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// userLock returns the mutex serializing state transitions for one user.
func (t *Tracker) userLock(id int64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// Ensure returns the user, creating it with defaults on first contact.
// Users are never deleted.
func (t *Tracker) Ensure(ctx context.Context, id int64, username, firstName string) (*domain.User, error) {
	l := t.userLock(id)
	l.Lock()
	defer l.Unlock()
	return t.ensureLocked(ctx, id, username, firstName)
}

func (t *Tracker) ensureLocked(ctx context.Context, id int64, username, firstName string) (*domain.User, error) {
	u, err := t.repo.GetUser(ctx, id)
	if err == nil {
		return u, nil
	}
	u = &domain.User{
		ID:              id,
		Username:        username,
		FirstName:       firstName,
		CreatedAt:       t.clk.Now(),
		TZ:              t.defaults.TZ,
		PollStartHour:   t.defaults.PollStartHour,
		PollEndHour:     t.defaults.PollEndHour,
		ReportHour:      t.defaults.ReportHour,
		PollIntervalMin: t.defaults.PollIntervalMin,
	}
	if err := t.repo.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	t.log.Info("user created", zap.Int64("userID", id))
	return u, nil
}

// SetTimezone validates and stores an IANA timezone name. On validation
// failure nothing is applied.
func (t *Tracker) SetTimezone(ctx context.Context, id int64, tz string) error {
	canonical, err := domain.ValidateTZ(tz)
	if err != nil {
		return err
	}
	return t.mutateUser(ctx, id, func(u *domain.User) { u.TZ = canonical })
}

// SetPollWindow validates and stores the local poll window [start, end).
func (t *Tracker) SetPollWindow(ctx context.Context, id int64, start, end int) error {
	if err := domain.ValidateWindow(start, end); err != nil {
		return err
	}
	return t.mutateUser(ctx, id, func(u *domain.User) {
		u.PollStartHour, u.PollEndHour = start, end
	})
}

// SetReportHour validates and stores the local report delivery hour.
func (t *Tracker) SetReportHour(ctx context.Context, id int64, hour int) error {
	if err := domain.ValidateHour(hour); err != nil {
		return err
	}
	return t.mutateUser(ctx, id, func(u *domain.User) { u.ReportHour = hour })
}

// mutateUser applies fn to the stored user under the user's lock. The write
// only covers the settings columns, so a scheduler watermark landing between
// the read and the write here is preserved. The next tick picks the new
// settings up with no transition logic.
func (t *Tracker) mutateUser(ctx context.Context, id int64, fn func(*domain.User)) error {
	l := t.userLock(id)
	l.Lock()
	defer l.Unlock()

	u, err := t.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	fn(u)
	return t.repo.UpdateSettings(ctx, u)
}

// Reply is the outcome of routing one inbound text.
type Reply struct {
	Activity *domain.Activity
	Edited   bool // true if an existing activity was updated
}

// HandleReply routes free-form text: with a pending edit session the text
// replaces that activity's description and closes the session; otherwise a
// new activity is logged at the current instant. The check-and-transition is
// one atomic step per user.
func (t *Tracker) HandleReply(ctx context.Context, id int64, username, firstName, text string) (*Reply, error) {
	l := t.userLock(id)
	l.Lock()
	defer l.Unlock()

	u, err := t.ensureLocked(ctx, id, username, firstName)
	if err != nil {
		return nil, err
	}

	if u.EditingActivityID != "" {
		a, err := t.replaceLocked(ctx, u, text)
		if err != nil {
			return nil, err
		}
		return &Reply{Activity: a, Edited: true}, nil
	}

	a, err := t.repo.AppendActivity(ctx, id, t.clk.Now(), text)
	if err != nil {
		return nil, err
	}
	t.log.Info("activity logged", zap.Int64("userID", id), zap.String("activityID", a.ID))
	return &Reply{Activity: a}, nil
}

// StartEdit transitions the user into awaiting a replacement for the given
// activity. The activity must belong to the user. A prior unfinished session
// is silently discarded: last writer wins, no queuing.
func (t *Tracker) StartEdit(ctx context.Context, userID int64, activityID string) error {
	l := t.userLock(userID)
	l.Lock()
	defer l.Unlock()

	a, err := t.repo.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return domain.ErrNotFound
	}
	return t.repo.SetEditSession(ctx, userID, activityID)
}

// SubmitReplacement applies text to the pending edit session. Fails with
// domain.ErrNoPendingEdit when the user is idle.
func (t *Tracker) SubmitReplacement(ctx context.Context, userID int64, text string) (*domain.Activity, error) {
	l := t.userLock(userID)
	l.Lock()
	defer l.Unlock()

	u, err := t.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.EditingActivityID == "" {
		return nil, domain.ErrNoPendingEdit
	}
	return t.replaceLocked(ctx, u, text)
}

// replaceLocked updates the session's activity and clears the session.
// Caller holds the user lock.
func (t *Tracker) replaceLocked(ctx context.Context, u *domain.User, text string) (*domain.Activity, error) {
	if err := t.repo.UpdateActivityText(ctx, u.EditingActivityID, text); err != nil {
		// A stale pointer (activity gone) still clears the session.
		_ = t.repo.SetEditSession(ctx, u.ID, "")
		return nil, err
	}
	if err := t.repo.SetEditSession(ctx, u.ID, ""); err != nil {
		return nil, err
	}
	a, err := t.repo.GetActivity(ctx, u.EditingActivityID)
	if err != nil {
		return nil, err
	}
	t.log.Info("activity edited", zap.Int64("userID", u.ID), zap.String("activityID", a.ID))
	return a, nil
}

// CancelEdit clears any pending session. Idempotent.
func (t *Tracker) CancelEdit(ctx context.Context, userID int64) error {
	l := t.userLock(userID)
	l.Lock()
	defer l.Unlock()

	if _, err := t.repo.GetUser(ctx, userID); err != nil {
		return nil // unknown user has no session to clear
	}
	return t.repo.SetEditSession(ctx, userID, "")
}

// BuildReport assembles the user's activities for the given local date,
// interpreted in the user's current timezone.
func (t *Tracker) BuildReport(ctx context.Context, userID int64, date domain.LocalDate) (*report.Report, error) {
	u, err := t.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc, err := u.Location()
	if err != nil {
		return nil, err
	}
	acts, err := t.repo.ListActivitiesForLocalDay(ctx, userID, date, loc)
	if err != nil {
		return nil, err
	}
	return report.Build(date, loc, acts), nil
}

// LocalToday returns today's date in the user's current timezone.
func (t *Tracker) LocalToday(ctx context.Context, userID int64) (domain.LocalDate, error) {
	u, err := t.repo.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	loc, err := u.Location()
	if err != nil {
		return "", err
	}
	return domain.DateOf(t.clk.Now(), loc), nil
}
