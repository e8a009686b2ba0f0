// Package scheduler drives the per-user poll and report due-checks off a
// coarse minute tick. Every decision is recomputed from current user state,
// so timezone/window/report-hour changes take effect on the next tick and a
// restart resumes from the persisted watermarks.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/asdmr/chronor/internal/clock"
	"github.com/asdmr/chronor/internal/domain"
	"github.com/asdmr/chronor/internal/report"
	"github.com/asdmr/chronor/internal/store"
)

// Sender delivers outbound messages. telegram.Router implements this.
// Errors are transport errors: the scheduler logs them and retries on the
// next tick without advancing the watermark.
type Sender interface {
	SendPrompt(ctx context.Context, userID int64) error
	SendReport(ctx context.Context, userID int64, text string, attachment []byte, filename string) error
}

// Scheduler fires activity prompts and daily reports.
type Scheduler struct {
	repo        store.Repo
	log         *zap.Logger
	sender      Sender
	clk         clock.Clock
	cron        *cron.Cron
	sendTimeout time.Duration
	concurrency int

	// tickMu serializes whole ticks. A manually triggered tick and the
	// cron tick must never interleave: both would read the same watermark
	// before either send lands, firing twice within one interval.
	tickMu sync.Mutex
}

func New(repo store.Repo, log *zap.Logger, sender Sender, clk clock.Clock, sendTimeout time.Duration, concurrency int) *Scheduler {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Scheduler{
		repo:        repo,
		log:         log,
		sender:      sender,
		clk:         clk,
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sendTimeout: sendTimeout,
		concurrency: concurrency,
	}
}

// Start registers the minute tick and starts the cron loop. Cron ticks run
// under ctx, so in-flight store and send calls observe shutdown; a tick
// still running when the next minute fires is skipped, not stacked.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("* * * * *", func() {
		s.Tick(ctx, s.clk.Now())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started")
	return nil
}

// Stop halts ticking and waits briefly for an in-flight tick to drain.
// Undelivered sends are retried after the next start via the watermarks.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn("scheduler stop timed out, abandoning in-flight tick")
	}
	s.log.Info("scheduler stopped")
}

// Tick evaluates every user once at the instant now. Ticks are serialized:
// a concurrent caller blocks until the running pass finishes, then sees its
// watermark updates. Within a tick, per-user checks only touch that user's
// own watermarks, so they fan out concurrently; one user's failure never
// blocks the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		s.log.Error("ListUsers failed", zap.Error(err))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range users {
		u := users[i]
		g.Go(func() error {
			s.checkUser(gctx, now, &u)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) checkUser(ctx context.Context, now time.Time, u *domain.User) {
	loc, err := u.Location()
	if err != nil {
		s.log.Warn("skipping user with bad timezone",
			zap.Int64("userID", u.ID), zap.String("tz", u.TZ))
		return
	}

	if domain.PollDue(now, u, loc) {
		s.firePoll(ctx, now, u)
	}
	if reportDate, watermark, due := domain.ReportDue(now, u, loc); due {
		s.fireReport(ctx, u, loc, reportDate, watermark)
	}
}

// firePoll sends the activity prompt and advances the poll watermark. On a
// transport error the watermark stays put and the next tick retries.
func (s *Scheduler) firePoll(ctx context.Context, now time.Time, u *domain.User) {
	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := s.sender.SendPrompt(sctx, u.ID); err != nil {
		s.log.Error("prompt send failed", zap.Error(err), zap.Int64("userID", u.ID))
		return
	}
	if err := s.repo.SetPollWatermark(ctx, u.ID, now); err != nil {
		s.log.Error("SetPollWatermark failed", zap.Error(err), zap.Int64("userID", u.ID))
		return
	}
	s.log.Debug("poll fired", zap.Int64("userID", u.ID))
}

// fireReport assembles and delivers the report for the elapsed local day,
// then records the delivery date. Watermark advances only after a
// successful send, so a failed delivery is retried until it lands.
func (s *Scheduler) fireReport(ctx context.Context, u *domain.User, loc *time.Location, reportDate, watermark domain.LocalDate) {
	acts, err := s.repo.ListActivitiesForLocalDay(ctx, u.ID, reportDate, loc)
	if err != nil {
		s.log.Error("listing report activities failed", zap.Error(err), zap.Int64("userID", u.ID))
		return
	}
	rep := report.Build(reportDate, loc, acts)

	sctx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	var attachment []byte
	if !rep.Empty() {
		attachment = rep.Export()
	}
	if err := s.sender.SendReport(sctx, u.ID, rep.Render(), attachment, rep.Filename()); err != nil {
		s.log.Error("report send failed", zap.Error(err), zap.Int64("userID", u.ID))
		return
	}
	if err := s.repo.SetReportWatermark(ctx, u.ID, watermark); err != nil {
		s.log.Error("SetReportWatermark failed", zap.Error(err), zap.Int64("userID", u.ID))
		return
	}
	s.log.Info("report delivered",
		zap.Int64("userID", u.ID), zap.String("date", reportDate.String()))
}
