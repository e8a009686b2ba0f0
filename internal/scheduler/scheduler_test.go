package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/asdmr/chronor/internal/clock"
	"github.com/asdmr/chronor/internal/domain"
	"github.com/asdmr/chronor/internal/store"
)

type fakeSender struct {
	mu          sync.Mutex
	prompts     map[int64]int
	reports     map[int64][]string
	promptFails map[int64]bool
	reportFails map[int64]bool
	delay       time.Duration // simulated transport latency, set before use
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		prompts:     make(map[int64]int),
		reports:     make(map[int64][]string),
		promptFails: make(map[int64]bool),
		reportFails: make(map[int64]bool),
	}
}

func (f *fakeSender) SendPrompt(_ context.Context, userID int64) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promptFails[userID] {
		return errors.New("transport down")
	}
	f.prompts[userID]++
	return nil
}

func (f *fakeSender) SendReport(_ context.Context, userID int64, _ string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reportFails[userID] {
		return errors.New("transport down")
	}
	f.reports[userID] = append(f.reports[userID], "sent")
	return nil
}

func (f *fakeSender) promptCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[id]
}

func (f *fakeSender) reportCount(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports[id])
}

func seedUser(t *testing.T, repo store.Repo, id int64, tz string) {
	t.Helper()
	err := repo.UpsertUser(context.Background(), &domain.User{
		ID:              id,
		FirstName:       "Dana",
		TZ:              tz,
		PollStartHour:   9,
		PollEndHour:     21,
		ReportHour:      8,
		PollIntervalMin: 30,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func localUTC(t *testing.T, tz string, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UTC()
}

func newTestScheduler(repo store.Repo, sender Sender, clk clock.Clock) *Scheduler {
	return New(repo, zap.NewNop(), sender, clk, time.Second, 4)
}

func TestTick_AtMostOnePollPerInterval(t *testing.T) {
	repo := store.NewMemory()
	sender := newFakeSender()
	seedUser(t, repo, 1, "Asia/Almaty")

	clk := clock.NewMock(localUTC(t, "Asia/Almaty", 2025, time.May, 5, 8, 59))
	s := newTestScheduler(repo, sender, clk)
	ctx := context.Background()

	s.Tick(ctx, clk.Now()) // 08:59 local, before window
	if sender.promptCount(1) != 0 {
		t.Fatal("no prompt before the window opens")
	}

	clk.Set(localUTC(t, "Asia/Almaty", 2025, time.May, 5, 9, 0))
	s.Tick(ctx, clk.Now())
	// Jitter: redundant ticks inside the same interval are no-ops.
	s.Tick(ctx, clk.Now().Add(20*time.Second))
	s.Tick(ctx, clk.Now().Add(70*time.Second))
	if got := sender.promptCount(1); got != 1 {
		t.Fatalf("expected exactly 1 prompt at window open, got %d", got)
	}

	clk.Set(localUTC(t, "Asia/Almaty", 2025, time.May, 5, 9, 15))
	s.Tick(ctx, clk.Now())
	if got := sender.promptCount(1); got != 1 {
		t.Fatalf("09:15 should not fire, got %d prompts", got)
	}

	clk.Set(localUTC(t, "Asia/Almaty", 2025, time.May, 5, 9, 30))
	s.Tick(ctx, clk.Now())
	if got := sender.promptCount(1); got != 2 {
		t.Fatalf("09:30 should fire a second prompt, got %d", got)
	}
}

func TestTick_ConcurrentTicksFireOnce(t *testing.T) {
	repo := store.NewMemory()
	sender := newFakeSender()
	sender.delay = 100 * time.Millisecond
	seedUser(t, repo, 1, "Asia/Almaty")
	ctx := context.Background()

	clk := clock.NewMock(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 9, 0))
	s := newTestScheduler(repo, sender, clk)

	// A manual tick racing the scheduled one: the second pass must not
	// re-read the watermark until the first pass has delivered and
	// advanced it.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Tick(ctx, clk.Now())
		}()
	}
	wg.Wait()

	if got := sender.promptCount(1); got != 1 {
		t.Fatalf("overlapping ticks must poll at most once, got %d prompts", got)
	}
}

func TestTick_ExactlyOneReportPerDay(t *testing.T) {
	repo := store.NewMemory()
	sender := newFakeSender()
	seedUser(t, repo, 1, "Asia/Almaty")

	clk := clock.NewMock(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 8, 0))
	s := newTestScheduler(repo, sender, clk)
	ctx := context.Background()

	s.Tick(ctx, clk.Now())
	s.Tick(ctx, clk.Now().Add(time.Minute))
	if got := sender.reportCount(1); got != 1 {
		t.Fatalf("expected 1 report at the report hour, got %d", got)
	}

	// Restart mid-day: a fresh scheduler over the same store must not
	// deliver again.
	s2 := newTestScheduler(repo, sender, clk)
	clk.Set(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 8, 30))
	s2.Tick(ctx, clk.Now())
	clk.Set(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 15, 0))
	s2.Tick(ctx, clk.Now())
	if got := sender.reportCount(1); got != 1 {
		t.Fatalf("restart caused a duplicate report, got %d", got)
	}
}

func TestTick_CatchUpAfterDowntime(t *testing.T) {
	repo := store.NewMemory()
	sender := newFakeSender()
	seedUser(t, repo, 1, "Asia/Almaty")
	ctx := context.Background()

	// Yesterday's report was delivered; the process then slept through
	// today's 08:00. First tick back, at local 09:00, catches up once.
	if err := repo.SetReportWatermark(ctx, 1, "2025-05-05"); err != nil {
		t.Fatalf("seed watermark: %v", err)
	}

	clk := clock.NewMock(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 9, 0))
	s := newTestScheduler(repo, sender, clk)
	s.Tick(ctx, clk.Now())
	if got := sender.reportCount(1); got != 1 {
		t.Fatalf("expected 1 catch-up report, got %d", got)
	}
	s.Tick(ctx, clk.Now().Add(time.Minute))
	if got := sender.reportCount(1); got != 1 {
		t.Fatalf("catch-up delivered twice, got %d", got)
	}
}

func TestTick_FailedSendRetriesNextTick(t *testing.T) {
	repo := store.NewMemory()
	sender := newFakeSender()
	seedUser(t, repo, 1, "Asia/Almaty")
	ctx := context.Background()

	clk := clock.NewMock(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 9, 0))
	s := newTestScheduler(repo, sender, clk)

	sender.promptFails[1] = true
	s.Tick(ctx, clk.Now())
	if sender.promptCount(1) != 0 {
		t.Fatal("failed send counted as delivered")
	}
	u, _ := repo.GetUser(ctx, 1)
	if u.LastPollAt != nil {
		t.Fatal("watermark advanced despite transport error")
	}

	// Transport recovers: the very next tick retries.
	sender.promptFails[1] = false
	clk.Advance(time.Minute)
	s.Tick(ctx, clk.Now())
	if got := sender.promptCount(1); got != 1 {
		t.Fatalf("expected retry to deliver, got %d", got)
	}
}

func TestTick_FailingUserDoesNotBlockOthers(t *testing.T) {
	repo := store.NewMemory()
	sender := newFakeSender()
	seedUser(t, repo, 1, "Asia/Almaty")
	seedUser(t, repo, 2, "Asia/Almaty")
	ctx := context.Background()

	sender.promptFails[1] = true
	sender.reportFails[1] = true

	clk := clock.NewMock(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 9, 0))
	s := newTestScheduler(repo, sender, clk)
	s.Tick(ctx, clk.Now())

	if got := sender.promptCount(2); got != 1 {
		t.Fatalf("healthy user starved by failing one, got %d prompts", got)
	}
}

func TestTick_BadTimezoneSkipsUser(t *testing.T) {
	repo := store.NewMemory()
	sender := newFakeSender()
	seedUser(t, repo, 1, "Asia/Almaty")
	ctx := context.Background()

	// Corrupt tz must not crash the tick or block other users.
	if err := repo.UpsertUser(ctx, &domain.User{
		ID: 2, TZ: "Broken/Zone", PollStartHour: 0, PollEndHour: 23,
		ReportHour: 8, PollIntervalMin: 30,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	clk := clock.NewMock(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 9, 0))
	s := newTestScheduler(repo, sender, clk)
	s.Tick(ctx, clk.Now())

	if got := sender.promptCount(1); got != 1 {
		t.Fatalf("valid user skipped, got %d prompts", got)
	}
	if got := sender.promptCount(2); got != 0 {
		t.Fatalf("user with broken tz polled, got %d prompts", got)
	}
}

func TestTick_ReconfigurationTakesEffectNextTick(t *testing.T) {
	repo := store.NewMemory()
	sender := newFakeSender()
	seedUser(t, repo, 1, "Asia/Almaty")
	ctx := context.Background()

	// 23:00 Almaty is outside the 9-21 window.
	clk := clock.NewMock(localUTC(t, "Asia/Almaty", 2025, time.May, 6, 23, 0))
	s := newTestScheduler(repo, sender, clk)
	s.Tick(ctx, clk.Now())
	if sender.promptCount(1) != 0 {
		t.Fatal("prompt fired outside the window")
	}

	// Moving the user to a timezone where the same instant is in-window
	// changes the decision with no transition logic.
	u, _ := repo.GetUser(ctx, 1)
	u.TZ = "Europe/Berlin" // 23:00 Almaty == 20:00 Berlin in May
	if err := repo.UpsertUser(ctx, u); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	s.Tick(ctx, clk.Now())
	if got := sender.promptCount(1); got != 1 {
		t.Fatalf("reconfigured user should poll immediately, got %d", got)
	}
}
