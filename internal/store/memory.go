package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asdmr/chronor/internal/domain"
)

// MemoryRepo is an in-process Repo. A single mutex covers every operation,
// which trivially gives the watermark-update-happens-before-next-read
// guarantee the scheduler relies on. Used in tests.
type MemoryRepo struct {
	mu         sync.Mutex
	users      map[int64]domain.User
	activities map[string]domain.Activity
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *MemoryRepo {
	return &MemoryRepo{
		users:      make(map[int64]domain.User),
		activities: make(map[string]domain.Activity),
	}
}

func (r *MemoryRepo) Close() error { return nil }

func (r *MemoryRepo) UpsertUser(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.users[cp.ID] = cp
	return nil
}

func (r *MemoryRepo) UpdateSettings(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[u.ID]
	if !ok {
		return fmt.Errorf("user %d: %w", u.ID, domain.ErrNotFound)
	}
	cur.Username = u.Username
	cur.FirstName = u.FirstName
	cur.TZ = u.TZ
	cur.PollStartHour = u.PollStartHour
	cur.PollEndHour = u.PollEndHour
	cur.ReportHour = u.ReportHour
	cur.PollIntervalMin = u.PollIntervalMin
	r.users[u.ID] = cur
	return nil
}

func (r *MemoryRepo) GetUser(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	cp := u
	return &cp, nil
}

func (r *MemoryRepo) ListUsers(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r *MemoryRepo) SetPollWatermark(_ context.Context, userID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	t := at.UTC()
	u.LastPollAt = &t
	r.users[userID] = u
	return nil
}

func (r *MemoryRepo) SetReportWatermark(_ context.Context, userID int64, date domain.LocalDate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	u.LastReportDate = date
	r.users[userID] = u
	return nil
}

func (r *MemoryRepo) SetEditSession(_ context.Context, userID int64, activityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	u.EditingActivityID = activityID
	r.users[userID] = u
	return nil
}

func (r *MemoryRepo) AppendActivity(_ context.Context, userID int64, at time.Time, text string) (*domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := domain.Activity{
		ID:          uuid.NewString(),
		UserID:      userID,
		LoggedAt:    at.UTC(),
		Description: text,
	}
	r.activities[a.ID] = a
	cp := a
	return &cp, nil
}

func (r *MemoryRepo) GetActivity(_ context.Context, id string) (*domain.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activities[id]
	if !ok {
		return nil, fmt.Errorf("activity %s: %w", id, domain.ErrNotFound)
	}
	cp := a
	return &cp, nil
}

func (r *MemoryRepo) UpdateActivityText(_ context.Context, id string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activities[id]
	if !ok {
		return fmt.Errorf("activity %s: %w", id, domain.ErrNotFound)
	}
	a.Description = text
	r.activities[id] = a
	return nil
}

func (r *MemoryRepo) ListActivitiesForLocalDay(_ context.Context, userID int64, day domain.LocalDate, loc *time.Location) ([]domain.Activity, error) {
	start, end := domain.DayBounds(day, loc)
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []domain.Activity
	for _, a := range r.activities {
		if a.UserID != userID {
			continue
		}
		if a.LoggedAt.Before(start) || !a.LoggedAt.Before(end) {
			continue
		}
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].LoggedAt.Before(res[j].LoggedAt) })
	return res, nil
}
