package store

import (
	"context"
	"time"

	"github.com/asdmr/chronor/internal/domain"
)

// Repo defines storage operations for users, activities and scheduling
// watermarks. Implementations must make each write observably atomic with
// respect to a concurrent read for the same user, so a watermark update
// happens-before the next due-check can re-evaluate it.
type Repo interface {
	UpsertUser(ctx context.Context, u *domain.User) error
	// UpdateSettings writes the user's profile and schedule settings only.
	// Watermarks and the edit-session pointer are owned by other writers
	// and must survive a settings write built from a stale read.
	UpdateSettings(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	SetPollWatermark(ctx context.Context, userID int64, at time.Time) error
	SetReportWatermark(ctx context.Context, userID int64, date domain.LocalDate) error
	SetEditSession(ctx context.Context, userID int64, activityID string) error

	AppendActivity(ctx context.Context, userID int64, at time.Time, text string) (*domain.Activity, error)
	GetActivity(ctx context.Context, id string) (*domain.Activity, error)
	UpdateActivityText(ctx context.Context, id string, text string) error
	ListActivitiesForLocalDay(ctx context.Context, userID int64, day domain.LocalDate, loc *time.Location) ([]domain.Activity, error)

	Close() error
}
