package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/asdmr/chronor/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

const userColumns = `user_id, username, first_name, created_at, tz,
	poll_start_hour, poll_end_hour, report_hour, poll_interval_min,
	last_poll_at, last_report_date, editing_activity_id`

// UpsertUser inserts or updates a user's settings and scheduling state.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}

	created := u.CreatedAt.UTC().Unix()
	if u.CreatedAt.IsZero() {
		created = time.Now().UTC().Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			user_id, username, first_name, created_at, tz,
			poll_start_hour, poll_end_hour, report_hour, poll_interval_min,
			last_poll_at, last_report_date, editing_activity_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username            = excluded.username,
			first_name          = excluded.first_name,
			tz                  = excluded.tz,
			poll_start_hour     = excluded.poll_start_hour,
			poll_end_hour       = excluded.poll_end_hour,
			report_hour         = excluded.report_hour,
			poll_interval_min   = excluded.poll_interval_min,
			last_poll_at        = excluded.last_poll_at,
			last_report_date    = excluded.last_report_date,
			editing_activity_id = excluded.editing_activity_id`,
		u.ID, toNullString(u.Username), u.FirstName, created, u.TZ,
		u.PollStartHour, u.PollEndHour, u.ReportHour, u.PollIntervalMin,
		toNullInt64(u.LastPollAt), toNullString(string(u.LastReportDate)),
		toNullString(u.EditingActivityID),
	)
	return err
}

// UpdateSettings rewrites the profile and schedule columns for an existing
// user. Watermark and edit-session columns are deliberately absent from the
// statement: the scheduler and tracker update those independently, and a
// settings write carrying a stale row must not roll them back.
func (r *SQLiteRepo) UpdateSettings(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	return r.execForUser(ctx, u.ID, `
		UPDATE users SET
			username          = ?,
			first_name        = ?,
			tz                = ?,
			poll_start_hour   = ?,
			poll_end_hour     = ?,
			report_hour       = ?,
			poll_interval_min = ?
		WHERE user_id = ?`,
		toNullString(u.Username), u.FirstName, u.TZ,
		u.PollStartHour, u.PollEndHour, u.ReportHour, u.PollIntervalMin,
		u.ID,
	)
}

// GetUser returns a user by id or domain.ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return u, err
}

// ListUsers returns all known users.
func (r *SQLiteRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		username   sql.NullString
		createdAt  int64
		lastPoll   sql.NullInt64
		reportDate sql.NullString
		editing    sql.NullString
	)
	if err := row.Scan(
		&u.ID, &username, &u.FirstName, &createdAt, &u.TZ,
		&u.PollStartHour, &u.PollEndHour, &u.ReportHour, &u.PollIntervalMin,
		&lastPoll, &reportDate, &editing,
	); err != nil {
		return nil, err
	}
	u.Username = fromNullString(username)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.LastPollAt = fromNullInt64(lastPoll)
	u.LastReportDate = domain.LocalDate(fromNullString(reportDate))
	u.EditingActivityID = fromNullString(editing)
	return &u, nil
}

// SetPollWatermark records the instant the last poll prompt was sent.
func (r *SQLiteRepo) SetPollWatermark(ctx context.Context, userID int64, at time.Time) error {
	return r.execForUser(ctx, userID,
		`UPDATE users SET last_poll_at = ? WHERE user_id = ?`,
		at.UTC().Unix(), userID)
}

// SetReportWatermark records the local date a report was delivered on.
func (r *SQLiteRepo) SetReportWatermark(ctx context.Context, userID int64, date domain.LocalDate) error {
	return r.execForUser(ctx, userID,
		`UPDATE users SET last_report_date = ? WHERE user_id = ?`,
		string(date), userID)
}

// SetEditSession sets or clears (empty id) the pending edit session pointer.
func (r *SQLiteRepo) SetEditSession(ctx context.Context, userID int64, activityID string) error {
	return r.execForUser(ctx, userID,
		`UPDATE users SET editing_activity_id = ? WHERE user_id = ?`,
		toNullString(activityID), userID)
}

func (r *SQLiteRepo) execForUser(ctx context.Context, userID int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return nil
}

// AppendActivity stores a new activity and returns it.
func (r *SQLiteRepo) AppendActivity(ctx context.Context, userID int64, at time.Time, text string) (*domain.Activity, error) {
	a := &domain.Activity{
		ID:          uuid.NewString(),
		UserID:      userID,
		LoggedAt:    at.UTC(),
		Description: text,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activities (activity_id, user_id, logged_at, description)
		VALUES (?, ?, ?, ?)`,
		a.ID, a.UserID, a.LoggedAt.Unix(), a.Description,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetActivity returns an activity by id or domain.ErrNotFound.
func (r *SQLiteRepo) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT activity_id, user_id, logged_at, description
		FROM activities WHERE activity_id = ?`, id)

	var (
		a        domain.Activity
		loggedAt int64
	)
	if err := row.Scan(&a.ID, &a.UserID, &loggedAt, &a.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("activity %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	a.LoggedAt = time.Unix(loggedAt, 0).UTC()
	return &a, nil
}

// UpdateActivityText replaces an activity's description. The logged instant
// is never touched.
func (r *SQLiteRepo) UpdateActivityText(ctx context.Context, id string, text string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE activities SET description = ? WHERE activity_id = ?`, text, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("activity %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListActivitiesForLocalDay returns the user's activities whose logged
// instant falls on the given local day in loc, ordered by instant ascending.
func (r *SQLiteRepo) ListActivitiesForLocalDay(ctx context.Context, userID int64, day domain.LocalDate, loc *time.Location) ([]domain.Activity, error) {
	start, end := domain.DayBounds(day, loc)
	rows, err := r.db.QueryContext(ctx, `
		SELECT activity_id, user_id, logged_at, description
		FROM activities
		WHERE user_id = ? AND logged_at >= ? AND logged_at < ?
		ORDER BY logged_at ASC`,
		userID, start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Activity
	for rows.Next() {
		var (
			a        domain.Activity
			loggedAt int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &loggedAt, &a.Description); err != nil {
			return nil, err
		}
		a.LoggedAt = time.Unix(loggedAt, 0).UTC()
		res = append(res, a)
	}
	return res, rows.Err()
}
