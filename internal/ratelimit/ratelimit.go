package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB interface for database operations
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// LoginGuard counts failed logins per account in PostgreSQL, so every API
// instance sees the same window
type LoginGuard struct {
	db          DB
	maxFailures int
	window      time.Duration
	now         func() time.Time
}

// NewLoginGuard creates a guard; maxFailures <= 0 disables it
func NewLoginGuard(db DB, maxFailures int, window time.Duration) *LoginGuard {
	return &LoginGuard{
		db:          db,
		maxFailures: maxFailures,
		window:      window,
		now:         time.Now,
	}
}

func attemptKey(email string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(email))
}

// Allowed reports whether the account may try another password
func (g *LoginGuard) Allowed(ctx context.Context, email string) (bool, error) {
	if g.maxFailures <= 0 {
		return true, nil
	}

	query := `
		SELECT count
		FROM login_attempts
		WHERE key = $1 AND window_end > $2
	`

	var count int
	err := g.db.QueryRow(ctx, query, attemptKey(email), g.now()).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check login attempts: %w", err)
	}

	return count < g.maxFailures, nil
}

// Fail records a failed attempt and returns the count inside the current window
func (g *LoginGuard) Fail(ctx context.Context, email string) (int, error) {
	if g.maxFailures <= 0 {
		return 0, nil
	}

	now := g.now()

	// A closed window restarts the counter
	query := `
		WITH current_count AS (
			INSERT INTO login_attempts (key, count, window_start, window_end)
			VALUES ($1, 1, $2, $3)
			ON CONFLICT (key)
			DO UPDATE SET
				count = CASE
					WHEN login_attempts.window_end < $2 THEN 1
					ELSE login_attempts.count + 1
				END,
				window_start = CASE
					WHEN login_attempts.window_end < $2 THEN $2
					ELSE login_attempts.window_start
				END,
				window_end = CASE
					WHEN login_attempts.window_end < $2 THEN $3
					ELSE login_attempts.window_end
				END
			RETURNING count
		)
		SELECT count FROM current_count
	`

	var count int
	if err := g.db.QueryRow(ctx, query, attemptKey(email), now, now.Add(g.window)).Scan(&count); err != nil {
		return 0, fmt.Errorf("record login attempt: %w", err)
	}

	return count, nil
}

// Reset clears the counter after a successful login
func (g *LoginGuard) Reset(ctx context.Context, email string) error {
	if g.maxFailures <= 0 {
		return nil
	}
	_, err := g.db.Exec(ctx, `DELETE FROM login_attempts WHERE key = $1`, attemptKey(email))
	return err
}

// CleanupExpired removes closed windows
func (g *LoginGuard) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := g.db.Exec(ctx, `DELETE FROM login_attempts WHERE window_end < $1`, g.now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// RunCleanup calls CleanupExpired every interval until ctx is done
func (g *LoginGuard) RunCleanup(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.CleanupExpired(ctx); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
