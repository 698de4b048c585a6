package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newGuard(t *testing.T, maxFailures int) (*LoginGuard, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	g := NewLoginGuard(mock, maxFailures, 15*time.Minute)
	g.now = func() time.Time { return fixedNow }
	return g, mock
}

func TestLoginGuard_Allowed(t *testing.T) {
	tests := []struct {
		name      string
		mockCount int
		noRows    bool
		want      bool
	}{
		{name: "no failures recorded", noRows: true, want: true},
		{name: "below limit", mockCount: 4, want: true},
		{name: "at limit", mockCount: 5, want: false},
		{name: "above limit", mockCount: 9, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, mock := newGuard(t, 5)

			q := mock.ExpectQuery("SELECT count").WithArgs("login:ada@uni.edu", fixedNow)
			if tt.noRows {
				q.WillReturnError(pgx.ErrNoRows)
			} else {
				q.WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(tt.mockCount))
			}

			got, err := g.Allowed(context.Background(), "  Ada@Uni.edu ")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoginGuard_Allowed_DatabaseError(t *testing.T) {
	g, mock := newGuard(t, 5)

	mock.ExpectQuery("SELECT count").
		WithArgs("login:ada@uni.edu", fixedNow).
		WillReturnError(errors.New("connection reset"))

	allowed, err := g.Allowed(context.Background(), "ada@uni.edu")
	require.Error(t, err)
	assert.False(t, allowed)
	assert.Contains(t, err.Error(), "check login attempts")
}

func TestLoginGuard_Fail(t *testing.T) {
	g, mock := newGuard(t, 5)

	mock.ExpectQuery("WITH current_count AS").
		WithArgs("login:ada@uni.edu", fixedNow, fixedNow.Add(15*time.Minute)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	count, err := g.Fail(context.Background(), "ada@uni.edu")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginGuard_Reset(t *testing.T) {
	g, mock := newGuard(t, 5)

	mock.ExpectExec("DELETE FROM login_attempts WHERE key").
		WithArgs("login:ada@uni.edu").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, g.Reset(context.Background(), "ada@uni.edu"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginGuard_Disabled(t *testing.T) {
	g, mock := newGuard(t, 0)
	ctx := context.Background()

	allowed, err := g.Allowed(ctx, "ada@uni.edu")
	require.NoError(t, err)
	assert.True(t, allowed)

	count, err := g.Fail(ctx, "ada@uni.edu")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, g.Reset(ctx, "ada@uni.edu"))

	// no queries expected
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginGuard_CleanupExpired(t *testing.T) {
	g, mock := newGuard(t, 5)

	mock.ExpectExec("DELETE FROM login_attempts WHERE window_end").
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	deleted, err := g.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginGuard_RunCleanupStopsOnCancel(t *testing.T) {
	g, _ := newGuard(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.RunCleanup(ctx, time.Hour, nil)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}
