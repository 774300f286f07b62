package quota

import (
	"context"
	"testing"
	"time"

	"github.com/fairy-root/media-downloader-bot/internal/repository/memory"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T, limit int) (*Ledger, *time.Time) {
	t.Helper()
	users := usersvc.NewService(memory.NewUserRepository())
	l := NewLedger(users, limit, time.UTC)
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestReserveUpToLimit(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 5)

	for i := 0; i < 5; i++ {
		ok, err := l.Reserve(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok, "reservation %d", i+1)
	}
	ok, err := l.Reserve(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	used, _ := l.Used(ctx, 1)
	assert.Equal(t, 5, used)
}

func TestRollbackRestoresExactlyOnceAndFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 5)
	var hooks int
	l.OnRollback(func() { hooks++ })

	ok, _ := l.Reserve(ctx, 1)
	require.True(t, ok)
	require.NoError(t, l.Rollback(ctx, 1))
	used, _ := l.Used(ctx, 1)
	assert.Equal(t, 0, used)

	require.NoError(t, l.Rollback(ctx, 1))
	used, _ = l.Used(ctx, 1)
	assert.Equal(t, 0, used)
	assert.Equal(t, 1, hooks)
}

func TestCounterResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	l, now := newLedger(t, 2)

	for i := 0; i < 2; i++ {
		ok, _ := l.Reserve(ctx, 1)
		require.True(t, ok)
	}
	ok, _ := l.Reserve(ctx, 1)
	require.False(t, ok)

	*now = now.Add(24 * time.Hour)
	used, _ := l.Used(ctx, 1)
	assert.Equal(t, 0, used, "stale date reads as zero")

	ok, err := l.Reserve(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	used, _ = l.Used(ctx, 1)
	assert.Equal(t, 1, used)
}

func TestRollbackAfterRolloverIsNoop(t *testing.T) {
	ctx := context.Background()
	l, now := newLedger(t, 2)

	ok, _ := l.Reserve(ctx, 1)
	require.True(t, ok)
	*now = now.Add(24 * time.Hour)
	require.NoError(t, l.Rollback(ctx, 1))

	*now = now.Add(-24 * time.Hour)
	used, _ := l.Used(ctx, 1)
	assert.Equal(t, 1, used)
}

func TestTicketSettlesOnce(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, 1)

	ticket, err := l.Acquire(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, TicketReserved, ticket.State())

	next, err := l.Acquire(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, next, "limit reached")

	require.NoError(t, ticket.Rollback(ctx))
	assert.ErrorIs(t, ticket.Rollback(ctx), ErrTicketSpent)
	assert.ErrorIs(t, ticket.Commit(), ErrTicketSpent)
	assert.Equal(t, TicketRolledBack, ticket.State())

	used, _ := l.Used(ctx, 1)
	assert.Equal(t, 0, used)

	committed, _ := l.Acquire(ctx, 1)
	require.NoError(t, committed.Commit())
	assert.ErrorIs(t, committed.Rollback(ctx), ErrTicketSpent)
	used, _ = l.Used(ctx, 1)
	assert.Equal(t, 1, used)
}
