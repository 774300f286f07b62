package memory

import (
	"context"
	"testing"
	"time"

	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepositoryStagesUntilFlush(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	rec := domain.New(7, time.Now())
	rec.DailyDownloadsCount = 2
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, got.DailyDownloadsCount)
	assert.Nil(t, repo.Durable(7))

	require.NoError(t, repo.Flush(ctx))
	assert.Equal(t, 2, repo.Durable(7).DailyDownloadsCount)
	assert.Equal(t, 1, repo.Flushes())

	// returned copies never alias stored state
	got.DailyDownloadsCount = 99
	again, _ := repo.Get(ctx, 7)
	assert.Equal(t, 2, again.DailyDownloadsCount)
}

func TestUserRepositoryUnknownUser(t *testing.T) {
	got, err := NewUserRepository().Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSettingsRepositoryBans(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository()

	added, _ := repo.AddBanned(ctx, 5)
	assert.True(t, added)
	added, _ = repo.AddBanned(ctx, 5)
	assert.False(t, added)

	ids, _ := repo.BannedIDs(ctx)
	assert.Equal(t, []int64{5}, ids)

	removed, _ := repo.RemoveBanned(ctx, 5)
	assert.True(t, removed)
	removed, _ = repo.RemoveBanned(ctx, 5)
	assert.False(t, removed)
}
