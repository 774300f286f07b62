package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fairy-root/media-downloader-bot/internal/domain/settings"
	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*rplatform.Client, *miniredis.Miniredis) {
	t.Helper()
	return newTestClientFor(t, miniredis.RunT(t))
}

func newTestClientFor(t *testing.T, mr *miniredis.Miniredis) (*rplatform.Client, *miniredis.Miniredis) {
	t.Helper()
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return rplatform.Wrap(c), mr
}

func TestUserRepositoryWriteBack(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	repo := NewUserRepository(client)

	exp := time.Unix(1_700_000_000, 500_000_000)
	rec := domain.New(42, time.Unix(1_600_000_000, 0))
	rec.IsPremium = true
	rec.PremiumExpiry = &exp
	rec.PremiumTier = "30_days"
	rec.LastDownloadDate = "2024-01-02"
	rec.DailyDownloadsCount = 3

	require.NoError(t, repo.Save(ctx, rec))
	assert.False(t, mr.Exists("user:42"), "save must only stage")

	staged, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, staged.DailyDownloadsCount)

	require.NoError(t, repo.Flush(ctx))
	assert.True(t, mr.Exists("user:42"))

	fresh := NewUserRepository(client)
	got, err := fresh.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsPremium)
	assert.WithinDuration(t, exp, *got.PremiumExpiry, time.Millisecond)
	assert.Equal(t, "30_days", got.PremiumTier)
	assert.Equal(t, "2024-01-02", got.LastDownloadDate)
}

func TestUserRepositoryGetMissing(t *testing.T) {
	client, _ := newTestClient(t)
	got, err := NewUserRepository(client).Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepositoryListOverlaysPending(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	repo := NewUserRepository(client)

	require.NoError(t, repo.Save(ctx, domain.New(1, time.Now())))
	require.NoError(t, repo.Flush(ctx))

	updated := domain.New(1, time.Now())
	updated.DailyDownloadsCount = 4
	require.NoError(t, repo.Save(ctx, updated))
	require.NoError(t, repo.Save(ctx, domain.New(2, time.Now())))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	byID := map[int64]domain.Record{}
	for _, r := range list {
		byID[r.ID] = r
	}
	assert.Equal(t, 4, byID[1].DailyDownloadsCount)
	assert.Contains(t, byID, int64(2))
}

func TestUserRepositoryFlushFailureRestages(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	repo := NewUserRepository(client)

	require.NoError(t, repo.Save(ctx, domain.New(9, time.Now())))
	mr.Close()
	require.Error(t, repo.Flush(ctx))

	mr.Restart()
	require.NoError(t, repo.Flush(ctx))
	assert.True(t, mr.Exists("user:9"))
}

// pipelineGate holds transactional pipelines until released.
type pipelineGate struct {
	entered chan struct{}
	release chan struct{}
}

func (g *pipelineGate) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (g *pipelineGate) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (g *pipelineGate) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		g.entered <- struct{}{}
		<-g.release
		return next(ctx, cmds)
	}
}

func TestUserRepositoryReadsRecordWhileFlushInFlight(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	gate := &pipelineGate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c.AddHook(gate)
	t.Cleanup(func() { _ = c.Close() })
	repo := NewUserRepository(rplatform.Wrap(c))

	rec := domain.New(7, time.Now())
	rec.LastDownloadDate = "2026-10-16"
	rec.DailyDownloadsCount = 1
	require.NoError(t, repo.Save(ctx, rec))

	flushed := make(chan error, 1)
	go func() { flushed <- repo.Flush(ctx) }()
	<-gate.entered

	// the first batch is not in Redis yet; reads must still see it
	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.DailyDownloadsCount)

	listed, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 1, listed[0].DailyDownloadsCount)

	got.DailyDownloadsCount++
	require.NoError(t, repo.Save(ctx, got))

	close(gate.release)
	require.NoError(t, <-flushed)
	require.NoError(t, repo.Flush(ctx))

	fresh, _ := newTestClientFor(t, mr)
	durable, err := NewUserRepository(fresh).Get(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, durable)
	assert.Equal(t, 2, durable.DailyDownloadsCount)
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	repo := NewSettingsRepository(client)

	gate, err := repo.ChannelGate(ctx)
	require.NoError(t, err)
	assert.False(t, gate.Enabled)
	assert.Empty(t, gate.Channels)

	require.NoError(t, repo.SaveChannelGate(ctx, settings.ChannelGateConfig{Enabled: true, Channels: []string{"@a", "-100123"}}))
	gate, err = repo.ChannelGate(ctx)
	require.NoError(t, err)
	assert.True(t, gate.Enabled)
	assert.Equal(t, []string{"@a", "-100123"}, gate.Channels)

	added, err := repo.AddBanned(ctx, 77)
	require.NoError(t, err)
	assert.True(t, added)
	added, _ = repo.AddBanned(ctx, 77)
	assert.False(t, added)

	banned, err := repo.IsBanned(ctx, 77)
	require.NoError(t, err)
	assert.True(t, banned)

	ids, err := repo.BannedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{77}, ids)

	removed, _ := repo.RemoveBanned(ctx, 77)
	assert.True(t, removed)
}
