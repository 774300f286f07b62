package user

import (
	"context"
	"sync"
	"testing"

	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	"github.com/fairy-root/media-downloader-bot/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateCreatesLazily(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewUserRepository())

	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec, err := svc.Touch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ID)

	got, err = svc.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestUpdateSerializesPerUser(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewUserRepository())

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Update(ctx, 9, func(r *domain.Record) (bool, error) {
				r.DailyDownloadsCount++
				return true, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := svc.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, workers, got.DailyDownloadsCount)
	assert.Zero(t, svc.locks.size())
}

func TestUpdateErrorDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewUserRepository())
	_, err := svc.Touch(ctx, 3)
	require.NoError(t, err)

	boom := assert.AnError
	_, err = svc.Update(ctx, 3, func(r *domain.Record) (bool, error) {
		r.DailyDownloadsCount = 10
		return true, boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := svc.Get(ctx, 3)
	assert.Zero(t, got.DailyDownloadsCount)
}
