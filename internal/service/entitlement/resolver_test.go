package entitlement

import (
	"context"
	"testing"
	"time"

	domain "github.com/fairy-root/media-downloader-bot/internal/domain/user"
	"github.com/fairy-root/media-downloader-bot/internal/repository/memory"
	settingssvc "github.com/fairy-root/media-downloader-bot/internal/service/settings"
	usersvc "github.com/fairy-root/media-downloader-bot/internal/service/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	resolver *Resolver
	users    *usersvc.Service
	settings *settingssvc.Service
	now      time.Time
}

func newFixture(t *testing.T, admins ...int64) *fixture {
	t.Helper()
	users := usersvc.NewService(memory.NewUserRepository())
	settings := settingssvc.NewService(memory.NewSettingsRepository())
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	r := NewResolver(users, settings, admins)
	r.now = func() time.Time { return now }
	return &fixture{resolver: r, users: users, settings: settings, now: now}
}

func (f *fixture) seed(t *testing.T, id int64, premium bool, expiry time.Time, tier string) {
	t.Helper()
	_, err := f.users.Update(context.Background(), id, func(r *domain.Record) (bool, error) {
		r.IsPremium = premium
		if !expiry.IsZero() {
			r.PremiumExpiry = &expiry
		}
		r.PremiumTier = tier
		return true, nil
	})
	require.NoError(t, err)
}

func TestBannedWinsOverEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	f.seed(t, 1, true, f.now.Add(time.Hour), "30_days")
	_, err := f.settings.Ban(ctx, 1)
	require.NoError(t, err)

	for _, mode := range []struct{ self, display bool }{{true, false}, {true, true}, {false, false}, {false, true}} {
		role, err := f.resolver.Resolve(ctx, 1, mode.self, mode.display)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleBanned, role)
	}
}

func TestActsAsAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, 2)
	_, err := f.settings.Ban(ctx, 2)
	require.NoError(t, err)

	for id, want := range map[int64]bool{1: true, 2: false, 3: false} {
		ok, err := f.resolver.ActsAsAdmin(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, ok, id)
	}
	assert.True(t, f.resolver.IsAdmin(2), "allowlist is unchanged by a ban")
}

func TestAdminIgnoresPremiumState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.seed(t, 2, true, f.now.Add(-time.Hour), "30_days")

	role, err := f.resolver.Resolve(ctx, 2, true, false)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, role)

	rec, _ := f.users.Get(ctx, 2)
	assert.True(t, rec.IsPremium, "admin resolution must not run premium cleanup")
}

func TestActivePremium(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 3, true, f.now.Add(time.Minute), "3_days")

	role, err := f.resolver.Resolve(context.Background(), 3, true, false)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePremium, role)
}

func TestExpiredPremiumCleanedOnSelfResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 4, true, f.now.Add(-time.Minute), "30_days")

	role, err := f.resolver.Resolve(ctx, 4, true, false)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStandard, role)

	rec, _ := f.users.Get(ctx, 4)
	assert.False(t, rec.IsPremium)
	assert.Nil(t, rec.PremiumExpiry)
	assert.Equal(t, domain.TierExpiredOrCleaned, rec.PremiumTier)
}

func TestCleanupKeepsAdminLabels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 5, true, f.now.Add(-time.Minute), domain.AdminGrantTier(7))

	_, err := f.resolver.Resolve(ctx, 5, true, false)
	require.NoError(t, err)
	rec, _ := f.users.Get(ctx, 5)
	assert.Equal(t, "admin_grant_7d", rec.PremiumTier)
	assert.False(t, rec.IsPremium)
}

func TestDisplayResolutionIsReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 6, true, f.now.Add(-time.Minute), "30_days")
	before, _ := f.users.Get(ctx, 6)

	for i := 0; i < 2; i++ {
		role, err := f.resolver.Resolve(ctx, 6, true, true)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleStandard, role)
	}
	role, err := f.resolver.Resolve(ctx, 6, false, false)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStandard, role)

	after, _ := f.users.Get(ctx, 6)
	assert.Equal(t, before, after)
}

func TestDisplayResolutionDoesNotCreateRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.resolver.Resolve(ctx, 99, false, true)
	require.NoError(t, err)
	rec, _ := f.users.Get(ctx, 99)
	assert.Nil(t, rec)
}
