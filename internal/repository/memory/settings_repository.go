package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fairy-root/media-downloader-bot/internal/domain/settings"
)

type SettingsRepository struct {
	mu     sync.RWMutex
	banned map[int64]struct{}
	gate   settings.ChannelGateConfig
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{
		banned: make(map[int64]struct{}),
		gate:   settings.ChannelGateConfig{Channels: []string{}},
	}
}

func (r *SettingsRepository) BannedIDs(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.banned))
	for id := range r.banned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *SettingsRepository) IsBanned(_ context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.banned[id]
	return ok, nil
}

func (r *SettingsRepository) AddBanned(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.banned[id]; ok {
		return false, nil
	}
	r.banned[id] = struct{}{}
	return true, nil
}

func (r *SettingsRepository) RemoveBanned(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.banned[id]; !ok {
		return false, nil
	}
	delete(r.banned, id)
	return true, nil
}

func (r *SettingsRepository) ChannelGate(_ context.Context) (settings.ChannelGateConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg := r.gate
	cfg.Channels = append([]string{}, r.gate.Channels...)
	return cfg, nil
}

func (r *SettingsRepository) SaveChannelGate(_ context.Context, cfg settings.ChannelGateConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = settings.ChannelGateConfig{
		Enabled:  cfg.Enabled,
		Channels: append([]string{}, cfg.Channels...),
	}
	return nil
}
