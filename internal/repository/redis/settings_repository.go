package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/fairy-root/media-downloader-bot/internal/domain/settings"
	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/redis/go-redis/v9"
)

const (
	bannedUsersKey = "bot:banned_user_ids"
	channelGateKey = "bot:channel_subscription_config"
)

// SettingsRepository keeps the global records: the banned set and the channel gate.
type SettingsRepository struct {
	client *rplatform.Client
}

func NewSettingsRepository(client *rplatform.Client) *SettingsRepository {
	return &SettingsRepository{client: client}
}

func (r *SettingsRepository) BannedIDs(ctx context.Context) ([]int64, error) {
	members, err := r.client.SMembers(ctx, bannedUsersKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if id, convErr := strconv.ParseInt(m, 10, 64); convErr == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *SettingsRepository) IsBanned(ctx context.Context, id int64) (bool, error) {
	return r.client.SIsMember(ctx, bannedUsersKey, strconv.FormatInt(id, 10)).Result()
}

func (r *SettingsRepository) AddBanned(ctx context.Context, id int64) (bool, error) {
	n, err := r.client.SAdd(ctx, bannedUsersKey, strconv.FormatInt(id, 10)).Result()
	return n > 0, err
}

func (r *SettingsRepository) RemoveBanned(ctx context.Context, id int64) (bool, error) {
	n, err := r.client.SRem(ctx, bannedUsersKey, strconv.FormatInt(id, 10)).Result()
	return n > 0, err
}

// ChannelGate returns the stored config, or a disabled gate when none was saved.
func (r *SettingsRepository) ChannelGate(ctx context.Context) (settings.ChannelGateConfig, error) {
	cfg := settings.ChannelGateConfig{Channels: []string{}}
	b, err := r.client.Get(ctx, channelGateKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Channels == nil {
		cfg.Channels = []string{}
	}
	return cfg, nil
}

func (r *SettingsRepository) SaveChannelGate(ctx context.Context, cfg settings.ChannelGateConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, channelGateKey, b, 0).Err()
}
