package redis

import (
	"context"
	"fmt"
	"time"

	rplatform "github.com/fairy-root/media-downloader-bot/internal/platform/redis"
	"github.com/rs/zerolog/log"
)

// MembershipOracle answers whether a user belongs to a channel.
type MembershipOracle interface {
	IsMember(ctx context.Context, channel string, userID int64) (bool, error)
}

// MembershipCache remembers positive membership answers for ttl.
// Negative answers and oracle errors are never cached, so a user who just
// joined is let through on the next attempt.
type MembershipCache struct {
	client *rplatform.Client
	oracle MembershipOracle
	ttl    time.Duration
}

func NewMembershipCache(client *rplatform.Client, oracle MembershipOracle, ttl time.Duration) *MembershipCache {
	return &MembershipCache{client: client, oracle: oracle, ttl: ttl}
}

func (c *MembershipCache) key(channel string, userID int64) string {
	return fmt.Sprintf("membership:%s:%d", channel, userID)
}

// IsMember consults the cache, then the oracle.
func (c *MembershipCache) IsMember(ctx context.Context, channel string, userID int64) (bool, error) {
	key := c.key(channel, userID)
	if n, err := c.client.Exists(ctx, key).Result(); err == nil && n > 0 {
		return true, nil
	}

	ok, err := c.oracle.IsMember(ctx, channel, userID)
	if err != nil || !ok {
		return ok, err
	}
	if err := c.client.Set(ctx, key, 1, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("channel", channel).Int64("user_id", userID).Msg("Failed to cache membership")
	}
	return true, nil
}

